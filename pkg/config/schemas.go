package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema names known to every registry.
const (
	SchemaCatalogue = "catalogue"
	SchemaLayout    = "layout"
)

// SchemaRegistry manages CUE schemas for validation. All values it
// produces share one CUE runtime.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas are constants; a compile failure is a programming error.
	if err := sr.RegisterSchema(SchemaCatalogue, builtinCatalogueSchema, "#Catalogue"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaLayout, builtinLayoutSchema, "#Layout"); err != nil {
		panic(err)
	}

	return sr
}

// Context returns the CUE runtime of the registry.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles schema and registers the definition def under
// name.
func (sr *SchemaRegistry) RegisterSchema(name, schema, def string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	defVal := val.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.schemas[name] = defVal
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Apply unifies val with the named schema. Errors surface through the
// returned value.
func (sr *SchemaRegistry) Apply(name string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", name)
	}
	return schema.Unify(val), nil
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified, err := sr.Apply(schemaName, dataVal)
	if err != nil {
		return err
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinCatalogueSchema = `
#PipettingSpecs: {
	name?:                   string
	min_transfer_volume:     number & >0
	max_transfer_volume:     number & >min_transfer_volume
	max_dilution_factor:     *10 | (number & >=1)
	has_dynamic_dead_volume: *false | bool
	is_sector_bound:         *false | bool
}

#ReservoirSpecs: {
	name?:           string
	shape:           *"1x1" | (string & =~"^[1-9][0-9]*x[1-9][0-9]*$")
	max_volume:      number & >0
	min_dead_volume: *0 | (number & >=0)
	max_dead_volume: number & >=min_dead_volume & <=max_volume
}

#ContainerSpecs: {
	name?:       string
	max_volume:  number & >0
	dead_volume: *0 | (number & >=0 & <=max_volume)
}

#Catalogue: {
	pipetting?: [string]:  #PipettingSpecs
	reservoirs?: [string]: #ReservoirSpecs
	containers?: [string]: #ContainerSpecs
}
`

const builtinLayoutSchema = `
#Label: =~"^[A-Z]+[1-9][0-9]*$"

#TransferTarget: {
	position: #Label
	volume:   number & >0
	rack?:    string
}

#Position: {
	position:          #Label
	pool:              string | int
	concentration?:    number & >0
	volume:            number & >=0
	parent?:           #Label
	transfer_targets?: [...#TransferTarget]
	supplier?:         string
}

#Layout: {
	shape:                         =~"^[1-9][0-9]*x[1-9][0-9]*$"
	floating_stock_concentration?: number & >=0
	positions?: [...#Position]
	script?: string
	params?: {...}
}
`
