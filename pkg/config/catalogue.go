package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
)

// BuiltinCatalogue is the CUE source of liquid.StandardCatalogue.
//
//go:embed builtin.cue
var BuiltinCatalogue string

// CatalogueParser reads instrument and labware specs from CUE sources.
//
// A catalogue source declares specs keyed by name:
//
//	pipetting: "Tecan": {min_transfer_volume: 0.5, max_transfer_volume: 200}
//	reservoirs: "deep trough": {shape: "8x12", max_volume: 200000, max_dead_volume: 20000}
//	containers: "well 1536": {max_volume: 12, dead_volume: 2}
//
// Sources are unified with the catalogue schema, so unknown fields and
// inconsistent limits are reported with their file position.
type CatalogueParser struct {
	schemas *SchemaRegistry
}

// NewCatalogueParser creates a new catalogue parser.
func NewCatalogueParser() *CatalogueParser {
	return &CatalogueParser{schemas: NewSchemaRegistry()}
}

// Schemas returns the schema registry of the parser.
func (cp *CatalogueParser) Schemas() *SchemaRegistry {
	return cp.schemas
}

// Load parses sources and merges them over the standard catalogue.
func (cp *CatalogueParser) Load(ctx context.Context, sources []string) (*liquid.Catalogue, error) {
	catalogue := liquid.StandardCatalogue()
	if len(sources) == 0 {
		return catalogue, nil
	}

	parsed, err := cp.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}

	catalogue.Merge(parsed.Catalogue)
	return catalogue, nil
}

// Parse parses CUE catalogue files and directories. Problems in the
// sources are returned in ParsedCatalogue.Errors; the error result is
// reserved for unreadable sources.
func (cp *CatalogueParser) Parse(ctx context.Context, sources []string) (*ParsedCatalogue, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	unify := func(val cue.Value) {
		if !val.Exists() {
			return
		}
		if cueValue.Exists() {
			cueValue = cueValue.Unify(val)
		} else {
			cueValue = val
		}
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		files := []string{source}
		if info.IsDir() {
			if files, err = FindCatalogueFiles(source); err != nil {
				return nil, err
			}
			if len(files) == 0 {
				parseErrors = append(parseErrors, ValidationError{
					File:     source,
					Message:  "no CUE files found",
					Severity: "error",
				})
			}
		}
		for _, file := range files {
			val, errs := cp.loadFile(file)
			parseErrors = append(parseErrors, errs...)
			unify(val)
			sourceFiles = append(sourceFiles, file)
		}
	}

	return cp.finish(cueValue, sourceFiles, parseErrors), nil
}

// ParseInline parses inline CUE content.
func (cp *CatalogueParser) ParseInline(_ context.Context, content string) (*ParsedCatalogue, error) {
	val := cp.schemas.Context().CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return &ParsedCatalogue{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err),
		}, nil
	}
	return cp.finish(val, []string{"inline"}, nil), nil
}

// ParseBuiltin parses the embedded standard catalogue.
func (cp *CatalogueParser) ParseBuiltin(ctx context.Context) (*liquid.Catalogue, error) {
	parsed, err := cp.ParseInline(ctx, BuiltinCatalogue)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}
	return parsed.Catalogue, nil
}

func (cp *CatalogueParser) finish(val cue.Value, sourceFiles []string, parseErrors []ValidationError) *ParsedCatalogue {
	parsed := &ParsedCatalogue{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
		Errors:      parseErrors,
	}
	if len(parseErrors) > 0 {
		return parsed
	}
	if !val.Exists() {
		parsed.Catalogue = liquid.NewCatalogue()
		return parsed
	}

	unified, err := cp.schemas.Apply(SchemaCatalogue, val)
	if err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{Message: err.Error(), Severity: "error"})
		return parsed
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		parsed.Errors = append(parsed.Errors, convertCUEErrors(err)...)
		return parsed
	}

	catalogue, errs := extractCatalogue(unified)
	if len(errs) > 0 {
		parsed.Errors = append(parsed.Errors, errs...)
		return parsed
	}
	parsed.Catalogue = catalogue
	return parsed
}

// loadFile loads a single CUE file.
func (cp *CatalogueParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.schemas.Context().CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}

	return val, nil
}

type catalogueDocument struct {
	Pipetting  map[string]*liquid.PipettingSpecs `json:"pipetting"`
	Reservoirs map[string]*liquid.ReservoirSpecs `json:"reservoirs"`
	Containers map[string]*liquid.ContainerSpecs `json:"containers"`
}

// extractCatalogue decodes a schema-checked value. Entries take their
// name from their key unless they set one.
func extractCatalogue(val cue.Value) (*liquid.Catalogue, []ValidationError) {
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, convertCUEErrors(err)
	}
	var doc catalogueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, []ValidationError{{Message: fmt.Sprintf("failed to decode catalogue: %v", err), Severity: "error"}}
	}

	c := liquid.NewCatalogue()
	for key, p := range doc.Pipetting {
		if p.Name == "" {
			p.Name = key
		}
		c.Pipetting[p.Name] = p
	}
	for key, r := range doc.Reservoirs {
		if r.Name == "" {
			r.Name = key
		}
		c.Reservoirs[r.Name] = r
	}
	for key, s := range doc.Containers {
		if s.Name == "" {
			s.Name = key
		}
		c.Containers[s.Name] = s
	}

	if err := c.Validate(); err != nil {
		return nil, []ValidationError{{Message: err.Error(), Severity: "error"}}
	}
	return c, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     errorPath(e.Path()),
			Message:  strings.TrimSpace(errors.Details(e, nil)),
			Severity: "error",
		})
	}

	return validationErrors
}

// errorPath joins a CUE error path, dropping the leading schema definition
// so that paths read as they do in the user's file.
func errorPath(path []string) string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	return strings.Join(path, ".")
}

// Err returns the errors of the parse as one input error, or nil.
func (p *ParsedCatalogue) Err() error {
	if len(p.Errors) == 0 {
		return nil
	}
	var list errdefs.List
	for _, ve := range p.Errors {
		e := errdefs.NewInputError(errdefs.CodeInvalidInput, ve.String())
		list.Add(e)
	}
	return list.Err()
}

// String formats the error as file:line:column: path: message.
func (ve ValidationError) String() string {
	var b strings.Builder
	if ve.File != "" {
		b.WriteString(ve.File)
		if ve.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", ve.Line, ve.Column)
		}
		b.WriteString(": ")
	}
	if ve.Path != "" {
		b.WriteString(ve.Path)
		b.WriteString(": ")
	}
	b.WriteString(ve.Message)
	return b.String()
}

// FindCatalogueFiles returns the .cue files below dir in lexical order.
func FindCatalogueFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(files)
	return files, nil
}
