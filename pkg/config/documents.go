package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// RackFetcher looks racks up by barcode.
type RackFetcher interface {
	FetchRackByBarcode(ctx context.Context, barcode string) (*liquid.Rack, error)
}

// RackMap is an in-memory RackFetcher.
type RackMap map[string]*liquid.Rack

// FetchRackByBarcode implements RackFetcher.
func (m RackMap) FetchRackByBarcode(_ context.Context, barcode string) (*liquid.Rack, error) {
	if r, ok := m[barcode]; ok {
		return r, nil
	}
	return nil, errdefs.NewInputError(errdefs.CodeRackNotFound, "rack not found").WithRack(barcode)
}

// DocumentLoader reads layout, rack and job documents.
type DocumentLoader struct {
	schemas   *SchemaRegistry
	starlark  *StarlarkEvaluator
	validator *validator.Validate
}

// NewDocumentLoader creates a loader whose layout scripts run for at most
// scriptTimeout.
func NewDocumentLoader(scriptTimeout time.Duration) *DocumentLoader {
	return &DocumentLoader{
		schemas:   NewSchemaRegistry(),
		starlark:  NewStarlarkEvaluator(scriptTimeout),
		validator: validator.New(),
	}
}

func invalidDocument(kind string, err error) error {
	return errdefs.NewInputError(errdefs.CodeInvalidInput, "invalid "+kind+" document").WithCause(err)
}

// LoadLayout reads a preparation layout from a YAML file.
func (dl *DocumentLoader) LoadLayout(ctx context.Context, path string) (*layout.PreparationLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout %s: %w", path, err)
	}
	return dl.ParseLayout(ctx, data)
}

// ParseLayout decodes a YAML layout document, runs its script and builds
// the validated layout. The position type follows from the pool token.
func (dl *DocumentLoader) ParseLayout(ctx context.Context, data []byte) (*layout.PreparationLayout, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, invalidDocument("layout", err)
	}
	if err := dl.schemas.ValidateAgainstSchema(ctx, SchemaLayout, raw); err != nil {
		return nil, invalidDocument("layout", err)
	}

	var doc LayoutDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalidDocument("layout", err)
	}
	if doc.Script != "" {
		generated, err := dl.runLayoutScript(ctx, &doc)
		if err != nil {
			return nil, err
		}
		doc.Positions = append(doc.Positions, generated...)
	}
	if err := dl.validator.Struct(doc); err != nil {
		return nil, invalidDocument("layout", err)
	}

	l := layout.NewPreparationLayout(doc.Shape, doc.FloatingStockConcentration)
	for _, pd := range doc.Positions {
		pp, err := pd.preparationPosition()
		if err != nil {
			return nil, err
		}
		if err := l.Add(pp); err != nil {
			return nil, err
		}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// runLayoutScript evaluates the script and decodes its "positions" global.
func (dl *DocumentLoader) runLayoutScript(ctx context.Context, doc *LayoutDocument) ([]PositionDocument, error) {
	result, err := dl.starlark.Evaluate(ctx, doc.Script, doc.Shape, doc.Params)
	if err != nil {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "layout script failed").WithCause(err)
	}
	out, ok := result.Output["positions"]
	if !ok {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "layout script defines no positions")
	}

	// Round-trip through YAML so generated entries decode like literal ones.
	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, invalidDocument("layout", err)
	}
	var positions []PositionDocument
	if err := yaml.Unmarshal(data, &positions); err != nil {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "layout script produced invalid positions").WithCause(err)
	}
	return positions, nil
}

func (pd PositionDocument) preparationPosition() (*layout.PreparationPosition, error) {
	pool, err := layout.ParsePool(pd.Pool)
	if err != nil {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "invalid pool").
			WithPosition(pd.Position.Label()).WithCause(err)
	}

	pp := &layout.PreparationPosition{
		Position:        pd.Position,
		Pool:            pool,
		Type:            layout.TypeFixed,
		Concentration:   pd.Concentration,
		RequiredVolume:  pd.Volume,
		Parent:          pd.Parent,
		TransferTargets: pd.TransferTargets,
		Supplier:        pd.Supplier,
	}
	switch {
	case pool.IsMock():
		pp.Type = layout.TypeMock
	case pool.IsFloating():
		pp.Type = layout.TypeFloating
	}
	return pp, nil
}

// LoadRacks reads racks from a YAML file.
func (dl *DocumentLoader) LoadRacks(path string, catalogue *liquid.Catalogue) (RackMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read racks %s: %w", path, err)
	}
	return dl.ParseRacks(data, catalogue)
}

// ParseRacks decodes a YAML racks document. Plates default to the standard
// well specs of their shape and tubes to matrix tubes.
func (dl *DocumentLoader) ParseRacks(data []byte, catalogue *liquid.Catalogue) (RackMap, error) {
	var doc RacksDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalidDocument("racks", err)
	}
	if err := dl.validator.Struct(doc); err != nil {
		return nil, invalidDocument("racks", err)
	}

	racks := make(RackMap, len(doc.Racks))
	for _, rd := range doc.Racks {
		if _, dup := racks[rd.Barcode]; dup {
			return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "rack defined twice").WithRack(rd.Barcode)
		}
		rack, err := rd.build(catalogue)
		if err != nil {
			return nil, err
		}
		racks[rd.Barcode] = rack
	}
	return racks, nil
}

func defaultWellSpecs(shape geometry.Shape) string {
	if shape == geometry.Shape384 {
		return liquid.WellSpecs384Std
	}
	return liquid.WellSpecs96Std
}

func (rd RackDocument) build(catalogue *liquid.Catalogue) (*liquid.Rack, error) {
	status := rd.Status
	if status == "" {
		status = liquid.StatusManaged
	}

	var rack *liquid.Rack
	switch rd.Kind {
	case liquid.KindTubeRack:
		r, err := liquid.NewTubeRack(rd.Barcode, rd.Shape, status)
		if err != nil {
			return nil, err
		}
		rack = r
	default:
		name := rd.WellSpecs
		if name == "" {
			name = defaultWellSpecs(rd.Shape)
		}
		specs, err := catalogue.ContainerSpecs(name)
		if err != nil {
			return nil, err
		}
		r, err := liquid.NewPlate(rd.Barcode, rd.Shape, specs, status)
		if err != nil {
			return nil, err
		}
		rack = r
	}

	for _, cd := range rd.Containers {
		containerStatus := cd.Status
		if containerStatus == "" {
			containerStatus = status
		}

		var c *liquid.Container
		if rack.Kind == liquid.KindTubeRack {
			name := cd.Specs
			if name == "" {
				name = liquid.TubeSpecsMatrix
			}
			specs, err := catalogue.ContainerSpecs(name)
			if err != nil {
				return nil, err
			}
			if c, err = rack.AddTube(cd.Position, cd.Barcode, specs, containerStatus); err != nil {
				return nil, err
			}
		} else {
			var ok bool
			if c, ok = rack.Container(cd.Position); !ok {
				return nil, errdefs.NewInputError(errdefs.CodePositionOutOfShape, "position outside rack shape").
					WithRack(rd.Barcode).WithPosition(cd.Position.Label())
			}
			c.Status = containerStatus
		}

		if cd.Volume > 0 {
			c.Sample = liquid.NewSample(cd.Volume, cd.Components...)
		}
	}
	return rack, nil
}

// LoadJobs reads a YAML jobs document.
func (dl *DocumentLoader) LoadJobs(path string) (*JobsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs %s: %w", path, err)
	}
	var doc JobsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalidDocument("jobs", err)
	}
	if err := dl.validator.Struct(doc); err != nil {
		return nil, invalidDocument("jobs", err)
	}
	return &doc, nil
}

// BuildJobs binds the worklists of series to racks. Jobs naming the same
// barcode share one rack instance, so later jobs see the outcome of
// earlier ones.
func BuildJobs(ctx context.Context, series *worklist.Series, docs []JobDocument, catalogue *liquid.Catalogue, racks RackFetcher) ([]*engine.Job, error) {
	cache := make(map[string]*liquid.Rack)
	fetch := func(barcode string) (*liquid.Rack, error) {
		if r, ok := cache[barcode]; ok {
			return r, nil
		}
		r, err := racks.FetchRackByBarcode(ctx, barcode)
		if err != nil {
			return nil, err
		}
		cache[barcode] = r
		return r, nil
	}

	jobs := make([]*engine.Job, 0, len(docs))
	for _, jd := range docs {
		wl, ok := series.Get(jd.Worklist)
		if !ok {
			return nil, errdefs.NewInputError(errdefs.CodeInvalidInput,
				fmt.Sprintf("series has no worklist %d", jd.Worklist))
		}

		job := &engine.Job{Index: jd.Worklist, Worklist: wl}
		if jd.Index != nil {
			job.Index = *jd.Index
		}

		specsName := jd.PipettingSpecs
		if specsName == "" {
			specsName = wl.PipettingSpecs
		}
		specs, err := catalogue.PipettingSpecs(specsName)
		if err != nil {
			return nil, err
		}
		job.PipettingSpecs = specs

		if jd.ReservoirSpecs != "" {
			if job.ReservoirSpecs, err = catalogue.ReservoirSpecs(jd.ReservoirSpecs); err != nil {
				return nil, err
			}
		}

		if job.TargetRack, err = fetch(jd.TargetRack); err != nil {
			return nil, err
		}
		if wl.Variant != worklist.VariantDilution {
			source := jd.SourceRack
			if source == "" {
				source = jd.TargetRack
			}
			if job.SourceRack, err = fetch(source); err != nil {
				return nil, err
			}
		}
		if len(jd.IgnoredPositions) > 0 {
			job.IgnoredPositions = geometry.NewPositionSet(jd.IgnoredPositions...)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// LoadSeries reads a worklist series from its JSON form.
func LoadSeries(path string) (*worklist.Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read series %s: %w", path, err)
	}
	series := worklist.NewSeries()
	if err := json.Unmarshal(data, series); err != nil {
		return nil, invalidDocument("series", err)
	}
	return series, nil
}

// SaveSeries writes a worklist series in its JSON form.
func SaveSeries(path string, series *worklist.Series) error {
	data, err := json.MarshalIndent(series, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode series: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
