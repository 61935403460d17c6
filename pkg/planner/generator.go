// Package planner turns a preparation layout into a worklist series: the
// ordered buffer dilution, dilution series and output transfer worklists
// that a liquid handling robot runs to prepare the layout.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// Result is the outcome of a successful generation.
type Result struct {
	// Series is the generated worklist series.
	Series *worklist.Series

	// Warnings are non-blocking diagnostics.
	Warnings []errdefs.Warning

	// Chain is the dilution chain graph, nil for the manual scenario.
	Chain *ChainGraph
}

// Generator generates worklist series.
type Generator struct {
	opts Options
}

// NewGenerator creates a generator. Unset pipetting specs default to the
// standard catalogue.
func NewGenerator(opts Options) (*Generator, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Generator{opts: opts}, nil
}

// Options returns the effective options.
func (g *Generator) Options() Options { return g.opts }

// generation holds the state of one Generate call.
type generation struct {
	collector
	opts   Options
	layout *layout.PreparationLayout
	series *worklist.Series
	chain  *ChainGraph
}

// Generate builds the worklist series for l. Transfer violations are
// collected and returned together; other errors fail immediately.
func (g *Generator) Generate(ctx context.Context, l *layout.PreparationLayout) (*Result, error) {
	if l == nil {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "preparation layout is required")
	}
	op := telemetry.StartOperation(ctx, "series.generate",
		telemetry.AttrScenario.String(string(g.opts.Scenario)),
		telemetry.AttrPositionCount.Int(l.Len()),
	)
	logger := op.Logger.NewComponentLogger("planner")

	res, err := g.generate(op.Ctx, l)
	op.End(err)

	tel := telemetry.FromTelemetryContext(ctx)
	if err != nil {
		telemetry.RecordFailure(ctx, err)
		if tel != nil {
			tel.Metrics.RecordSeriesPlanned(string(g.opts.Scenario), "failed", nil)
		}
		logger.WithError(err).Errorf("%s series generation failed", g.opts.Scenario)
		return nil, err
	}

	variants := make([]string, 0, res.Series.Len())
	for _, w := range res.Series.Worklists() {
		variants = append(variants, string(w.Variant))
	}
	if tel != nil {
		tel.Metrics.RecordSeriesPlanned(string(g.opts.Scenario), "success", variants)
		tel.Events.PublishSeriesGenerated(string(g.opts.Scenario), res.Series.Len(), len(res.Warnings))
	}
	telemetry.RecordWarnings(ctx, "planner", -1, res.Warnings)
	logger.Infof("generated %s series with %d worklists in %s",
		g.opts.Scenario, res.Series.Len(), op.Timer.Duration())
	return res, nil
}

func (g *Generator) generate(ctx context.Context, l *layout.PreparationLayout) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.HasUnresolvedFloatings() {
		unresolved := l.UnresolvedFloatings()
		return nil, errdefs.NewInputError(errdefs.CodeUnresolvedFloating,
			fmt.Sprintf("%d floating positions are not resolved", len(unresolved))).
			WithPosition(unresolved[0].Position.Label())
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	gen := &generation{opts: g.opts, layout: l, series: worklist.NewSeries()}
	var err error
	switch g.opts.Scenario {
	case ScenarioOptimisation:
		err = gen.optimisation()
	case ScenarioScreening:
		err = gen.screening()
	case ScenarioManual:
		err = gen.manual()
	}
	if err != nil {
		return nil, err
	}
	if gen.errs.Len() > 0 {
		return nil, gen.errs
	}
	if err := gen.series.Validate(); err != nil {
		return nil, err
	}
	return &Result{Series: gen.series, Warnings: gen.warnings, Chain: gen.chain}, nil
}

func (g *generation) label(suffix string) string {
	return g.opts.Label + "_" + suffix
}

// addWorklist appends w to the series unless it is empty.
func (g *generation) addWorklist(w *worklist.PlannedWorklist) {
	if w.Len() > 0 {
		g.series.Add(w)
	}
}

// stockConcentration returns the stock concentration of pp.
func (g *generation) stockConcentration(pp *layout.PreparationPosition) (float64, error) {
	c := g.layout.StockConcentration(pp, g.opts.StockConcentrations, g.opts.DefaultStockConcentration)
	if c <= 0 {
		return 0, errdefs.NewLayoutError(errdefs.CodeUnknownPool,
			fmt.Sprintf("no stock concentration for pool %s", pp.Pool)).WithPosition(pp.Position.Label())
	}
	return c, nil
}

// startingBuffer returns the buffer volume of a position filled from stock.
func (g *generation) startingBuffer(pp *layout.PreparationPosition, volume, conc float64) (float64, error) {
	stock, err := g.stockConcentration(pp)
	if err != nil {
		return 0, err
	}
	return BufferVolume(volume, StockTakeOut(volume, conc, stock)), nil
}

// optimisation plans a 96-well layout position by position.
func (g *generation) optimisation() error {
	specs := g.opts.PipettingSpecs
	positions := g.layout.Positions()

	chain := NewChainGraph()
	for _, pp := range positions {
		if pp.IsMock() {
			continue
		}
		parent := ""
		if pp.Parent != nil {
			parent = pp.Parent.Label()
		}
		conc, _ := pp.Conc()
		if err := chain.AddNode(pp.Position.Label(), parent, conc); err != nil {
			return err
		}
	}
	if err := chain.Build(); err != nil {
		return err
	}
	g.chain = chain

	buffer := worklist.NewPlannedWorklist(g.label("buffer"), worklist.VariantDilution, specs.Name)
	for _, pp := range positions {
		volume, err := g.positionBuffer(pp)
		if err != nil {
			return err
		}
		g.addBuffer(buffer, specs, pp.Position, volume, g.opts.DiluentInfo)
	}
	g.addWorklist(buffer)

	for step := 1; step < chain.Depth(); step++ {
		w := worklist.NewPlannedWorklist(g.label(fmt.Sprintf("dilution_%d", step)),
			worklist.VariantContainerTransfer, specs.Name)
		for _, id := range chain.Levels()[step] {
			child, parent := g.positionPair(id)
			conc, _ := child.Conc()
			parentConc, _ := parent.Conc()
			t := worklist.ContainerTransfer{
				Volume: DonationVolume(child.RequiredVolume, conc, parentConc),
				Source: parent.Position,
				Target: child.Position,
			}
			g.addTransfer(w, specs, t, id)
		}
		g.addWorklist(w)
	}

	g.addWorklist(g.outputTransfers(positions, specs))
	return nil
}

func (g *generation) positionPair(label string) (child, parent *layout.PreparationPosition) {
	child, _ = g.layout.Get(geometry.MustParseLabel(label))
	parent, _ = g.layout.Get(*child.Parent)
	return child, parent
}

// positionBuffer returns the buffer volume of a single position.
func (g *generation) positionBuffer(pp *layout.PreparationPosition) (float64, error) {
	if pp.IsMock() {
		return pp.RequiredVolume, nil
	}
	conc, _ := pp.Conc()
	if pp.Parent == nil {
		return g.startingBuffer(pp, pp.RequiredVolume, conc)
	}
	parent, _ := g.layout.Get(*pp.Parent)
	parentConc, _ := parent.Conc()
	return BufferVolume(pp.RequiredVolume, DonationVolume(pp.RequiredVolume, conc, parentConc)), nil
}

// outputTransfers plans the transfers to the output plate.
func (g *generation) outputTransfers(positions []*layout.PreparationPosition, specs *liquid.PipettingSpecs) *worklist.PlannedWorklist {
	w := worklist.NewPlannedWorklist(g.label("transfer"), worklist.VariantContainerTransfer, specs.Name)
	for _, pp := range positions {
		for _, tt := range pp.TransferTargets {
			t := worklist.ContainerTransfer{Volume: tt.Volume, Source: pp.Position, Target: tt.Position}
			g.addTransfer(w, specs, t, pp.Position.Label())
		}
	}
	return w
}

// screening plans a 384-well layout sector by sector.
func (g *generation) screening() error {
	number := g.opts.NumberSectors
	assoc := g.opts.Association
	if assoc == nil {
		var err error
		if assoc, err = layout.NewAssociationData(g.layout, number); err != nil {
			return err
		}
	} else if assoc.NumberSectors != number {
		return errdefs.NewInputError(errdefs.CodeInvalidSectorCount,
			fmt.Sprintf("association data has %d sectors, expected %d", assoc.NumberSectors, number))
	}
	it, err := geometry.NewQuadrantIterator(g.layout.Shape, number)
	if err != nil {
		return err
	}

	if err := g.sectorBuffer(it, assoc); err != nil {
		return err
	}
	if err := g.sectorDilutions(it, assoc); err != nil {
		return err
	}
	return g.sectorOutput()
}

func (g *generation) sectorBuffer(it *geometry.QuadrantIterator, assoc *layout.AssociationData) error {
	specs := g.opts.PipettingSpecs
	buffer := worklist.NewPlannedWorklist(g.label("buffer"), worklist.VariantDilution, specs.Name)
	for _, q := range it.Quadrants() {
		for _, s := range quadrantSectors(q) {
			pp, ok := g.layout.Get(q[s])
			if !ok {
				continue
			}
			volume, err := g.sectorPositionBuffer(pp, s, assoc)
			if err != nil {
				return err
			}
			g.addBuffer(buffer, specs, pp.Position, volume, g.opts.DiluentInfo)
		}
	}
	g.addWorklist(buffer)
	return nil
}

func (g *generation) sectorPositionBuffer(pp *layout.PreparationPosition, s int, assoc *layout.AssociationData) (float64, error) {
	if pp.IsMock() {
		return pp.RequiredVolume, nil
	}
	volume := assoc.SectorRequiredVolumes[s]
	conc := assoc.SectorConcentrations[s]
	parent, ok := assoc.Parent(s)
	if !ok {
		return g.startingBuffer(pp, volume, conc)
	}
	return BufferVolume(volume, DonationVolume(volume, conc, assoc.SectorConcentrations[parent])), nil
}

func (g *generation) sectorDilutions(it *geometry.QuadrantIterator, assoc *layout.AssociationData) error {
	specs := g.opts.SectorPipettingSpecs
	number := g.opts.NumberSectors

	chain := NewChainGraph()
	sectors := make([]int, 0, len(assoc.ParentSectors))
	for s := range assoc.ParentSectors {
		sectors = append(sectors, s)
	}
	sort.Ints(sectors)
	for _, s := range sectors {
		parent := ""
		if p, ok := assoc.Parent(s); ok {
			parent = strconv.Itoa(p)
		}
		if err := chain.AddNode(strconv.Itoa(s), parent, assoc.SectorConcentrations[s]); err != nil {
			return err
		}
	}
	if err := chain.Build(); err != nil {
		return err
	}
	g.chain = chain

	variant := worklist.VariantRackSampleTransfer
	if !specs.IsSectorBound {
		variant = worklist.VariantContainerTransfer
	}
	for step := 1; step < chain.Depth(); step++ {
		w := worklist.NewPlannedWorklist(g.label(fmt.Sprintf("dilution_%d", step)), variant, specs.Name)
		for _, id := range chain.Levels()[step] {
			s, _ := strconv.Atoi(id)
			p, _ := assoc.Parent(s)
			volume := DonationVolume(assoc.SectorRequiredVolumes[s], assoc.SectorConcentrations[s],
				assoc.SectorConcentrations[p])
			if specs.IsSectorBound {
				t := worklist.RackSampleTransfer{Volume: volume, SourceSector: p, TargetSector: s, SectorNumber: number}
				g.addTransfer(w, specs, t, "sector "+id)
				continue
			}
			for _, q := range it.Quadrants() {
				src, trg, ok := quadrantPair(g.layout, q, p, s)
				if !ok {
					continue
				}
				t := worklist.ContainerTransfer{Volume: volume, Source: src.Position, Target: trg.Position}
				g.addTransfer(w, specs, t, trg.Position.Label())
			}
		}
		g.addWorklist(w)
	}
	return nil
}

// sectorOutput plans the optional aliquot buffer and the final rack
// transfer to the output plate.
func (g *generation) sectorOutput() error {
	var (
		transferVolume float64
		outputs        = geometry.NewPositionSet()
		seen           bool
	)
	for _, pp := range g.layout.Positions() {
		for _, tt := range pp.TransferTargets {
			outputs[tt.Position] = struct{}{}
			if !seen {
				transferVolume, seen = tt.Volume, true
				continue
			}
			if !liquid.IsEqual(tt.Volume, transferVolume) {
				g.errs.Add(errdefs.NewTransferViolation(errdefs.CodeInconsistentAliquotBuffer,
					fmt.Sprintf("transfer volume %.1f µL differs from %.1f µL", tt.Volume, transferVolume)).
					WithPosition(pp.Position.Label()))
				return nil
			}
		}
	}

	iso := g.opts.IsoVolume
	if !seen {
		if iso > 0 {
			g.addFinalTransfer(iso)
		}
		return nil
	}
	if iso == 0 {
		iso = transferVolume
	}
	aliquot := liquid.RoundVolume(iso - transferVolume)
	if liquid.IsSmaller(aliquot, 0) {
		return errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("iso volume %.1f µL is smaller than the transfer volume %.1f µL", iso, transferVolume))
	}
	if !liquid.IsZero(aliquot) {
		specs := g.opts.PipettingSpecs
		w := worklist.NewPlannedWorklist(g.label("aliquot_buffer"), worklist.VariantDilution, specs.Name)
		for _, p := range outputs.Sorted() {
			g.addBuffer(w, specs, p, aliquot, g.opts.DiluentInfo)
		}
		g.addWorklist(w)
	}
	g.addFinalTransfer(liquid.RoundVolume(iso - aliquot))
	return nil
}

func (g *generation) addFinalTransfer(volume float64) {
	specs := g.opts.SectorPipettingSpecs
	w := worklist.NewPlannedWorklist(g.label("transfer"), worklist.VariantRackSampleTransfer, specs.Name)
	t := worklist.RackSampleTransfer{Volume: volume, SourceSector: 0, TargetSector: 0, SectorNumber: 1}
	g.addTransfer(w, specs, t, "sector 0")
	g.addWorklist(w)
}

// manual plans a single buffer worklist for positions that are not at
// stock concentration.
func (g *generation) manual() error {
	specs := g.opts.PipettingSpecs
	buffer := worklist.NewPlannedWorklist(g.label("buffer"), worklist.VariantDilution, specs.Name)
	for _, pp := range g.layout.Positions() {
		volume := pp.RequiredVolume
		if !pp.IsMock() {
			conc, _ := pp.Conc()
			stock, err := g.stockConcentration(pp)
			if err != nil {
				return err
			}
			if liquid.IsEqual(conc, stock) {
				continue
			}
			volume = BufferVolume(pp.RequiredVolume, StockTakeOut(pp.RequiredVolume, conc, stock))
		}
		g.addBuffer(buffer, specs, pp.Position, volume, g.opts.DiluentInfo)
	}
	g.addWorklist(buffer)
	return nil
}

// quadrantPair returns the non-mock layout positions of the source and
// target sectors of q. Sectors outside the rack yield false.
func quadrantPair(l *layout.PreparationLayout, q geometry.Quadrant, source, target int) (src, trg *layout.PreparationPosition, ok bool) {
	sp, ok := q[source]
	if !ok {
		return nil, nil, false
	}
	tp, ok := q[target]
	if !ok {
		return nil, nil, false
	}
	src, srcOK := l.Get(sp)
	trg, trgOK := l.Get(tp)
	if !srcOK || !trgOK || src.IsMock() || trg.IsMock() {
		return nil, nil, false
	}
	return src, trg, true
}

func quadrantSectors(q geometry.Quadrant) []int {
	sectors := make([]int, 0, len(q))
	for s := range q {
		sectors = append(sectors, s)
	}
	sort.Ints(sectors)
	return sectors
}
