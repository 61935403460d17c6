package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// StockCandidate is a stock tube able to serve a pool.
type StockCandidate struct {
	Pool             layout.PoolID
	RackBarcode      string
	RackPosition     geometry.Position
	ContainerBarcode string
	Concentration    float64
}

// StockQuery describes the stock needed by a layout.
type StockQuery struct {
	// Pools are the pools to look up, sorted.
	Pools []layout.PoolID

	// Concentrations are the required stock concentrations in nM.
	Concentrations map[layout.PoolID]float64

	// Volumes are the required stock volumes in µL, dead volume included.
	Volumes map[layout.PoolID]float64

	// ExcludedRacks are rack barcodes that must not be used.
	ExcludedRacks []string
}

// StockResolver finds stock tubes for pools.
type StockResolver interface {
	// ResolveStock returns candidates sorted by desirability, best first.
	ResolveStock(ctx context.Context, q StockQuery) ([]StockCandidate, error)
}

// AssignStock picks a stock tube for every starting well of l and records
// it on the positions. deadVolume is added to the take-out volume of each
// pool. Pools without candidates are reported together as UnknownPool.
func AssignStock(ctx context.Context, l *layout.PreparationLayout, resolver StockResolver, opts Options, deadVolume float64, excludedRacks []string) error {
	if resolver == nil {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, "stock resolver is required")
	}
	logger := telemetry.FromContext(ctx).NewComponentLogger("stock")

	query := StockQuery{
		Concentrations: make(map[layout.PoolID]float64),
		Volumes:        make(map[layout.PoolID]float64),
		ExcludedRacks:  excludedRacks,
	}
	starting := make(map[layout.PoolID][]*layout.PreparationPosition)
	for _, pp := range l.StartingWells() {
		if !pp.Pool.IsReal() {
			continue
		}
		stock := l.StockConcentration(pp, opts.StockConcentrations, opts.DefaultStockConcentration)
		if stock <= 0 {
			return errdefs.NewLayoutError(errdefs.CodeUnknownPool,
				fmt.Sprintf("no stock concentration for pool %s", pp.Pool)).WithPosition(pp.Position.Label())
		}
		conc, _ := pp.Conc()
		if _, ok := starting[pp.Pool]; !ok {
			query.Pools = append(query.Pools, pp.Pool)
			query.Volumes[pp.Pool] = deadVolume
		}
		starting[pp.Pool] = append(starting[pp.Pool], pp)
		query.Concentrations[pp.Pool] = stock
		query.Volumes[pp.Pool] += StockTakeOut(pp.RequiredVolume, conc, stock)
	}
	if len(query.Pools) == 0 {
		return nil
	}

	candidates, err := resolver.ResolveStock(ctx, query)
	if err != nil {
		return err
	}
	best := make(map[layout.PoolID]StockCandidate)
	for _, c := range candidates {
		if _, ok := best[c.Pool]; !ok {
			best[c.Pool] = c
		}
	}

	var errs errdefs.List
	for _, pool := range query.Pools {
		c, ok := best[pool]
		if !ok {
			errs.Add(errdefs.NewLayoutError(errdefs.CodeUnknownPool,
				fmt.Sprintf("no stock tube found for pool %s", pool)).
				WithPosition(starting[pool][0].Position.Label()).
				WithDetail("volume", query.Volumes[pool]))
			continue
		}
		for _, pp := range starting[pool] {
			rackPos := c.RackPosition
			pp.StockTubeBarcode = c.ContainerBarcode
			pp.StockRackBarcode = c.RackBarcode
			pp.StockRackPosition = &rackPos
		}
		logger.WithRack(c.RackBarcode).Debugf("pool %s assigned to tube %s at %s",
			pool, c.ContainerBarcode, c.RackPosition.Label())
	}
	return errs.Err()
}

// StockTransferWorklists plans one container transfer worklist per stock
// rack, moving the take-out volume from each assigned stock tube to its
// starting well. Worklists are ordered by rack barcode.
func StockTransferWorklists(l *layout.PreparationLayout, opts Options, specs *liquid.PipettingSpecs) ([]*worklist.PlannedWorklist, error) {
	if specs == nil {
		var err error
		if specs, err = liquid.StandardCatalogue().PipettingSpecs(liquid.PipettingSpecsBiomekStock); err != nil {
			return nil, err
		}
	}
	label := opts.Label
	if label == "" {
		label = DefaultLabel
	}

	var c collector
	byRack := make(map[string]*worklist.PlannedWorklist)
	for _, pp := range l.StartingWells() {
		if pp.StockRackBarcode == "" || pp.StockRackPosition == nil {
			return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "starting well has no assigned stock tube").
				WithPosition(pp.Position.Label())
		}
		stock := l.StockConcentration(pp, opts.StockConcentrations, opts.DefaultStockConcentration)
		if stock <= 0 {
			return nil, errdefs.NewLayoutError(errdefs.CodeUnknownPool,
				fmt.Sprintf("no stock concentration for pool %s", pp.Pool)).WithPosition(pp.Position.Label())
		}
		w, ok := byRack[pp.StockRackBarcode]
		if !ok {
			w = worklist.NewPlannedWorklist(fmt.Sprintf("%s_stock_%s", label, pp.StockRackBarcode),
				worklist.VariantContainerTransfer, specs.Name)
			byRack[pp.StockRackBarcode] = w
		}
		conc, _ := pp.Conc()
		t := worklist.ContainerTransfer{
			Volume: StockTakeOut(pp.RequiredVolume, conc, stock),
			Source: *pp.StockRackPosition,
			Target: pp.Position,
		}
		c.addTransfer(w, specs, t, pp.Position.Label())
	}
	if c.errs.Len() > 0 {
		return nil, c.errs
	}

	racks := make([]string, 0, len(byRack))
	for rack := range byRack {
		racks = append(racks, rack)
	}
	sort.Strings(racks)
	out := make([]*worklist.PlannedWorklist, 0, len(racks))
	for _, rack := range racks {
		out = append(out, byRack[rack])
	}
	return out, nil
}
