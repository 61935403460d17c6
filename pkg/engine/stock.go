package engine

import (
	"context"
	"sort"

	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/planner"
)

// StockResolver answers stock queries from a repository.
type StockResolver struct {
	repo     Repository
	supplier string
}

// NewStockResolver creates a resolver limited to supplier. An empty
// supplier accepts every supplier.
func NewStockResolver(repo Repository, supplier string) *StockResolver {
	return &StockResolver{repo: repo, supplier: supplier}
}

// ResolveStock returns the tubes holding a pool at the requested
// concentration with enough volume, outside the excluded racks. Tubes with
// the least sufficient volume come first so nearly empty tubes are used up.
func (r *StockResolver) ResolveStock(ctx context.Context, q planner.StockQuery) ([]planner.StockCandidate, error) {
	samples, err := r.repo.FetchStockSamples(ctx, q.Pools, r.supplier)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{}, len(q.ExcludedRacks))
	for _, rack := range q.ExcludedRacks {
		excluded[rack] = struct{}{}
	}

	var usable []StockSample
	for _, s := range samples {
		if _, skip := excluded[s.RackBarcode]; skip {
			continue
		}
		conc, ok := q.Concentrations[s.Pool]
		if !ok || !liquid.IsEqual(s.Concentration, conc) {
			continue
		}
		if liquid.IsSmaller(s.Volume, q.Volumes[s.Pool]) {
			continue
		}
		usable = append(usable, s)
	}
	sort.SliceStable(usable, func(i, j int) bool {
		a, b := usable[i], usable[j]
		if a.Pool != b.Pool {
			return a.Pool.String() < b.Pool.String()
		}
		if !liquid.IsEqual(a.Volume, b.Volume) {
			return a.Volume < b.Volume
		}
		if a.RackBarcode != b.RackBarcode {
			return a.RackBarcode < b.RackBarcode
		}
		return a.Position.Less(b.Position)
	})

	out := make([]planner.StockCandidate, len(usable))
	for i, s := range usable {
		out[i] = planner.StockCandidate{
			Pool:             s.Pool,
			RackBarcode:      s.RackBarcode,
			RackPosition:     s.Position,
			ContainerBarcode: s.TubeBarcode,
			Concentration:    s.Concentration,
		}
	}
	return out, nil
}
