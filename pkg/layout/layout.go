package layout

import (
	"fmt"
	"sort"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

// PreparationLayout maps rack positions to preparation positions.
type PreparationLayout struct {
	// Shape is the shape of the preparation rack.
	Shape geometry.Shape

	// FloatingStockConcentration is the stock concentration (nM) used for
	// floating positions.
	FloatingStockConcentration float64

	positions map[geometry.Position]*PreparationPosition
}

// NewPreparationLayout creates an empty layout.
func NewPreparationLayout(shape geometry.Shape, floatingStockConcentration float64) *PreparationLayout {
	return &PreparationLayout{
		Shape:                      shape,
		FloatingStockConcentration: floatingStockConcentration,
		positions:                  make(map[geometry.Position]*PreparationPosition),
	}
}

// Add adds a preparation position. Positions must lie within the shape and
// be unique.
func (l *PreparationLayout) Add(pp *PreparationPosition) error {
	if !l.Shape.Contains(pp.Position) {
		return errdefs.NewInputError(errdefs.CodePositionOutOfShape,
			fmt.Sprintf("position outside layout shape %s", l.Shape)).WithPosition(pp.Position.Label())
	}
	if _, exists := l.positions[pp.Position]; exists {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, "position defined twice").
			WithPosition(pp.Position.Label())
	}
	l.positions[pp.Position] = pp
	return nil
}

// Get returns the preparation position at p.
func (l *PreparationLayout) Get(p geometry.Position) (*PreparationPosition, bool) {
	pp, ok := l.positions[p]
	return pp, ok
}

// Len returns the number of defined positions.
func (l *PreparationLayout) Len() int { return len(l.positions) }

// Positions returns all preparation positions in row-major order.
func (l *PreparationLayout) Positions() []*PreparationPosition {
	keys := make([]geometry.Position, 0, len(l.positions))
	for p := range l.positions {
		keys = append(keys, p)
	}
	geometry.SortPositions(keys)
	out := make([]*PreparationPosition, len(keys))
	for i, p := range keys {
		out[i] = l.positions[p]
	}
	return out
}

// StartingWells returns the non-mock positions without parent.
func (l *PreparationLayout) StartingWells() []*PreparationPosition {
	var out []*PreparationPosition
	for _, pp := range l.Positions() {
		if pp.IsStartingWell() {
			out = append(out, pp)
		}
	}
	return out
}

// PoolConcentrationMap returns the distinct concentrations of every pool,
// highest first.
func (l *PreparationLayout) PoolConcentrationMap() map[PoolID][]float64 {
	seen := make(map[PoolID]map[float64]bool)
	for _, pp := range l.positions {
		conc, ok := pp.Conc()
		if pp.IsMock() || !ok {
			continue
		}
		if seen[pp.Pool] == nil {
			seen[pp.Pool] = make(map[float64]bool)
		}
		seen[pp.Pool][conc] = true
	}
	out := make(map[PoolID][]float64, len(seen))
	for pool, concs := range seen {
		list := make([]float64, 0, len(concs))
		for c := range concs {
			list = append(list, c)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(list)))
		out[pool] = list
	}
	return out
}

// Pools returns the distinct non-mock pools, real pools first by id, then
// placeholders by name.
func (l *PreparationLayout) Pools() []PoolID {
	seen := make(map[PoolID]bool)
	var out []PoolID
	for _, pp := range l.positions {
		if pp.IsMock() || seen[pp.Pool] {
			continue
		}
		seen[pp.Pool] = true
		out = append(out, pp.Pool)
	}
	sortPools(out)
	return out
}

func sortPools(pools []PoolID) {
	sort.Slice(pools, func(i, j int) bool {
		a, b := pools[i], pools[j]
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		if a.id != b.id {
			return a.id < b.id
		}
		return a.placeholder < b.placeholder
	})
}

// HasUnresolvedFloatings reports whether any position still carries a
// placeholder.
func (l *PreparationLayout) HasUnresolvedFloatings() bool {
	for _, pp := range l.positions {
		if pp.Pool.IsFloating() {
			return true
		}
	}
	return false
}

// UnresolvedFloatings returns the positions that still carry a placeholder.
func (l *PreparationLayout) UnresolvedFloatings() []*PreparationPosition {
	var out []*PreparationPosition
	for _, pp := range l.Positions() {
		if pp.Pool.IsFloating() {
			out = append(out, pp)
		}
	}
	return out
}

// SupplierMap returns the requested supplier of every pool that has one.
func (l *PreparationLayout) SupplierMap() map[PoolID]string {
	out := make(map[PoolID]string)
	for _, pp := range l.Positions() {
		if pp.Supplier != "" && !pp.IsMock() {
			if _, ok := out[pp.Pool]; !ok {
				out[pp.Pool] = pp.Supplier
			}
		}
	}
	return out
}

// StockConcentration returns the stock concentration for pp: the floating
// stock concentration for floating positions, else the given pool stock
// concentration or the default.
func (l *PreparationLayout) StockConcentration(pp *PreparationPosition, stock map[PoolID]float64, def float64) float64 {
	if pp.IsFloating() && l.FloatingStockConcentration > 0 {
		return l.FloatingStockConcentration
	}
	if c, ok := stock[pp.Pool]; ok && c > 0 {
		return c
	}
	return def
}

// ResolveFloatings replaces placeholders, sorted by name, by the given pools
// in order. Positions sharing a placeholder get the same pool.
func (l *PreparationLayout) ResolveFloatings(pools []PoolID) error {
	placeholders := make(map[string][]*PreparationPosition)
	for _, pp := range l.Positions() {
		if pp.Pool.IsFloating() {
			placeholders[pp.Pool.Placeholder()] = append(placeholders[pp.Pool.Placeholder()], pp)
		}
	}
	names := make([]string, 0, len(placeholders))
	for name := range placeholders {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(pools) < len(names) {
		return errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("%d floating placeholders but only %d pools", len(names), len(pools)))
	}
	for i, name := range names {
		if !pools[i].IsReal() {
			return errdefs.NewInputError(errdefs.CodeInvalidInput,
				fmt.Sprintf("cannot resolve placeholder %s with pool %s", name, pools[i]))
		}
		for _, pp := range placeholders[name] {
			pp.Pool = pools[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the layout.
func (l *PreparationLayout) Clone() *PreparationLayout {
	cp := NewPreparationLayout(l.Shape, l.FloatingStockConcentration)
	for p, pp := range l.positions {
		cp.positions[p] = pp.Clone()
	}
	return cp
}

// Validate checks the layout structure and returns every problem found.
func (l *PreparationLayout) Validate() error {
	var errs errdefs.List
	hashes := make(map[Hash]geometry.Position)
	check96 := l.Shape == geometry.Shape96

	for _, pp := range l.Positions() {
		label := pp.Position.Label()
		if !l.Shape.Contains(pp.Position) {
			errs.Add(errdefs.NewInputError(errdefs.CodePositionOutOfShape, "position outside layout shape").
				WithPosition(label))
			continue
		}
		errs = append(errs, pp.validateFields()...)
		if pp.IsMock() {
			continue
		}

		if check96 && pp.Concentration != nil {
			h := pp.Hash()
			if other, ok := hashes[h]; ok {
				errs.Add(errdefs.NewLayoutError(errdefs.CodeDuplicateHash,
					fmt.Sprintf("pool %s at %.2f nM is also defined at %s", h.Pool, h.Concentration, other.Label())).
					WithPosition(label))
			} else {
				hashes[h] = pp.Position
			}
		}

		if pp.Parent != nil {
			parent, ok := l.positions[*pp.Parent]
			switch {
			case !ok:
				errs.Add(errdefs.NewLayoutError(errdefs.CodeUnknownParent,
					fmt.Sprintf("parent %s is not defined", pp.Parent.Label())).WithPosition(label))
			case parent.IsMock() || parent.Pool != pp.Pool:
				errs.Add(errdefs.NewLayoutError(errdefs.CodeUnknownParent,
					fmt.Sprintf("parent %s holds pool %s, expected %s", pp.Parent.Label(), parent.Pool, pp.Pool)).
					WithPosition(label))
			default:
				pc, pok := parent.Conc()
				cc, cok := pp.Conc()
				if pok && cok && pc < cc {
					errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput,
						fmt.Sprintf("parent %s is less concentrated than its child", pp.Parent.Label())).
						WithPosition(label))
				}
			}
		}
	}
	return errs.Err()
}
