package layout

import (
	"fmt"
	"sort"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

// Attribute selects the preparation position value read per sector.
type Attribute int

const (
	// AttributeConcentration reads the preparation concentration.
	AttributeConcentration Attribute = iota
	// AttributeRequiredVolume reads the required volume.
	AttributeRequiredVolume
)

func (a Attribute) String() string {
	switch a {
	case AttributeConcentration:
		return "concentration"
	case AttributeRequiredVolume:
		return "required_volume"
	default:
		return fmt.Sprintf("attribute(%d)", int(a))
	}
}

// Extract reads the attribute from pp. It reports false for missing values.
func (a Attribute) Extract(pp *PreparationPosition) (float64, bool) {
	switch a {
	case AttributeConcentration:
		return pp.Conc()
	case AttributeRequiredVolume:
		return pp.RequiredVolume, true
	default:
		return 0, false
	}
}

// SectorValues determines the value of attr in every sector of the layout.
// Mock positions and missing values are skipped; a sector without any value
// is absent from the result. A sector holding more than one distinct value
// fails with NonUniformSector.
func SectorValues(l *PreparationLayout, number int, attr Attribute) (map[int]float64, error) {
	sectors, err := geometry.NewSectors(number)
	if err != nil {
		return nil, err
	}
	out := make(map[int]float64)
	for _, pp := range l.Positions() {
		if pp.IsMock() {
			continue
		}
		v, ok := attr.Extract(pp)
		if !ok {
			continue
		}
		s := sectors.SectorOf(pp.Position)
		if prev, seen := out[s]; seen && prev != v {
			return nil, errdefs.NewAssociationError(errdefs.CodeNonUniformSector,
				fmt.Sprintf("sector %d has more than one %s: %g and %g", s, attr, prev, v)).
				WithPosition(pp.Position.Label()).WithDetail("sector", s)
		}
		out[s] = v
	}
	return out, nil
}

// unionFind groups sector indices.
type unionFind map[int]int

func (u unionFind) find(s int) int {
	if _, ok := u[s]; !ok {
		u[s] = s
	}
	for u[s] != s {
		u[s] = u[u[s]]
		s = u[s]
	}
	return s
}

func (u unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u[rb] = ra
	} else {
		u[ra] = rb
	}
}

// AssociateSectors groups sectors whose positions share a pool in the same
// quadrant. Every quadrant must agree with the resulting partition: two
// sectors present in a quadrant share a pool there exactly when they are in
// the same set. Sets are sorted ascending and ordered by their first sector.
func AssociateSectors(l *PreparationLayout, number int) ([][]int, error) {
	it, err := geometry.NewQuadrantIterator(l.Shape, number)
	if err != nil {
		return nil, err
	}
	if !it.Sectors().FitsShape(l.Shape) {
		return nil, errdefs.NewGeometryError(errdefs.CodeShapeSectorMismatch,
			fmt.Sprintf("%d sectors do not tile shape %s", number, l.Shape))
	}
	quadrants := geometry.QuadrantValues(it, func(p geometry.Position) (PoolID, bool) {
		pp, ok := l.Get(p)
		if !ok || pp.IsMock() {
			return PoolID{}, false
		}
		return pp.Pool, true
	})

	groups := make(unionFind)
	for _, q := range quadrants {
		byPool := make(map[PoolID]int)
		for _, s := range sortedSectors(q) {
			groups.find(s)
			if first, ok := byPool[q[s]]; ok {
				groups.union(first, s)
			} else {
				byPool[q[s]] = s
			}
		}
	}

	anchors := it.Anchors()
	for i, q := range quadrants {
		present := sortedSectors(q)
		for a := 0; a < len(present); a++ {
			for b := a + 1; b < len(present); b++ {
				sa, sb := present[a], present[b]
				samePool := q[sa] == q[sb]
				sameSet := groups.find(sa) == groups.find(sb)
				if samePool != sameSet {
					return nil, errdefs.NewAssociationError(errdefs.CodeInconsistentAssociation,
						fmt.Sprintf("sectors %d and %d are associated inconsistently", sa, sb)).
						WithPosition(anchors[i].Label())
				}
			}
		}
	}

	bySet := make(map[int][]int)
	for s := range groups {
		root := groups.find(s)
		bySet[root] = append(bySet[root], s)
	}
	out := make([][]int, 0, len(bySet))
	for _, set := range bySet {
		sort.Ints(set)
		out = append(out, set)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out, nil
}

func sortedSectors[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// NoParent marks a sector that is filled from stock.
const NoParent = -1

// AssociationData is the sector view of a preparation layout.
type AssociationData struct {
	// NumberSectors is the number of sectors of the layout.
	NumberSectors int

	// SectorConcentrations maps sectors to their preparation concentration.
	SectorConcentrations map[int]float64

	// ParentSectors maps each associated sector to the sector it is
	// diluted from, or NoParent.
	ParentSectors map[int]int

	// SectorRequiredVolumes maps sectors to their required volume.
	SectorRequiredVolumes map[int]float64

	// AssociatedSectors are the association sets.
	AssociatedSectors [][]int
}

// NewAssociationData derives the association data of a layout.
func NewAssociationData(l *PreparationLayout, number int) (*AssociationData, error) {
	concentrations, err := SectorValues(l, number, AttributeConcentration)
	if err != nil {
		return nil, err
	}
	volumes, err := SectorValues(l, number, AttributeRequiredVolume)
	if err != nil {
		return nil, err
	}
	sets, err := AssociateSectors(l, number)
	if err != nil {
		return nil, err
	}

	parents := make(map[int]int)
	for _, set := range sets {
		chain, err := ChainOrder(set, concentrations)
		if err != nil {
			return nil, err
		}
		for s, parent := range chainParents(chain, concentrations) {
			parents[s] = parent
		}
	}
	return &AssociationData{
		NumberSectors:         number,
		SectorConcentrations:  concentrations,
		ParentSectors:         parents,
		SectorRequiredVolumes: volumes,
		AssociatedSectors:     sets,
	}, nil
}

// ChainOrder sorts the sectors of one association set by concentration,
// highest first. Equal concentrations keep ascending sector order.
func ChainOrder(set []int, concentrations map[int]float64) ([]int, error) {
	chain := append([]int(nil), set...)
	for _, s := range chain {
		if _, ok := concentrations[s]; !ok {
			return nil, errdefs.NewInputError(errdefs.CodeInvalidInput,
				fmt.Sprintf("sector %d has no concentration", s)).WithDetail("sector", s)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool {
		ci, cj := concentrations[chain[i]], concentrations[chain[j]]
		if ci != cj {
			return ci > cj
		}
		return chain[i] < chain[j]
	})
	return chain, nil
}

// chainParents links each sector to the first sector of the next higher
// concentration level. Sectors of equal concentration share a parent.
func chainParents(chain []int, concentrations map[int]float64) map[int]int {
	parents := make(map[int]int, len(chain))
	parent, levelHead, levelParent := NoParent, NoParent, NoParent
	for _, s := range chain {
		if levelHead != NoParent && concentrations[s] == concentrations[levelHead] {
			parents[s] = levelParent
			continue
		}
		if levelHead != NoParent {
			parent = levelHead
		}
		levelHead, levelParent = s, parent
		parents[s] = parent
	}
	return parents
}

// Parent returns the parent sector of s.
func (a *AssociationData) Parent(s int) (int, bool) {
	p, ok := a.ParentSectors[s]
	if !ok || p == NoParent {
		return NoParent, false
	}
	return p, true
}

// SetOf returns the association set containing s.
func (a *AssociationData) SetOf(s int) []int {
	for _, set := range a.AssociatedSectors {
		for _, member := range set {
			if member == s {
				return set
			}
		}
	}
	return nil
}

// Chains returns every association set in dilution order.
func (a *AssociationData) Chains() [][]int {
	out := make([][]int, 0, len(a.AssociatedSectors))
	for _, set := range a.AssociatedSectors {
		chain, err := ChainOrder(set, a.SectorConcentrations)
		if err != nil {
			chain = append([]int(nil), set...)
		}
		out = append(out, chain)
	}
	return out
}
