package geometry

// Quadrant maps sector indices to the positions that share one sector-zero
// anchor. Sectors whose position falls outside the rack are absent.
type Quadrant map[int]Position

// QuadrantIterator walks the quadrants of a rack shape in row-major anchor
// order.
type QuadrantIterator struct {
	shape   Shape
	sectors Sectors
}

// NewQuadrantIterator creates an iterator for the given shape and number of
// sectors.
func NewQuadrantIterator(shape Shape, number int) (*QuadrantIterator, error) {
	sectors, err := NewSectors(number)
	if err != nil {
		return nil, err
	}
	return &QuadrantIterator{shape: shape, sectors: sectors}, nil
}

// Sectors returns the sector description used by the iterator.
func (q *QuadrantIterator) Sectors() Sectors { return q.sectors }

// Anchors returns the sector-zero anchor positions in row-major order.
func (q *QuadrantIterator) Anchors() []Position {
	out := make([]Position, 0)
	for r := 0; r < q.shape.rows; r += q.sectors.rows {
		for c := 0; c < q.shape.cols; c += q.sectors.cols {
			out = append(out, Position{row: r, col: c})
		}
	}
	return out
}

// Quadrants returns one Quadrant per anchor.
func (q *QuadrantIterator) Quadrants() []Quadrant {
	anchors := q.Anchors()
	out := make([]Quadrant, 0, len(anchors))
	for _, anchor := range anchors {
		quadrant := make(Quadrant, q.sectors.number)
		for s := 0; s < q.sectors.number; s++ {
			rm, cm, _ := q.sectors.Modifiers(s)
			p := Position{row: anchor.row + rm, col: anchor.col + cm}
			if q.shape.Contains(p) {
				quadrant[s] = p
			}
		}
		out = append(out, quadrant)
	}
	return out
}

// QuadrantValues resolves every quadrant through lookup. Sectors for which
// lookup reports false are left out of the returned maps, so a quadrant in
// which nothing is defined yields an empty map.
func QuadrantValues[T any](q *QuadrantIterator, lookup func(Position) (T, bool)) []map[int]T {
	quadrants := q.Quadrants()
	out := make([]map[int]T, 0, len(quadrants))
	for _, quadrant := range quadrants {
		values := make(map[int]T, len(quadrant))
		for s, p := range quadrant {
			if v, ok := lookup(p); ok {
				values[s] = v
			}
		}
		out = append(out, values)
	}
	return out
}
