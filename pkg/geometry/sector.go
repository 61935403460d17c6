package geometry

import (
	"fmt"
	"math"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// Sectors describes how a rack is split into regular sub-grids. Sector
// indices are numbered in Z-order: sector s sits at row offset s / Cols and
// column offset s % Cols.
type Sectors struct {
	number int
	rows   int
	cols   int
}

// NewSectors derives the sector axis counts from the total number of
// sectors, which must be a perfect square.
func NewSectors(number int) (Sectors, error) {
	return NewSectorsWithAxes(number, 0, 0)
}

// NewSectorsWithAxes creates a sector description from the total number and
// optional row and column counts. A zero axis is derived from the other one;
// if both are zero, both default to the square root of number.
func NewSectorsWithAxes(number, rows, cols int) (Sectors, error) {
	if number <= 0 {
		return Sectors{}, invalidSectors(fmt.Sprintf("sector number must be positive, got %d", number))
	}
	switch {
	case rows == 0 && cols == 0:
		root := int(math.Round(math.Sqrt(float64(number))))
		if root*root != number {
			return Sectors{}, invalidSectors(
				fmt.Sprintf("sector number %d is not a square and no axis counts were given", number))
		}
		rows, cols = root, root
	case rows == 0:
		if number%cols != 0 {
			return Sectors{}, invalidSectors(
				fmt.Sprintf("sector number %d is not divisible by column count %d", number, cols))
		}
		rows = number / cols
	case cols == 0:
		if number%rows != 0 {
			return Sectors{}, invalidSectors(
				fmt.Sprintf("sector number %d is not divisible by row count %d", number, rows))
		}
		cols = number / rows
	default:
		if rows*cols != number {
			return Sectors{}, invalidSectors(
				fmt.Sprintf("sector axes %dx%d do not match sector number %d", rows, cols, number))
		}
	}
	if rows < 0 || cols < 0 {
		return Sectors{}, invalidSectors("sector axis counts must not be negative")
	}
	return Sectors{number: number, rows: rows, cols: cols}, nil
}

// MustSectors is like NewSectors but panics on an invalid number.
func MustSectors(number int) Sectors {
	s, err := NewSectors(number)
	if err != nil {
		panic(err)
	}
	return s
}

func invalidSectors(msg string) *errdefs.Error {
	return errdefs.NewGeometryError(errdefs.CodeInvalidSectorCount, msg)
}

// Number returns the total number of sectors.
func (s Sectors) Number() int { return s.number }

// Rows returns the sector row count R.
func (s Sectors) Rows() int { return s.rows }

// Cols returns the sector column count C.
func (s Sectors) Cols() int { return s.cols }

// Indices returns all sector indices in ascending order.
func (s Sectors) Indices() []int {
	out := make([]int, s.number)
	for i := range out {
		out[i] = i
	}
	return out
}

// Modifiers returns the row and column offset of a sector.
func (s Sectors) Modifiers(sector int) (int, int, error) {
	if sector < 0 || sector >= s.number {
		return 0, 0, errdefs.NewGeometryError(errdefs.CodeInvalidSectorCount,
			fmt.Sprintf("sector index %d out of range [0, %d)", sector, s.number))
	}
	return sector / s.cols, sector % s.cols, nil
}

// SectorOf returns the sector index a position of the larger rack belongs to.
func (s Sectors) SectorOf(p Position) int {
	return (p.row%s.rows)*s.cols + p.col%s.cols
}

// Anchor returns the sector-zero position of the quadrant p belongs to.
func (s Sectors) Anchor(p Position) Position {
	return Position{row: p.row - p.row%s.rows, col: p.col - p.col%s.cols}
}

// IsAnchor reports whether p is a sector-zero anchor position.
func (s Sectors) IsAnchor(p Position) bool {
	return p.row%s.rows == 0 && p.col%s.cols == 0
}

// FitsShape reports whether the shape splits into whole quadrants.
func (s Sectors) FitsShape(shape Shape) bool {
	return shape.rows%s.rows == 0 && shape.cols%s.cols == 0
}

// SectorPositions lists the positions of shape whose translation to sector
// zero succeeds, i.e. the positions that belong to the given sector.
func SectorPositions(sector int, shape Shape, number int) ([]Position, error) {
	sectors, err := NewSectors(number)
	if err != nil {
		return nil, err
	}
	rm, cm, err := sectors.Modifiers(sector)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, shape.Size()/number)
	for _, p := range shape.Positions() {
		if _, ok := contract(p, sectors, rm, cm); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
