package geometry

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// Shape is an immutable rack shape of rows x columns.
type Shape struct {
	rows int
	cols int
}

// Standard shapes.
var (
	Shape96  = Shape{rows: 8, cols: 12}
	Shape384 = Shape{rows: 16, cols: 24}
)

// NewShape creates a shape with positive dimensions.
func NewShape(rows, cols int) (Shape, error) {
	if rows <= 0 || cols <= 0 {
		return Shape{}, errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("rack shape dimensions must be positive, got %dx%d", rows, cols))
	}
	return Shape{rows: rows, cols: cols}, nil
}

// ParseShape parses a "8x12" style shape name.
func ParseShape(name string) (Shape, error) {
	var rows, cols int
	if _, err := fmt.Sscanf(name, "%dx%d", &rows, &cols); err != nil {
		return Shape{}, errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("invalid rack shape %q", name)).WithCause(err)
	}
	return NewShape(rows, cols)
}

// Rows returns the number of rows.
func (s Shape) Rows() int { return s.rows }

// Cols returns the number of columns.
func (s Shape) Cols() int { return s.cols }

// Size returns the number of positions in the shape.
func (s Shape) Size() int { return s.rows * s.cols }

// Name returns the "8x12" style name.
func (s Shape) Name() string { return fmt.Sprintf("%dx%d", s.rows, s.cols) }

// String implements fmt.Stringer.
func (s Shape) String() string { return s.Name() }

// IsZero reports whether the shape is unset.
func (s Shape) IsZero() bool { return s.rows == 0 && s.cols == 0 }

// Contains reports whether p lies within the shape.
func (s Shape) Contains(p Position) bool {
	return p.row < s.rows && p.col < s.cols
}

// Positions returns every position of the shape in row-major order.
func (s Shape) Positions() []Position {
	out := make([]Position, 0, s.Size())
	for r := 0; r < s.rows; r++ {
		for c := 0; c < s.cols; c++ {
			out = append(out, Position{row: r, col: c})
		}
	}
	return out
}

// MarshalText encodes the shape as its name.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.Name()), nil
}

// UnmarshalText decodes a shape from its name.
func (s *Shape) UnmarshalText(text []byte) error {
	parsed, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
