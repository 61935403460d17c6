// Package geometry provides rack shapes, rack positions and the sector
// algebra used to translate positions between racks of different shapes.
//
// A Position is a plain comparable value: two positions with the same row and
// column are the same position, so positions can be used as map keys and
// compared with ==. Positions carry no rack affiliation.
package geometry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// Position is a zero-based (row, column) coordinate within a rack.
type Position struct {
	row int
	col int
}

// NewPosition returns the position at the given zero-based indices.
func NewPosition(row, col int) (Position, error) {
	if row < 0 || col < 0 {
		return Position{}, errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("negative position indices (%d, %d)", row, col))
	}
	return Position{row: row, col: col}, nil
}

// MustPosition is like NewPosition but panics on invalid indices.
func MustPosition(row, col int) Position {
	p, err := NewPosition(row, col)
	if err != nil {
		panic(err)
	}
	return p
}

// Row returns the zero-based row index.
func (p Position) Row() int { return p.row }

// Col returns the zero-based column index.
func (p Position) Col() int { return p.col }

// Label returns the "A1"-style label of the position.
func (p Position) Label() string {
	return RowLabel(p.row) + strconv.Itoa(p.col+1)
}

// String implements fmt.Stringer.
func (p Position) String() string { return p.Label() }

// Less reports whether p sorts before other in row-major order.
func (p Position) Less(other Position) bool {
	if p.row != other.row {
		return p.row < other.row
	}
	return p.col < other.col
}

// MarshalText encodes the position as its label.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.Label()), nil
}

// UnmarshalText decodes a position from its label.
func (p *Position) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RowLabel converts a zero-based row index to its letter label:
// 0 -> "A", 25 -> "Z", 26 -> "AA".
func RowLabel(row int) string {
	var letters []byte
	n := row + 1
	for n > 0 {
		n--
		letters = append([]byte{byte('A' + n%26)}, letters...)
		n /= 26
	}
	return string(letters)
}

// ParseLabel parses an "A1"-style label. Row letters are case-insensitive.
func ParseLabel(label string) (Position, error) {
	label = strings.TrimSpace(label)
	i := 0
	row := 0
	for i < len(label) {
		ch := label[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		if ch < 'A' || ch > 'Z' {
			break
		}
		row = row*26 + int(ch-'A') + 1
		i++
	}
	if i == 0 || i == len(label) {
		return Position{}, errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("invalid rack position label %q", label))
	}
	col, err := strconv.Atoi(label[i:])
	if err != nil || col < 1 {
		return Position{}, errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("invalid rack position label %q", label))
	}
	return Position{row: row - 1, col: col - 1}, nil
}

// MustParseLabel is like ParseLabel but panics on malformed labels.
func MustParseLabel(label string) Position {
	p, err := ParseLabel(label)
	if err != nil {
		panic(err)
	}
	return p
}

// SortPositions sorts positions in row-major order.
func SortPositions(positions []Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Less(positions[j])
	})
}

// PositionSet is a set of rack positions.
type PositionSet map[Position]struct{}

// NewPositionSet creates a set from the given positions.
func NewPositionSet(positions ...Position) PositionSet {
	s := make(PositionSet, len(positions))
	for _, p := range positions {
		s[p] = struct{}{}
	}
	return s
}

// Contains reports whether p is in the set. A nil set contains nothing.
func (s PositionSet) Contains(p Position) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in row-major order.
func (s PositionSet) Sorted() []Position {
	out := make([]Position, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	SortPositions(out)
	return out
}
