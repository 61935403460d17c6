// Package layout models preparation layouts: which pool at which
// concentration and volume is needed at each rack position, where it comes
// from and where it goes. It also derives the sector association data used
// to plan whole-sector dilution series on 384-well racks.
package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// PoolKind distinguishes the cases of PoolID.
type PoolKind int

const (
	// PoolReal is a concrete molecule design pool.
	PoolReal PoolKind = iota
	// PoolMock is the mock sentinel: buffer only.
	PoolMock
	// PoolFloating is a placeholder to be replaced by a real pool.
	PoolFloating
)

// MockToken is the text form of the mock pool.
const MockToken = "mock"

// PoolID is a real pool id, the mock sentinel or a floating placeholder.
// The zero value is not a valid pool.
type PoolID struct {
	kind        PoolKind
	id          int64
	placeholder string
}

// RealPool returns the pool with the given id.
func RealPool(id int64) PoolID { return PoolID{kind: PoolReal, id: id} }

// MockPool returns the mock sentinel.
func MockPool() PoolID { return PoolID{kind: PoolMock} }

// FloatingPool returns a floating placeholder.
func FloatingPool(placeholder string) PoolID {
	return PoolID{kind: PoolFloating, placeholder: placeholder}
}

// ParsePool parses the text form: "mock", an integer id, or any other token
// as a floating placeholder.
func ParsePool(s string) (PoolID, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return PoolID{}, errdefs.NewInputError(errdefs.CodeInvalidInput, "empty pool id")
	case strings.EqualFold(s, MockToken):
		return MockPool(), nil
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id <= 0 {
			return PoolID{}, errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("invalid pool id %d", id))
		}
		return RealPool(id), nil
	}
	return FloatingPool(s), nil
}

// Kind returns the pool kind.
func (p PoolID) Kind() PoolKind { return p.kind }

// IsReal reports whether p is a concrete pool.
func (p PoolID) IsReal() bool { return p.kind == PoolReal && p.id > 0 }

// IsMock reports whether p is the mock sentinel.
func (p PoolID) IsMock() bool { return p.kind == PoolMock }

// IsFloating reports whether p is an unresolved placeholder.
func (p PoolID) IsFloating() bool { return p.kind == PoolFloating }

// IsZero reports whether p is unset.
func (p PoolID) IsZero() bool { return p == PoolID{} }

// ID returns the id of a real pool.
func (p PoolID) ID() int64 { return p.id }

// Placeholder returns the placeholder of a floating pool.
func (p PoolID) Placeholder() string { return p.placeholder }

func (p PoolID) String() string {
	switch p.kind {
	case PoolMock:
		return MockToken
	case PoolFloating:
		return p.placeholder
	default:
		return strconv.FormatInt(p.id, 10)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PoolID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PoolID) UnmarshalText(text []byte) error {
	parsed, err := ParsePool(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
