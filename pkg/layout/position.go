package layout

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

var validate = validator.New()

// PositionType is the role of a preparation position.
type PositionType string

const (
	// TypeFixed positions hold a known pool.
	TypeFixed PositionType = "fixed"

	// TypeFloating positions hold a placeholder until resolved.
	TypeFloating PositionType = "floating"

	// TypeMock positions hold buffer only.
	TypeMock PositionType = "mock"
)

// TransferTarget is a destination of a preparation position.
type TransferTarget struct {
	// Position is the target position on the output rack.
	Position geometry.Position `json:"position" yaml:"position"`

	// Volume is the transfer volume in microlitres.
	Volume float64 `json:"volume" yaml:"volume" validate:"gt=0"`

	// Rack optionally names the target rack marker.
	Rack string `json:"rack,omitempty" yaml:"rack,omitempty"`
}

// PreparationPosition describes what a single rack position must contain.
type PreparationPosition struct {
	// Position is the rack position.
	Position geometry.Position `json:"position"`

	// Pool is the molecule design pool, the mock sentinel or a placeholder.
	Pool PoolID `json:"pool"`

	// Type is the position role.
	Type PositionType `json:"type" validate:"oneof=fixed floating mock"`

	// Concentration is the preparation concentration in nanomolar. Nil for
	// mock positions.
	Concentration *float64 `json:"concentration,omitempty" validate:"omitempty,gt=0"`

	// RequiredVolume is the volume to prepare in microlitres.
	RequiredVolume float64 `json:"required_volume" validate:"gte=0"`

	// Parent is the position this one is diluted from. Nil for starting
	// wells.
	Parent *geometry.Position `json:"parent,omitempty"`

	// TransferTargets are the output destinations.
	TransferTargets []TransferTarget `json:"transfer_targets,omitempty" validate:"dive"`

	// StockTubeBarcode is the assigned stock tube.
	StockTubeBarcode string `json:"stock_tube_barcode,omitempty"`

	// StockRackBarcode is the rack of the assigned stock tube.
	StockRackBarcode string `json:"stock_rack_barcode,omitempty"`

	// StockRackPosition is the position of the stock tube in its rack.
	StockRackPosition *geometry.Position `json:"stock_rack_position,omitempty"`

	// Supplier optionally restricts the stock supplier.
	Supplier string `json:"supplier,omitempty"`
}

// NewFixedPosition creates a fixed position.
func NewFixedPosition(p geometry.Position, pool int64, conc, volume float64) *PreparationPosition {
	return &PreparationPosition{
		Position:       p,
		Pool:           RealPool(pool),
		Type:           TypeFixed,
		Concentration:  &conc,
		RequiredVolume: volume,
	}
}

// NewMockPosition creates a mock position.
func NewMockPosition(p geometry.Position, volume float64) *PreparationPosition {
	return &PreparationPosition{Position: p, Pool: MockPool(), Type: TypeMock, RequiredVolume: volume}
}

// WithParent sets the parent position.
func (pp *PreparationPosition) WithParent(parent geometry.Position) *PreparationPosition {
	pp.Parent = &parent
	return pp
}

// WithTransferTarget appends an output destination.
func (pp *PreparationPosition) WithTransferTarget(target geometry.Position, volume float64) *PreparationPosition {
	pp.TransferTargets = append(pp.TransferTargets, TransferTarget{Position: target, Volume: volume})
	return pp
}

// IsMock reports whether the position holds buffer only.
func (pp *PreparationPosition) IsMock() bool { return pp.Type == TypeMock }

// IsFloating reports whether the position is floating, resolved or not.
func (pp *PreparationPosition) IsFloating() bool { return pp.Type == TypeFloating }

// IsStartingWell reports whether the position is filled from stock.
func (pp *PreparationPosition) IsStartingWell() bool {
	return !pp.IsMock() && pp.Parent == nil
}

// Conc returns the concentration and whether it is set.
func (pp *PreparationPosition) Conc() (float64, bool) {
	if pp.Concentration == nil {
		return 0, false
	}
	return *pp.Concentration, true
}

// Hash is the identity of a position within a 96-well layout.
type Hash struct {
	Pool          PoolID
	Concentration float64
}

// Hash returns the pool/concentration hash.
func (pp *PreparationPosition) Hash() Hash {
	conc, _ := pp.Conc()
	return Hash{Pool: pp.Pool, Concentration: conc}
}

// TransferTargetVolume sums the output transfer volumes.
func (pp *PreparationPosition) TransferTargetVolume() float64 {
	var total float64
	for _, t := range pp.TransferTargets {
		total += t.Volume
	}
	return total
}

// Clone returns a deep copy.
func (pp *PreparationPosition) Clone() *PreparationPosition {
	cp := *pp
	if pp.Concentration != nil {
		c := *pp.Concentration
		cp.Concentration = &c
	}
	if pp.Parent != nil {
		p := *pp.Parent
		cp.Parent = &p
	}
	if pp.StockRackPosition != nil {
		p := *pp.StockRackPosition
		cp.StockRackPosition = &p
	}
	cp.TransferTargets = append([]TransferTarget(nil), pp.TransferTargets...)
	return &cp
}

// validateFields checks field-level constraints and the mock invariant.
func (pp *PreparationPosition) validateFields() errdefs.List {
	var errs errdefs.List
	label := pp.Position.Label()
	if err := validate.Struct(pp); err != nil {
		errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput, "invalid preparation position").
			WithPosition(label).WithCause(err))
	}
	if pp.Pool.IsZero() {
		errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput, "pool is required").WithPosition(label))
		return errs
	}

	mockFlags := []bool{
		pp.Type == TypeMock,
		pp.Pool.IsMock(),
		pp.Concentration == nil,
		pp.StockTubeBarcode == "" && pp.StockRackBarcode == "",
	}
	if pp.Type == TypeMock || pp.Pool.IsMock() {
		for _, f := range mockFlags {
			if !f {
				errs.Add(errdefs.NewLayoutError(errdefs.CodeMockMismatch,
					fmt.Sprintf("inconsistent mock position: type %s, pool %s", pp.Type, pp.Pool)).WithPosition(label))
				break
			}
		}
		return errs
	}

	if pp.Concentration == nil {
		errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput, "concentration is required").WithPosition(label))
	}
	if pp.Pool.IsFloating() && pp.Type != TypeFloating {
		errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("placeholder %s on %s position", pp.Pool, pp.Type)).WithPosition(label))
	}
	if pp.RequiredVolume <= 0 {
		errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput, "required volume must be positive").WithPosition(label))
	}
	return errs
}
