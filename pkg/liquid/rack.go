package liquid

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

// ItemStatus is the lifecycle status of racks and containers.
type ItemStatus string

const (
	// StatusFuture marks labware that is planned but holds no managed liquid yet.
	StatusFuture ItemStatus = "future"

	// StatusManaged marks labware whose content is tracked.
	StatusManaged ItemStatus = "managed"
)

// Validate checks if the status is valid.
func (s ItemStatus) Validate() error {
	switch s {
	case StatusFuture, StatusManaged:
		return nil
	default:
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("invalid item status: %s", s))
	}
}

// RackKind distinguishes plates from tube racks.
type RackKind string

const (
	// KindPlate racks have wells that are fixed at manufacture.
	KindPlate RackKind = "plate"

	// KindTubeRack racks hold removable tubes.
	KindTubeRack RackKind = "tube_rack"
)

// Container is a well or a tube. An empty container has a nil Sample.
type Container struct {
	Position geometry.Position
	Specs    *ContainerSpecs
	Status   ItemStatus
	// Barcode is set for tubes only.
	Barcode string
	Sample  *Sample
}

// Volume returns the sample volume, or zero for empty containers.
func (c *Container) Volume() float64 {
	if c.Sample == nil {
		return 0
	}
	return c.Sample.Volume
}

func (c *Container) clone() *Container {
	cp := *c
	cp.Sample = c.Sample.Clone()
	return &cp
}

// Rack is a plate or tube rack with containers at fixed positions.
type Rack struct {
	Barcode    string
	Kind       RackKind
	Shape      geometry.Shape
	Status     ItemStatus
	containers map[geometry.Position]*Container
}

// NewPlate creates a plate with one well per position of the shape.
func NewPlate(barcode string, shape geometry.Shape, wellSpecs *ContainerSpecs, status ItemStatus) (*Rack, error) {
	if err := checkRackArgs(barcode, shape, status); err != nil {
		return nil, err
	}
	if wellSpecs == nil {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "plate requires well specs").WithRack(barcode)
	}
	r := &Rack{
		Barcode:    barcode,
		Kind:       KindPlate,
		Shape:      shape,
		Status:     status,
		containers: make(map[geometry.Position]*Container, shape.Size()),
	}
	for _, p := range shape.Positions() {
		r.containers[p] = &Container{Position: p, Specs: wellSpecs, Status: status}
	}
	return r, nil
}

// NewTubeRack creates an empty tube rack.
func NewTubeRack(barcode string, shape geometry.Shape, status ItemStatus) (*Rack, error) {
	if err := checkRackArgs(barcode, shape, status); err != nil {
		return nil, err
	}
	return &Rack{
		Barcode:    barcode,
		Kind:       KindTubeRack,
		Shape:      shape,
		Status:     status,
		containers: make(map[geometry.Position]*Container),
	}, nil
}

func checkRackArgs(barcode string, shape geometry.Shape, status ItemStatus) error {
	if barcode == "" {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, "rack barcode is required")
	}
	if shape.IsZero() {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, "rack shape is required").WithRack(barcode)
	}
	return status.Validate()
}

// AddTube places a tube into a tube rack.
func (r *Rack) AddTube(p geometry.Position, barcode string, specs *ContainerSpecs, status ItemStatus) (*Container, error) {
	if r.Kind != KindTubeRack {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "tubes can only be added to tube racks").
			WithRack(r.Barcode)
	}
	if !r.Shape.Contains(p) {
		return nil, errdefs.NewInputError(errdefs.CodePositionOutOfShape,
			fmt.Sprintf("position outside rack shape %s", r.Shape)).WithRack(r.Barcode).WithPosition(p.Label())
	}
	if _, exists := r.containers[p]; exists {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "position already holds a tube").
			WithRack(r.Barcode).WithPosition(p.Label())
	}
	if specs == nil {
		return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, "tube requires tube specs").
			WithRack(r.Barcode).WithPosition(p.Label())
	}
	c := &Container{Position: p, Specs: specs, Status: status, Barcode: barcode}
	r.containers[p] = c
	return c, nil
}

// RemoveTube takes the tube at p out of the rack.
func (r *Rack) RemoveTube(p geometry.Position) (*Container, bool) {
	if r.Kind != KindTubeRack {
		return nil, false
	}
	c, ok := r.containers[p]
	if ok {
		delete(r.containers, p)
	}
	return c, ok
}

// Container returns the container at p.
func (r *Rack) Container(p geometry.Position) (*Container, bool) {
	c, ok := r.containers[p]
	return c, ok
}

// Containers returns all containers in row-major order.
func (r *Rack) Containers() []*Container {
	positions := make([]geometry.Position, 0, len(r.containers))
	for p := range r.containers {
		positions = append(positions, p)
	}
	geometry.SortPositions(positions)
	out := make([]*Container, len(positions))
	for i, p := range positions {
		out[i] = r.containers[p]
	}
	return out
}

// SetSample replaces the sample of the container at p.
func (r *Rack) SetSample(p geometry.Position, s *Sample) error {
	c, ok := r.containers[p]
	if !ok {
		return errdefs.NewTransferViolation(errdefs.CodeContainerMissing, "no container at position").
			WithRack(r.Barcode).WithPosition(p.Label())
	}
	c.Sample = s
	return nil
}

// Clone returns a deep copy of the rack and its containers.
func (r *Rack) Clone() *Rack {
	cp := &Rack{
		Barcode:    r.Barcode,
		Kind:       r.Kind,
		Shape:      r.Shape,
		Status:     r.Status,
		containers: make(map[geometry.Position]*Container, len(r.containers)),
	}
	for p, c := range r.containers {
		cp.containers[p] = c.clone()
	}
	return cp
}

// CopyStateFrom overwrites statuses and samples with those of other, which
// must be a clone of r. Container pointers held by callers stay valid.
func (r *Rack) CopyStateFrom(other *Rack) error {
	if !IsSameRack(r, other) {
		return errdefs.NewCommitError(
			fmt.Sprintf("cannot copy state of rack %s into rack %s", other.Barcode, r.Barcode), nil)
	}
	r.Status = other.Status
	for p, oc := range other.containers {
		c, ok := r.containers[p]
		if !ok {
			return errdefs.NewCommitError("container appeared during staging", nil).
				WithRack(r.Barcode).WithPosition(p.Label())
		}
		c.Status = oc.Status
		c.Sample = oc.Sample.Clone()
	}
	return nil
}

// IsSameRack reports whether a and b denote the same physical rack. Racks
// are identified by barcode.
func IsSameRack(a, b *Rack) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b || a.Barcode == b.Barcode
}
