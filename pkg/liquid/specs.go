package liquid

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

var validate = validator.New()

// ContainerSpecs are the physical limits of a well or tube.
type ContainerSpecs struct {
	Name       string  `json:"name" yaml:"name" validate:"required"`
	MaxVolume  float64 `json:"max_volume" yaml:"max_volume" validate:"gt=0"`
	DeadVolume float64 `json:"dead_volume" yaml:"dead_volume" validate:"gte=0,ltefield=MaxVolume"`
}

// Validate checks the specs for consistency.
func (s *ContainerSpecs) Validate() error {
	return validationError("container specs", s.Name, validate.Struct(s))
}

// ReservoirSpecs describe an anonymous bulk source such as a trough.
type ReservoirSpecs struct {
	Name          string         `json:"name" yaml:"name" validate:"required"`
	Shape         geometry.Shape `json:"shape" yaml:"shape"`
	MaxVolume     float64        `json:"max_volume" yaml:"max_volume" validate:"gt=0"`
	MinDeadVolume float64        `json:"min_dead_volume" yaml:"min_dead_volume" validate:"gte=0"`
	MaxDeadVolume float64        `json:"max_dead_volume" yaml:"max_dead_volume" validate:"gtefield=MinDeadVolume,ltefield=MaxVolume"`
}

// Validate checks the specs for consistency.
func (s *ReservoirSpecs) Validate() error {
	return validationError("reservoir specs", s.Name, validate.Struct(s))
}

// DeadVolume returns the dead volume to reserve for a dispense into
// targetCount wells. Dynamic dead volumes grow by one microlitre per target
// well between the minimum and maximum dead volume.
func (s *ReservoirSpecs) DeadVolume(targetCount int, dynamic bool) float64 {
	if !dynamic {
		return s.MaxDeadVolume
	}
	return math.Min(s.MaxDeadVolume, math.Max(s.MinDeadVolume, float64(targetCount)))
}

// PipettingSpecs describe the per-transfer constraints of an instrument.
type PipettingSpecs struct {
	Name                 string  `json:"name" yaml:"name" validate:"required"`
	MinTransferVolume    float64 `json:"min_transfer_volume" yaml:"min_transfer_volume" validate:"gt=0"`
	MaxTransferVolume    float64 `json:"max_transfer_volume" yaml:"max_transfer_volume" validate:"gtfield=MinTransferVolume"`
	MaxDilutionFactor    float64 `json:"max_dilution_factor" yaml:"max_dilution_factor" validate:"gte=1"`
	HasDynamicDeadVolume bool    `json:"has_dynamic_dead_volume" yaml:"has_dynamic_dead_volume"`
	IsSectorBound        bool    `json:"is_sector_bound" yaml:"is_sector_bound"`
}

// Validate checks the specs for consistency.
func (s *PipettingSpecs) Validate() error {
	return validationError("pipetting specs", s.Name, validate.Struct(s))
}

// BelowMin reports whether volume is too small for the instrument.
func (s *PipettingSpecs) BelowMin(volume float64) bool {
	return IsSmaller(volume, s.MinTransferVolume)
}

// AboveMax reports whether volume is too large for a single transfer.
func (s *PipettingSpecs) AboveMax(volume float64) bool {
	return IsLarger(volume, s.MaxTransferVolume)
}

// InRange reports whether volume can be pipetted in one transfer.
func (s *PipettingSpecs) InRange(volume float64) bool {
	return !s.BelowMin(volume) && !s.AboveMax(volume)
}

// SplitCount returns the number of sub-transfers needed for volume.
func (s *PipettingSpecs) SplitCount(volume float64) int {
	if !s.AboveMax(volume) {
		return 1
	}
	return int(math.Ceil(volume/s.MaxTransferVolume - Epsilon/s.MaxTransferVolume))
}

func validationError(kind, name string, err error) error {
	if err == nil {
		return nil
	}
	return errdefs.NewInputError(errdefs.CodeInvalidInput,
		fmt.Sprintf("invalid %s %q", kind, name)).WithCause(err)
}

// Standard pipetting specs names.
const (
	PipettingSpecsBiomek      = "BioMek"
	PipettingSpecsBiomekStock = "BioMekStock"
	PipettingSpecsCyBio       = "CyBio"
	PipettingSpecsManual      = "manual"
)

// Standard reservoir and container specs names.
const (
	ReservoirFalconTube    = "falcon tube"
	ReservoirQuarterTrough = "quarter reservoir"
	ReservoirPlate96Std    = "plate 96 std"
	WellSpecs96Std         = "well 96 std"
	WellSpecs384Std        = "well 384 std"
	TubeSpecsMatrix        = "matrix 0500"
)

// Catalogue holds the specs known to the planner, indexed by name.
type Catalogue struct {
	Pipetting  map[string]*PipettingSpecs
	Reservoirs map[string]*ReservoirSpecs
	Containers map[string]*ContainerSpecs
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{
		Pipetting:  make(map[string]*PipettingSpecs),
		Reservoirs: make(map[string]*ReservoirSpecs),
		Containers: make(map[string]*ContainerSpecs),
	}
}

// StandardCatalogue returns the built-in instrument and labware specs.
func StandardCatalogue() *Catalogue {
	c := NewCatalogue()
	for _, p := range []*PipettingSpecs{
		{Name: PipettingSpecsBiomek, MinTransferVolume: 2, MaxTransferVolume: 250, MaxDilutionFactor: 10, HasDynamicDeadVolume: true},
		{Name: PipettingSpecsBiomekStock, MinTransferVolume: 1, MaxTransferVolume: 50, MaxDilutionFactor: 10},
		{Name: PipettingSpecsCyBio, MinTransferVolume: 1, MaxTransferVolume: 50, MaxDilutionFactor: 10, IsSectorBound: true},
		{Name: PipettingSpecsManual, MinTransferVolume: 1, MaxTransferVolume: 1000, MaxDilutionFactor: 1000},
	} {
		c.Pipetting[p.Name] = p
	}
	for _, r := range []*ReservoirSpecs{
		{Name: ReservoirFalconTube, Shape: mustShape(1, 1), MaxVolume: 50000, MinDeadVolume: 5000, MaxDeadVolume: 5000},
		{Name: ReservoirQuarterTrough, Shape: mustShape(8, 12), MaxVolume: 100000, MinDeadVolume: 10000, MaxDeadVolume: 30000},
		{Name: ReservoirPlate96Std, Shape: geometry.Shape96, MaxVolume: 360, MinDeadVolume: 5, MaxDeadVolume: 10},
	} {
		c.Reservoirs[r.Name] = r
	}
	for _, s := range []*ContainerSpecs{
		{Name: WellSpecs96Std, MaxVolume: 300, DeadVolume: 5},
		{Name: WellSpecs384Std, MaxVolume: 100, DeadVolume: 10},
		{Name: TubeSpecsMatrix, MaxVolume: 500, DeadVolume: 5},
	} {
		c.Containers[s.Name] = s
	}
	return c
}

func mustShape(rows, cols int) geometry.Shape {
	s, err := geometry.NewShape(rows, cols)
	if err != nil {
		panic(err)
	}
	return s
}

// PipettingSpecs looks up pipetting specs by name.
func (c *Catalogue) PipettingSpecs(name string) (*PipettingSpecs, error) {
	if p, ok := c.Pipetting[name]; ok {
		return p, nil
	}
	return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("unknown pipetting specs %q", name))
}

// ReservoirSpecs looks up reservoir specs by name.
func (c *Catalogue) ReservoirSpecs(name string) (*ReservoirSpecs, error) {
	if r, ok := c.Reservoirs[name]; ok {
		return r, nil
	}
	return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("unknown reservoir specs %q", name))
}

// ContainerSpecs looks up container specs by name.
func (c *Catalogue) ContainerSpecs(name string) (*ContainerSpecs, error) {
	if s, ok := c.Containers[name]; ok {
		return s, nil
	}
	return nil, errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("unknown container specs %q", name))
}

// Validate validates every entry of the catalogue.
func (c *Catalogue) Validate() error {
	for _, name := range sortedKeys(c.Pipetting) {
		if err := c.Pipetting[name].Validate(); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.Reservoirs) {
		if err := c.Reservoirs[name].Validate(); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.Containers) {
		if err := c.Containers[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Merge copies every entry of other into c, replacing entries of the same
// name.
func (c *Catalogue) Merge(other *Catalogue) {
	for k, v := range other.Pipetting {
		c.Pipetting[k] = v
	}
	for k, v := range other.Reservoirs {
		c.Reservoirs[k] = v
	}
	for k, v := range other.Containers {
		c.Containers[k] = v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
