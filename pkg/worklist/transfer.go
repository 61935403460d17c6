// Package worklist defines planned transfers, planned worklists and worklist
// series, the records written when a worklist is executed, and the
// structured emission stream consumed by robot file writers.
//
// Variant naming: the three transfer variants are called dilution,
// container_transfer and rack_sample_transfer. Legacy names map as follows:
// container_dilution and sample_dilution are dilution, sample_transfer is
// container_transfer, rack_transfer is rack_sample_transfer. ParseVariant
// accepts both spellings.
package worklist

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

// Variant is the kind of a planned transfer.
type Variant string

const (
	// VariantDilution adds diluent from a reservoir to one target position.
	VariantDilution Variant = "dilution"

	// VariantContainerTransfer moves liquid from one position to another.
	VariantContainerTransfer Variant = "container_transfer"

	// VariantRackSampleTransfer moves every filled position of a source
	// sector to its image in a target sector.
	VariantRackSampleTransfer Variant = "rack_sample_transfer"
)

var legacyVariants = map[string]Variant{
	"container_dilution": VariantDilution,
	"sample_dilution":    VariantDilution,
	"sample_transfer":    VariantContainerTransfer,
	"rack_transfer":      VariantRackSampleTransfer,
}

// Validate checks if the variant is valid.
func (v Variant) Validate() error {
	switch v {
	case VariantDilution, VariantContainerTransfer, VariantRackSampleTransfer:
		return nil
	default:
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("invalid transfer variant: %s", v))
	}
}

// ParseVariant parses current and legacy variant names.
func ParseVariant(name string) (Variant, error) {
	if v, ok := legacyVariants[name]; ok {
		return v, nil
	}
	v := Variant(name)
	if err := v.Validate(); err != nil {
		return "", err
	}
	return v, nil
}

// PlannedTransfer is one of Dilution, ContainerTransfer or
// RackSampleTransfer.
type PlannedTransfer interface {
	// Variant returns the transfer variant.
	Variant() Variant

	// TransferVolume returns the volume in microlitres.
	TransferVolume() float64

	String() string

	isPlannedTransfer()
}

// Dilution adds diluent to a target position.
type Dilution struct {
	Volume      float64
	Target      geometry.Position
	DiluentInfo string
}

// ContainerTransfer moves liquid between two positions.
type ContainerTransfer struct {
	Volume float64
	Source geometry.Position
	Target geometry.Position
}

// RackSampleTransfer moves the content of a source sector into a target
// sector in one cycle.
type RackSampleTransfer struct {
	Volume       float64
	SourceSector int
	TargetSector int
	SectorNumber int
}

func (Dilution) Variant() Variant           { return VariantDilution }
func (ContainerTransfer) Variant() Variant  { return VariantContainerTransfer }
func (RackSampleTransfer) Variant() Variant { return VariantRackSampleTransfer }

func (d Dilution) TransferVolume() float64           { return d.Volume }
func (c ContainerTransfer) TransferVolume() float64  { return c.Volume }
func (r RackSampleTransfer) TransferVolume() float64 { return r.Volume }

func (Dilution) isPlannedTransfer()           {}
func (ContainerTransfer) isPlannedTransfer()  {}
func (RackSampleTransfer) isPlannedTransfer() {}

func (d Dilution) String() string {
	return fmt.Sprintf("dilution %.1ful -> %s (%s)", d.Volume, d.Target, d.DiluentInfo)
}

func (c ContainerTransfer) String() string {
	return fmt.Sprintf("transfer %.1ful %s -> %s", c.Volume, c.Source, c.Target)
}

func (r RackSampleTransfer) String() string {
	return fmt.Sprintf("rack transfer %.1ful sector %d -> %d (%d sectors)",
		r.Volume, r.SourceSector, r.TargetSector, r.SectorNumber)
}

// Translator builds the sector translator for a rack sample transfer
// between racks of the given shapes.
func (r RackSampleTransfer) Translator(source, target geometry.Shape) (*geometry.Translator, error) {
	return geometry.NewTranslatorForShapes(source, target, r.SectorNumber, r.SourceSector, r.TargetSector)
}
