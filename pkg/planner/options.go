package planner

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
)

// Scenario selects the series generation strategy.
type Scenario string

const (
	// ScenarioOptimisation plans per position on a 96-well layout.
	ScenarioOptimisation Scenario = "optimisation"

	// ScenarioScreening plans per sector on a 384-well layout.
	ScenarioScreening Scenario = "screening"

	// ScenarioManual plans a single buffer worklist for manual pipetting.
	ScenarioManual Scenario = "manual"
)

// Validate checks if the scenario is valid.
func (s Scenario) Validate() error {
	switch s {
	case ScenarioOptimisation, ScenarioScreening, ScenarioManual:
		return nil
	default:
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("invalid scenario: %s", s))
	}
}

// DefaultDiluent is the diluent tag of generated buffer dilutions.
const DefaultDiluent = "buffer"

// DefaultLabel prefixes the labels of generated worklists.
const DefaultLabel = "prep"

// Options configures a Generator.
type Options struct {
	// Scenario selects the generation strategy.
	Scenario Scenario `yaml:"scenario" json:"scenario"`

	// Label prefixes the generated worklist labels.
	Label string `yaml:"label" json:"label"`

	// StockConcentrations maps pools to their stock concentration in nM.
	StockConcentrations map[layout.PoolID]float64 `yaml:"-" json:"-"`

	// DefaultStockConcentration applies to pools without an entry in
	// StockConcentrations.
	DefaultStockConcentration float64 `yaml:"default_stock_concentration" json:"default_stock_concentration"`

	// PipettingSpecs constrain buffer dilutions and container transfers.
	PipettingSpecs *liquid.PipettingSpecs `yaml:"-" json:"-"`

	// SectorPipettingSpecs constrain rack sample transfers in the
	// screening scenario.
	SectorPipettingSpecs *liquid.PipettingSpecs `yaml:"-" json:"-"`

	// NumberSectors is the sector count of the screening layout.
	NumberSectors int `yaml:"number_sectors" json:"number_sectors"`

	// IsoVolume is the volume required per output plate position. Zero
	// means the transfer target volumes are used as is.
	IsoVolume float64 `yaml:"iso_volume" json:"iso_volume"`

	// DiluentInfo is the diluent tag of buffer dilutions.
	DiluentInfo string `yaml:"diluent_info" json:"diluent_info"`

	// Association is precomputed sector association data. It is derived
	// from the layout when nil.
	Association *layout.AssociationData `yaml:"-" json:"-"`
}

// withDefaults fills unset options from the standard catalogue.
func (o Options) withDefaults() (Options, error) {
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	if o.DiluentInfo == "" {
		o.DiluentInfo = DefaultDiluent
	}
	if o.NumberSectors == 0 {
		o.NumberSectors = 4
	}
	catalogue := liquid.StandardCatalogue()
	if o.PipettingSpecs == nil {
		name := liquid.PipettingSpecsBiomek
		if o.Scenario == ScenarioManual {
			name = liquid.PipettingSpecsManual
		}
		specs, err := catalogue.PipettingSpecs(name)
		if err != nil {
			return o, err
		}
		o.PipettingSpecs = specs
	}
	if o.SectorPipettingSpecs == nil {
		specs, err := catalogue.PipettingSpecs(liquid.PipettingSpecsCyBio)
		if err != nil {
			return o, err
		}
		o.SectorPipettingSpecs = specs
	}
	return o, nil
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	if err := o.Scenario.Validate(); err != nil {
		return err
	}
	if o.DefaultStockConcentration < 0 {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, "default stock concentration must not be negative")
	}
	for pool, c := range o.StockConcentrations {
		if c <= 0 {
			return errdefs.NewInputError(errdefs.CodeInvalidInput,
				fmt.Sprintf("stock concentration of pool %s must be positive", pool))
		}
	}
	if o.IsoVolume < 0 {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, "iso volume must not be negative")
	}
	if o.NumberSectors < 1 {
		return errdefs.NewInputError(errdefs.CodeInvalidSectorCount,
			fmt.Sprintf("invalid number of sectors: %d", o.NumberSectors))
	}
	if o.PipettingSpecs != nil {
		if err := o.PipettingSpecs.Validate(); err != nil {
			return err
		}
	}
	if o.SectorPipettingSpecs != nil {
		if err := o.SectorPipettingSpecs.Validate(); err != nil {
			return err
		}
	}
	return nil
}
