package config

import (
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
)

// ParsedCatalogue is the outcome of parsing CUE catalogue sources.
type ParsedCatalogue struct {
	// Catalogue holds the decoded specs. It is nil when Errors is not empty.
	Catalogue *liquid.Catalogue `json:"-"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the catalogue was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "pipetting.BioMek.max_transfer_volume").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// LayoutDocument is the YAML form of a preparation layout. Positions may be
// listed literally, generated by a Starlark script, or both.
type LayoutDocument struct {
	// Shape is the rack shape, e.g. "16x24".
	Shape geometry.Shape `yaml:"shape"`

	// FloatingStockConcentration is the stock concentration (nM) of
	// floating positions.
	FloatingStockConcentration float64 `yaml:"floating_stock_concentration" validate:"gte=0"`

	// Positions are the literal preparation positions.
	Positions []PositionDocument `yaml:"positions" validate:"dive"`

	// Script is a Starlark program whose global "positions" list extends
	// Positions.
	Script string `yaml:"script,omitempty"`

	// Params are passed to Script as the global "params".
	Params map[string]interface{} `yaml:"params,omitempty"`
}

// PositionDocument is one preparation position of a layout document.
type PositionDocument struct {
	// Position is the rack position label.
	Position geometry.Position `yaml:"position"`

	// Pool is a pool id, "mock" or a floating placeholder.
	Pool string `yaml:"pool" validate:"required"`

	// Concentration is the preparation concentration in nM. Omitted for
	// mock positions.
	Concentration *float64 `yaml:"concentration,omitempty" validate:"omitempty,gt=0"`

	// Volume is the required volume in µL.
	Volume float64 `yaml:"volume" validate:"gte=0"`

	// Parent is the position this one is diluted from.
	Parent *geometry.Position `yaml:"parent,omitempty"`

	// TransferTargets are the output destinations.
	TransferTargets []layout.TransferTarget `yaml:"transfer_targets,omitempty" validate:"dive"`

	// Supplier optionally restricts the stock supplier.
	Supplier string `yaml:"supplier,omitempty"`
}

// RacksDocument is the YAML form of a set of racks.
type RacksDocument struct {
	Racks []RackDocument `yaml:"racks" validate:"dive"`
}

// RackDocument describes a plate or tube rack and its content.
type RackDocument struct {
	// Barcode identifies the rack.
	Barcode string `yaml:"barcode" validate:"required"`

	// Kind is plate (default) or tube_rack.
	Kind liquid.RackKind `yaml:"kind,omitempty" validate:"omitempty,oneof=plate tube_rack"`

	// Shape is the rack shape, e.g. "8x12".
	Shape geometry.Shape `yaml:"shape"`

	// Status is future or managed (default).
	Status liquid.ItemStatus `yaml:"status,omitempty" validate:"omitempty,oneof=future managed"`

	// WellSpecs names the container specs of plate wells.
	WellSpecs string `yaml:"well_specs,omitempty"`

	// Containers lists filled wells or the tubes of a tube rack.
	Containers []ContainerDocument `yaml:"containers,omitempty" validate:"dive"`
}

// ContainerDocument describes a well or tube.
type ContainerDocument struct {
	// Position is the position in the rack.
	Position geometry.Position `yaml:"position"`

	// Barcode is the tube barcode. Tubes only.
	Barcode string `yaml:"barcode,omitempty"`

	// Specs names the tube specs. Tubes only.
	Specs string `yaml:"specs,omitempty"`

	// Status overrides the rack status.
	Status liquid.ItemStatus `yaml:"status,omitempty" validate:"omitempty,oneof=future managed"`

	// Volume is the sample volume in µL.
	Volume float64 `yaml:"volume" validate:"gte=0"`

	// Components are the dissolved molecule designs.
	Components []liquid.Component `yaml:"components,omitempty"`
}

// JobsDocument binds the worklists of a series to labware.
type JobsDocument struct {
	Jobs []JobDocument `yaml:"jobs" validate:"dive"`
}

// JobDocument binds one worklist of a series to its racks.
type JobDocument struct {
	// Worklist is the index of the worklist in the series.
	Worklist int `yaml:"worklist" validate:"gte=0"`

	// Index orders the job in the run. Defaults to Worklist.
	Index *int `yaml:"index,omitempty"`

	// TargetRack is the barcode of the target rack.
	TargetRack string `yaml:"target_rack" validate:"required"`

	// SourceRack is the barcode of the source rack. Defaults to the
	// target rack for transfer worklists.
	SourceRack string `yaml:"source_rack,omitempty"`

	// PipettingSpecs overrides the specs named by the worklist.
	PipettingSpecs string `yaml:"pipetting_specs,omitempty"`

	// ReservoirSpecs names the diluent reservoir of dilution jobs.
	ReservoirSpecs string `yaml:"reservoir_specs,omitempty"`

	// IgnoredPositions are skipped by the executor.
	IgnoredPositions []geometry.Position `yaml:"ignored_positions,omitempty"`
}

// ScriptResult is the outcome of a Starlark evaluation.
type ScriptResult struct {
	// Output holds the public globals of the script.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
