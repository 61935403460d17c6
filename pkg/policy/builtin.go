package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		transferVolumeRangePolicy(),
		worklistLabelsPolicy(),
		emptyWorklistsPolicy(),
		diluentRequiredPolicy(),
		sectorBoundSpecsPolicy(),
	}
}

// transferVolumeRangePolicy checks planned volumes against the pipetting
// specs of their worklist. Oversized dilutions are split when emitted.
func transferVolumeRangePolicy() Policy {
	return Policy{
		Name:        "transfer-volume-range",
		Description: "Planned transfer volumes must lie within the limits of the worklist's pipetting specs",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"volumes", "pipetting"},
		Rego: `package thelma.policies.volumes

import rego.v1

tolerance := 0.01

deny contains violation if {
	some wl in input.series.worklists
	wl.specs
	some t in wl.transfers
	t.volume < wl.specs.min_transfer_volume - tolerance
	violation := {
		"message": sprintf("worklist %v: %v ul is below the %v minimum of %v ul", [wl.label, t.volume, wl.specs.name, wl.specs.min_transfer_volume]),
		"severity": "error",
		"worklist": wl.label,
	}
}

deny contains violation if {
	some wl in input.series.worklists
	wl.specs
	wl.variant != "dilution"
	some t in wl.transfers
	t.volume > wl.specs.max_transfer_volume + tolerance
	violation := {
		"message": sprintf("worklist %v: %v ul exceeds the %v maximum of %v ul", [wl.label, t.volume, wl.specs.name, wl.specs.max_transfer_volume]),
		"severity": "error",
		"worklist": wl.label,
	}
}

deny contains violation if {
	some wl in input.series.worklists
	wl.specs
	wl.variant == "dilution"
	some t in wl.transfers
	t.volume > wl.specs.max_transfer_volume + tolerance
	violation := {
		"message": sprintf("worklist %v: dilution of %v ul into %v will be split", [wl.label, t.volume, t.target]),
		"severity": "warning",
		"worklist": wl.label,
	}
}
`,
	}
}

// worklistLabelsPolicy requires unique, non-empty worklist labels.
func worklistLabelsPolicy() Policy {
	return Policy{
		Name:        "worklist-labels",
		Description: "Worklists of a series must carry unique, non-empty labels",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		Rego: `package thelma.policies.labels

import rego.v1

deny contains violation if {
	some wl in input.series.worklists
	trim_space(wl.label) == ""
	violation := {
		"message": sprintf("worklist %v has no label", [wl.index]),
		"severity": "error",
	}
}

deny contains violation if {
	some i, a in input.series.worklists
	some j, b in input.series.worklists
	i < j
	a.label != ""
	a.label == b.label
	violation := {
		"message": sprintf("worklists %v and %v share the label %v", [a.index, b.index, a.label]),
		"severity": "error",
		"worklist": a.label,
	}
}
`,
	}
}

// emptyWorklistsPolicy flags worklists without transfers.
func emptyWorklistsPolicy() Policy {
	return Policy{
		Name:        "empty-worklists",
		Description: "Worklists without transfers are reported",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"hygiene"},
		Rego: `package thelma.policies.empty

import rego.v1

deny contains violation if {
	some wl in input.series.worklists
	count(wl.transfers) == 0
	violation := {
		"message": sprintf("worklist %v has no transfers", [wl.label]),
		"severity": "warning",
		"worklist": wl.label,
	}
}
`,
	}
}

// diluentRequiredPolicy requires a diluent tag on every dilution.
func diluentRequiredPolicy() Policy {
	return Policy{
		Name:        "diluent-required",
		Description: "Every dilution must name its diluent",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"dilution"},
		Rego: `package thelma.policies.diluent

import rego.v1

deny contains violation if {
	some wl in input.series.worklists
	wl.variant == "dilution"
	some t in wl.transfers
	not t.diluent
	violation := {
		"message": sprintf("worklist %v: dilution into %v has no diluent", [wl.label, t.target]),
		"severity": "error",
		"worklist": wl.label,
	}
}
`,
	}
}

// sectorBoundSpecsPolicy requires multi-sector rack transfers to run on a
// sector-bound instrument.
func sectorBoundSpecsPolicy() Policy {
	return Policy{
		Name:        "sector-bound-specs",
		Description: "Rack sample transfers between sectors need sector-bound pipetting specs",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"sectors", "pipetting"},
		Rego: `package thelma.policies.sectors

import rego.v1

deny contains violation if {
	some wl in input.series.worklists
	wl.variant == "rack_sample_transfer"
	wl.specs
	not wl.specs.is_sector_bound
	some t in wl.transfers
	t.sector_number > 1
	violation := {
		"message": sprintf("worklist %v: %v cannot pipette %v sectors", [wl.label, wl.specs.name, t.sector_number]),
		"severity": "error",
		"worklist": wl.label,
	}
}
`,
	}
}
