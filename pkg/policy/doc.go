// Package policy checks planned worklist series against Rego policies
// evaluated with Open Policy Agent.
//
// Every policy defines a deny set in its package. Members are either
// strings or objects with message, severity and worklist keys. Findings of
// severity error or critical block the series; the others are reported as
// warnings.
//
// The input document has the shape
//
//	{
//	  "series": {
//	    "worklists": [{
//	      "index": 0,
//	      "label": "iso_buffer",
//	      "variant": "dilution",
//	      "pipetting_specs": "BioMek",
//	      "total_volume": 120,
//	      "specs": {"name": "BioMek", "min_transfer_volume": 2, ...},
//	      "transfers": [{"volume": 10, "target": "A1", "diluent": "buffer"}]
//	    }]
//	  },
//	  "context": {"user": "it", "scenario": "optimisation", "operation": "plan"}
//	}
//
// specs is absent when the worklist names pipetting specs the catalogue
// does not know.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	result, err := eng.EvaluateSeries(ctx, series, catalogue, policy.Context{Operation: "plan"})
//	if err != nil {
//	    return err
//	}
//	if err := result.Err(); err != nil {
//	    return err
//	}
//
// # Built-in policies
//
//   - transfer-volume-range: volumes within the pipetting specs limits
//   - worklist-labels: unique, non-empty worklist labels
//   - empty-worklists: worklists without transfers (warning)
//   - diluent-required: every dilution names its diluent
//   - sector-bound-specs: multi-sector rack transfers need a sector-bound instrument
//
// # Policy files
//
// Loader reads .rego files, named after the file, and .json policy
// documents. A Rego file may declare its default severity in its header:
//
//	# Dilutions must use the assay buffer.
//	# severity: error
//	package site.buffer
//
//	import rego.v1
//
//	deny contains msg if {
//	    some wl in input.series.worklists
//	    some t in wl.transfers
//	    t.diluent != "assay buffer"
//	    msg := sprintf("%v uses %v", [wl.label, t.diluent])
//	}
//
// Loader.Watch reloads policy directories on change.
package policy
