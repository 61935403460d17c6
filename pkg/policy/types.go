package policy

import (
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed by the operator.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block the series.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocks returns true for severities that deny a series.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. It must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation is a single finding of a policy.
type Violation struct {
	// Policy is the name of the policy that raised the finding.
	Policy string `json:"policy"`

	// Worklist is the label of the offending worklist, if any.
	Worklist string `json:"worklist,omitempty"`

	// Message is a human-readable message.
	Message string `json:"message"`

	// Severity is the finding severity.
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy against a series.
type Result struct {
	// Allowed is false when any finding blocks the series.
	Allowed bool `json:"allowed"`

	// Violations are the blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking findings.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of the evaluated policies.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Err returns the blocking findings as PolicyDenied errors, or nil.
func (r *Result) Err() error {
	var errs errdefs.List
	for _, v := range r.Violations {
		e := errdefs.NewInputError(errdefs.CodePolicyDenied, v.Message).WithDetail("policy", v.Policy)
		if v.Worklist != "" {
			e = e.WithDetail("worklist", v.Worklist)
		}
		errs.Add(e)
	}
	return errs.Err()
}

// Context carries who asks for the evaluation and why.
type Context struct {
	// User is the user planning or running the series.
	User string `json:"user,omitempty"`

	// Scenario is the series generator scenario.
	Scenario string `json:"scenario,omitempty"`

	// Operation is plan, execute or emit.
	Operation string `json:"operation,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// Input is the document policies are evaluated against.
type Input struct {
	Series  SeriesInput `json:"series"`
	Context Context     `json:"context"`
}

// SeriesInput is the policy view of a worklist series.
type SeriesInput struct {
	Worklists []WorklistInput `json:"worklists"`
}

// WorklistInput is the policy view of one planned worklist.
type WorklistInput struct {
	Index          int             `json:"index"`
	Label          string          `json:"label"`
	Variant        string          `json:"variant"`
	PipettingSpecs string          `json:"pipetting_specs"`
	TotalVolume    float64         `json:"total_volume"`
	Specs          *SpecsInput     `json:"specs,omitempty"`
	Transfers      []TransferInput `json:"transfers"`
}

// SpecsInput holds the pipetting limits of a worklist's instrument. It is
// omitted when the instrument is unknown.
type SpecsInput struct {
	Name              string  `json:"name"`
	MinTransferVolume float64 `json:"min_transfer_volume"`
	MaxTransferVolume float64 `json:"max_transfer_volume"`
	MaxDilutionFactor float64 `json:"max_dilution_factor"`
	IsSectorBound     bool    `json:"is_sector_bound"`
}

// TransferInput is the policy view of one planned transfer.
type TransferInput struct {
	Volume       float64 `json:"volume"`
	Source       string  `json:"source,omitempty"`
	Target       string  `json:"target,omitempty"`
	Diluent      string  `json:"diluent,omitempty"`
	SourceSector *int    `json:"source_sector,omitempty"`
	TargetSector *int    `json:"target_sector,omitempty"`
	SectorNumber int     `json:"sector_number,omitempty"`
}
