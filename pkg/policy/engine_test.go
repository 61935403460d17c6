package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func pos(label string) geometry.Position { return geometry.MustParseLabel(label) }

func dilutions(label, specs string, volumes ...float64) *worklist.PlannedWorklist {
	w := worklist.NewPlannedWorklist(label, worklist.VariantDilution, specs)
	for i, v := range volumes {
		w.Transfers = append(w.Transfers, worklist.Dilution{Volume: v, Target: geometry.MustPosition(0, i), DiluentInfo: "buffer"})
	}
	return w
}

func seriesOf(worklists ...*worklist.PlannedWorklist) *worklist.Series {
	s := worklist.NewSeries()
	for _, w := range worklists {
		s.Add(w)
	}
	return s
}

func evaluate(t *testing.T, eng *Engine, s *worklist.Series) *Result {
	t.Helper()
	result, err := eng.EvaluateSeries(context.Background(), s, liquid.StandardCatalogue(), Context{Operation: "plan"})
	if err != nil {
		t.Fatalf("EvaluateSeries failed: %v", err)
	}
	return result
}

func findingsOf(findings []Violation, policy string) []Violation {
	var out []Violation
	for _, f := range findings {
		if f.Policy == policy {
			out = append(out, f)
		}
	}
	return out
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	expected := []string{
		"diluent-required",
		"empty-worklists",
		"sector-bound-specs",
		"transfer-volume-range",
		"worklist-labels",
	}
	policies := eng.ListPolicies()
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, p := range policies {
		if p.Name != expected[i] {
			t.Errorf("Expected policy %s at %d, got %s", expected[i], i, p.Name)
		}
	}
}

func TestEvaluateSeries_CleanSeries(t *testing.T) {
	eng := newTestEngine(t)

	transfer := worklist.NewPlannedWorklist("iso_transfer", worklist.VariantRackSampleTransfer, liquid.PipettingSpecsCyBio)
	transfer.Transfers = append(transfer.Transfers,
		worklist.RackSampleTransfer{Volume: 5, SourceSector: 0, TargetSector: 1, SectorNumber: 4})

	result := evaluate(t, eng, seriesOf(dilutions("iso_buffer", liquid.PipettingSpecsBiomek, 10, 20), transfer))

	if !result.Allowed {
		t.Errorf("Expected series to be allowed, got violations %+v", result.Violations)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %+v", result.Warnings)
	}
	if len(result.EvaluatedPolicies) != 5 {
		t.Errorf("Expected 5 evaluated policies, got %v", result.EvaluatedPolicies)
	}
	if result.Err() != nil {
		t.Errorf("Expected no error, got %v", result.Err())
	}
}

func TestEvaluateSeries_TransferVolumeRange(t *testing.T) {
	eng := newTestEngine(t)

	transfers := worklist.NewPlannedWorklist("transfers", worklist.VariantContainerTransfer, liquid.PipettingSpecsBiomek)
	transfers.Transfers = append(transfers.Transfers,
		worklist.ContainerTransfer{Volume: 1, Source: pos("A1"), Target: pos("B1")},
		worklist.ContainerTransfer{Volume: 300, Source: pos("A2"), Target: pos("B2")},
		worklist.ContainerTransfer{Volume: 1.995, Source: pos("A3"), Target: pos("B3")},
	)
	large := dilutions("large_buffer", liquid.PipettingSpecsBiomek, 400)

	result := evaluate(t, eng, seriesOf(transfers, large))

	if result.Allowed {
		t.Fatal("Expected series to be denied")
	}
	violations := findingsOf(result.Violations, "transfer-volume-range")
	if len(violations) != 2 {
		t.Fatalf("Expected 2 volume violations, got %+v", violations)
	}
	for _, v := range violations {
		if v.Worklist != "transfers" || v.Severity != SeverityError {
			t.Errorf("Expected error on worklist transfers, got %+v", v)
		}
	}

	warnings := findingsOf(result.Warnings, "transfer-volume-range")
	if len(warnings) != 1 || warnings[0].Worklist != "large_buffer" {
		t.Fatalf("Expected a split warning for large_buffer, got %+v", warnings)
	}
	if !strings.Contains(warnings[0].Message, "split") {
		t.Errorf("Expected split message, got %q", warnings[0].Message)
	}
}

func TestEvaluateSeries_UnknownSpecsSkipsVolumeChecks(t *testing.T) {
	eng := newTestEngine(t)

	result := evaluate(t, eng, seriesOf(dilutions("buffer", "Pipette 3000", 0.1, 5000)))

	if len(findingsOf(result.Violations, "transfer-volume-range")) != 0 ||
		len(findingsOf(result.Warnings, "transfer-volume-range")) != 0 {
		t.Errorf("Expected no volume findings for unknown specs, got %+v %+v", result.Violations, result.Warnings)
	}
	input := BuildInput(seriesOf(dilutions("buffer", "Pipette 3000", 1)), liquid.StandardCatalogue(), Context{})
	if input.Series.Worklists[0].Specs != nil {
		t.Errorf("Expected no specs, got %+v", input.Series.Worklists[0].Specs)
	}
	if input.Context.Timestamp.IsZero() {
		t.Error("Expected evaluation timestamp to be set")
	}
}

func TestEvaluateSeries_WorklistLabels(t *testing.T) {
	eng := newTestEngine(t)

	result := evaluate(t, eng, seriesOf(
		dilutions("buffer", liquid.PipettingSpecsBiomek, 10),
		dilutions("buffer", liquid.PipettingSpecsBiomek, 10),
		dilutions(" ", liquid.PipettingSpecsBiomek, 10),
	))

	violations := findingsOf(result.Violations, "worklist-labels")
	if len(violations) != 2 {
		t.Fatalf("Expected duplicate and empty label violations, got %+v", violations)
	}
	var messages []string
	for _, v := range violations {
		messages = append(messages, v.Message)
	}
	joined := strings.Join(messages, "|")
	if !strings.Contains(joined, "worklists 0 and 1 share the label buffer") {
		t.Errorf("Expected duplicate label message, got %s", joined)
	}
	if !strings.Contains(joined, "worklist 2 has no label") {
		t.Errorf("Expected empty label message, got %s", joined)
	}
}

func TestEvaluateSeries_EmptyWorklistIsWarning(t *testing.T) {
	eng := newTestEngine(t)

	empty := worklist.NewPlannedWorklist("empty", worklist.VariantContainerTransfer, liquid.PipettingSpecsBiomek)
	result := evaluate(t, eng, seriesOf(empty))

	if !result.Allowed {
		t.Errorf("Expected empty worklist not to block, got %+v", result.Violations)
	}
	warnings := findingsOf(result.Warnings, "empty-worklists")
	if len(warnings) != 1 || warnings[0].Worklist != "empty" || warnings[0].Severity != SeverityWarning {
		t.Errorf("Expected one warning for worklist empty, got %+v", warnings)
	}
}

func TestEvaluateSeries_DiluentRequired(t *testing.T) {
	eng := newTestEngine(t)

	w := worklist.NewPlannedWorklist("buffer", worklist.VariantDilution, liquid.PipettingSpecsBiomek)
	w.Transfers = append(w.Transfers, worklist.Dilution{Volume: 10, Target: pos("C3")})

	result := evaluate(t, eng, seriesOf(w))

	violations := findingsOf(result.Violations, "diluent-required")
	if len(violations) != 1 {
		t.Fatalf("Expected 1 diluent violation, got %+v", violations)
	}
	if !strings.Contains(violations[0].Message, "C3") {
		t.Errorf("Expected message to name C3, got %q", violations[0].Message)
	}
}

func TestEvaluateSeries_SectorBoundSpecs(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name         string
		specs        string
		sectorNumber int
		expectDenied bool
	}{
		{"sector bound instrument", liquid.PipettingSpecsCyBio, 4, false},
		{"free instrument across sectors", liquid.PipettingSpecsBiomek, 4, true},
		{"free instrument single sector", liquid.PipettingSpecsBiomek, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := worklist.NewPlannedWorklist("rack", worklist.VariantRackSampleTransfer, tt.specs)
			w.Transfers = append(w.Transfers,
				worklist.RackSampleTransfer{Volume: 5, SourceSector: 0, TargetSector: 0, SectorNumber: tt.sectorNumber})

			result := evaluate(t, eng, seriesOf(w))
			denied := len(findingsOf(result.Violations, "sector-bound-specs")) > 0
			if denied != tt.expectDenied {
				t.Errorf("Expected denied=%v, got %v (%+v)", tt.expectDenied, denied, result.Violations)
			}
		})
	}
}

func TestResult_Err(t *testing.T) {
	eng := newTestEngine(t)

	w := worklist.NewPlannedWorklist("buffer", worklist.VariantDilution, liquid.PipettingSpecsBiomek)
	w.Transfers = append(w.Transfers, worklist.Dilution{Volume: 1, Target: pos("A1"), DiluentInfo: "buffer"})

	err := evaluate(t, eng, seriesOf(w)).Err()
	if err == nil {
		t.Fatal("Expected policy error")
	}
	if errdefs.CodeOf(err) != errdefs.CodePolicyDenied {
		t.Errorf("Expected code %s, got %s", errdefs.CodePolicyDenied, errdefs.CodeOf(err))
	}
	if errdefs.ClassOf(err) != errdefs.ClassInputValidation {
		t.Errorf("Expected input validation class, got %s", errdefs.ClassOf(err))
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	series := seriesOf(worklist.NewPlannedWorklist("empty", worklist.VariantDilution, liquid.PipettingSpecsBiomek))

	if err := eng.DisablePolicy("empty-worklists"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	p, err := eng.GetPolicy("empty-worklists")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Enabled {
		t.Error("Expected policy to be disabled")
	}
	if result := evaluate(t, eng, series); len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings from disabled policy, got %+v", result.Warnings)
	}

	if err := eng.EnablePolicy("empty-worklists"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	if result := evaluate(t, eng, series); len(result.Warnings) != 1 {
		t.Errorf("Expected 1 warning after enabling, got %+v", result.Warnings)
	}

	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestApply(t *testing.T) {
	eng := newTestEngine(t)

	custom := Policy{
		Name:     "assay-buffer",
		Severity: SeverityCritical,
		Enabled:  true,
		Rego: `package site.buffer

import rego.v1

deny contains msg if {
	some wl in input.series.worklists
	some t in wl.transfers
	t.diluent
	t.diluent != "assay buffer"
	msg := sprintf("%v uses %v", [wl.label, t.diluent])
}
`,
	}
	if err := eng.Apply(context.Background(), []Policy{custom}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	result := evaluate(t, eng, seriesOf(dilutions("buffer", liquid.PipettingSpecsBiomek, 10)))
	violations := findingsOf(result.Violations, "assay-buffer")
	if len(violations) != 1 {
		t.Fatalf("Expected 1 custom violation, got %+v", result.Violations)
	}
	if violations[0].Message != "buffer uses buffer" || violations[0].Severity != SeverityCritical {
		t.Errorf("Expected critical string finding, got %+v", violations[0])
	}

	broken := Policy{Name: "broken", Enabled: true, Rego: "package broken\n\ndeny contains"}
	if err := eng.Apply(context.Background(), []Policy{{Name: "fine", Enabled: true, Rego: "package fine\n\nimport rego.v1\n\ndeny contains msg if { false; msg := \"\" }"}, broken}); err == nil {
		t.Fatal("Expected compile error")
	}
	if _, err := eng.GetPolicy("fine"); err == nil {
		t.Error("Expected failed Apply to leave policies unchanged")
	}
	if _, err := eng.GetPolicy("assay-buffer"); err != nil {
		t.Errorf("Expected earlier policy to survive, got %v", err)
	}
}
