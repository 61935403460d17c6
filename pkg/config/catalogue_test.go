package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
)

const tecanCatalogue = `
pipetting: Tecan: {
	min_transfer_volume: 0.5
	max_transfer_volume: 200
	is_sector_bound:     true
}

reservoirs: "deep trough": {
	shape:           "8x12"
	max_volume:      200000
	min_dead_volume: 5000
	max_dead_volume: 20000
}

containers: "well 1536": {
	max_volume:  12
	dead_volume: 2
}
`

func writeCUE(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func TestCatalogueParser_ParseInline(t *testing.T) {
	parser := NewCatalogueParser()

	parsed, err := parser.ParseInline(context.Background(), tecanCatalogue)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if err := parsed.Err(); err != nil {
		t.Fatalf("unexpected parse errors: %v", err)
	}

	tecan, err := parsed.Catalogue.PipettingSpecs("Tecan")
	if err != nil {
		t.Fatalf("expected Tecan specs: %v", err)
	}
	if tecan.Name != "Tecan" || tecan.MinTransferVolume != 0.5 || tecan.MaxTransferVolume != 200 {
		t.Errorf("unexpected specs %+v", tecan)
	}
	if tecan.MaxDilutionFactor != 10 || tecan.HasDynamicDeadVolume || !tecan.IsSectorBound {
		t.Errorf("expected schema defaults, got %+v", tecan)
	}

	trough, err := parsed.Catalogue.ReservoirSpecs("deep trough")
	if err != nil {
		t.Fatalf("expected reservoir specs: %v", err)
	}
	if trough.Shape != geometry.Shape96 || trough.MaxDeadVolume != 20000 {
		t.Errorf("unexpected reservoir %+v", trough)
	}

	well, err := parsed.Catalogue.ContainerSpecs("well 1536")
	if err != nil {
		t.Fatalf("expected container specs: %v", err)
	}
	if well.MaxVolume != 12 || well.DeadVolume != 2 {
		t.Errorf("unexpected container %+v", well)
	}
}

func TestCatalogueParser_Errors(t *testing.T) {
	parser := NewCatalogueParser()

	tests := []struct {
		name    string
		content string
		path    string
	}{
		{"syntax", "pipetting: {", ""},
		{"limits", "pipetting: X: {min_transfer_volume: 5, max_transfer_volume: 1}", "pipetting.X.max_transfer_volume"},
		{"unknown field", "containers: Y: {max_volume: 5, colour: \"red\"}", "containers.Y.colour"},
		{"unknown section", "robots: {}", "robots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parser.ParseInline(context.Background(), tt.content)
			if err != nil {
				t.Fatalf("ParseInline failed: %v", err)
			}
			if len(parsed.Errors) == 0 {
				t.Fatal("expected validation errors")
			}
			if parsed.Catalogue != nil {
				t.Error("expected no catalogue")
			}
			if tt.path != "" && !hasErrorPath(parsed.Errors, tt.path) {
				t.Errorf("expected an error at %s, got %+v", tt.path, parsed.Errors)
			}
			err = parsed.Err()
			if !errors.Is(err, errdefs.ErrInvalidInput) {
				t.Errorf("expected input error, got %v", err)
			}
		})
	}
}

func hasErrorPath(errs []ValidationError, path string) bool {
	for _, e := range errs {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestCatalogueParser_Parse(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "a.cue", `pipetting: Tecan: {min_transfer_volume: 0.5, max_transfer_volume: 200}`)
	writeCUE(t, dir, "nested/b.cue", `containers: "well 1536": {max_volume: 12}`)
	writeCUE(t, dir, "README.md", "ignored")

	parser := NewCatalogueParser()
	parsed, err := parser.Parse(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := parsed.Err(); err != nil {
		t.Fatalf("unexpected errors: %v", err)
	}
	if len(parsed.SourceFiles) != 2 || !strings.HasSuffix(parsed.SourceFiles[1], "b.cue") {
		t.Errorf("unexpected source files %v", parsed.SourceFiles)
	}
	if len(parsed.Catalogue.Pipetting) != 1 || len(parsed.Catalogue.Containers) != 1 {
		t.Errorf("unexpected catalogue %+v", parsed.Catalogue)
	}

	if _, err := parser.Parse(context.Background(), nil); err == nil {
		t.Error("expected error for no sources")
	}
	if _, err := parser.Parse(context.Background(), []string{filepath.Join(dir, "missing.cue")}); err == nil {
		t.Error("expected error for missing source")
	}

	empty := t.TempDir()
	parsed, err = parser.Parse(context.Background(), []string{empty})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(parsed.Errors) != 1 || parsed.Errors[0].Message != "no CUE files found" {
		t.Errorf("expected empty directory error, got %v", parsed.Errors)
	}
}

func TestCatalogueParser_ConflictingFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeCUE(t, dir, "a.cue", `pipetting: Tecan: {min_transfer_volume: 0.5, max_transfer_volume: 200}`)
	b := writeCUE(t, dir, "b.cue", `pipetting: Tecan: {min_transfer_volume: 1, max_transfer_volume: 200}`)

	parsed, err := NewCatalogueParser().Parse(context.Background(), []string{a, b})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("expected conflict error")
	}
	if parsed.Errors[0].File == "" {
		t.Errorf("expected a source position, got %+v", parsed.Errors[0])
	}
}

func TestCatalogueParser_Load(t *testing.T) {
	dir := t.TempDir()
	path := writeCUE(t, dir, "site.cue", `pipetting: BioMek: {min_transfer_volume: 3, max_transfer_volume: 200, has_dynamic_dead_volume: true}`)

	parser := NewCatalogueParser()
	catalogue, err := parser.Load(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	biomek, _ := catalogue.PipettingSpecs(liquid.PipettingSpecsBiomek)
	if biomek.MinTransferVolume != 3 {
		t.Errorf("expected site override, got %+v", biomek)
	}
	if _, err := catalogue.PipettingSpecs(liquid.PipettingSpecsCyBio); err != nil {
		t.Errorf("expected standard specs to remain: %v", err)
	}

	standard, err := parser.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(standard.Pipetting) != len(liquid.StandardCatalogue().Pipetting) {
		t.Errorf("expected the standard catalogue, got %d pipetting specs", len(standard.Pipetting))
	}

	bad := writeCUE(t, dir, "bad.cue", "pipetting: {")
	if _, err := parser.Load(context.Background(), []string{bad}); err == nil {
		t.Error("expected error for broken source")
	}
}

func TestValidationError_String(t *testing.T) {
	ve := ValidationError{File: "site.cue", Line: 3, Column: 7, Path: "pipetting.X", Message: "conflict"}
	if got := ve.String(); got != "site.cue:3:7: pipetting.X: conflict" {
		t.Errorf("unexpected string %q", got)
	}
	if got := (ValidationError{Message: "plain"}).String(); got != "plain" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestCatalogueParser_ParseBuiltin(t *testing.T) {
	builtin, err := NewCatalogueParser().ParseBuiltin(context.Background())
	if err != nil {
		t.Fatalf("ParseBuiltin failed: %v", err)
	}
	standard := liquid.StandardCatalogue()

	if len(builtin.Pipetting) != len(standard.Pipetting) {
		t.Fatalf("expected %d pipetting specs, got %d", len(standard.Pipetting), len(builtin.Pipetting))
	}
	for name, want := range standard.Pipetting {
		got, ok := builtin.Pipetting[name]
		if !ok || *got != *want {
			t.Errorf("pipetting specs %s: expected %+v, got %+v", name, want, got)
		}
	}
	for name, want := range standard.Reservoirs {
		got, ok := builtin.Reservoirs[name]
		if !ok || *got != *want {
			t.Errorf("reservoir specs %s: expected %+v, got %+v", name, want, got)
		}
	}
	for name, want := range standard.Containers {
		got, ok := builtin.Containers[name]
		if !ok || *got != *want {
			t.Errorf("container specs %s: expected %+v, got %+v", name, want, got)
		}
	}
}

func TestErrorPath(t *testing.T) {
	tests := []struct {
		path []string
		want string
	}{
		{[]string{"#Catalogue", "pipetting", "X", "max_transfer_volume"}, "pipetting.X.max_transfer_volume"},
		{[]string{"#Catalogue"}, ""},
		{[]string{"containers", "Y", "colour"}, "containers.Y.colour"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := errorPath(tt.path); got != tt.want {
			t.Errorf("errorPath(%v): expected %q, got %q", tt.path, tt.want, got)
		}
	}
}
