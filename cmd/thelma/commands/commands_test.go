package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/planner"
)

const threeStepLayout = `
shape: 8x12
positions:
  - position: A1
    pool: 1
    concentration: 50000
    volume: 20
    transfer_targets: [{position: A1, volume: 5}]
  - position: A2
    pool: 1
    concentration: 5000
    volume: 20
    parent: A1
    transfer_targets: [{position: A2, volume: 5}]
  - position: A3
    pool: 1
    concentration: 500
    volume: 20
    parent: A2
    transfer_targets: [{position: A3, volume: 5}]
`

// writeWorkspace writes a config file and a layout into a temporary
// directory and returns their paths.
func writeWorkspace(t *testing.T) (dir, cfgPath, layoutPath string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "thelma.yaml")
	cfg := `
user: tester
database:
  path: ` + filepath.Join(dir, "thelma.db") + `
archive:
  driver: memory
planner:
  default_stock_concentration: 100000
policy:
  enabled: false
telemetry:
  logging:
    level: error
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	layoutPath = filepath.Join(dir, "layout.yaml")
	if err := os.WriteFile(layoutPath, []byte(threeStepLayout), 0o644); err != nil {
		t.Fatalf("failed to write layout: %v", err)
	}
	return dir, cfgPath, layoutPath
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCommand("test", "none", "today")
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand("test", "none", "today")
	want := []string{"plan", "execute", "emit", "validate", "check", "migrate", "specs", "runs"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected subcommand %s", name)
		}
	}
}

func TestPlannerOptions(t *testing.T) {
	env := &environment{cfg: config.DefaultAppConfig(), catalogue: liquid.StandardCatalogue()}

	tests := []struct {
		name      string
		flags     planFlags
		wantSpecs string
		wantErr   bool
	}{
		{
			name:      "optimisation uses configured specs",
			flags:     planFlags{scenario: "optimisation"},
			wantSpecs: liquid.PipettingSpecsBiomek,
		},
		{
			name:      "manual uses manual specs",
			flags:     planFlags{scenario: "manual"},
			wantSpecs: liquid.PipettingSpecsManual,
		},
		{
			name:    "unknown scenario",
			flags:   planFlags{scenario: "robotic"},
			wantErr: true,
		},
		{
			name:    "bad stock concentration",
			flags:   planFlags{scenario: "optimisation", stockConc: map[string]string{"205200": "lots"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := plannerOptions(env, &tt.flags)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if opts.PipettingSpecs.Name != tt.wantSpecs {
				t.Errorf("Expected specs %s, got %s", tt.wantSpecs, opts.PipettingSpecs.Name)
			}
			if opts.SectorPipettingSpecs.Name != liquid.PipettingSpecsCyBio {
				t.Errorf("Expected sector specs %s, got %s", liquid.PipettingSpecsCyBio, opts.SectorPipettingSpecs.Name)
			}
		})
	}
}

func TestPlannerOptions_StockConcentrations(t *testing.T) {
	env := &environment{cfg: config.DefaultAppConfig(), catalogue: liquid.StandardCatalogue()}
	f := planFlags{scenario: string(planner.ScenarioOptimisation), stockConc: map[string]string{"205200": "25000"}}

	opts, err := plannerOptions(env, &f)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := opts.StockConcentrations[layout.RealPool(205200)]; got != 25000 {
		t.Errorf("Expected stock concentration 25000, got %v", got)
	}
}

func TestPlanCommand(t *testing.T) {
	dir, cfgPath, layoutPath := writeWorkspace(t)
	out := filepath.Join(dir, "series.json")
	dot := filepath.Join(dir, "chain.dot")

	err := runCommand(t, "plan", "--config", cfgPath, "--layout", layoutPath, "--out", out, "--dot", dot)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	series, err := config.LoadSeries(out)
	if err != nil {
		t.Fatalf("failed to read series: %v", err)
	}
	if series.Len() == 0 {
		t.Error("Expected a non-empty series")
	}

	data, err := os.ReadFile(dot)
	if err != nil {
		t.Fatalf("failed to read DOT file: %v", err)
	}
	if !strings.HasPrefix(string(data), "digraph DilutionChains") {
		t.Errorf("unexpected DOT output %q", string(data))
	}
}

func TestPlanCommand_InvalidLayout(t *testing.T) {
	dir, cfgPath, _ := writeWorkspace(t)
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("shape: 8x12\npositions:\n  - {position: Z99, pool: 1, volume: 10}\n"), 0o644); err != nil {
		t.Fatalf("failed to write layout: %v", err)
	}

	if err := runCommand(t, "plan", "--config", cfgPath, "--layout", bad); err == nil {
		t.Fatal("Expected an error for a position outside the shape")
	}
}

func TestValidateCommand(t *testing.T) {
	_, cfgPath, layoutPath := writeWorkspace(t)

	if err := runCommand(t, "validate", "--config", cfgPath, "--layout", layoutPath); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if err := runCommand(t, "validate", "--config", cfgPath); err == nil {
		t.Error("Expected an error when nothing is given to validate")
	}
}

func TestMigrateCommand(t *testing.T) {
	_, cfgPath, _ := writeWorkspace(t)

	for _, sub := range []string{"up", "version", "down"} {
		if err := runCommand(t, "migrate", sub, "--config", cfgPath); err != nil {
			t.Fatalf("migrate %s failed: %v", sub, err)
		}
	}
}

func TestReportErrors(t *testing.T) {
	if reportErrors(nil) != nil {
		t.Error("Expected nil for nil")
	}

	single := errdefs.NewInputError(errdefs.CodeInvalidInput, "bad input")
	if err := reportErrors(single); !errors.Is(err, single) {
		t.Errorf("Expected single error to pass through, got %v", err)
	}

	var list errdefs.List
	list.Add(errdefs.NewInputError(errdefs.CodeInvalidInput, "first"))
	list.Add(errdefs.NewInputError(errdefs.CodeInvalidInput, "second"))
	if err := reportErrors(list.Err()); err == nil || err.Error() != "2 violations" {
		t.Errorf("Expected summary error, got %v", err)
	}
}
