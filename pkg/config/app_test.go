package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/helixyte/TheLMA-sub008/pkg/archive"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
)

func TestDefaultAppConfig(t *testing.T) {
	cfg := DefaultAppConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Planner.PipettingSpecs != liquid.PipettingSpecsBiomek || cfg.Planner.SectorPipettingSpecs != liquid.PipettingSpecsCyBio {
		t.Errorf("unexpected planner defaults %+v", cfg.Planner)
	}
	if cfg.Archive.Driver != archive.DriverFilesystem {
		t.Errorf("expected filesystem archive, got %s", cfg.Archive.Driver)
	}
}

func TestLoadAppConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thelma.yaml")
	content := `
user: lab
database:
  path: /var/lib/thelma.db
planner:
  number_sectors: 1
  diluent_info: annealing buffer
policy:
  enabled: false
  paths: [policies]
telemetry:
  logging:
    level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("THELMA_USER", "robot")
	t.Setenv("THELMA_ARCHIVE_DRIVER", "memory")
	t.Setenv("THELMA_LOG_FORMAT", "json")

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.User != "robot" {
		t.Errorf("expected environment to override user, got %s", cfg.User)
	}
	if cfg.Database.Path != "/var/lib/thelma.db" {
		t.Errorf("unexpected database path %s", cfg.Database.Path)
	}
	if cfg.Planner.NumberSectors != 1 || cfg.Planner.DiluentInfo != "annealing buffer" {
		t.Errorf("unexpected planner config %+v", cfg.Planner)
	}
	if cfg.Planner.PipettingSpecs != liquid.PipettingSpecsBiomek {
		t.Errorf("expected defaults to survive, got %s", cfg.Planner.PipettingSpecs)
	}
	if cfg.Policy.Enabled || len(cfg.Policy.Paths) != 1 {
		t.Errorf("unexpected policy config %+v", cfg.Policy)
	}
	if cfg.Archive.Driver != archive.DriverMemory {
		t.Errorf("expected memory archive, got %s", cfg.Archive.Driver)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadAppConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadAppConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	tests := map[string]string{
		"bad yaml":      "user: [",
		"bad sectors":   "planner:\n  number_sectors: 3\n",
		"bad log level": "telemetry:\n  logging:\n    level: loud\n",
		"no database":   "database:\n  path: \"\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			if _, err := LoadAppConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadAppConfig_NoFile(t *testing.T) {
	t.Setenv("THELMA_PLANNER_NUMBER_SECTORS", "1")

	cfg, err := LoadAppConfig("")
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Planner.NumberSectors != 1 {
		t.Errorf("expected environment override, got %d", cfg.Planner.NumberSectors)
	}
}
