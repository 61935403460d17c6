package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/helixyte/TheLMA-sub008/pkg/archive"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
)

// EnvPrefix prefixes every environment variable read by LoadAppConfig.
const EnvPrefix = "THELMA"

// AppConfig is the configuration of the thelma command.
type AppConfig struct {
	// User is recorded on executed transfers.
	User string `yaml:"user" envconfig:"USER" validate:"required"`

	Database  DatabaseConfig   `yaml:"database" envconfig:"DATABASE"`
	Archive   archive.Config   `yaml:"archive" envconfig:"ARCHIVE"`
	Planner   PlannerConfig    `yaml:"planner" envconfig:"PLANNER"`
	Policy    PolicyConfig     `yaml:"policy" envconfig:"POLICY"`
	Catalogue CatalogueConfig  `yaml:"catalogue" envconfig:"CATALOGUE"`
	Telemetry telemetry.Config `yaml:"telemetry" ignored:"true"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"FILE" validate:"required"`
}

// PlannerConfig holds planner defaults that command flags may override.
type PlannerConfig struct {
	PipettingSpecs            string  `yaml:"pipetting_specs" envconfig:"PIPETTING_SPECS" validate:"required"`
	SectorPipettingSpecs      string  `yaml:"sector_pipetting_specs" envconfig:"SECTOR_PIPETTING_SPECS" validate:"required"`
	StockPipettingSpecs       string  `yaml:"stock_pipetting_specs" envconfig:"STOCK_PIPETTING_SPECS" validate:"required"`
	DiluentInfo               string  `yaml:"diluent_info" envconfig:"DILUENT_INFO" validate:"required"`
	DefaultStockConcentration float64 `yaml:"default_stock_concentration" envconfig:"DEFAULT_STOCK_CONCENTRATION" validate:"gt=0"`
	NumberSectors             int     `yaml:"number_sectors" envconfig:"NUMBER_SECTORS" validate:"oneof=1 4"`
	Supplier                  string  `yaml:"supplier" envconfig:"SUPPLIER"`
}

// PolicyConfig selects the policies checked before plans are emitted.
type PolicyConfig struct {
	Enabled bool     `yaml:"enabled" envconfig:"ENABLED"`
	Paths   []string `yaml:"paths" envconfig:"PATHS"`
}

// CatalogueConfig lists CUE catalogue sources merged over the standard
// catalogue.
type CatalogueConfig struct {
	Files []string `yaml:"files" envconfig:"FILES"`
}

// DefaultAppConfig returns the configuration used when no file is given.
func DefaultAppConfig() *AppConfig {
	user := os.Getenv("USER")
	if user == "" {
		user = "thelma"
	}

	tcfg := telemetry.DefaultConfig()

	return &AppConfig{
		User:     user,
		Database: DatabaseConfig{Path: "thelma.db"},
		Archive:  archive.Config{Driver: archive.DriverFilesystem, Root: "archive"},
		Planner: PlannerConfig{
			PipettingSpecs:            liquid.PipettingSpecsBiomek,
			SectorPipettingSpecs:      liquid.PipettingSpecsCyBio,
			StockPipettingSpecs:       liquid.PipettingSpecsBiomekStock,
			DiluentInfo:               "buffer",
			DefaultStockConcentration: 50000,
			NumberSectors:             4,
		},
		Policy:    PolicyConfig{Enabled: true},
		Telemetry: *tcfg,
	}
}

// LoadAppConfig reads path over the defaults, applies THELMA_* environment
// overrides and validates the result. A missing file is not an error when
// path is empty.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config file %s not found", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	for _, section := range []interface{}{&cfg.Telemetry.Logging, &cfg.Telemetry.Tracing, &cfg.Telemetry.Metrics} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}
