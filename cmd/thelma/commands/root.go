package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "thelma",
		Short: "Liquid handling planner for sample preparation plates",
		Long: `thelma plans and runs the liquid transfers that prepare sample plates.

It turns a preparation layout into an ordered worklist series, validates
every transfer of the series against rack state and instrument limits,
and either commits the series into the rack database or emits robot
worklist streams into an archive.

Features:
  - Optimisation, screening and manual planning scenarios
  - Instrument catalogue in CUE
  - Layout documents in YAML with optional Starlark scripts
  - Atomic series execution against SQLite rack state
  - Worklist stream archive on disk or S3
  - Policy gate (OPA/rego) before plans are run`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newEmitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newSpecsCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
