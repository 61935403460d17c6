package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helixyte/TheLMA-sub008/pkg/archive"
	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

type runFlags struct {
	seriesPath string
	jobsPath   string
	racksPath  string
	dryRun     bool
	skipPolicy bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.seriesPath, "series", "", "series file written by plan")
	cmd.Flags().StringVar(&f.jobsPath, "jobs", "", "jobs document binding worklists to racks (YAML)")
	cmd.Flags().StringVar(&f.racksPath, "racks", "", "racks document (YAML); racks are read from the database otherwise")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "validate without storing results")
	cmd.Flags().BoolVar(&f.skipPolicy, "no-policy", false, "skip the policy check")
	_ = cmd.MarkFlagRequired("series")
	_ = cmd.MarkFlagRequired("jobs")
}

func newExecuteCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Commit a worklist series into rack state",
		Long: `Execute a worklist series against rack state.

Every job binds one worklist of the series to its racks. Jobs run in
index order and see the transfers of earlier jobs. When any transfer of
a job violates a volume or capacity limit the run stops and no rack is
changed. On success the executed worklists and the new rack state are
stored in the database.`,
		Example: `  # Execute a series against racks from the database
  thelma execute --series series.json --jobs jobs.yaml

  # Check a series against racks described in a file
  thelma execute --series series.json --jobs jobs.yaml --racks racks.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeries(cmd.Context(), engine.ModeExecute, &f)
		},
	}
	f.register(cmd)

	return cmd
}

func newEmitCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Write robot worklist streams for a series",
		Long: `Emit the worklist streams a liquid handling robot runs.

The series is validated exactly as by execute but against scratch copies
of the racks, so rack state is never changed. Large dilutions are split
into several transfers within the instrument limits. The streams are
stored in the configured archive under the run id. With --dry-run they
are printed instead.`,
		Example: `  # Emit streams into the archive
  thelma emit --series series.json --jobs jobs.yaml

  # Print the streams
  thelma emit --series series.json --jobs jobs.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeries(cmd.Context(), engine.ModeWrite, &f)
		},
	}
	f.register(cmd)

	return cmd
}

func runSeries(ctx context.Context, mode engine.Mode, f *runFlags) error {
	env, ctx, err := openEnvironment(ctx, envOptions{store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	log.Info().
		Str("series", f.seriesPath).
		Str("jobs", f.jobsPath).
		Str("mode", string(mode)).
		Bool("dry_run", f.dryRun).
		Msg("Running worklist series")

	series, err := config.LoadSeries(f.seriesPath)
	if err != nil {
		return err
	}
	jobsDoc, err := env.docs.LoadJobs(f.jobsPath)
	if err != nil {
		return reportErrors(err)
	}

	var racks config.RackFetcher = env.store
	if f.racksPath != "" {
		rackMap, err := env.docs.LoadRacks(f.racksPath, env.catalogue)
		if err != nil {
			return reportErrors(err)
		}
		racks = rackMap
	}

	jobs, err := config.BuildJobs(ctx, series, jobsDoc.Jobs, env.catalogue, racks)
	if err != nil {
		return reportErrors(err)
	}

	if !f.skipPolicy {
		operation := "execute"
		if mode == engine.ModeWrite {
			operation = "emit"
		}
		if err := env.checkPolicies(ctx, series, "", operation); err != nil {
			return reportErrors(err)
		}
	}

	opts, err := driverOptions(ctx, env, mode, f.dryRun)
	if err != nil {
		return err
	}
	if !f.dryRun {
		env.tel.Events.Subscribe(env.store.EventRecorder(ctx), nil)
	}

	result, runErr := engine.NewDriver(env.cfg.User, opts...).Run(ctx, mode, jobs)
	if result != nil && !f.dryRun {
		if err := env.store.SaveRun(ctx, result.Run); err != nil {
			log.Warn().Err(err).Msg("Failed to save run")
		}
	}
	if runErr != nil {
		return reportErrors(runErr)
	}
	logWarnings(result.Warnings)

	if mode == engine.ModeWrite && f.dryRun {
		if err := printStreams(result); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(result.Run)
	}
	log.Info().
		Str("run_id", result.Run.ID).
		Str("status", string(result.Run.Status)).
		Int("jobs", result.Run.Summary.Committed).
		Int("transfers", result.Run.Summary.Transfers).
		Int("warnings", result.Run.Summary.Warnings).
		Dur("duration", result.Run.Duration).
		Msg("Run finished")

	return nil
}

// driverOptions wires the database and archive into the driver. Dry runs
// get neither.
func driverOptions(ctx context.Context, env *environment, mode engine.Mode, dryRun bool) ([]engine.DriverOption, error) {
	if dryRun {
		return nil, nil
	}
	switch mode {
	case engine.ModeExecute:
		return []engine.DriverOption{
			engine.WithRepository(env.store),
			engine.WithRackSaver(env.store),
		}, nil
	case engine.ModeWrite:
		store, err := archive.Open(ctx, env.cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		log.Debug().
			Str("driver", string(store.Driver())).
			Msg("Archive opened")
		return []engine.DriverOption{engine.WithStreamSink(archive.NewSink(store))}, nil
	}
	return nil, nil
}

func printStreams(result *engine.DriverResult) error {
	enc := worklist.NewStreamEncoder(os.Stdout)
	for i := 0; i <= maxIndex(result.Streams); i++ {
		stream, ok := result.Streams[i]
		if !ok {
			continue
		}
		if err := enc.Encode(stream); err != nil {
			return err
		}
	}
	return nil
}

func maxIndex(streams map[int]*worklist.Stream) int {
	top := -1
	for i := range streams {
		if i > top {
			top = i
		}
	}
	return top
}
