package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixyte/TheLMA-sub008/pkg/archive"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs",
		Long: `Inspect the runs recorded by execute and emit.

Runs are stored in the rack database together with their diagnostics
events. Streams of emit runs are read back from the archive.`,
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	cmd.AddCommand(newRunsStreamsCommand())
	cmd.AddCommand(newRunsWorklistsCommand())

	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, ctx, err := openEnvironment(cmd.Context(), envOptions{store: true})
			if err != nil {
				return err
			}
			defer env.Close()

			runs, err := env.store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "ID\tMODE\tSTATUS\tUSER\tSTARTED\tJOBS\tTRANSFERS\tFAILED JOB")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\n",
					r.ID, r.Mode, r.Status, r.User, r.StartedAt.Format(time.RFC3339),
					r.Summary.Committed, r.Summary.Total, r.Summary.Transfers, r.FailedJob)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, ctx, err := openEnvironment(cmd.Context(), envOptions{store: true})
			if err != nil {
				return err
			}
			defer env.Close()

			run, err := env.store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := env.store.GetEvents(ctx, run.ID, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]interface{}{"run": run, "events": events})
			}

			fmt.Printf("Run %s (%s, %s)\n", run.ID, run.Mode, run.Status)
			fmt.Printf("  user:      %s\n", run.User)
			fmt.Printf("  started:   %s\n", run.StartedAt.Format(time.RFC3339))
			fmt.Printf("  duration:  %s\n", run.Duration)
			fmt.Printf("  jobs:      %d committed, %d skipped of %d\n", run.Summary.Committed, run.Summary.Skipped, run.Summary.Total)
			fmt.Printf("  transfers: %d\n", run.Summary.Transfers)
			fmt.Printf("  warnings:  %d\n", run.Summary.Warnings)
			if run.FailedJob >= 0 {
				fmt.Printf("  failed at: job %d\n", run.FailedJob)
			}
			fmt.Println()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "TIME\tLEVEL\tTYPE\tJOB\tCODE\tMESSAGE")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					e.Timestamp.Format(time.RFC3339), e.Level, e.Type, e.JobIndex, e.Code, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "events", 200, "maximum number of events")

	return cmd
}

func newRunsStreamsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "streams <run-id>",
		Short: "Print the archived streams of an emit run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, ctx, err := openEnvironment(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := archive.Open(ctx, env.cfg.Archive)
			if err != nil {
				return fmt.Errorf("failed to open archive: %w", err)
			}
			streams, err := archive.NewSink(store).ReadStreams(ctx, args[0])
			if err != nil {
				return err
			}
			if len(streams) == 0 {
				return fmt.Errorf("no streams archived for run %s", args[0])
			}

			enc := worklist.NewStreamEncoder(os.Stdout)
			for _, s := range streams {
				if err := enc.Encode(s); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newRunsWorklistsCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "worklists [worklist-id]",
		Short: "List executed worklists or the transfers of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, ctx, err := openEnvironment(cmd.Context(), envOptions{store: true})
			if err != nil {
				return err
			}
			defer env.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 1 {
				transfers, err := env.store.ListExecutedTransfers(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(transfers)
				}
				fmt.Fprintln(w, "SEQ\tVARIANT\tSOURCE\tTARGET\tVOLUME µL")
				for _, t := range transfers {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%g\n", t.Seq, t.Variant, t.Source, t.Target, t.Volume)
				}
				return nil
			}

			summaries, err := env.store.ListExecutedWorklists(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(summaries)
			}
			fmt.Fprintln(w, "ID\tLABEL\tVARIANT\tSPECS\tUSER\tEXECUTED\tTRANSFERS\tVOLUME µL")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%g\n",
					s.ID, s.Label, s.Variant, s.PipettingSpecs, s.User,
					s.ExecutedAt.Format(time.RFC3339), s.Transfers, s.TotalVolume)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of worklists")
	cmd.Flags().IntVar(&offset, "offset", 0, "worklists to skip")

	return cmd
}
