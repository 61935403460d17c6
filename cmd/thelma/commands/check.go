package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/policy"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

func newCheckCommand() *cobra.Command {
	var (
		seriesPath string
		operation  string
		scenario   string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a worklist series against policies",
		Long: `Evaluate the built-in and configured policies against a series.

Policies are rego modules. Findings of severity error or critical block
the series; lower severities are reported as warnings. With --watch the
policy paths are watched and the series is checked again whenever a
policy file changes.`,
		Example: `  # Check a planned series
  thelma check --series series.json

  # Re-check while editing site policies
  thelma check --series series.json --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, ctx, err := openEnvironment(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			series, err := config.LoadSeries(seriesPath)
			if err != nil {
				return err
			}
			eng, err := env.policyEngine(ctx)
			if err != nil {
				return err
			}
			pctx := policy.Context{User: env.cfg.User, Scenario: scenario, Operation: operation}

			checkErr := evaluateSeries(ctx, env, eng, series, pctx)
			if !watch {
				return checkErr
			}
			return watchPolicies(ctx, env, eng, series, pctx)
		},
	}

	cmd.Flags().StringVar(&seriesPath, "series", "", "series file written by plan")
	cmd.Flags().StringVar(&operation, "operation", "plan", "operation to check for (plan, execute, emit)")
	cmd.Flags().StringVar(&scenario, "scenario", "", "scenario the series was planned with")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-check when policy files change")
	_ = cmd.MarkFlagRequired("series")

	return cmd
}

func evaluateSeries(ctx context.Context, env *environment, eng *policy.Engine, series *worklist.Series, pctx policy.Context) error {
	result, err := eng.EvaluateSeries(ctx, series, env.catalogue, pctx)
	if err != nil {
		return err
	}
	logPolicyResult(result)
	if jsonOutput {
		if err := printJSON(result); err != nil {
			return err
		}
	}
	return reportErrors(result.Err())
}

// watchPolicies re-evaluates series after every policy reload until ctx is
// cancelled.
func watchPolicies(ctx context.Context, env *environment, eng *policy.Engine, series *worklist.Series, pctx policy.Context) error {
	if len(env.cfg.Policy.Paths) == 0 {
		log.Warn().Msg("No policy paths configured, nothing to watch")
		return nil
	}

	loader := policy.NewLoader(*env.tel.Logger.Zerolog())
	defer func() {
		_ = loader.StopWatching()
	}()

	err := loader.Watch(ctx, env.cfg.Policy.Paths, func(policies []policy.Policy) error {
		if err := eng.Apply(ctx, policies); err != nil {
			return err
		}
		if err := evaluateSeries(ctx, env, eng, series, pctx); err != nil {
			log.Error().Err(err).Msg("Series rejected")
		}
		return nil
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
