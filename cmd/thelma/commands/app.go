package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/policy"
	"github.com/helixyte/TheLMA-sub008/pkg/stores"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// environment is what every command works with: the configuration, the
// instrument catalogue, telemetry and, when asked for, the rack database.
type environment struct {
	cfg       *config.AppConfig
	catalogue *liquid.Catalogue
	docs      *config.DocumentLoader
	tel       *telemetry.Telemetry
	store     *stores.SQLiteStore
	metrics   *http.Server
}

type envOptions struct {
	store bool
}

// openEnvironment loads the configuration and catalogue and sets up
// telemetry. The returned context carries the telemetry.
func openEnvironment(ctx context.Context, opts envOptions) (*environment, context.Context, error) {
	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		return nil, ctx, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to initialise telemetry: %w", err)
	}
	ctx = tel.WithContext(ctx)

	catalogue, err := config.NewCatalogueParser().Load(ctx, cfg.Catalogue.Files)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, ctx, fmt.Errorf("failed to load catalogue: %w", err)
	}

	env := &environment{
		cfg:       cfg,
		catalogue: catalogue,
		docs:      config.NewDocumentLoader(0),
		tel:       tel,
	}
	env.metrics = tel.Metrics.StartMetricsServer(tel.Logger)

	if opts.store {
		if err := env.openStore(ctx); err != nil {
			env.Close()
			return nil, ctx, err
		}
	}

	log.Debug().
		Str("user", cfg.User).
		Str("database", cfg.Database.Path).
		Int("catalogue_files", len(cfg.Catalogue.Files)).
		Msg("Environment ready")

	return env, ctx, nil
}

func (e *environment) openStore(ctx context.Context) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: e.cfg.Database.Path})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to initialise database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	e.store = store
	return nil
}

// Close releases the database and flushes telemetry.
func (e *environment) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if e.metrics != nil {
		_ = e.metrics.Shutdown(ctx)
	}
	if err := e.tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// policyEngine builds an engine with the built-in policies and those
// found below the configured paths.
func (e *environment) policyEngine(ctx context.Context) (*policy.Engine, error) {
	eng, err := policy.NewEngine(*e.tel.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if len(e.cfg.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, e.cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// checkPolicies gates series on the policy engine. Warnings are logged,
// blocking findings are returned as an error. Disabled policies pass.
func (e *environment) checkPolicies(ctx context.Context, series *worklist.Series, scenario, operation string) error {
	if !e.cfg.Policy.Enabled {
		return nil
	}
	eng, err := e.policyEngine(ctx)
	if err != nil {
		return err
	}
	result, err := eng.EvaluateSeries(ctx, series, e.catalogue, policy.Context{
		User:      e.cfg.User,
		Scenario:  scenario,
		Operation: operation,
	})
	if err != nil {
		return err
	}
	logPolicyResult(result)
	return result.Err()
}

func logPolicyResult(result *policy.Result) {
	for _, w := range result.Warnings {
		log.Warn().
			Str("policy", w.Policy).
			Str("worklist", w.Worklist).
			Msg(w.Message)
	}
	for _, v := range result.Violations {
		log.Error().
			Str("policy", v.Policy).
			Str("worklist", v.Worklist).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}
	log.Info().
		Bool("allowed", result.Allowed).
		Int("policies", len(result.EvaluatedPolicies)).
		Dur("duration", result.Duration).
		Msg("Policy check finished")
}

func logWarnings(warnings []errdefs.Warning) {
	for _, w := range warnings {
		log.Warn().
			Str("code", w.Code).
			Str("position", w.Position).
			Str("rack", w.Rack).
			Msg(w.Message)
	}
}

// reportErrors logs every violation of a collected error list before the
// error itself is returned to cobra.
func reportErrors(err error) error {
	if err == nil {
		return nil
	}
	if list := errdefs.AsList(err); len(list) > 1 {
		for _, item := range list {
			log.Error().Msg(item.Error())
		}
		return fmt.Errorf("%d violations", len(list))
	}
	return err
}

// printJSON writes v to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
