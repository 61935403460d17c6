package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/planner"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

type planFlags struct {
	layoutPath    string
	outPath       string
	dotPath       string
	scenario      string
	label         string
	isoVolume     float64
	pools         []int64
	stockConc     map[string]string
	assignStock   bool
	stockDead     float64
	excludedRacks []string
	stockOutPath  string
	skipPolicy    bool
}

func newPlanCommand() *cobra.Command {
	var f planFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a worklist series from a preparation layout",
		Long: `Generate the worklist series that prepares a layout.

The layout is read from a YAML document. The scenario decides how the
series is built:
  - optimisation: per position dilutions on a 96-well plate
  - screening: per sector dilutions on a 384-well plate
  - manual: a single buffer worklist for hand pipetting

Floating placeholders are replaced by the pools given with --pool. With
--assign-stock every starting well is matched to a stock tube from the
database and a stock transfer series is written to --stock-out.

The series is checked against the configured policies before it is
written.`,
		Example: `  # Plan an optimisation layout
  thelma plan --layout iso.yaml --out series.json

  # Screening layout with floatings and a DOT graph of the dilution chain
  thelma plan --layout screen.yaml --scenario screening \
    --pool 205200 --pool 205201 --dot chain.dot --out series.json

  # Assign stock tubes and write the stock transfers
  thelma plan --layout iso.yaml --assign-stock --stock-out stock.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), &f)
		},
	}

	cmd.Flags().StringVarP(&f.layoutPath, "layout", "l", "", "layout document (YAML)")
	cmd.Flags().StringVarP(&f.outPath, "out", "o", "", "series output file (default stdout)")
	cmd.Flags().StringVar(&f.dotPath, "dot", "", "write the dilution chain as DOT")
	cmd.Flags().StringVarP(&f.scenario, "scenario", "s", string(planner.ScenarioOptimisation), "optimisation, screening or manual")
	cmd.Flags().StringVar(&f.label, "label", planner.DefaultLabel, "worklist label prefix")
	cmd.Flags().Float64Var(&f.isoVolume, "iso-volume", 0, "volume per output position in µL")
	cmd.Flags().Int64SliceVar(&f.pools, "pool", nil, "pool ids replacing floating placeholders in order")
	cmd.Flags().StringToStringVar(&f.stockConc, "stock-concentration", nil, "stock concentration per pool in nM (pool=conc)")
	cmd.Flags().BoolVar(&f.assignStock, "assign-stock", false, "assign stock tubes from the database")
	cmd.Flags().Float64Var(&f.stockDead, "stock-dead-volume", 0, "dead volume added per stock tube in µL")
	cmd.Flags().StringSliceVar(&f.excludedRacks, "exclude-rack", nil, "stock rack barcodes not to use")
	cmd.Flags().StringVar(&f.stockOutPath, "stock-out", "", "stock transfer series output file")
	cmd.Flags().BoolVar(&f.skipPolicy, "no-policy", false, "skip the policy check")

	_ = cmd.MarkFlagRequired("layout")

	return cmd
}

func runPlan(ctx context.Context, f *planFlags) error {
	env, ctx, err := openEnvironment(ctx, envOptions{store: f.assignStock})
	if err != nil {
		return err
	}
	defer env.Close()

	log.Info().
		Str("layout", f.layoutPath).
		Str("scenario", f.scenario).
		Msg("Planning worklist series")

	l, err := env.docs.LoadLayout(ctx, f.layoutPath)
	if err != nil {
		return reportErrors(err)
	}
	if len(f.pools) > 0 {
		pools := make([]layout.PoolID, len(f.pools))
		for i, id := range f.pools {
			pools[i] = layout.RealPool(id)
		}
		if err := l.ResolveFloatings(pools); err != nil {
			return reportErrors(err)
		}
	}

	opts, err := plannerOptions(env, f)
	if err != nil {
		return err
	}
	gen, err := planner.NewGenerator(opts)
	if err != nil {
		return err
	}
	result, err := gen.Generate(ctx, l)
	if err != nil {
		return reportErrors(err)
	}
	logWarnings(result.Warnings)

	if !f.skipPolicy {
		if err := env.checkPolicies(ctx, result.Series, f.scenario, "plan"); err != nil {
			return reportErrors(err)
		}
	}

	if f.dotPath != "" && result.Chain != nil {
		if err := os.WriteFile(f.dotPath, []byte(result.Chain.ToDOT()), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.dotPath, err)
		}
	}

	if f.assignStock {
		if err := planStock(ctx, env, l, gen.Options(), f); err != nil {
			return err
		}
	}

	if err := writeSeries(f.outPath, result.Series); err != nil {
		return err
	}

	log.Info().
		Int("worklists", result.Series.Len()).
		Int("warnings", len(result.Warnings)).
		Msg("Series planned")

	return nil
}

// plannerOptions combines the planner configuration with the command flags.
func plannerOptions(env *environment, f *planFlags) (planner.Options, error) {
	pcfg := env.cfg.Planner
	opts := planner.Options{
		Scenario:                  planner.Scenario(f.scenario),
		Label:                     f.label,
		DefaultStockConcentration: pcfg.DefaultStockConcentration,
		NumberSectors:             pcfg.NumberSectors,
		IsoVolume:                 f.isoVolume,
		DiluentInfo:               pcfg.DiluentInfo,
	}
	if err := opts.Scenario.Validate(); err != nil {
		return opts, err
	}

	specsName := pcfg.PipettingSpecs
	if opts.Scenario == planner.ScenarioManual {
		specsName = liquid.PipettingSpecsManual
	}
	specs, err := env.catalogue.PipettingSpecs(specsName)
	if err != nil {
		return opts, err
	}
	opts.PipettingSpecs = specs

	sectorSpecs, err := env.catalogue.PipettingSpecs(pcfg.SectorPipettingSpecs)
	if err != nil {
		return opts, err
	}
	opts.SectorPipettingSpecs = sectorSpecs

	if len(f.stockConc) > 0 {
		opts.StockConcentrations = make(map[layout.PoolID]float64, len(f.stockConc))
		for pool, value := range f.stockConc {
			id, err := layout.ParsePool(pool)
			if err != nil {
				return opts, fmt.Errorf("invalid pool %q: %w", pool, err)
			}
			conc, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return opts, fmt.Errorf("invalid stock concentration for pool %s: %w", pool, err)
			}
			opts.StockConcentrations[id] = conc
		}
	}

	return opts, nil
}

// planStock assigns stock tubes to the starting wells of l and writes the
// stock transfer worklists as a separate series.
func planStock(ctx context.Context, env *environment, l *layout.PreparationLayout, opts planner.Options, f *planFlags) error {
	resolver := engine.NewStockResolver(env.store, env.cfg.Planner.Supplier)
	if err := planner.AssignStock(ctx, l, resolver, opts, f.stockDead, f.excludedRacks); err != nil {
		return reportErrors(err)
	}

	specs, err := env.catalogue.PipettingSpecs(env.cfg.Planner.StockPipettingSpecs)
	if err != nil {
		return err
	}
	worklists, err := planner.StockTransferWorklists(l, opts, specs)
	if err != nil {
		return reportErrors(err)
	}

	series := worklist.NewSeries()
	for _, w := range worklists {
		series.Add(w)
	}

	log.Info().
		Int("stock_racks", len(worklists)).
		Msg("Stock assigned")

	if f.stockOutPath == "" {
		return nil
	}
	return config.SaveSeries(f.stockOutPath, series)
}

func writeSeries(path string, series *worklist.Series) error {
	if path == "" {
		return printJSON(series)
	}
	return config.SaveSeries(path, series)
}
