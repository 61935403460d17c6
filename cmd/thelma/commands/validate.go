package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
)

func newValidateCommand() *cobra.Command {
	var (
		layoutPath string
		racksPath  string
		catalogue  []string
		sectors    int
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate layout, rack and catalogue documents",
		Long: `Validate input documents without planning or running anything.

This command checks:
  - Layout structure (mock flags, hashes, parents, transfer targets)
  - Sector association of 384-well layouts
  - Rack documents against the instrument catalogue
  - CUE catalogue files against the catalogue schema

Every problem found in a document is reported, not only the first.`,
		Example: `  # Validate a layout
  thelma validate --layout iso.yaml

  # Validate a screening layout with two sectors
  thelma validate --layout screen.yaml --sectors 2

  # Validate catalogue files and a racks document
  thelma validate --catalogue ./specs --racks racks.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if layoutPath == "" && racksPath == "" && len(catalogue) == 0 {
				return fmt.Errorf("nothing to validate: pass --layout, --racks or --catalogue")
			}
			ctx := cmd.Context()

			if len(catalogue) > 0 {
				if err := validateCatalogue(ctx, catalogue); err != nil {
					return err
				}
			}

			env, ctx, err := openEnvironment(ctx, envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			if layoutPath != "" {
				if sectors == 0 {
					sectors = env.cfg.Planner.NumberSectors
				}
				if err := validateLayout(ctx, env, layoutPath, sectors); err != nil {
					return err
				}
			}
			if racksPath != "" {
				racks, err := env.docs.LoadRacks(racksPath, env.catalogue)
				if err != nil {
					return reportErrors(err)
				}
				log.Info().
					Str("path", racksPath).
					Int("racks", len(racks)).
					Msg("Racks valid")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&layoutPath, "layout", "l", "", "layout document (YAML)")
	cmd.Flags().StringVar(&racksPath, "racks", "", "racks document (YAML)")
	cmd.Flags().StringSliceVar(&catalogue, "catalogue", nil, "CUE catalogue files or directories")
	cmd.Flags().IntVar(&sectors, "sectors", 0, "sector count of 384-well layouts (default from config)")

	return cmd
}

func validateCatalogue(ctx context.Context, sources []string) error {
	parsed, err := config.NewCatalogueParser().Parse(ctx, sources)
	if err != nil {
		return err
	}
	for _, ve := range parsed.Errors {
		log.Error().Msg(ve.String())
	}
	if err := parsed.Err(); err != nil {
		return reportErrors(err)
	}
	log.Info().
		Strs("files", parsed.SourceFiles).
		Int("pipetting", len(parsed.Catalogue.Pipetting)).
		Int("reservoirs", len(parsed.Catalogue.Reservoirs)).
		Int("containers", len(parsed.Catalogue.Containers)).
		Msg("Catalogue valid")
	return nil
}

func validateLayout(ctx context.Context, env *environment, path string, sectors int) error {
	l, err := env.docs.LoadLayout(ctx, path)
	if err != nil {
		return reportErrors(err)
	}

	event := log.Info().
		Str("path", path).
		Str("shape", l.Shape.Name()).
		Int("positions", l.Len()).
		Int("pools", len(l.Pools())).
		Int("starting_wells", len(l.StartingWells()))
	if n := len(l.UnresolvedFloatings()); n > 0 {
		event = event.Int("unresolved_floatings", n)
	}
	event.Msg("Layout valid")

	if l.Shape != geometry.Shape384 {
		return nil
	}
	assoc, err := layout.NewAssociationData(l, sectors)
	if err != nil {
		return reportErrors(err)
	}
	for _, chain := range assoc.Chains() {
		concentrations := make([]float64, len(chain))
		for i, s := range chain {
			concentrations[i] = assoc.SectorConcentrations[s]
		}
		log.Info().
			Ints("sectors", chain).
			Floats64("concentrations", concentrations).
			Msg("Sector chain")
	}
	return nil
}
