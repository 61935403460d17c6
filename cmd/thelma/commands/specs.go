package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
)

func newSpecsCommand() *cobra.Command {
	var printCUE bool

	cmd := &cobra.Command{
		Use:   "specs",
		Short: "List the instrument catalogue",
		Long: `List the pipetting, reservoir and container specs known to the planner.

The catalogue is the built-in one merged with the CUE files configured
under catalogue.files. With --cue the built-in catalogue source is
printed, as a starting point for site catalogues.`,
		Example: `  # Show the effective catalogue
  thelma specs

  # Start a site catalogue
  thelma specs --cue > site.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printCUE {
				fmt.Print(config.BuiltinCatalogue)
				return nil
			}

			env, _, err := openEnvironment(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			if jsonOutput {
				return printJSON(env.catalogue)
			}
			printCatalogue(env.catalogue)
			return nil
		},
	}

	cmd.Flags().BoolVar(&printCUE, "cue", false, "print the built-in catalogue as CUE")

	return cmd
}

func printCatalogue(c *liquid.Catalogue) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "PIPETTING\tMIN µL\tMAX µL\tMAX DILUTION\tDYNAMIC DEAD VOLUME\tSECTOR BOUND")
	for _, name := range sortedNames(c.Pipetting) {
		p := c.Pipetting[name]
		fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%t\t%t\n", name,
			p.MinTransferVolume, p.MaxTransferVolume, p.MaxDilutionFactor,
			p.HasDynamicDeadVolume, p.IsSectorBound)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "RESERVOIR\tSHAPE\tMAX µL\tDEAD VOLUME µL")
	for _, name := range sortedNames(c.Reservoirs) {
		r := c.Reservoirs[name]
		fmt.Fprintf(w, "%s\t%s\t%g\t%g-%g\n", name, r.Shape.Name(), r.MaxVolume, r.MinDeadVolume, r.MaxDeadVolume)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CONTAINER\tMAX µL\tDEAD VOLUME µL")
	for _, name := range sortedNames(c.Containers) {
		s := c.Containers[name]
		fmt.Fprintf(w, "%s\t%g\t%g\n", name, s.MaxVolume, s.DeadVolume)
	}
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
