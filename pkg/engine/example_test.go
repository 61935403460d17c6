package engine_test

import (
	"context"
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// Example_series shows a buffer step followed by a dilution step on the
// same plate. The second job sees the buffer added by the first.
func Example_series() {
	catalogue := liquid.StandardCatalogue()
	wells, _ := catalogue.ContainerSpecs(liquid.WellSpecs96Std)
	biomek, _ := catalogue.PipettingSpecs(liquid.PipettingSpecsBiomek)

	plate, _ := liquid.NewPlate("PREP01", geometry.Shape96, wells, liquid.StatusManaged)
	_ = plate.SetSample(geometry.MustParseLabel("A1"), liquid.NewSample(20,
		liquid.Component{MoleculeDesign: 11, Concentration: 50000}))

	buffer := worklist.NewPlannedWorklist("prep_buffer", worklist.VariantDilution, biomek.Name)
	_ = buffer.Add(worklist.Dilution{Volume: 18, Target: geometry.MustParseLabel("A2"), DiluentInfo: "buffer"})

	dilution := worklist.NewPlannedWorklist("prep_dilution_1", worklist.VariantContainerTransfer, biomek.Name)
	_ = dilution.Add(worklist.ContainerTransfer{
		Volume: 2,
		Source: geometry.MustParseLabel("A1"),
		Target: geometry.MustParseLabel("A2"),
	})

	jobs := []*engine.Job{
		{Index: 0, Worklist: buffer, TargetRack: plate, PipettingSpecs: biomek},
		{Index: 1, Worklist: dilution, TargetRack: plate, SourceRack: plate, PipettingSpecs: biomek},
	}

	result, err := engine.NewDriver("operator").Run(context.Background(), engine.ModeExecute, jobs)
	if err != nil {
		for _, v := range errdefs.AsList(err) {
			fmt.Println(v.Code, v.Position)
		}
		return
	}

	a2, _ := plate.Container(geometry.MustParseLabel("A2"))
	fmt.Println(result.Run.Status, len(result.Executed))
	fmt.Printf("A2: %.1f µL at %.0f nM\n", a2.Sample.Volume, a2.Sample.Concentration(11))
	// Output:
	// succeeded 2
	// A2: 20.0 µL at 5000 nM
}
