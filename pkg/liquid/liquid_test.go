package liquid

import (
	"errors"
	"math"
	"testing"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
)

func TestUnitConversion(t *testing.T) {
	if got := LitresToMicrolitres(0.00002); !IsEqual(got, 20) {
		t.Errorf("Expected 20 ul, got %f", got)
	}
	if got := MolarToNanomolar(0.00005); !IsEqual(got, 50000) {
		t.Errorf("Expected 50000 nM, got %f", got)
	}
	if got := MicrolitresToLitres(LitresToMicrolitres(0.5)); got != 0.5 {
		t.Errorf("Expected 0.5, got %f", got)
	}
	if got := RoundVolume(2.449); got != 2.4 {
		t.Errorf("Expected 2.4, got %f", got)
	}
	if got := RoundConcentration(3.14159); got != 3.14 {
		t.Errorf("Expected 3.14, got %f", got)
	}
}

func TestComparisons(t *testing.T) {
	if !IsEqual(1.0, 1.005) {
		t.Error("Expected values within epsilon to be equal")
	}
	if IsLarger(1.005, 1.0) {
		t.Error("Expected 1.005 not to be larger than 1.0")
	}
	if !IsLarger(1.02, 1.0) {
		t.Error("Expected 1.02 to be larger than 1.0")
	}
	if !IsSmaller(1.0, 1.02) {
		t.Error("Expected 1.0 to be smaller than 1.02")
	}
}

func TestSample_ZeroComponentsAreNotStored(t *testing.T) {
	s := NewSample(10, Component{MoleculeDesign: 1, Concentration: 50}, Component{MoleculeDesign: 2, Concentration: 0})
	if len(s.Components) != 1 {
		t.Fatalf("Expected 1 component, got %d", len(s.Components))
	}
	s.SetConcentration(1, 0)
	if len(s.Components) != 0 {
		t.Errorf("Expected no components, got %v", s.Components)
	}
	var empty *Sample
	if !empty.IsEmpty() || empty.Concentration(1) != 0 {
		t.Error("Expected nil sample to behave as empty")
	}
}

func TestSourceSample(t *testing.T) {
	src := NewSourceSample(NewSample(15, Component{MoleculeDesign: 7, Concentration: 100}))
	payload := src.CreateTransfer(3)
	src.CreateTransfer(4)

	if payload.Components[7] != 100 {
		t.Errorf("Expected payload to inherit components, got %v", payload.Components)
	}
	if !IsEqual(src.TotalTransferVolume(), 7) {
		t.Errorf("Expected total 7, got %f", src.TotalTransferVolume())
	}
	if !IsEqual(src.FinalVolume(), 8) {
		t.Errorf("Expected final volume 8, got %f", src.FinalVolume())
	}
	if src.Underflows(5) {
		t.Error("Expected 7 + 5 <= 15 to pass")
	}
	if !src.Underflows(10) {
		t.Error("Expected 7 + 10 > 15 to underflow")
	}
}

func TestTargetSample_Mixing(t *testing.T) {
	target := NewTargetSample(NewSample(18))
	src := NewSourceSample(NewSample(20, Component{MoleculeDesign: 1, Concentration: 50000}))
	if err := target.AddTransfer(src.CreateTransfer(2)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !IsEqual(target.FinalVolume(), 20) {
		t.Errorf("Expected 20 ul, got %f", target.FinalVolume())
	}
	if got := target.FinalComponents()[1]; !IsEqual(got, 5000) {
		t.Errorf("Expected 5000 nM, got %f", got)
	}
}

func TestTargetSample_MixingBothSides(t *testing.T) {
	target := NewTargetSample(NewSample(10, Component{MoleculeDesign: 1, Concentration: 30}))
	in := &TransferredSample{Volume: 20, Components: map[MoleculeDesignID]float64{1: 60, 2: 15}}
	if err := target.AddTransfer(in); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	final := target.FinalComponents()
	if !IsEqual(final[1], 50) {
		t.Errorf("Expected md1 at 50 nM, got %f", final[1])
	}
	if !IsEqual(final[2], 10) {
		t.Errorf("Expected md2 at 10 nM, got %f", final[2])
	}
}

func TestTargetSample_SecondTransferIsRejected(t *testing.T) {
	target := NewTargetSample(nil)
	if err := target.AddTransfer(NewDilutionPayload(5)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	err := target.AddTransfer(NewDilutionPayload(5))
	if !errors.Is(err, errdefs.ErrCommitFailed) {
		t.Fatalf("Expected CommitFailed, got %v", err)
	}
}

func TestTransfer_MassBalance(t *testing.T) {
	source := NewSample(50, Component{MoleculeDesign: 3, Concentration: 1000})
	target := NewSample(40, Component{MoleculeDesign: 3, Concentration: 200})
	before := source.Concentration(3)*source.Volume + target.Concentration(3)*target.Volume

	src := NewSourceSample(source)
	trg := NewTargetSample(target)
	if err := trg.AddTransfer(src.CreateTransfer(10)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	srcFinal := src.FinalSample()
	trgFinal := trg.FinalSample()
	after := srcFinal.Concentration(3)*srcFinal.Volume + trgFinal.Concentration(3)*trgFinal.Volume

	if math.Abs(before-after) > Epsilon*trgFinal.Volume {
		t.Errorf("Expected mass %f, got %f", before, after)
	}
	if !IsEqual(srcFinal.Volume+trgFinal.Volume, source.Volume+target.Volume) {
		t.Errorf("Expected total volume to be conserved")
	}
}

func TestNewPlate(t *testing.T) {
	specs := &ContainerSpecs{Name: WellSpecs96Std, MaxVolume: 300, DeadVolume: 5}
	plate, err := NewPlate("P1", geometry.Shape96, specs, StatusFuture)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(plate.Containers()) != 96 {
		t.Fatalf("Expected 96 wells, got %d", len(plate.Containers()))
	}
	if plate.Containers()[0].Position.Label() != "A1" {
		t.Errorf("Expected first well A1, got %s", plate.Containers()[0].Position)
	}
	if _, err := NewPlate("", geometry.Shape96, specs, StatusFuture); err == nil {
		t.Error("Expected error for missing barcode")
	}
}

func TestTubeRack_AddTube(t *testing.T) {
	specs := &ContainerSpecs{Name: TubeSpecsMatrix, MaxVolume: 500, DeadVolume: 5}
	rack, err := NewTubeRack("R1", geometry.Shape96, StatusManaged)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := rack.AddTube(geometry.MustParseLabel("B3"), "T1", specs, StatusManaged); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_, err = rack.AddTube(geometry.MustPosition(8, 0), "T2", specs, StatusManaged)
	if !errors.Is(err, &errdefs.Error{Class: errdefs.ClassInputValidation, Code: errdefs.CodePositionOutOfShape}) {
		t.Errorf("Expected PositionOutOfShape, got %v", err)
	}
	if _, ok := rack.Container(geometry.MustParseLabel("A1")); ok {
		t.Error("Expected no tube at A1")
	}
}

func TestRack_CloneAndCopyState(t *testing.T) {
	specs := &ContainerSpecs{Name: WellSpecs96Std, MaxVolume: 300, DeadVolume: 5}
	plate, _ := NewPlate("P1", geometry.Shape96, specs, StatusFuture)
	a1 := geometry.MustParseLabel("A1")
	original, _ := plate.Container(a1)

	clone := plate.Clone()
	if err := clone.SetSample(a1, NewSample(20, Component{MoleculeDesign: 1, Concentration: 10})); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	clone.Status = StatusManaged
	if original.Sample != nil {
		t.Fatal("Expected clone mutation not to leak into the original")
	}

	if err := plate.CopyStateFrom(clone); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if original.Volume() != 20 || plate.Status != StatusManaged {
		t.Errorf("Expected copied state, got volume %f status %s", original.Volume(), plate.Status)
	}
}

func TestReservoirSpecs_DeadVolume(t *testing.T) {
	r := &ReservoirSpecs{Name: "trough", MaxVolume: 100000, MinDeadVolume: 10, MaxDeadVolume: 30}
	tests := []struct {
		targets int
		dynamic bool
		want    float64
	}{
		{5, true, 10},
		{20, true, 20},
		{96, true, 30},
		{5, false, 30},
	}
	for _, tt := range tests {
		if got := r.DeadVolume(tt.targets, tt.dynamic); got != tt.want {
			t.Errorf("DeadVolume(%d, %v): Expected %f, got %f", tt.targets, tt.dynamic, tt.want, got)
		}
	}
}

func TestPipettingSpecs(t *testing.T) {
	specs := StandardCatalogue().Pipetting[PipettingSpecsBiomek]
	if !specs.BelowMin(1.5) || specs.BelowMin(2) {
		t.Error("Unexpected minimum check")
	}
	if got := specs.SplitCount(200); got != 1 {
		t.Errorf("Expected 1 transfer, got %d", got)
	}
	if got := specs.SplitCount(600); got != 3 {
		t.Errorf("Expected 3 transfers, got %d", got)
	}
}

func TestCatalogue_Validate(t *testing.T) {
	c := StandardCatalogue()
	if err := c.Validate(); err != nil {
		t.Fatalf("Expected standard catalogue to validate, got %v", err)
	}
	c.Pipetting["broken"] = &PipettingSpecs{Name: "broken", MinTransferVolume: 10, MaxTransferVolume: 5, MaxDilutionFactor: 1}
	if err := c.Validate(); err == nil {
		t.Error("Expected error for min > max")
	}
	if _, err := c.PipettingSpecs("unknown"); err == nil {
		t.Error("Expected error for unknown specs")
	}
}
