package liquid

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// TransferredSample is liquid in flight between two containers. Dilutions
// carry no components.
type TransferredSample struct {
	Volume     float64
	Components map[MoleculeDesignID]float64
}

// NewDilutionPayload creates a component-free payload of the given volume.
func NewDilutionPayload(volume float64) *TransferredSample {
	return &TransferredSample{Volume: volume, Components: map[MoleculeDesignID]float64{}}
}

// SourceSample stages outgoing transfers from a container. Components are
// never changed by drawing liquid.
type SourceSample struct {
	volume     float64
	components map[MoleculeDesignID]float64
	transfers  []*TransferredSample
}

// NewSourceSample stages s as a source. A nil sample stages an empty one.
func NewSourceSample(s *Sample) *SourceSample {
	src := &SourceSample{components: map[MoleculeDesignID]float64{}}
	if s != nil {
		src.volume = s.Volume
		src.components = copyComponents(s.Components)
	}
	return src
}

// InitialVolume returns the volume before any staged transfer.
func (s *SourceSample) InitialVolume() float64 { return s.volume }

// CreateTransfer records an outgoing transfer and returns its payload, which
// inherits the source components.
func (s *SourceSample) CreateTransfer(volume float64) *TransferredSample {
	t := &TransferredSample{Volume: volume, Components: copyComponents(s.components)}
	s.transfers = append(s.transfers, t)
	return t
}

// TransferCount returns the number of staged outgoing transfers.
func (s *SourceSample) TransferCount() int { return len(s.transfers) }

// TotalTransferVolume sums the staged outgoing volumes.
func (s *SourceSample) TotalTransferVolume() float64 {
	var total float64
	for _, t := range s.transfers {
		total += t.Volume
	}
	return total
}

// FinalVolume returns the volume left after all staged transfers.
func (s *SourceSample) FinalVolume() float64 {
	return RoundVolume(s.volume - s.TotalTransferVolume())
}

// FinalSample returns the staged end state, or nil when nothing is left.
func (s *SourceSample) FinalSample() *Sample {
	v := s.FinalVolume()
	if IsZero(v) || v < 0 {
		return nil
	}
	return &Sample{Volume: v, Components: copyComponents(s.components)}
}

// Underflows reports whether the staged transfers would draw into the dead
// volume.
func (s *SourceSample) Underflows(deadVolume float64) bool {
	return IsLarger(s.TotalTransferVolume()+deadVolume, s.volume)
}

// TargetSample stages the single incoming transfer of a container.
type TargetSample struct {
	volume     float64
	components map[MoleculeDesignID]float64
	incoming   *TransferredSample
}

// NewTargetSample stages s as a target. A nil sample stages an empty one.
func NewTargetSample(s *Sample) *TargetSample {
	t := &TargetSample{components: map[MoleculeDesignID]float64{}}
	if s != nil {
		t.volume = s.Volume
		t.components = copyComponents(s.Components)
	}
	return t
}

// AddTransfer registers the incoming payload. A target accepts exactly one.
func (t *TargetSample) AddTransfer(in *TransferredSample) error {
	if t.incoming != nil {
		return errdefs.NewCommitError(
			fmt.Sprintf("target already has an incoming transfer of %.1f ul", t.incoming.Volume), nil)
	}
	t.incoming = in
	return nil
}

// Incoming returns the registered payload, if any.
func (t *TargetSample) Incoming() *TransferredSample { return t.incoming }

// InitialVolume returns the volume before the staged transfer.
func (t *TargetSample) InitialVolume() float64 { return t.volume }

// FinalVolume returns the volume after the staged transfer.
func (t *TargetSample) FinalVolume() float64 {
	if t.incoming == nil {
		return t.volume
	}
	return RoundVolume(t.volume + t.incoming.Volume)
}

// FinalComponents mixes the target and transfer components. A component
// absent on one side counts as zero there.
func (t *TargetSample) FinalComponents() map[MoleculeDesignID]float64 {
	if t.incoming == nil {
		return copyComponents(t.components)
	}
	final := t.FinalVolume()
	out := make(map[MoleculeDesignID]float64)
	if IsZero(final) {
		return out
	}
	ids := make(map[MoleculeDesignID]struct{}, len(t.components)+len(t.incoming.Components))
	for md := range t.components {
		ids[md] = struct{}{}
	}
	for md := range t.incoming.Components {
		ids[md] = struct{}{}
	}
	for md := range ids {
		mass := t.components[md]*t.volume + t.incoming.Components[md]*t.incoming.Volume
		conc := RoundConcentration(mass / final)
		if !IsZero(conc) {
			out[md] = conc
		}
	}
	return out
}

// FinalSample returns the staged end state, or nil when the container ends
// up empty.
func (t *TargetSample) FinalSample() *Sample {
	v := t.FinalVolume()
	if IsZero(v) {
		return nil
	}
	return &Sample{Volume: v, Components: t.FinalComponents()}
}

// Overflows reports whether the final volume exceeds maxVolume.
func (t *TargetSample) Overflows(maxVolume float64) bool {
	return IsLarger(t.FinalVolume(), maxVolume)
}
