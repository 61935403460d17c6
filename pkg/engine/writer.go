package engine

import (
	"context"
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// Writer turns a job into an emission stream for a liquid handler. It runs
// the same checks as the executor and applies the job to the racks it is
// given, so the racks should be scratch copies.
type Writer struct {
	exec *Executor
}

// NewWriter creates a writer. Options apply to the underlying executor.
func NewWriter(user string, opts ...ExecutorOption) *Writer {
	return &Writer{exec: NewExecutor(user, opts...)}
}

// WriteResult is the outcome of a written job.
type WriteResult struct {
	// Stream is the emitted worklist.
	Stream *worklist.Stream

	// Warnings are non-blocking diagnostics of the job.
	Warnings []errdefs.Warning
}

// Write validates and applies the job, then renders the committed
// transfers as records. Dilutions above the instrument maximum are split
// into equal parts.
func (w *Writer) Write(ctx context.Context, job *Job) (*WriteResult, error) {
	res, err := w.exec.Execute(ctx, job)
	if err != nil {
		return nil, err
	}
	stream := &worklist.Stream{
		Index:          job.Index,
		Label:          job.Worklist.Label,
		Variant:        job.Worklist.Variant,
		PipettingSpecs: job.PipettingSpecs.Name,
	}
	var reservoir string
	if job.ReservoirSpecs != nil {
		reservoir = job.ReservoirSpecs.Name
	}

	for _, t := range res.Executed.Transfers {
		switch pt := t.Planned.(type) {
		case worklist.Dilution:
			for _, v := range splitVolume(pt.Volume, job.PipettingSpecs) {
				stream.Records = append(stream.Records, worklist.DilutionRecord{
					TargetRackBarcode:        t.Target.RackBarcode,
					TargetPosition:           t.Target.Position,
					VolumeUL:                 v,
					DiluentTag:               pt.DiluentInfo,
					SourceReservoirSpecsName: reservoir,
				})
			}
		case worklist.ContainerTransfer:
			stream.Records = append(stream.Records, worklist.ContainerTransferRecord{
				SourceRackBarcode: t.Source.RackBarcode,
				SourcePosition:    t.Source.Position,
				TargetRackBarcode: t.Target.RackBarcode,
				TargetPosition:    t.Target.Position,
				VolumeUL:          pt.Volume,
			})
		case worklist.RackSampleTransfer:
			stream.Records = append(stream.Records, worklist.RackSampleTransferRecord{
				SourceRackBarcode: t.SourceRack,
				TargetRackBarcode: t.TargetRack,
				SourceSectorIndex: pt.SourceSector,
				TargetSectorIndex: pt.TargetSector,
				SectorNumber:      pt.SectorNumber,
				VolumeUL:          pt.Volume,
			})
		default:
			return nil, errdefs.NewCommitError(fmt.Sprintf("cannot emit %s transfer", t.Variant()), nil)
		}
	}
	return &WriteResult{Stream: stream, Warnings: res.Warnings}, nil
}

// splitVolume divides volume into the fewest equal parts the instrument
// can pipette. The last part absorbs the rounding remainder.
func splitVolume(volume float64, specs *liquid.PipettingSpecs) []float64 {
	n := specs.SplitCount(volume)
	if n <= 1 {
		return []float64{volume}
	}
	part := liquid.RoundVolume(volume / float64(n))
	parts := make([]float64, n)
	rest := volume
	for i := 0; i < n-1; i++ {
		parts[i] = part
		rest -= part
	}
	parts[n-1] = liquid.RoundVolume(rest)
	return parts
}
