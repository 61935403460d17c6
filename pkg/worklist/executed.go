package worklist

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// ContainerRef points at a concrete container.
type ContainerRef struct {
	// RackBarcode is the barcode of the rack holding the container.
	RackBarcode string `json:"rack_barcode"`

	// Position is the position label within the rack.
	Position string `json:"position"`

	// TubeBarcode is set for tubes.
	TubeBarcode string `json:"tube_barcode,omitempty"`
}

func (r ContainerRef) String() string {
	return r.RackBarcode + ":" + r.Position
}

// ExecutedTransfer records one committed planned transfer.
type ExecutedTransfer struct {
	// ID is the unique identifier of the record.
	ID uuid.UUID `json:"id"`

	// Planned is the planned transfer that was executed.
	Planned PlannedTransfer `json:"-"`

	// Source is the source container. Unset for dilutions and rack transfers.
	Source *ContainerRef `json:"source,omitempty"`

	// Target is the target container. Unset for rack transfers.
	Target *ContainerRef `json:"target,omitempty"`

	// SourceRack is the source rack of a rack sample transfer.
	SourceRack string `json:"source_rack,omitempty"`

	// TargetRack is the target rack of a rack sample transfer.
	TargetRack string `json:"target_rack,omitempty"`

	// User is the user who executed the transfer.
	User string `json:"user"`

	// Timestamp is when the transfer was committed.
	Timestamp time.Time `json:"timestamp"`
}

// Variant returns the variant of the planned transfer.
func (e *ExecutedTransfer) Variant() Variant {
	return e.Planned.Variant()
}

// NewExecutedDilution records a committed dilution.
func NewExecutedDilution(planned Dilution, target ContainerRef, user string, ts time.Time) *ExecutedTransfer {
	return &ExecutedTransfer{ID: uuid.New(), Planned: planned, Target: &target, User: user, Timestamp: ts}
}

// NewExecutedContainerTransfer records a committed container transfer.
func NewExecutedContainerTransfer(planned ContainerTransfer, source, target ContainerRef, user string, ts time.Time) *ExecutedTransfer {
	return &ExecutedTransfer{
		ID: uuid.New(), Planned: planned, Source: &source, Target: &target, User: user, Timestamp: ts,
	}
}

// NewExecutedRackSampleTransfer records a committed rack sample transfer.
func NewExecutedRackSampleTransfer(planned RackSampleTransfer, sourceRack, targetRack, user string, ts time.Time) *ExecutedTransfer {
	return &ExecutedTransfer{
		ID: uuid.New(), Planned: planned, SourceRack: sourceRack, TargetRack: targetRack, User: user, Timestamp: ts,
	}
}

// ExecutedWorklist records a committed planned worklist.
type ExecutedWorklist struct {
	// ID is the unique identifier of the record.
	ID uuid.UUID `json:"id"`

	// Planned is the worklist that was executed.
	Planned *PlannedWorklist `json:"-"`

	// Transfers are the committed transfers in execution order.
	Transfers []*ExecutedTransfer `json:"transfers"`

	// User is the user who executed the worklist.
	User string `json:"user"`

	// Timestamp is when the worklist was committed.
	Timestamp time.Time `json:"timestamp"`
}

// NewExecutedWorklist creates an empty record for planned.
func NewExecutedWorklist(planned *PlannedWorklist, user string, ts time.Time) *ExecutedWorklist {
	return &ExecutedWorklist{ID: uuid.New(), Planned: planned, User: user, Timestamp: ts}
}

// Add appends an executed transfer. Its variant must match the planned
// worklist.
func (e *ExecutedWorklist) Add(t *ExecutedTransfer) error {
	if t.Variant() != e.Planned.Variant {
		return errdefs.NewCommitError(
			fmt.Sprintf("executed %s transfer does not match %s worklist %q", t.Variant(), e.Planned.Variant, e.Planned.Label), nil)
	}
	e.Transfers = append(e.Transfers, t)
	return nil
}

// TotalVolume sums the committed transfer volumes.
func (e *ExecutedWorklist) TotalVolume() float64 {
	var total float64
	for _, t := range e.Transfers {
		total += t.Planned.TransferVolume()
	}
	return total
}
