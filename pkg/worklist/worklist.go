package worklist

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// PlannedWorklist is an ordered list of planned transfers of one variant.
type PlannedWorklist struct {
	// Label is the human-readable worklist name.
	Label string

	// Variant is the variant shared by all transfers.
	Variant Variant

	// PipettingSpecs names the instrument the worklist is planned for.
	PipettingSpecs string

	// Transfers are the planned transfers in emission order.
	Transfers []PlannedTransfer
}

// NewPlannedWorklist creates an empty worklist.
func NewPlannedWorklist(label string, variant Variant, pipettingSpecs string) *PlannedWorklist {
	return &PlannedWorklist{Label: label, Variant: variant, PipettingSpecs: pipettingSpecs}
}

// Add appends a transfer. The transfer must match the worklist variant.
func (w *PlannedWorklist) Add(t PlannedTransfer) error {
	if t.Variant() != w.Variant {
		return errdefs.NewTransferViolation(errdefs.CodeTransferVariantMismatch,
			fmt.Sprintf("cannot add %s transfer to %s worklist %q", t.Variant(), w.Variant, w.Label))
	}
	w.Transfers = append(w.Transfers, t)
	return nil
}

// Len returns the number of planned transfers.
func (w *PlannedWorklist) Len() int { return len(w.Transfers) }

// TotalVolume sums the transfer volumes.
func (w *PlannedWorklist) TotalVolume() float64 {
	var total float64
	for _, t := range w.Transfers {
		total += t.TransferVolume()
	}
	return total
}

// Validate checks the variant and that every member shares it.
func (w *PlannedWorklist) Validate() error {
	if err := w.Variant.Validate(); err != nil {
		return err
	}
	var errs errdefs.List
	for i, t := range w.Transfers {
		if t.Variant() != w.Variant {
			errs.Add(errdefs.NewTransferViolation(errdefs.CodeTransferVariantMismatch,
				fmt.Sprintf("transfer %d is %s in %s worklist %q", i, t.Variant(), w.Variant, w.Label)))
		}
		if t.TransferVolume() <= 0 {
			errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput,
				fmt.Sprintf("transfer %d of worklist %q has non-positive volume", i, w.Label)))
		}
	}
	return errs.Err()
}

// Series is a dense, zero-indexed sequence of planned worklists.
type Series struct {
	worklists []*PlannedWorklist
}

// NewSeries creates an empty series.
func NewSeries() *Series {
	return &Series{}
}

// Add appends a worklist and returns its index.
func (s *Series) Add(w *PlannedWorklist) int {
	s.worklists = append(s.worklists, w)
	return len(s.worklists) - 1
}

// Get returns the worklist at index.
func (s *Series) Get(index int) (*PlannedWorklist, bool) {
	if index < 0 || index >= len(s.worklists) {
		return nil, false
	}
	return s.worklists[index], true
}

// Len returns the number of worklists.
func (s *Series) Len() int { return len(s.worklists) }

// Worklists returns the worklists in index order.
func (s *Series) Worklists() []*PlannedWorklist {
	out := make([]*PlannedWorklist, len(s.worklists))
	copy(out, s.worklists)
	return out
}

// Validate validates every worklist of the series.
func (s *Series) Validate() error {
	var errs errdefs.List
	for _, w := range s.worklists {
		if err := w.Validate(); err != nil {
			errs = append(errs, errdefs.AsList(err)...)
		}
	}
	return errs.Err()
}
