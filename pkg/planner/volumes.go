package planner

import (
	"errors"
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// StockTakeOut returns the stock volume needed to prepare volume at conc
// from a stock at stockConc, rounded to 0.1 µL.
func StockTakeOut(volume, conc, stockConc float64) float64 {
	return liquid.RoundVolume(volume * conc / stockConc)
}

// DonationVolume returns the volume a parent at parentConc donates to
// prepare volume at conc, rounded to 0.1 µL.
func DonationVolume(volume, conc, parentConc float64) float64 {
	return liquid.RoundVolume(volume / (parentConc / conc))
}

// BufferVolume returns the buffer volume completing donated to volume.
func BufferVolume(volume, donated float64) float64 {
	return liquid.RoundVolume(volume - donated)
}

// collector gathers transfer violations and warnings while worklists are
// assembled.
type collector struct {
	errs     errdefs.List
	warnings []errdefs.Warning
}

// addBuffer appends a buffer dilution. Zero volumes are skipped.
func (c *collector) addBuffer(w *worklist.PlannedWorklist, specs *liquid.PipettingSpecs,
	target geometry.Position, volume float64, diluent string) {
	if liquid.IsZero(volume) {
		return
	}
	label := target.Label()
	if specs.BelowMin(volume) {
		c.errs.Add(errdefs.NewTransferViolation(errdefs.CodeBufferVolumeTooSmall,
			fmt.Sprintf("buffer volume %.1f µL is below the minimum of %.1f µL for %s",
				volume, specs.MinTransferVolume, specs.Name)).
			WithPosition(label).WithDetail("volume", volume))
		return
	}
	if specs.AboveMax(volume) {
		msg := fmt.Sprintf("buffer volume %.1f µL exceeds %.1f µL and will be split into %d transfers",
			volume, specs.MaxTransferVolume, specs.SplitCount(volume))
		c.warnings = append(c.warnings, errdefs.Warning{Code: errdefs.WarnDilutionSplit, Message: msg, Position: label})
	}
	c.add(w, worklist.Dilution{Volume: volume, Target: target, DiluentInfo: diluent})
}

// addTransfer appends a transfer after checking its volume.
func (c *collector) addTransfer(w *worklist.PlannedWorklist, specs *liquid.PipettingSpecs,
	t worklist.PlannedTransfer, label string) {
	volume := t.TransferVolume()
	if !specs.InRange(volume) {
		c.errs.Add(errdefs.NewTransferViolation(errdefs.CodeTransferVolumeOutOfRange,
			fmt.Sprintf("transfer volume %.1f µL outside [%.1f, %.1f] µL for %s",
				volume, specs.MinTransferVolume, specs.MaxTransferVolume, specs.Name)).
			WithPosition(label).WithDetail("volume", volume))
		return
	}
	c.add(w, t)
}

func (c *collector) add(w *worklist.PlannedWorklist, t worklist.PlannedTransfer) {
	if err := w.Add(t); err != nil {
		var e *errdefs.Error
		if errors.As(err, &e) {
			c.errs.Add(e)
		}
	}
}
