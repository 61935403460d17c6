package engine

import (
	"fmt"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// stageRackTransfer registers one transfer per filled source container of
// the source sector.
func (s *staging) stageRackTransfer(rt worklist.RackSampleTransfer) error {
	src, tgt := s.job.SourceRack, s.job.TargetRack
	tr, err := rt.Translator(src.Shape, tgt.Shape)
	if err != nil {
		return err
	}
	if err := checkSectorAnchors(tr); err != nil {
		return err
	}

	intra := liquid.IsSameRack(src, tgt)
	if intra {
		tgt = src
	}
	dropOutside := intra || tr.Behaviour() == geometry.OneToMany

	var registered int
	for _, c := range src.Containers() {
		if c.Sample.IsEmpty() {
			continue
		}
		p := c.Position
		tp, err := tr.Translate(p)
		if err != nil {
			if dropOutside && errdefs.CodeOf(err) == errdefs.CodePositionOutOfSector {
				continue
			}
			return errdefs.AsList(err)[0].WithRack(src.Barcode)
		}
		if s.job.ignored(p) || s.job.ignored(tp) {
			continue
		}
		source, sourceOK := s.lookup(src, p)
		target, targetOK := s.lookup(tgt, tp)
		if !sourceOK || !targetOK {
			continue
		}
		if err := s.fill(target, s.drawFrom(source, rt.Volume), true); err != nil {
			return err
		}
		registered++
	}
	s.logger.WithRack(src.Barcode).Debugf("rack transfer %s registered %d positions (%s)",
		rt.String(), registered, tr.Behaviour())

	sourceBarcode, targetBarcode := src.Barcode, tgt.Barcode
	s.records = append(s.records, func(user string, ts time.Time) *worklist.ExecutedTransfer {
		return worklist.NewExecutedRackSampleTransfer(rt, sourceBarcode, targetBarcode, user, ts)
	})
	return nil
}

// checkSectorAnchors enforces that the 96-well side of a sector transfer
// is addressed as sector 0.
func checkSectorAnchors(tr *geometry.Translator) error {
	switch {
	case tr.Behaviour() == geometry.OneToMany && tr.TargetSector() != 0:
		return errdefs.NewGeometryError(errdefs.CodeShapeSectorMismatch,
			fmt.Sprintf("one-to-many transfers must target sector 0, got %d", tr.TargetSector()))
	case tr.Behaviour() == geometry.ManyToOne && tr.SourceSector() != 0:
		return errdefs.NewGeometryError(errdefs.CodeShapeSectorMismatch,
			fmt.Sprintf("many-to-one transfers must draw from sector 0, got %d", tr.SourceSector()))
	}
	return nil
}
