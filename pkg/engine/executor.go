package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// Job is one worklist of a run together with the labware it acts on.
type Job struct {
	// Index orders the job within its run. Indices are unique per run.
	Index int `json:"index"`

	// Worklist is the planned worklist to execute.
	Worklist *worklist.PlannedWorklist `json:"-"`

	// TargetRack receives the liquid.
	TargetRack *liquid.Rack `json:"-"`

	// SourceRack provides the liquid of container and rack sample
	// transfers. It may be the target rack itself.
	SourceRack *liquid.Rack `json:"-"`

	// PipettingSpecs constrain every transfer of the worklist.
	PipettingSpecs *liquid.PipettingSpecs `json:"-"`

	// ReservoirSpecs describe the diluent reservoir of dilution jobs.
	ReservoirSpecs *liquid.ReservoirSpecs `json:"-"`

	// IgnoredPositions are skipped when they are the target or source of
	// a transfer.
	IgnoredPositions geometry.PositionSet `json:"-"`
}

// Validate checks that the job carries everything its variant needs.
func (j *Job) Validate() error {
	if j.Index < 0 {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("invalid job index %d", j.Index))
	}
	if j.Worklist == nil {
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("job %d has no worklist", j.Index))
	}
	if err := j.Worklist.Variant.Validate(); err != nil {
		return err
	}
	if j.TargetRack == nil {
		return errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("job %d (%s) has no target rack", j.Index, j.Worklist.Label))
	}
	if j.Worklist.Variant != worklist.VariantDilution && j.SourceRack == nil {
		return errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("job %d (%s) requires a source rack for %s worklists", j.Index, j.Worklist.Label, j.Worklist.Variant))
	}
	if j.PipettingSpecs == nil {
		return errdefs.NewInputError(errdefs.CodeInvalidInput,
			fmt.Sprintf("job %d (%s) has no pipetting specs", j.Index, j.Worklist.Label))
	}
	if err := j.PipettingSpecs.Validate(); err != nil {
		return err
	}
	if j.ReservoirSpecs != nil {
		if err := j.ReservoirSpecs.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) ignored(p geometry.Position) bool {
	return j.IgnoredPositions != nil && j.IgnoredPositions.Contains(p)
}

// Result is the outcome of a committed job.
type Result struct {
	// Executed is the committed worklist record.
	Executed *worklist.ExecutedWorklist

	// Warnings are non-blocking diagnostics of the job.
	Warnings []errdefs.Warning
}

// Executor validates a worklist against rack state and commits it. All
// transfers are checked before anything is written.
type Executor struct {
	user string
	now  func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock overrides the timestamp source of executed records.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor that records transfers as user.
func NewExecutor(user string, opts ...ExecutorOption) *Executor {
	e := &Executor{user: user, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute stages every transfer of the job, validates the staged state and
// commits it into the job's racks. On any violation it returns an
// errdefs.List with all violations and leaves the racks unchanged.
func (e *Executor) Execute(ctx context.Context, job *Job) (*Result, error) {
	s, err := e.stage(ctx, job)
	if err != nil {
		return nil, err
	}
	return e.commit(ctx, s)
}

// containerKey identifies a container across racks.
type containerKey struct {
	rack     string
	position geometry.Position
}

// stagedContainer is the staged state of one container. A container can
// be drawn from and filled within the same job.
type stagedContainer struct {
	rack      *liquid.Rack
	container *liquid.Container
	source    *liquid.SourceSample
	target    *liquid.TargetSample
	// fed is set when the incoming transfer came from another container.
	fed bool
}

// final returns the end state of the container. Outgoing transfers are
// applied before the incoming one.
func (c *stagedContainer) final() *liquid.Sample {
	switch {
	case c.target == nil && c.source == nil:
		return c.container.Sample.Clone()
	case c.target == nil:
		return c.source.FinalSample()
	case c.source == nil:
		return c.target.FinalSample()
	}
	t := liquid.NewTargetSample(c.source.FinalSample())
	if err := t.AddTransfer(c.target.Incoming()); err != nil {
		return c.target.FinalSample()
	}
	return t.FinalSample()
}

func (c *stagedContainer) finalVolume() float64 {
	if s := c.final(); s != nil {
		return s.Volume
	}
	return 0
}

func (c *stagedContainer) ref() worklist.ContainerRef {
	return worklist.ContainerRef{
		RackBarcode: c.rack.Barcode,
		Position:    c.container.Position.Label(),
		TubeBarcode: c.container.Barcode,
	}
}

// recordFunc builds the executed record of a staged transfer at commit.
type recordFunc func(user string, ts time.Time) *worklist.ExecutedTransfer

// staging is the build phase state of one job.
type staging struct {
	job       *Job
	logger    *telemetry.Logger
	order     []*stagedContainer
	index     map[containerKey]*stagedContainer
	records   []recordFunc
	errs      errdefs.List
	warnings  []errdefs.Warning
	dilutions int
	buffer    float64
}

func newStaging(ctx context.Context, job *Job) *staging {
	return &staging{
		job:    job,
		logger: telemetry.FromContext(ctx).NewComponentLogger("executor"),
		index:  make(map[containerKey]*stagedContainer),
	}
}

// lookup returns the staged container at p in rack, staging it on first
// use. A missing container is recorded as ContainerMissing.
func (s *staging) lookup(rack *liquid.Rack, p geometry.Position) (*stagedContainer, bool) {
	key := containerKey{rack: rack.Barcode, position: p}
	if sc, ok := s.index[key]; ok {
		return sc, true
	}
	c, ok := rack.Container(p)
	if !ok {
		s.errs.Add(errdefs.NewTransferViolation(errdefs.CodeContainerMissing, "no container at position").
			WithRack(rack.Barcode).WithPosition(p.Label()))
		return nil, false
	}
	sc := &stagedContainer{rack: rack, container: c}
	s.index[key] = sc
	s.order = append(s.order, sc)
	return sc, true
}

func (s *staging) drawFrom(sc *stagedContainer, volume float64) *liquid.TransferredSample {
	if sc.source == nil {
		sc.source = liquid.NewSourceSample(sc.container.Sample)
	}
	return sc.source.CreateTransfer(volume)
}

func (s *staging) fill(sc *stagedContainer, payload *liquid.TransferredSample, fed bool) error {
	if sc.target == nil {
		sc.target = liquid.NewTargetSample(sc.container.Sample)
	}
	if err := sc.target.AddTransfer(payload); err != nil {
		return errdefs.AsList(err)[0].WithRack(sc.rack.Barcode).WithPosition(sc.container.Position.Label())
	}
	sc.fed = fed
	return nil
}

func (e *Executor) stage(ctx context.Context, job *Job) (*staging, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	s := newStaging(ctx, job)
	specs := job.PipettingSpecs

	for i, t := range job.Worklist.Transfers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.Variant() != job.Worklist.Variant {
			s.errs.Add(errdefs.NewTransferViolation(errdefs.CodeTransferVariantMismatch,
				fmt.Sprintf("transfer %d is a %s, worklist %q holds %s transfers",
					i, t.Variant(), job.Worklist.Label, job.Worklist.Variant)))
			continue
		}
		if !e.checkVolume(s, specs, t) {
			continue
		}

		var err error
		switch pt := t.(type) {
		case worklist.Dilution:
			err = s.stageDilution(pt)
		case worklist.ContainerTransfer:
			err = s.stageContainerTransfer(pt)
		case worklist.RackSampleTransfer:
			err = s.stageRackTransfer(pt)
		}
		if err != nil {
			return nil, err
		}
	}

	s.sweep()
	if s.errs.Len() > 0 {
		s.logger.WithFields(map[string]interface{}{
			"worklist":   job.Worklist.Label,
			"violations": s.errs.Len(),
		}).Debug("staging failed")
		return nil, s.errs
	}
	return s, nil
}

// checkVolume reports whether t passed the instrument range check.
// Dilutions above the maximum pass with a split warning.
func (e *Executor) checkVolume(s *staging, specs *liquid.PipettingSpecs, t worklist.PlannedTransfer) bool {
	volume := t.TransferVolume()
	if specs.InRange(volume) {
		return true
	}
	d, isDilution := t.(worklist.Dilution)
	if isDilution && !specs.BelowMin(volume) {
		s.warnings = append(s.warnings, errdefs.Warning{
			Code: errdefs.WarnDilutionSplit,
			Message: fmt.Sprintf("dilution of %.1f µL exceeds %.1f µL and will be split into %d transfers",
				volume, specs.MaxTransferVolume, specs.SplitCount(volume)),
			Position: d.Target.Label(),
			Rack:     s.job.TargetRack.Barcode,
		})
		return true
	}
	s.errs.Add(errdefs.NewTransferViolation(errdefs.CodeTransferVolumeOutOfRange,
		fmt.Sprintf("transfer volume %.1f µL outside [%.1f, %.1f] µL for %s",
			volume, specs.MinTransferVolume, specs.MaxTransferVolume, specs.Name)).
		WithDetail("transfer", t.String()))
	return false
}

func (s *staging) stageDilution(d worklist.Dilution) error {
	if s.job.ignored(d.Target) {
		s.logger.Debugf("skipping ignored position %s", d.Target.Label())
		return nil
	}
	target, ok := s.lookup(s.job.TargetRack, d.Target)
	if !ok {
		return nil
	}
	if err := s.fill(target, liquid.NewDilutionPayload(d.Volume), false); err != nil {
		return err
	}
	s.dilutions++
	s.buffer += d.Volume
	s.records = append(s.records, func(user string, ts time.Time) *worklist.ExecutedTransfer {
		return worklist.NewExecutedDilution(d, target.ref(), user, ts)
	})
	return nil
}

func (s *staging) stageContainerTransfer(ct worklist.ContainerTransfer) error {
	if s.job.ignored(ct.Target) || s.job.ignored(ct.Source) {
		s.logger.Debugf("skipping ignored transfer %s -> %s", ct.Source.Label(), ct.Target.Label())
		return nil
	}
	source, sourceOK := s.lookup(s.job.SourceRack, ct.Source)
	target, targetOK := s.lookup(s.job.TargetRack, ct.Target)
	if !sourceOK || !targetOK {
		return nil
	}
	if err := s.fill(target, s.drawFrom(source, ct.Volume), true); err != nil {
		return err
	}
	s.records = append(s.records, func(user string, ts time.Time) *worklist.ExecutedTransfer {
		return worklist.NewExecutedContainerTransfer(ct, source.ref(), target.ref(), user, ts)
	})
	return nil
}

// sweep checks the staged end state of every container.
func (s *staging) sweep() {
	for _, sc := range s.order {
		label := sc.container.Position.Label()
		specs := sc.container.Specs
		if sc.source != nil && specs != nil && sc.source.Underflows(specs.DeadVolume) {
			s.errs.Add(errdefs.NewTransferViolation(errdefs.CodeSourceUnderflow,
				fmt.Sprintf("source holds %.1f µL, transfers need %.1f µL plus %.1f µL dead volume",
					sc.source.InitialVolume(), sc.source.TotalTransferVolume(), specs.DeadVolume)).
				WithRack(sc.rack.Barcode).WithPosition(label))
		}
		if sc.target == nil {
			continue
		}
		final := sc.finalVolume()
		if specs != nil && liquid.IsLarger(final, specs.MaxVolume) {
			s.errs.Add(errdefs.NewTransferViolation(errdefs.CodeTargetOverflow,
				fmt.Sprintf("final volume %.1f µL exceeds the maximum of %.1f µL", final, specs.MaxVolume)).
				WithRack(sc.rack.Barcode).WithPosition(label))
		}
		s.checkDilutionFactor(sc, final)
	}
	s.checkReservoir()
}

func (s *staging) checkDilutionFactor(sc *stagedContainer, final float64) {
	maxFactor := s.job.PipettingSpecs.MaxDilutionFactor
	in := sc.target.Incoming()
	if !sc.fed || maxFactor <= 0 || in == nil || liquid.IsZero(in.Volume) {
		return
	}
	if factor := final / in.Volume; liquid.IsLarger(factor, maxFactor) {
		s.warnings = append(s.warnings, errdefs.Warning{
			Code: errdefs.WarnDilutionFactorExceeded,
			Message: fmt.Sprintf("dilution factor %.1f exceeds the maximum of %.1f for %s",
				factor, maxFactor, s.job.PipettingSpecs.Name),
			Position: sc.container.Position.Label(),
			Rack:     sc.rack.Barcode,
		})
	}
}

func (s *staging) checkReservoir() {
	res := s.job.ReservoirSpecs
	if res == nil || s.dilutions == 0 {
		return
	}
	dead := res.DeadVolume(s.dilutions, s.job.PipettingSpecs.HasDynamicDeadVolume)
	if needed := s.buffer + dead; liquid.IsLarger(needed, res.MaxVolume) {
		s.warnings = append(s.warnings, errdefs.Warning{
			Code: errdefs.WarnReservoirCapacity,
			Message: fmt.Sprintf("%.1f µL of diluent plus %.1f µL dead volume exceed the %.1f µL of a %s",
				s.buffer, dead, res.MaxVolume, res.Name),
			Rack: s.job.TargetRack.Barcode,
		})
	}
}

// commit writes the staged state into the racks. Records are built first
// so a record error leaves the racks unchanged.
func (e *Executor) commit(ctx context.Context, s *staging) (*Result, error) {
	job := s.job
	ts := e.now()
	executed := worklist.NewExecutedWorklist(job.Worklist, e.user, ts)
	for _, build := range s.records {
		if err := executed.Add(build(e.user, ts)); err != nil {
			return nil, err
		}
	}

	for _, sc := range s.order {
		final := sc.final()
		sc.container.Sample = final
		if sc.target != nil && final != nil && sc.container.Status == liquid.StatusFuture {
			sc.container.Status = liquid.StatusManaged
		}
	}
	if job.TargetRack.Status == liquid.StatusFuture {
		job.TargetRack.Status = liquid.StatusManaged
	}

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		for _, t := range executed.Transfers {
			tel.Metrics.RecordTransfer(string(t.Variant()), t.Planned.TransferVolume())
		}
	}
	s.logger.WithRack(job.TargetRack.Barcode).Debugf("committed %d transfers of %q (%.1f µL)",
		len(executed.Transfers), job.Worklist.Label, executed.TotalVolume())
	return &Result{Executed: executed, Warnings: s.warnings}, nil
}
