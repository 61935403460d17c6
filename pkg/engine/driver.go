package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// Run describes one pass of the driver over a job list.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// Mode is the run mode.
	Mode Mode `json:"mode"`

	// Status is the current status of the run.
	Status RunStatus `json:"status"`

	// User is the user who started the run.
	User string `json:"user"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// FailedJob is the index of the aborted job, or -1.
	FailedJob int `json:"failed_job"`

	// Summary provides statistics about the run.
	Summary RunSummary `json:"summary"`
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the number of jobs.
	Total int `json:"total"`

	// Committed is the number of jobs that passed validation.
	Committed int `json:"committed"`

	// Skipped is the number of jobs not attempted after a failure.
	Skipped int `json:"skipped"`

	// Transfers is the number of committed planned transfers.
	Transfers int `json:"transfers"`

	// Warnings is the number of warnings raised.
	Warnings int `json:"warnings"`
}

// DriverResult is the outcome of a run. The maps are empty when the run
// failed.
type DriverResult struct {
	// Run describes the run.
	Run *Run

	// Executed maps job indices to executed worklists in execute mode.
	Executed map[int]*worklist.ExecutedWorklist

	// Streams maps job indices to emission streams in write mode.
	Streams map[int]*worklist.Stream

	// Warnings are the warnings of all committed jobs in index order.
	Warnings []errdefs.Warning
}

// Driver runs the jobs of a worklist series in index order against shared
// rack state. Jobs see the staged results of earlier jobs. A failing job
// aborts the run and no rack passed in is changed.
type Driver struct {
	user     string
	execOpts []ExecutorOption
	repo     Repository
	racks    RackSaver
	sink     StreamSink
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithRepository persists executed worklists after a successful run.
func WithRepository(repo Repository) DriverOption {
	return func(d *Driver) {
		d.repo = repo
	}
}

// WithRackSaver stores rack state after a successful execute run.
func WithRackSaver(saver RackSaver) DriverOption {
	return func(d *Driver) {
		d.racks = saver
	}
}

// WithStreamSink hands emission streams to sink after a successful write
// run.
func WithStreamSink(sink StreamSink) DriverOption {
	return func(d *Driver) {
		d.sink = sink
	}
}

// WithExecutorOptions passes options to every executor and writer.
func WithExecutorOptions(opts ...ExecutorOption) DriverOption {
	return func(d *Driver) {
		d.execOpts = append(d.execOpts, opts...)
	}
}

// NewDriver creates a driver running jobs as user.
func NewDriver(user string, opts ...DriverOption) *Driver {
	d := &Driver{user: user}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ValidateJobs checks every job and the uniqueness of job indices. All
// problems are returned together.
func ValidateJobs(jobs []*Job) error {
	var errs errdefs.List
	seen := make(map[int]struct{}, len(jobs))
	for i, job := range jobs {
		if job == nil {
			errs.Add(errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("job %d is nil", i)))
			continue
		}
		if err := job.Validate(); err != nil {
			errs = append(errs, errdefs.AsList(err)...)
		}
		if _, dup := seen[job.Index]; dup {
			errs.Add(errdefs.NewInputError(errdefs.CodeDuplicateJobIndex,
				fmt.Sprintf("duplicate job index %d", job.Index)))
		}
		seen[job.Index] = struct{}{}
	}
	return errs.Err()
}

// Run validates all jobs and processes them in index order.
func (d *Driver) Run(ctx context.Context, mode Mode, jobs []*Job) (*DriverResult, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateJobs(jobs); err != nil {
		return nil, err
	}

	ordered := make([]*Job, len(jobs))
	copy(ordered, jobs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	sb := newSandbox(ordered)

	run := &Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    RunStatusRunning,
		User:      d.user,
		StartedAt: time.Now(),
		FailedJob: -1,
		Summary:   RunSummary{Total: len(ordered)},
	}
	result := &DriverResult{
		Run:      run,
		Executed: make(map[int]*worklist.ExecutedWorklist),
		Streams:  make(map[int]*worklist.Stream),
	}

	ctx = telemetry.WithRunContext(ctx, run.ID, d.user, string(mode), len(ordered))
	logger := telemetry.FromContext(ctx).NewComponentLogger("driver")
	logger.Infof("starting %s run with %d jobs", mode, len(ordered))

	executor := NewExecutor(d.user, d.execOpts...)
	writer := &Writer{exec: executor}

	for i, job := range ordered {
		if err := ctx.Err(); err != nil {
			d.finish(ctx, run, RunStatusCancelled, job.Index, len(ordered)-i, err)
			return result, err
		}
		staged := sb.job(job)
		label, variant := job.Worklist.Label, string(job.Worklist.Variant)
		jctx := telemetry.WithJobContext(ctx, run.ID, job.Index, label, variant)

		var warnings []errdefs.Warning
		var transfers int
		var err error
		switch mode {
		case ModeExecute:
			var res *Result
			if res, err = executor.Execute(jctx, staged); err == nil {
				result.Executed[job.Index] = res.Executed
				warnings, transfers = res.Warnings, len(res.Executed.Transfers)
			}
		case ModeWrite:
			var res *WriteResult
			if res, err = writer.Write(jctx, staged); err == nil {
				result.Streams[job.Index] = res.Stream
				warnings, transfers = res.Warnings, len(res.Stream.Records)
			}
		}
		telemetry.EndJobContext(jctx, run.ID, job.Index, label, variant, transfers, err)
		if err != nil {
			logger.WithJob(job.Index).WithError(err).Error("job aborted")
			clear(result.Executed)
			clear(result.Streams)
			d.finish(ctx, run, RunStatusFailed, job.Index, len(ordered)-i-1, err)
			return result, err
		}
		telemetry.RecordWarnings(jctx, "executor", job.Index, warnings)
		result.Warnings = append(result.Warnings, warnings...)
		run.Summary.Committed++
		run.Summary.Transfers += transfers
		run.Summary.Warnings += len(warnings)
	}

	if err := d.publish(ctx, mode, run, sb, result); err != nil {
		d.finish(ctx, run, RunStatusFailed, -1, 0, err)
		return result, err
	}
	d.finish(ctx, run, RunStatusSucceeded, -1, 0, nil)
	logger.Infof("run completed: %d jobs, %d transfers", run.Summary.Committed, run.Summary.Transfers)
	return result, nil
}

// publish hands the results of a successful run to the caller's racks and
// the configured collaborators.
func (d *Driver) publish(ctx context.Context, mode Mode, run *Run, sb *sandbox, result *DriverResult) error {
	if mode == ModeWrite {
		if d.sink == nil {
			return nil
		}
		for _, index := range sortedIndices(result.Streams) {
			if err := d.sink.WriteStream(ctx, run.ID, result.Streams[index]); err != nil {
				return errdefs.NewCommitError(fmt.Sprintf("failed to store stream %d", index), err)
			}
		}
		return nil
	}

	if d.repo != nil {
		for _, index := range sortedIndices(result.Executed) {
			if err := d.repo.PersistExecutedWorklist(ctx, result.Executed[index]); err != nil {
				return errdefs.NewCommitError(fmt.Sprintf("failed to persist executed worklist %d", index), err)
			}
		}
	}
	if d.racks != nil {
		for _, rack := range sb.originals {
			if err := d.racks.SaveRack(ctx, sb.clones[rack.Barcode]); err != nil {
				return errdefs.NewCommitError("failed to save rack", err).WithRack(rack.Barcode)
			}
		}
	}
	return sb.copyBack()
}

func (d *Driver) finish(ctx context.Context, run *Run, status RunStatus, failedJob, skipped int, err error) {
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	run.Duration = now.Sub(run.StartedAt)
	run.FailedJob = failedJob
	run.Summary.Skipped = skipped
	telemetry.EndRunContext(ctx, run.ID, failedJob, err)
}

func sortedIndices[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// sandbox holds scratch copies of every rack touched by a run, keyed by
// barcode, so racks shared between jobs are shared between their copies.
type sandbox struct {
	originals []*liquid.Rack
	clones    map[string]*liquid.Rack
}

func newSandbox(jobs []*Job) *sandbox {
	sb := &sandbox{clones: make(map[string]*liquid.Rack)}
	for _, job := range jobs {
		for _, rack := range []*liquid.Rack{job.SourceRack, job.TargetRack} {
			if rack == nil {
				continue
			}
			if _, ok := sb.clones[rack.Barcode]; ok {
				continue
			}
			sb.originals = append(sb.originals, rack)
			sb.clones[rack.Barcode] = rack.Clone()
		}
	}
	return sb
}

// job returns a copy of job acting on the sandbox racks.
func (sb *sandbox) job(job *Job) *Job {
	cp := *job
	cp.TargetRack = sb.clones[job.TargetRack.Barcode]
	if job.SourceRack != nil {
		cp.SourceRack = sb.clones[job.SourceRack.Barcode]
	}
	return &cp
}

func (sb *sandbox) copyBack() error {
	for _, rack := range sb.originals {
		if err := rack.CopyStateFrom(sb.clones[rack.Barcode]); err != nil {
			return err
		}
	}
	return nil
}
