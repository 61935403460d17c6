package engine

import (
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
)

// RunStatus represents the overall status of a series run.
type RunStatus string

const (
	// RunStatusPending indicates the run has been validated but not started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates jobs are being processed.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every job was committed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates a job was aborted.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the context was cancelled between jobs.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("invalid run status: %s", s))
	}
}

// Mode selects what a run produces.
type Mode string

const (
	// ModeExecute commits jobs into the racks and yields executed worklists.
	ModeExecute Mode = "execute"

	// ModeWrite applies jobs to scratch racks and yields emission streams.
	ModeWrite Mode = "write"
)

// Validate checks if the mode is valid.
func (m Mode) Validate() error {
	switch m {
	case ModeExecute, ModeWrite:
		return nil
	default:
		return errdefs.NewInputError(errdefs.CodeInvalidInput, fmt.Sprintf("invalid run mode: %s", m))
	}
}
