package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
)

// ExecutedWorklistSummary is a stored executed worklist without its
// transfers.
type ExecutedWorklistSummary struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	Variant        string    `json:"variant"`
	PipettingSpecs string    `json:"pipetting_specs"`
	User           string    `json:"user"`
	ExecutedAt     time.Time `json:"executed_at"`
	TotalVolume    float64   `json:"total_volume"`
	Transfers      int       `json:"transfers"`
}

// ExecutedTransferRow is a stored executed transfer.
type ExecutedTransferRow struct {
	ID         string    `json:"id"`
	WorklistID string    `json:"worklist_id"`
	Seq        int       `json:"seq"`
	Variant    string    `json:"variant"`
	Volume     float64   `json:"volume"`
	Source     string    `json:"source,omitempty"`
	Target     string    `json:"target,omitempty"`
	Detail     string    `json:"detail"` // JSON blob
	User       string    `json:"user"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Store defines the interface for the persistence layer
type Store interface {
	engine.Repository
	engine.RackSaver

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Stock operations
	PutStockSample(ctx context.Context, sample engine.StockSample) error

	// Executed worklist operations
	ListExecutedWorklists(ctx context.Context, limit, offset int) ([]*ExecutedWorklistSummary, error)
	ListExecutedTransfers(ctx context.Context, worklistID string) ([]*ExecutedTransferRow, error)

	// Run operations
	SaveRun(ctx context.Context, run *engine.Run) error
	GetRun(ctx context.Context, id string) (*engine.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*engine.Run, error)

	// Event operations
	AppendEvent(ctx context.Context, event telemetry.Event) error
	GetEvents(ctx context.Context, runID string, limit, offset int) ([]telemetry.Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

var _ Store = (*SQLiteStore)(nil)
