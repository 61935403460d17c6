package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
)

// SaveRun inserts or updates a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.Run) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	query := `
		INSERT INTO runs (id, mode, status, user_name, started_at, completed_at, failed_job, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			failed_job = excluded.failed_job,
			summary = excluded.summary
	`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		string(run.Mode),
		string(run.Status),
		run.User,
		run.StartedAt,
		run.CompletedAt,
		run.FailedJob,
		string(summary),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runColumns = `id, mode, status, user_name, started_at, completed_at, failed_job, summary`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*engine.Run, error) {
	run := &engine.Run{}
	var mode, status, summary string
	var completedAt sql.NullTime
	if err := row.Scan(
		&run.ID,
		&mode,
		&status,
		&run.User,
		&run.StartedAt,
		&completedAt,
		&run.FailedJob,
		&summary,
	); err != nil {
		return nil, err
	}
	run.Mode = engine.Mode(mode)
	run.Status = engine.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
		run.Duration = t.Sub(run.StartedAt)
	}
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NewInputError(errdefs.CodeRunNotFound, fmt.Sprintf("run not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*engine.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// AppendEvent stores a diagnostics event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event telemetry.Event) error {
	data := []byte("{}")
	if len(event.Data) > 0 {
		var err error
		if data, err = json.Marshal(event.Data); err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	query := `
		INSERT INTO events (id, timestamp, type, source, run_id, job_index, worklist, code, level, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.Type,
		event.Source,
		event.RunID,
		event.JobIndex,
		event.Worklist,
		event.Code,
		event.Level,
		event.Message,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvents returns the events of a run in chronological order. An empty
// runID returns events of every run.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, limit, offset int) ([]telemetry.Event, error) {
	query := `
		SELECT id, timestamp, type, source, run_id, job_index, worklist, code, level, message, data
		FROM events
		WHERE (? = '' OR run_id = ?)
		ORDER BY timestamp, rowid
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []telemetry.Event{}
	for rows.Next() {
		var event telemetry.Event
		var data string
		if err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.Type,
			&event.Source,
			&event.RunID,
			&event.JobIndex,
			&event.Worklist,
			&event.Code,
			&event.Level,
			&event.Message,
			&data,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data != "{}" {
			if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// EventRecorder returns a subscriber that appends published events to the
// store. Storage failures are logged and dropped.
func (s *SQLiteStore) EventRecorder(ctx context.Context) telemetry.EventSubscriber {
	logger := telemetry.FromContext(ctx).NewComponentLogger("stores")
	return func(event telemetry.Event) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.AppendEvent(wctx, event); err != nil {
			logger.WithError(err).Warn("failed to record event")
		}
	}
}
