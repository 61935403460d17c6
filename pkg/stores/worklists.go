package stores

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// PersistExecutedWorklist stores an executed worklist and its transfers.
// Records that already exist are left untouched.
func (s *SQLiteStore) PersistExecutedWorklist(ctx context.Context, record *worklist.ExecutedWorklist) error {
	if record == nil || record.Planned == nil {
		return fmt.Errorf("executed worklist without planned worklist")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO executed_worklists (
				id, label, variant, pipetting_specs, user_name, executed_at, total_volume
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			record.ID.String(),
			record.Planned.Label,
			string(record.Planned.Variant),
			record.Planned.PipettingSpecs,
			record.User,
			record.Timestamp,
			record.TotalVolume(),
		)
		if err != nil {
			return fmt.Errorf("failed to persist executed worklist: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO executed_transfers (
				id, worklist_id, seq, variant, volume, source, target, detail, user_name, executed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare transfer insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range record.Transfers {
			detail, err := worklist.MarshalTransfer(t.Planned)
			if err != nil {
				return fmt.Errorf("failed to encode transfer: %w", err)
			}
			source, target := t.SourceRack, t.TargetRack
			if t.Source != nil {
				source = t.Source.String()
			}
			if t.Target != nil {
				target = t.Target.String()
			}
			if _, err := stmt.ExecContext(ctx,
				t.ID.String(),
				record.ID.String(),
				i,
				string(t.Variant()),
				t.Planned.TransferVolume(),
				source,
				target,
				string(detail),
				t.User,
				t.Timestamp,
			); err != nil {
				return fmt.Errorf("failed to persist executed transfer: %w", err)
			}
		}
		return nil
	})
}

// ListExecutedWorklists lists executed worklists, newest first.
func (s *SQLiteStore) ListExecutedWorklists(ctx context.Context, limit, offset int) ([]*ExecutedWorklistSummary, error) {
	query := `
		SELECT w.id, w.label, w.variant, w.pipetting_specs, w.user_name, w.executed_at, w.total_volume,
		       (SELECT COUNT(*) FROM executed_transfers t WHERE t.worklist_id = w.id)
		FROM executed_worklists w
		ORDER BY w.executed_at DESC, w.label
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list executed worklists: %w", err)
	}
	defer rows.Close()

	out := []*ExecutedWorklistSummary{}
	for rows.Next() {
		w := &ExecutedWorklistSummary{}
		if err := rows.Scan(
			&w.ID,
			&w.Label,
			&w.Variant,
			&w.PipettingSpecs,
			&w.User,
			&w.ExecutedAt,
			&w.TotalVolume,
			&w.Transfers,
		); err != nil {
			return nil, fmt.Errorf("failed to scan executed worklist: %w", err)
		}
		out = append(out, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executed worklists: %w", err)
	}

	return out, nil
}

// ListExecutedTransfers returns the transfers of an executed worklist in
// execution order.
func (s *SQLiteStore) ListExecutedTransfers(ctx context.Context, worklistID string) ([]*ExecutedTransferRow, error) {
	query := `
		SELECT id, worklist_id, seq, variant, volume, source, target, detail, user_name, executed_at
		FROM executed_transfers
		WHERE worklist_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, worklistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executed transfers: %w", err)
	}
	defer rows.Close()

	out := []*ExecutedTransferRow{}
	for rows.Next() {
		t := &ExecutedTransferRow{}
		if err := rows.Scan(
			&t.ID,
			&t.WorklistID,
			&t.Seq,
			&t.Variant,
			&t.Volume,
			&t.Source,
			&t.Target,
			&t.Detail,
			&t.User,
			&t.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan executed transfer: %w", err)
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executed transfers: %w", err)
	}

	return out, nil
}
