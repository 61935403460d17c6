package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
)

// SaveRack inserts or replaces a rack with all its containers.
func (s *SQLiteStore) SaveRack(ctx context.Context, rack *liquid.Rack) error {
	now := time.Now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO racks (barcode, kind, shape, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(barcode) DO UPDATE SET
				kind = excluded.kind,
				shape = excluded.shape,
				status = excluded.status,
				updated_at = excluded.updated_at
		`, rack.Barcode, string(rack.Kind), rack.Shape.Name(), string(rack.Status), now, now)
		if err != nil {
			return fmt.Errorf("failed to save rack %s: %w", rack.Barcode, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM containers WHERE rack_barcode = ?`, rack.Barcode); err != nil {
			return fmt.Errorf("failed to clear containers of rack %s: %w", rack.Barcode, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO containers (
				rack_barcode, position, specs_name, max_volume, dead_volume, status, barcode, volume, components
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare container insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range rack.Containers() {
			var volume float64
			components := map[liquid.MoleculeDesignID]float64{}
			if c.Sample != nil {
				volume = c.Sample.Volume
				components = c.Sample.Components
			}
			blob, err := json.Marshal(components)
			if err != nil {
				return fmt.Errorf("failed to encode components: %w", err)
			}
			specs := c.Specs
			if specs == nil {
				specs = &liquid.ContainerSpecs{}
			}
			if _, err := stmt.ExecContext(ctx,
				rack.Barcode,
				c.Position.Label(),
				specs.Name,
				specs.MaxVolume,
				specs.DeadVolume,
				string(c.Status),
				c.Barcode,
				volume,
				string(blob),
			); err != nil {
				return fmt.Errorf("failed to save container %s:%s: %w", rack.Barcode, c.Position.Label(), err)
			}
		}
		return nil
	})
}

type containerRow struct {
	position   string
	specs      liquid.ContainerSpecs
	status     liquid.ItemStatus
	barcode    string
	volume     float64
	components string
}

// FetchRackByBarcode loads a rack with its containers and samples.
func (s *SQLiteStore) FetchRackByBarcode(ctx context.Context, barcode string) (*liquid.Rack, error) {
	var kind, shapeName, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, shape, status FROM racks WHERE barcode = ?`, barcode,
	).Scan(&kind, &shapeName, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NewInputError(errdefs.CodeRackNotFound, "rack not found").WithRack(barcode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rack: %w", err)
	}
	shape, err := geometry.ParseShape(shapeName)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, specs_name, max_volume, dead_volume, status, barcode, volume, components
		FROM containers
		WHERE rack_barcode = ?
	`, barcode)
	if err != nil {
		return nil, fmt.Errorf("failed to get containers: %w", err)
	}
	defer rows.Close()

	var containers []containerRow
	for rows.Next() {
		var row containerRow
		if err := rows.Scan(
			&row.position,
			&row.specs.Name,
			&row.specs.MaxVolume,
			&row.specs.DeadVolume,
			&row.status,
			&row.barcode,
			&row.volume,
			&row.components,
		); err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		containers = append(containers, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating containers: %w", err)
	}

	return buildRack(barcode, liquid.RackKind(kind), shape, liquid.ItemStatus(status), containers)
}

func buildRack(barcode string, kind liquid.RackKind, shape geometry.Shape, status liquid.ItemStatus, rows []containerRow) (*liquid.Rack, error) {
	var rack *liquid.Rack
	var err error
	switch kind {
	case liquid.KindPlate:
		if len(rows) == 0 {
			return nil, fmt.Errorf("plate %s has no wells", barcode)
		}
		specs := rows[0].specs
		rack, err = liquid.NewPlate(barcode, shape, &specs, status)
	case liquid.KindTubeRack:
		rack, err = liquid.NewTubeRack(barcode, shape, status)
	default:
		return nil, fmt.Errorf("unknown rack kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		p, err := geometry.ParseLabel(row.position)
		if err != nil {
			return nil, err
		}
		specs := row.specs
		var c *liquid.Container
		if kind == liquid.KindTubeRack {
			if c, err = rack.AddTube(p, row.barcode, &specs, row.status); err != nil {
				return nil, err
			}
		} else {
			var ok bool
			if c, ok = rack.Container(p); !ok {
				return nil, fmt.Errorf("well %s outside plate %s", row.position, barcode)
			}
			c.Specs = &specs
			c.Status = row.status
		}
		if liquid.IsZero(row.volume) {
			continue
		}
		components := map[liquid.MoleculeDesignID]float64{}
		if err := json.Unmarshal([]byte(row.components), &components); err != nil {
			return nil, fmt.Errorf("failed to decode components of %s:%s: %w", barcode, row.position, err)
		}
		c.Sample = &liquid.Sample{Volume: row.volume, Components: components}
	}
	return rack, nil
}
