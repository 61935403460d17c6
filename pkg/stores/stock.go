package stores

import (
	"context"
	"fmt"
	"strings"

	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
)

// PutStockSample inserts or replaces a stock tube.
func (s *SQLiteStore) PutStockSample(ctx context.Context, sample engine.StockSample) error {
	query := `
		INSERT INTO stock_samples (tube_barcode, pool, supplier, rack_barcode, position, concentration, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tube_barcode) DO UPDATE SET
			pool = excluded.pool,
			supplier = excluded.supplier,
			rack_barcode = excluded.rack_barcode,
			position = excluded.position,
			concentration = excluded.concentration,
			volume = excluded.volume
	`

	_, err := s.db.ExecContext(ctx, query,
		sample.TubeBarcode,
		sample.Pool.String(),
		sample.Supplier,
		sample.RackBarcode,
		sample.Position.Label(),
		sample.Concentration,
		sample.Volume,
	)
	if err != nil {
		return fmt.Errorf("failed to save stock sample: %w", err)
	}
	return nil
}

// FetchStockSamples returns the stock tubes of the given pools ordered by
// pool, rack and position. An empty supplier matches every supplier.
func (s *SQLiteStore) FetchStockSamples(ctx context.Context, pools []layout.PoolID, supplier string) ([]engine.StockSample, error) {
	if len(pools) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(pools)+2)
	for _, p := range pools {
		args = append(args, p.String())
	}
	args = append(args, supplier, supplier)

	query := fmt.Sprintf(`
		SELECT tube_barcode, pool, supplier, rack_barcode, position, concentration, volume
		FROM stock_samples
		WHERE pool IN (%s)
		  AND (? = '' OR supplier = ?)
		ORDER BY pool, rack_barcode, position
	`, strings.TrimSuffix(strings.Repeat("?,", len(pools)), ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock samples: %w", err)
	}
	defer rows.Close()

	samples := []engine.StockSample{}
	for rows.Next() {
		var sample engine.StockSample
		var pool, position string
		if err := rows.Scan(
			&sample.TubeBarcode,
			&pool,
			&sample.Supplier,
			&sample.RackBarcode,
			&position,
			&sample.Concentration,
			&sample.Volume,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock sample: %w", err)
		}
		if sample.Pool, err = layout.ParsePool(pool); err != nil {
			return nil, err
		}
		if sample.Position, err = geometry.ParseLabel(position); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock samples: %w", err)
	}

	return samples, nil
}
