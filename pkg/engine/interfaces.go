package engine

import (
	"context"

	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// Repository loads labware and stock and stores executed worklists.
// Implementations are called synchronously at job boundaries only.
type Repository interface {
	// FetchRackByBarcode returns the rack with the given barcode. It
	// returns an error matching errdefs.ErrRackNotFound if there is none.
	FetchRackByBarcode(ctx context.Context, barcode string) (*liquid.Rack, error)

	// FetchStockSamples returns the stock samples of the given pools. An
	// empty supplier matches every supplier.
	FetchStockSamples(ctx context.Context, pools []layout.PoolID, supplier string) ([]StockSample, error)

	// PersistExecutedWorklist stores an executed worklist. Storing the
	// same record twice has no further effect.
	PersistExecutedWorklist(ctx context.Context, record *worklist.ExecutedWorklist) error
}

// RackSaver stores the state of racks after a committed run.
type RackSaver interface {
	// SaveRack overwrites the stored statuses and samples of the rack.
	SaveRack(ctx context.Context, rack *liquid.Rack) error
}

// StreamSink receives emitted worklist streams in writer mode.
type StreamSink interface {
	// WriteStream stores one stream under the given run.
	WriteStream(ctx context.Context, runID string, stream *worklist.Stream) error
}

// StockSample is a stock tube holding a single pool.
type StockSample struct {
	// Pool is the pool held by the tube.
	Pool layout.PoolID `json:"pool"`

	// Supplier is the supplier of the pool.
	Supplier string `json:"supplier,omitempty"`

	// RackBarcode is the barcode of the stock rack.
	RackBarcode string `json:"rack_barcode"`

	// Position is the position of the tube in the stock rack.
	Position geometry.Position `json:"position"`

	// TubeBarcode is the barcode of the tube.
	TubeBarcode string `json:"tube_barcode"`

	// Concentration is the pool concentration in nM.
	Concentration float64 `json:"concentration"`

	// Volume is the tube volume in µL.
	Volume float64 `json:"volume"`
}
