package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/engine"
	"github.com/helixyte/TheLMA-sub008/pkg/errdefs"
	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/layout"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/telemetry"
	"github.com/helixyte/TheLMA-sub008/pkg/worklist"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pos(label string) geometry.Position {
	return geometry.MustParseLabel(label)
}

func newPlate(t *testing.T, barcode string) *liquid.Rack {
	t.Helper()
	specs := &liquid.ContainerSpecs{Name: "well", MaxVolume: 300, DeadVolume: 5}
	r, err := liquid.NewPlate(barcode, geometry.Shape96, specs, liquid.StatusManaged)
	if err != nil {
		t.Fatalf("failed to create plate: %v", err)
	}
	return r
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Fatal("Expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("Expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"racks", "containers", "stock_samples", "executed_worklists", "executed_transfers", "runs", "events"}
	for _, table := range tables {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	version, dirty, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected clean version 1, got %d (dirty=%v)", version, dirty)
	}

	// Migrating twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestRackRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	plate := newPlate(t, "P1")
	if err := plate.SetSample(pos("B3"), liquid.NewSample(40,
		liquid.Component{MoleculeDesign: 11, Concentration: 500},
		liquid.Component{MoleculeDesign: 12, Concentration: 250})); err != nil {
		t.Fatalf("failed to set sample: %v", err)
	}
	if err := store.SaveRack(ctx, plate); err != nil {
		t.Fatalf("failed to save rack: %v", err)
	}

	got, err := store.FetchRackByBarcode(ctx, "P1")
	if err != nil {
		t.Fatalf("failed to fetch rack: %v", err)
	}
	if got.Kind != liquid.KindPlate || got.Shape != geometry.Shape96 || got.Status != liquid.StatusManaged {
		t.Errorf("Expected managed 8x12 plate, got %s %s %s", got.Status, got.Shape, got.Kind)
	}
	if n := len(got.Containers()); n != 96 {
		t.Errorf("Expected 96 wells, got %d", n)
	}
	c, ok := got.Container(pos("B3"))
	if !ok || c.Sample == nil {
		t.Fatal("Expected sample at B3")
	}
	if c.Sample.Volume != 40 {
		t.Errorf("Expected 40 µL at B3, got %.1f", c.Sample.Volume)
	}
	if c.Sample.Concentration(11) != 500 || c.Sample.Concentration(12) != 250 {
		t.Errorf("Expected components 11=500 and 12=250, got %v", c.Sample.Components)
	}
	if c.Specs == nil || c.Specs.DeadVolume != 5 {
		t.Errorf("Expected well specs with dead volume 5, got %+v", c.Specs)
	}
	if empty, _ := got.Container(pos("A1")); empty.Sample != nil {
		t.Errorf("Expected empty well at A1, got %v", empty.Sample)
	}

	// Saving again replaces the containers.
	if err := plate.SetSample(pos("B3"), liquid.NewSample(10, liquid.Component{MoleculeDesign: 11, Concentration: 500})); err != nil {
		t.Fatalf("failed to set sample: %v", err)
	}
	if err := store.SaveRack(ctx, plate); err != nil {
		t.Fatalf("failed to update rack: %v", err)
	}
	got, err = store.FetchRackByBarcode(ctx, "P1")
	if err != nil {
		t.Fatalf("failed to fetch rack: %v", err)
	}
	if c, _ := got.Container(pos("B3")); c.Volume() != 10 {
		t.Errorf("Expected 10 µL at B3 after update, got %.1f", c.Volume())
	}
}

func TestTubeRackRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rack, err := liquid.NewTubeRack("TR1", geometry.Shape96, liquid.StatusManaged)
	if err != nil {
		t.Fatalf("failed to create tube rack: %v", err)
	}
	tubeSpecs := &liquid.ContainerSpecs{Name: "matrix", MaxVolume: 1500, DeadVolume: 5}
	tube, err := rack.AddTube(pos("C4"), "T0001", tubeSpecs, liquid.StatusManaged)
	if err != nil {
		t.Fatalf("failed to add tube: %v", err)
	}
	tube.Sample = liquid.NewSample(100, liquid.Component{MoleculeDesign: 7, Concentration: 50000})

	if err := store.SaveRack(ctx, rack); err != nil {
		t.Fatalf("failed to save rack: %v", err)
	}
	got, err := store.FetchRackByBarcode(ctx, "TR1")
	if err != nil {
		t.Fatalf("failed to fetch rack: %v", err)
	}
	if n := len(got.Containers()); n != 1 {
		t.Fatalf("Expected 1 tube, got %d", n)
	}
	c, ok := got.Container(pos("C4"))
	if !ok {
		t.Fatal("Expected tube at C4")
	}
	if c.Barcode != "T0001" || c.Volume() != 100 {
		t.Errorf("Expected tube T0001 with 100 µL, got %s with %.1f", c.Barcode, c.Volume())
	}
}

func TestFetchRack_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.FetchRackByBarcode(context.Background(), "missing")
	if !errors.Is(err, errdefs.ErrRackNotFound) {
		t.Fatalf("Expected RackNotFound, got %v", err)
	}
}

func TestStockSamples(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	samples := []engine.StockSample{
		{Pool: layout.RealPool(205200), Supplier: "Ambion", RackBarcode: "S1", Position: pos("A2"), TubeBarcode: "T2", Concentration: 50000, Volume: 80},
		{Pool: layout.RealPool(205200), Supplier: "Qiagen", RackBarcode: "S1", Position: pos("A1"), TubeBarcode: "T1", Concentration: 50000, Volume: 90},
		{Pool: layout.RealPool(205201), Supplier: "Ambion", RackBarcode: "S2", Position: pos("B1"), TubeBarcode: "T3", Concentration: 10000, Volume: 20},
		{Pool: layout.RealPool(999), Supplier: "Ambion", RackBarcode: "S2", Position: pos("B2"), TubeBarcode: "T4", Concentration: 10000, Volume: 20},
	}
	for _, s := range samples {
		if err := store.PutStockSample(ctx, s); err != nil {
			t.Fatalf("failed to put stock sample: %v", err)
		}
	}

	pools := []layout.PoolID{layout.RealPool(205200), layout.RealPool(205201)}
	all, err := store.FetchStockSamples(ctx, pools, "")
	if err != nil {
		t.Fatalf("failed to fetch stock samples: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(all))
	}
	if all[0].TubeBarcode != "T1" || all[0].Position != pos("A1") {
		t.Errorf("Expected T1 at A1 first, got %s at %s", all[0].TubeBarcode, all[0].Position)
	}

	ambion, err := store.FetchStockSamples(ctx, pools, "Ambion")
	if err != nil {
		t.Fatalf("failed to fetch stock samples: %v", err)
	}
	if len(ambion) != 2 {
		t.Fatalf("Expected 2 Ambion samples, got %d", len(ambion))
	}
	for _, s := range ambion {
		if s.Supplier != "Ambion" {
			t.Errorf("Expected supplier Ambion, got %s", s.Supplier)
		}
	}

	none, err := store.FetchStockSamples(ctx, nil, "")
	if err != nil || len(none) != 0 {
		t.Errorf("Expected no samples for no pools, got %d (%v)", len(none), err)
	}
}

func executedDilutions(t *testing.T) *worklist.ExecutedWorklist {
	t.Helper()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	planned := worklist.NewPlannedWorklist("buffer", worklist.VariantDilution, "BioMek")
	d1 := worklist.Dilution{Volume: 10, Target: pos("A1"), DiluentInfo: "buffer"}
	d2 := worklist.Dilution{Volume: 15, Target: pos("A2"), DiluentInfo: "buffer"}
	for _, d := range []worklist.Dilution{d1, d2} {
		if err := planned.Add(d); err != nil {
			t.Fatalf("failed to add dilution: %v", err)
		}
	}
	executed := worklist.NewExecutedWorklist(planned, "tester", ts)
	for _, d := range []worklist.Dilution{d1, d2} {
		ref := worklist.ContainerRef{RackBarcode: "P1", Position: d.Target.Label()}
		if err := executed.Add(worklist.NewExecutedDilution(d, ref, "tester", ts)); err != nil {
			t.Fatalf("failed to add executed dilution: %v", err)
		}
	}
	return executed
}

func TestPersistExecutedWorklist(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	executed := executedDilutions(t)
	if err := store.PersistExecutedWorklist(ctx, executed); err != nil {
		t.Fatalf("failed to persist executed worklist: %v", err)
	}
	// Persisting the same record again is a no-op.
	if err := store.PersistExecutedWorklist(ctx, executed); err != nil {
		t.Fatalf("failed to persist executed worklist twice: %v", err)
	}

	list, err := store.ListExecutedWorklists(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list executed worklists: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 executed worklist, got %d", len(list))
	}
	w := list[0]
	if w.Label != "buffer" || w.Variant != "dilution" || w.PipettingSpecs != "BioMek" {
		t.Errorf("Expected buffer dilution on BioMek, got %+v", w)
	}
	if w.Transfers != 2 || w.TotalVolume != 25 {
		t.Errorf("Expected 2 transfers with 25 µL, got %d with %.1f", w.Transfers, w.TotalVolume)
	}

	transfers, err := store.ListExecutedTransfers(ctx, executed.ID.String())
	if err != nil {
		t.Fatalf("failed to list executed transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("Expected 2 executed transfers, got %d", len(transfers))
	}
	if transfers[1].Target != "P1:A2" || transfers[1].Volume != 15 {
		t.Errorf("Expected 15 µL into P1:A2, got %.1f into %s", transfers[1].Volume, transfers[1].Target)
	}
	planned, err := worklist.UnmarshalTransfer([]byte(transfers[0].Detail))
	if err != nil {
		t.Fatalf("failed to decode transfer detail: %v", err)
	}
	if d, ok := planned.(worklist.Dilution); !ok || d.Target != pos("A1") || d.Volume != 10 {
		t.Errorf("Expected 10 µL dilution into A1, got %v", planned)
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &engine.Run{
		ID:        "run-1",
		Mode:      engine.ModeExecute,
		Status:    engine.RunStatusRunning,
		User:      "tester",
		StartedAt: started,
		FailedJob: -1,
		Summary:   engine.RunSummary{Total: 3},
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	completed := started.Add(2 * time.Second)
	run.Status = engine.RunStatusFailed
	run.CompletedAt = &completed
	run.FailedJob = 1
	run.Summary.Committed = 1
	run.Summary.Skipped = 1
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("failed to update run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != engine.RunStatusFailed || got.FailedJob != 1 {
		t.Errorf("Expected failed run at job 1, got %s at %d", got.Status, got.FailedJob)
	}
	if got.CompletedAt == nil || got.Duration != 2*time.Second {
		t.Errorf("Expected duration 2s, got %v", got.Duration)
	}
	if got.Summary != run.Summary {
		t.Errorf("Expected summary %+v, got %+v", run.Summary, got.Summary)
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Expected 1 run, got %d", len(runs))
	}

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, errdefs.ErrRunNotFound) {
		t.Errorf("Expected RunNotFound, got %v", err)
	}
}

func TestEventRecorder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	publisher := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true, MinLevel: telemetry.EventLevelInfo})
	publisher.Subscribe(store.EventRecorder(ctx), nil)
	publisher.PublishRunStarted("run-1", "tester", 2)
	publisher.PublishJobCommitted("run-1", 0, "buffer", 4)
	publisher.PublishRunStarted("run-2", "tester", 1)

	events, err := store.GetEvents(ctx, "run-1", 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != telemetry.EventTypeRunStarted || events[1].Type != telemetry.EventTypeJobCommitted {
		t.Errorf("Expected run.started then job.committed, got %s then %s", events[0].Type, events[1].Type)
	}
	if events[1].Worklist != "buffer" || events[1].JobIndex != 0 {
		t.Errorf("Expected job 0 on buffer, got %d on %q", events[1].JobIndex, events[1].Worklist)
	}

	all, err := store.GetEvents(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 events across runs, got %d", len(all))
	}
}

func TestDriverPersistsThroughStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	plate := newPlate(t, "P1")
	if err := store.SaveRack(ctx, plate); err != nil {
		t.Fatalf("failed to save rack: %v", err)
	}
	loaded, err := store.FetchRackByBarcode(ctx, "P1")
	if err != nil {
		t.Fatalf("failed to fetch rack: %v", err)
	}

	planned := worklist.NewPlannedWorklist("buffer", worklist.VariantDilution, "test")
	if err := planned.Add(worklist.Dilution{Volume: 20, Target: pos("A1"), DiluentInfo: "buffer"}); err != nil {
		t.Fatalf("failed to add dilution: %v", err)
	}
	jobs := []*engine.Job{{
		Index:      0,
		Worklist:   planned,
		TargetRack: loaded,
		PipettingSpecs: &liquid.PipettingSpecs{
			Name: "test", MinTransferVolume: 1, MaxTransferVolume: 250, MaxDilutionFactor: 10,
		},
	}}

	driver := engine.NewDriver("tester", engine.WithRepository(store), engine.WithRackSaver(store))
	res, err := driver.Run(ctx, engine.ModeExecute, jobs)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if err := store.SaveRun(ctx, res.Run); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	stored, err := store.FetchRackByBarcode(ctx, "P1")
	if err != nil {
		t.Fatalf("failed to fetch rack: %v", err)
	}
	if c, _ := stored.Container(pos("A1")); c.Volume() != 20 {
		t.Errorf("Expected 20 µL at A1 in the store, got %.1f", c.Volume())
	}
	list, err := store.ListExecutedWorklists(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list executed worklists: %v", err)
	}
	if len(list) != 1 || list[0].Transfers != 1 {
		t.Errorf("Expected 1 executed worklist with 1 transfer, got %+v", list)
	}
	got, err := store.GetRun(ctx, res.Run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != engine.RunStatusSucceeded || got.Summary.Transfers != 1 {
		t.Errorf("Expected succeeded run with 1 transfer, got %s with %d", got.Status, got.Summary.Transfers)
	}
}
