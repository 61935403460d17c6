package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/helixyte/TheLMA-sub008/pkg/geometry"
	"github.com/helixyte/TheLMA-sub008/pkg/liquid"
	"github.com/helixyte/TheLMA-sub008/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            stores.MemoryPath,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveRack demonstrates storing and loading a plate.
func ExampleSQLiteStore_SaveRack() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	specs := &liquid.ContainerSpecs{Name: "well", MaxVolume: 300, DeadVolume: 5}
	plate, _ := liquid.NewPlate("P0001", geometry.Shape96, specs, liquid.StatusManaged)
	_ = plate.SetSample(geometry.MustParseLabel("A1"),
		liquid.NewSample(30, liquid.Component{MoleculeDesign: 1, Concentration: 1000}))

	if err := store.SaveRack(ctx, plate); err != nil {
		log.Fatal(err)
	}

	loaded, err := store.FetchRackByBarcode(ctx, "P0001")
	if err != nil {
		log.Fatal(err)
	}
	well, _ := loaded.Container(geometry.MustParseLabel("A1"))
	fmt.Printf("%s %s: %.1f µL\n", loaded.Barcode, loaded.Shape, well.Volume())
	// Output: P0001 8x12: 30.0 µL
}
