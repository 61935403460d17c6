// Package config reads the inputs of the thelma command: the application
// configuration, CUE instrument catalogues and the YAML documents that
// describe layouts, racks and jobs.
//
// # Application configuration
//
// LoadAppConfig reads a YAML file over DefaultAppConfig and then applies
// THELMA_* environment variables through envconfig, for example
// THELMA_DATABASE_FILE, THELMA_ARCHIVE_DRIVER or THELMA_PLANNER_NUMBER_SECTORS.
// Telemetry settings use THELMA_LOG_LEVEL, THELMA_LOG_FORMAT,
// THELMA_TRACING_ENABLED, THELMA_TRACING_ENDPOINT and THELMA_METRICS_ENABLED.
//
// # Catalogues
//
// CatalogueParser unifies CUE sources with the catalogue schema and merges
// the result over liquid.StandardCatalogue:
//
//	pipetting: Tecan: {
//	    min_transfer_volume: 0.5
//	    max_transfer_volume: 200
//	}
//	containers: "well 1536": {max_volume: 12, dead_volume: 2}
//
// Errors carry the file position and CUE path of the offending field.
//
// # Layout documents
//
//	shape: 16x24
//	floating_stock_concentration: 50000
//	positions:
//	  - position: A1
//	    pool: 205200
//	    concentration: 100
//	    volume: 20
//	    transfer_targets: [{position: A1, volume: 5}]
//	  - {position: B1, pool: mock, volume: 20}
//	  - {position: C1, pool: md_001, concentration: 100, volume: 20}
//
// The pool token selects the position type: an integer is a fixed pool,
// "mock" a mock position and anything else a floating placeholder.
//
// A layout may also carry a Starlark script. Its "positions" global is
// appended to the literal positions. Scripts see the document params, the
// rack shape and the label(row, col) and parse_label(label) builtins:
//
//	params: {pools: [205200, 205201]}
//	script: |
//	  positions = [
//	      {"position": label(i, 0), "pool": p, "concentration": 50, "volume": 10}
//	      for i, p in enumerate(params["pools"])
//	  ]
//
// Scripts run without load() and are cancelled after the loader timeout.
//
// # Racks and jobs
//
// ParseRacks builds plates and tube racks with their samples. BuildJobs
// binds the worklists of a series to racks; jobs naming the same barcode
// share one rack so that later worklists see earlier transfers.
package config
