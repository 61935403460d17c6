// Package stores provides the persistence layer of the liquid-handling
// planner. The SQLite store keeps racks with their container contents, the
// stock tube inventory used to pick starting samples, executed worklists,
// series runs and their diagnostics events. Files are opened in WAL mode and
// the schema is managed with embedded migrations.
package stores
