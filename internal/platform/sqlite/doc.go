// Package sqlite implements the queue and store contracts on an embedded
// SQLite database (modernc.org/sqlite, cgo-free). Intended for
// single-node deployments and local development; SQLite's single-writer
// serialization is what makes the dequeue exclusive here. Multi-process
// deployments should use the postgres platform instead.
package sqlite
