// Package store persists audit logs and their property changes.
//
// # Overview
//
// The package offers one Store implementation, DBStore, that runs on both
// PostgreSQL (lib/pq) and SQLite (mattn/go-sqlite3). Inserts accept the
// host application's transaction so audit records commit or roll back with
// the save that produced them. Queries cover single-record lookup, filtered
// pagination, and the eager-loaded record sets the analytics package
// aggregates over.
//
// Retention cleanup deletes records older than a cutoff in ordered batches,
// pausing periodically to bound database load, and can archive each batch
// first through an Archiver (local NDJSON files or S3).
//
// # Usage Example
//
//	db, _ := sql.Open("sqlite3", "file:audit.db?_foreign_keys=on")
//	st, err := store.NewDBStore(db, store.Config{Dialect: store.DialectSQLite})
//	if err != nil {
//	    return err
//	}
//
//	recorder := store.NewRecorder(capturer, st, logger)
//	if err := recorder.Record(ctx, tx, changes, reqCtx); err != nil {
//	    tx.Rollback()
//	    return err
//	}
//
// # Related Packages
//
//   - pkg/audit: change capture producing the records stored here
//   - pkg/analytics: aggregate reports built on ListForAnalysis
package store
