// Package store is the SQL provider for the query and submit pipelines.
//
// Rows of every entity set and singleton live in one resources table as
// canonical JSON, next to their ETag. The store resolves sources to
// querysql tables, executes compiled statements, and applies each change
// set in a single transaction. Committed entries are appended to a journal
// keyed by request ID.
//
// # Drivers
//
//   - sqlite3: github.com/mattn/go-sqlite3 (cgo)
//   - sqlite:  modernc.org/sqlite (pure Go)
//   - pgx:     github.com/jackc/pgx/v5/stdlib
//
// # SQLite configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// SQLite connections are capped at one. Action invokers run inside the
// submit transaction and must not query the same store.
package store
