// Package storage persists entries, their last fire state, rate counters,
// notifier dedup keys and the decision audit trail.
//
// It supports:
//   - SQLite (modernc.org/sqlite, no cgo) for real deployments
//   - an in-memory store for tests and dry runs
package storage
