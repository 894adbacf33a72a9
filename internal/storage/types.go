package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (pure Go driver)
//   - "memory": process-local maps, lost on exit (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// EntryRow is an entry as stored: every column is free text and is only
// interpreted by the row source.
type EntryRow struct {
	ID          string
	Position    int
	ScheduledAt string
	Message     string
	Repeat      string
	Enabled     string
	LastState   string
	UpdatedAt   time.Time
}

// AuditEntry records one decision or send outcome.
// Keep it compact and schema-stable.
type AuditEntry struct {
	ID      int64
	At      time.Time
	TickID  string
	EntryID string
	Stage   string
	Reason  string
	OK      bool
	Details string
}

// Store is the persistence API used by the row source, the rate limiter
// (as counter store), the notifier (dedup) and the dispatcher (audit).
type Store interface {
	ListEntries(ctx context.Context) ([]EntryRow, error)
	UpsertEntry(ctx context.Context, e EntryRow) error
	DeleteEntry(ctx context.Context, id string) error
	SetLastState(ctx context.Context, id, state string) error

	Count(ctx context.Context, key string) (int, error)
	Incr(ctx context.Context, key string, ttl time.Duration) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	Close() error
}
