package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	logx "zeitslot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now, pruneEvery: 500}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListEntries(ctx context.Context) ([]EntryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position, scheduled_at, message, repeat, enabled, last_state, updated_at
		 FROM entries ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryRow
	for rows.Next() {
		var r EntryRow
		var updated int64
		if err := rows.Scan(&r.ID, &r.Position, &r.ScheduledAt, &r.Message, &r.Repeat, &r.Enabled, &r.LastState, &updated); err != nil {
			return nil, err
		}
		if updated > 0 {
			r.UpdatedAt = time.UnixMilli(updated)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertEntry(ctx context.Context, e EntryRow) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("entry id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries(id, position, scheduled_at, message, repeat, enabled, last_state, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   position=excluded.position, scheduled_at=excluded.scheduled_at, message=excluded.message,
		   repeat=excluded.repeat, enabled=excluded.enabled, last_state=excluded.last_state,
		   updated_at=excluded.updated_at`,
		e.ID, e.Position, e.ScheduledAt, e.Message, e.Repeat, e.Enabled, e.LastState, s.now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *sqliteStore) SetLastState(ctx context.Context, id, state string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET last_state = ?, updated_at = ? WHERE id = ?`,
		state, s.now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *sqliteStore) Count(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli(),
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Incr adds one to key and moves its expiry to now+ttl. An expired key
// restarts at one.
func (s *sqliteStore) Incr(ctx context.Context, key string, ttl time.Duration) error {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO counters(key, value, expires_at) VALUES(?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = CASE WHEN counters.expires_at <= ? THEN 1 ELSE counters.value + 1 END,
		   expires_at = excluded.expires_at`,
		key, now+ttl.Milliseconds(), now,
	)
	if err == nil {
		s.maybePrune()
	}
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	if err == nil {
		s.maybePrune()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, tick_id, entry_id, stage, reason, ok, details) VALUES(?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.TickID, e.EntryID, e.Stage, nullStr(e.Reason), boolInt(e.OK), nullStr(e.Details),
	)
	return err
}

func (s *sqliteStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, tick_id, entry_id, stage, COALESCE(reason, ''), ok, COALESCE(details, '')
		 FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at string
		var ok int
		if err := rows.Scan(&e.ID, &at, &e.TickID, &e.EntryID, &e.Stage, &e.Reason, &ok, &e.Details); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.OK = ok != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) maybePrune() {
	if s.opCount.Add(1)%s.pruneEvery != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	now := s.now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM counters WHERE expires_at <= ?`, now); err != nil {
		s.log.Debug("prune counters failed", logx.Err(err))
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now); err != nil {
		s.log.Debug("prune dedup failed", logx.Err(err))
	}
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
