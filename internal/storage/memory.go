package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

type counter struct {
	value     int
	expiresAt time.Time
}

// Memory is a process-local Store. All data is lost on Close.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	entries  map[string]EntryRow
	counters map[string]counter
	dedup    map[string]time.Time
	audit    []AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		entries:  map[string]EntryRow{},
		counters: map[string]counter{},
		dedup:    map[string]time.Time{},
	}
}

// SetClock replaces the clock used for expiry and timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) ListEntries(context.Context) ([]EntryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EntryRow, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b EntryRow) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) UpsertEntry(_ context.Context, e EntryRow) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("entry id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.UpdatedAt = m.now()
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *Memory) SetLastState(_ context.Context, id, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.LastState = state
	e.UpdatedAt = m.now()
	m.entries[id] = e
	return nil
}

func (m *Memory) Count(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key]
	if !ok || !m.now().Before(c.expiresAt) {
		return 0, nil
	}
	return c.value, nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	c := m.counters[key]
	if !now.Before(c.expiresAt) {
		c.value = 0
	}
	c.value++
	c.expiresAt = now.Add(ttl)
	m.counters[key] = c
	return nil
}

func (m *Memory) PutDedup(_ context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	m.mu.Lock()
	m.dedup[key] = until
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.dedup[key]
	return until, ok, nil
}

func (m *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.At.IsZero() {
		e.At = m.now()
	}
	e.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) RecentAudit(_ context.Context, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]AuditEntry, 0, min(limit, len(m.audit)))
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
