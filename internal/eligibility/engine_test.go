package eligibility

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"zeitslot/pkg/logx"
)

type memCounters struct {
	mu   sync.Mutex
	vals map[string]int
	err  error
}

func newMemCounters() *memCounters { return &memCounters{vals: map[string]int{}} }

func (m *memCounters) Count(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.vals[key], nil
}

func (m *memCounters) Incr(_ context.Context, key string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.vals[key]++
	return nil
}

func newTestEngine(t *testing.T, store CounterStore) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultSettings(), store, logx.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestDuplicateWithinWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "a", Message: "  Hello   World ", LastFire: SentAt(now.Add(-2 * time.Hour))},
		{ID: "b", Message: "hello world"},
	}
	dup := FindDuplicate(entries[1].Message, entries, "b", now, DefaultDuplicateWindow)
	if !dup.Found || dup.EntryID != "a" {
		t.Fatalf("want duplicate of a, got %+v", dup)
	}
	if !strings.Contains(dup.Reason, "2 hours ago") {
		t.Fatalf("reason = %q", dup.Reason)
	}

	entries[0].LastFire = SentAt(now.Add(-30 * time.Hour))
	if dup := FindDuplicate(entries[1].Message, entries, "b", now, DefaultDuplicateWindow); dup.Found {
		t.Fatalf("30h old send must not count, got %+v", dup)
	}
}

func TestDuplicateWindowExcludesFarEdge(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "yesterday", Message: "Guten Morgen", LastFire: SentAt(now.Add(-24 * time.Hour))},
		{ID: "today", Message: "Guten Morgen"},
	}
	if dup := FindDuplicate("Guten Morgen", entries, "today", now, DefaultDuplicateWindow); dup.Found {
		t.Fatalf("send exactly one window ago must not count, got %+v", dup)
	}
	entries[0].LastFire = SentAt(now.Add(-24*time.Hour + time.Minute))
	if dup := FindDuplicate("Guten Morgen", entries, "today", now, DefaultDuplicateWindow); !dup.Found {
		t.Fatal("send inside the window must count")
	}
}

func TestDuplicateIgnoresFailedAndSelf(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "a", Message: "same", LastFire: Errored("timeout")},
		{ID: "b", Message: "same", LastFire: BlockedBy("spam")},
		{ID: "c", Message: "same", LastFire: SentAt(now.Add(-time.Minute))},
	}
	if dup := FindDuplicate("same", entries, "c", now, DefaultDuplicateWindow); dup.Found {
		t.Fatalf("got %+v", dup)
	}
	if dup := FindDuplicate("same", entries, "a", now, DefaultDuplicateWindow); !dup.Found || dup.EntryID != "c" {
		t.Fatalf("got %+v", dup)
	}
}

func TestDuplicateFirstMatchWins(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "x", Message: "hi", LastFire: SentAt(now.Add(-3 * time.Hour))},
		{ID: "y", Message: "hi", LastFire: SentAt(now.Add(-1 * time.Hour))},
		{ID: "z", Message: "hi"},
	}
	if dup := FindDuplicate("hi", entries, "z", now, DefaultDuplicateWindow); dup.EntryID != "x" {
		t.Fatalf("got %+v", dup)
	}
}

func TestRateLimiterHourlyCeiling(t *testing.T) {
	t.Parallel()
	store := newMemCounters()
	rl := NewRateLimiter(store, RateLimits{}, logx.Nop())
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 18, 10, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if st := rl.Check(ctx, now); !st.Allowed {
			t.Fatalf("attempt %d: want allowed, got %+v", i+1, st)
		}
		rl.Increment(ctx, now.Add(time.Duration(i)*time.Minute))
	}
	st := rl.Check(ctx, now.Add(20*time.Minute))
	if st.Allowed || !strings.Contains(st.Reason, "hourly") {
		t.Fatalf("4th attempt: got %+v", st)
	}
	if st.HourCount != 3 || st.DayCount != 3 {
		t.Fatalf("counts = %d/%d", st.HourCount, st.DayCount)
	}
	// Next hour bucket starts empty, day bucket still counts.
	if st := rl.Check(ctx, now.Add(time.Hour)); !st.Allowed || st.DayCount != 3 {
		t.Fatalf("next hour: got %+v", st)
	}
}

func TestRateLimiterDailyCeiling(t *testing.T) {
	t.Parallel()
	store := newMemCounters()
	rl := NewRateLimiter(store, RateLimits{}, logx.Nop())
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	for h := 0; h < 5; h++ {
		rl.Increment(ctx, base.Add(time.Duration(h)*time.Hour))
	}
	st := rl.Check(ctx, base.Add(6*time.Hour))
	if st.Allowed || !strings.Contains(st.Reason, "daily") {
		t.Fatalf("got %+v", st)
	}
}

func TestRateLimiterCheckDoesNotMutate(t *testing.T) {
	t.Parallel()
	store := newMemCounters()
	rl := NewRateLimiter(store, RateLimits{}, logx.Nop())
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rl.Check(context.Background(), now)
	}
	if len(store.vals) != 0 {
		t.Fatalf("check mutated store: %v", store.vals)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	t.Parallel()
	store := newMemCounters()
	store.err = errors.New("store down")
	rl := NewRateLimiter(store, RateLimits{PerHour: 1, PerDay: 1}, logx.Nop())
	if st := rl.Check(context.Background(), time.Now()); !st.Allowed {
		t.Fatalf("want fail-open, got %+v", st)
	}
}

func TestDecideEndToEnd(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, newMemCounters())
	now := time.Date(2026, 5, 4, 18, 0, 12, 0, time.UTC)
	entry := Entry{
		ID:          "row-2",
		ScheduledAt: Normalize(now),
		Message:     "test zeitslot",
		Rule:        RepeatRule{Kind: RuleDaily},
		Enabled:     true,
	}
	d := e.Decide(context.Background(), entry, now, []Entry{entry})
	if !d.WillSend || d.Stage != StageNone {
		t.Fatalf("got %+v", d)
	}
	if d.Verdict == nil || !d.Verdict.Valid {
		t.Fatalf("verdict = %+v", d.Verdict)
	}
}

func TestDecideStages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	base := Entry{ID: "e1", ScheduledAt: now, Message: "hello team", Rule: RepeatRule{Kind: RuleDaily}, Enabled: true}

	disabled := base
	disabled.Enabled = false
	empty := base
	empty.Message = "   "
	notDue := base
	notDue.ScheduledAt = now.Add(time.Hour)
	spam := base
	spam.Message = "ALL CAPS SHOUTING"
	other := Entry{ID: "e0", Message: "Hello  Team", LastFire: SentAt(now.Add(-time.Hour))}

	tests := []struct {
		name  string
		entry Entry
		all   []Entry
		stage BlockStage
	}{
		{"disabled", disabled, nil, StageSchedule},
		{"empty", empty, nil, StageSchedule},
		{"not due", notDue, nil, StageSchedule},
		{"duplicate", base, []Entry{other, base}, StageDuplicate},
		{"spam", spam, nil, StageValidation},
	}
	e := newTestEngine(t, newMemCounters())
	for _, tt := range tests {
		d := e.Decide(ctx, tt.entry, now, tt.all)
		if d.WillSend || d.Stage != tt.stage || d.Reason == "" {
			t.Fatalf("%s: got %+v", tt.name, d)
		}
	}
}

func TestDecideRateLimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEngine(t, newMemCounters())
	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	entry := Entry{ID: "e1", ScheduledAt: now, Message: "status update", Rule: RepeatRule{Kind: RuleDaily}, Enabled: true}
	for i := 0; i < 3; i++ {
		e.RecordSend(ctx, now)
	}
	d := e.Decide(ctx, entry, now, nil)
	if d.WillSend || d.Stage != StageRateLimit || !d.Stage.Alertable() {
		t.Fatalf("got %+v", d)
	}
}

func TestApplyKeepsPreviousOnError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, newMemCounters())
	bad := DefaultSettings()
	bad.Policy.CustomRules = []CustomRule{{Name: "x", Expr: "??"}}
	if err := e.Apply(bad); err == nil {
		t.Fatal("want error")
	}
	if e.Validator() == nil {
		t.Fatal("validator lost after failed apply")
	}
}
