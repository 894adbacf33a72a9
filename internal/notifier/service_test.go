package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"zeitslot/internal/eventbus"
	"zeitslot/internal/storage"
	kit "zeitslot/internal/transport"
	logx "zeitslot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int // fail this many calls first
	texts []string
	sent  chan struct{}
}

func newFakeSender(fails int) *fakeSender {
	return &fakeSender{fails: fails, sent: make(chan struct{}, 16)}
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return kit.MessageRef{}, errors.New("telegram down")
	}
	f.texts = append(f.texts, text)
	f.sent <- struct{}{}
	return kit.MessageRef{ChatID: 1, MessageID: len(f.texts)}, nil
}

func (f *fakeSender) SendPoll(context.Context, kit.ChatTarget, string, []string) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func testConfig() Config {
	return Config{
		Enabled:     true,
		Target:      kit.ChatTarget{ChatID: 42},
		Workers:     1,
		QueueSize:   4,
		RatePerSec:  100,
		RetryMax:    2,
		RetryBase:   time.Millisecond,
		DedupWindow: time.Hour,
	}
}

func waitSent(t *testing.T, f *fakeSender) {
	t.Helper()
	select {
	case <-f.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered")
	}
}

func TestAlertDeliversAndDedups(t *testing.T) {
	t.Parallel()
	f := newFakeSender(0)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(testConfig(), f, logx.Nop(), bus, nil)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	a := Alert{EntryID: "3", Stage: "validation", Reason: "blocked domain: bit.ly", Message: "see https://bit.ly/x <b>"}
	if err := s.Alert(ctx, a); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	waitSent(t, f)

	if err := s.Alert(ctx, a); err != nil {
		t.Fatalf("second Alert: %v", err)
	}

	var deduped bool
	timeout := time.After(2 * time.Second)
	for !deduped {
		select {
		case ev := <-events:
			deduped = ev.Type == eventbus.AlertDeduped
		case <-timeout:
			t.Fatal("no dedup event")
		}
	}
	if f.count() != 1 {
		t.Fatalf("sent %d alerts, want 1", f.count())
	}
	if !strings.Contains(f.texts[0], "&lt;b&gt;") {
		t.Fatalf("message not escaped: %q", f.texts[0])
	}
}

func TestAlertRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	f := newFakeSender(2)
	s := New(testConfig(), f, logx.Nop(), nil, nil)
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.Alert(ctx, Alert{EntryID: "1", Stage: "transport", Reason: "send failed"}); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	waitSent(t, f)
}

func TestAlertDisabledAndStopped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := testConfig()
	cfg.Enabled = false
	if err := New(cfg, newFakeSender(0), logx.Nop(), nil, nil).Alert(ctx, Alert{EntryID: "1"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled err = %v", err)
	}

	cfg = testConfig()
	cfg.Target = kit.ChatTarget{}
	if err := New(cfg, newFakeSender(0), logx.Nop(), nil, nil).Alert(ctx, Alert{EntryID: "1"}); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("no target err = %v", err)
	}

	s := New(testConfig(), newFakeSender(0), logx.Nop(), nil, nil)
	if err := s.Alert(ctx, Alert{EntryID: "1"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started err = %v", err)
	}
}

func TestPersistedDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	cfg := testConfig()
	cfg.PersistDedup = true
	a := Alert{EntryID: "9", Stage: "rate_limit", Reason: "hourly limit reached (3/3)", Message: "hello"}

	// A previous process already alerted on this key.
	if err := st.PutDedup(context.Background(), dedupKey(a), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	f := newFakeSender(0)
	s := New(cfg, f, logx.Nop(), nil, st)
	ctx := context.Background()
	s.Start(ctx)
	if err := s.Alert(ctx, a); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Stop(stopCtx)
	if f.count() != 0 {
		t.Fatalf("persisted dedup ignored: sent %d", f.count())
	}
}

func TestDedupKeyIgnoresReason(t *testing.T) {
	t.Parallel()
	a := Alert{EntryID: "1", Stage: "duplicate", Reason: "same message already sent by entry 2 2 hours ago", Message: "x"}
	b := a
	b.Reason = "same message already sent by entry 2 3 hours ago"
	if dedupKey(a) != dedupKey(b) {
		t.Fatal("reason changed the dedup key")
	}
	b.Stage = "validation"
	if dedupKey(a) == dedupKey(b) {
		t.Fatal("stage did not change the dedup key")
	}
}

func TestRetryDelayBounded(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %s out of range", attempt, d)
		}
	}
}
