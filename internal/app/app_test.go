package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeitslot/internal/config"
	"zeitslot/internal/eligibility"
	"zeitslot/internal/storage"
	kit "zeitslot/internal/transport"
)

const testConfig = `
telegram:
  chat_id: -100
  admin_chat_id: 7
logging:
  level: error
scheduler:
  enabled: false
  startup_jitter: 0s
notifier:
  enabled: true
  rate_per_sec: 50
storage:
  driver: memory
`

type sent struct {
	to   kit.ChatTarget
	text string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recordingSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.msgs)}, nil
}

func (r *recordingSender) SendPoll(context.Context, kit.ChatTarget, string, []string) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (r *recordingSender) to(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.to.ChatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zeitslot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(writeConfig(t, testConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
}

func TestRunOnceSendsAndAlerts(t *testing.T) {
	t.Parallel()
	snd := &recordingSender{}
	a, err := New(writeConfig(t, testConfig), WithSender(snd))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Store().UpsertEntry(ctx, storage.EntryRow{
		ID: "greet", Position: 1, ScheduledAt: "2026-01-01 09:00", Message: "Guten Morgen", Repeat: "jede minute", Enabled: "ja",
	}))
	require.NoError(t, a.Store().UpsertEntry(ctx, storage.EntryRow{
		ID: "short", Position: 2, ScheduledAt: "2026-01-01 09:00", Message: "see https://bit.ly/abc", Repeat: "jede minute", Enabled: "ja",
	}))

	rep, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Entries)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 1, rep.Blocked)

	assert.Equal(t, []string{"Guten Morgen"}, snd.to(-100))
	alerts := snd.to(7)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "short")

	rows, err := a.Store().ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0].LastState, "Sent")
	assert.Contains(t, rows[1].LastState, "Blocked")

	audit, err := a.Store().RecentAudit(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	a, err := New(writeConfig(t, testConfig), WithSender(&recordingSender{}))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	select {
	case <-a.Done():
		t.Fatal("app stopped right after start")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))
	<-a.Done()
	assert.NoError(t, a.Err())
}

func TestValidateRejectsBrokenRule(t *testing.T) {
	t.Parallel()
	a, err := New(writeConfig(t, testConfig), WithSender(&recordingSender{}))
	require.NoError(t, err)
	defer a.Close()

	cfg := *a.Config()
	cfg.Policy.CustomRules = []config.CustomRule{{Name: "broken", Expr: "text +"}}
	require.Error(t, ValidateConfig(context.Background(), &cfg))

	cfg.Policy.CustomRules = []config.CustomRule{{Name: "ok", Expr: `text.contains("x")`}}
	require.NoError(t, ValidateConfig(context.Background(), &cfg))
}

func TestMapPolicyListSemantics(t *testing.T) {
	t.Parallel()
	p := mapPolicy(config.PolicyConfig{})
	assert.Equal(t, eligibility.DefaultBlockedDomains, p.BlockedDomains)
	assert.Equal(t, eligibility.DefaultSpamPhrases, p.SpamPhrases)
	assert.Equal(t, eligibility.DefaultMaxLength, p.MaxLength)

	p = mapPolicy(config.PolicyConfig{BlockedDomains: []string{}, MaxURLs: 2, CapsRatio: 0.8})
	assert.Empty(t, p.BlockedDomains)
	assert.Equal(t, 2, p.MaxURLs)
	assert.InDelta(t, 0.8, p.CapsRatio, 1e-9)
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	n, err := mapNotifierConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, n.Enabled, "no admin chat, no alerts")

	n, err = mapNotifierConfig(&config.Config{Telegram: config.TelegramConfig{AdminChatID: 5, AdminThreadID: 2}})
	require.NoError(t, err)
	assert.True(t, n.Enabled)
	assert.Equal(t, kit.ChatTarget{ChatID: 5, ThreadID: 2}, n.Target)
	assert.Equal(t, 10*time.Minute, n.DedupWindow)

	n, err = mapNotifierConfig(&config.Config{
		Telegram: config.TelegramConfig{AdminChatID: 5},
		Notifier: &config.NotifierConfig{Enabled: false},
	})
	require.NoError(t, err)
	assert.False(t, n.Enabled)
}

func TestMapStorageAndDispatch(t *testing.T) {
	t.Parallel()
	sc, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, storage.Config{Driver: "sqlite", Path: defaultStoragePath}, sc)

	dc, err := mapDispatchConfig(&config.Config{Telegram: config.TelegramConfig{ChatID: 1, PollChatID: 9}})
	require.NoError(t, err)
	assert.Equal(t, defaultStartupJitter, dc.StartupJitter)
	assert.Equal(t, int64(9), dc.PollChat.ChatID)
	assert.Equal(t, defaultPollOptions, dc.Poll.Options)

	dc, err = mapDispatchConfig(&config.Config{Scheduler: config.SchedulerConfig{StartupJitter: "0s"}})
	require.NoError(t, err)
	assert.Zero(t, dc.StartupJitter)
}
