package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"zeitslot/internal/eligibility"
	"zeitslot/internal/eventbus"
	"zeitslot/internal/notifier"
	"zeitslot/internal/storage"
	kit "zeitslot/internal/transport"
	logx "zeitslot/pkg/logx"
)

// Source is the row source: entries in, fire states out.
type Source interface {
	Load(ctx context.Context) ([]eligibility.Entry, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id, text string) error
	MarkBlocked(ctx context.Context, id, text string) error
	// Location is the zone entries are scheduled in; rate buckets and
	// audit times follow it.
	Location() *time.Location
}

// Alerter receives operator alerts. notifier.Service implements it.
type Alerter interface {
	Alert(ctx context.Context, a notifier.Alert) error
}

// Auditor persists decision outcomes. storage.Store implements it.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type PollConfig struct {
	Enabled  bool
	Question string
	Options  []string
}

type Config struct {
	Chat          kit.ChatTarget
	PollChat      kit.ChatTarget // zero: same as Chat
	ParseMode     string
	Poll          PollConfig
	StartupJitter time.Duration
	EntryTimeout  time.Duration // per send call
}

// Report summarizes one tick.
type Report struct {
	TickID   string
	Entries  int
	Sent     int
	Blocked  int
	Errors   int
	Panics   int
	Duration time.Duration
}

// Dispatcher runs ticks: load entries, decide, send, persist, alert, count.
//
// Ticks are serialized; a tick that starts while another is running waits.
type Dispatcher struct {
	tickMu sync.Mutex

	mu  sync.RWMutex
	cfg Config

	engine  *eligibility.Engine
	source  Source
	sender  kit.Sender
	alerter Alerter
	audit   Auditor
	bus     eventbus.Bus
	log     logx.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Deps struct {
	Engine  *eligibility.Engine
	Source  Source
	Sender  kit.Sender
	Alerter Alerter // optional
	Audit   Auditor // optional
	Bus     eventbus.Bus
	Log     logx.Logger
}

func New(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Engine == nil {
		return nil, errors.New("dispatch: engine required")
	}
	if deps.Source == nil {
		return nil, errors.New("dispatch: source required")
	}
	if deps.Sender == nil {
		return nil, errors.New("dispatch: sender required")
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		engine:  deps.Engine,
		source:  deps.Source,
		sender:  deps.Sender,
		alerter: deps.Alerter,
		audit:   deps.Audit,
		bus:     deps.Bus,
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}, nil
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Dispatcher) config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Tick evaluates every entry once. It returns an error only when the row
// source cannot be loaded; per-entry failures are recorded, not returned.
func (d *Dispatcher) Tick(ctx context.Context) (rep Report, err error) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	cfg := d.config()
	rep.TickID = uuid.NewString()
	log := d.log.With(logx.String("tick", rep.TickID))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			rep.Panics++
			log.Error("tick panic recovered", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
		rep.Duration = time.Since(start)
		d.publish(eventbus.TickFinished, eventbus.TickEvent{
			TickID: rep.TickID, Entries: rep.Entries, Sent: rep.Sent,
			Blocked: rep.Blocked, Errors: rep.Errors, Duration: rep.Duration,
		})
	}()

	if cfg.StartupJitter > 0 {
		if err := d.sleep(ctx, rand.N(cfg.StartupJitter)); err != nil {
			return rep, err
		}
	}

	entries, err := d.source.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load entries: %w", err)
	}
	rep.Entries = len(entries)
	now := d.now()
	if loc := d.source.Location(); loc != nil {
		now = now.In(loc)
	}
	d.publish(eventbus.TickStarted, eventbus.TickEvent{TickID: rep.TickID, Entries: len(entries)})
	log.Debug("tick started", logx.Int("entries", len(entries)), logx.Time("now", now))

	for i := range entries {
		if ctx.Err() != nil {
			log.Warn("tick interrupted", logx.Err(ctx.Err()), logx.Int("done", i))
			break
		}
		d.processEntry(ctx, log, cfg, rep.TickID, entries, i, now, &rep)
	}

	if rep.Sent > 0 || rep.Blocked > 0 || rep.Errors > 0 {
		log.Info("tick finished",
			logx.Int("entries", rep.Entries),
			logx.Int("sent", rep.Sent),
			logx.Int("blocked", rep.Blocked),
			logx.Int("errors", rep.Errors),
			logx.Duration("took", time.Since(start)),
		)
	}
	return rep, nil
}

func (d *Dispatcher) processEntry(ctx context.Context, log logx.Logger, cfg Config, tickID string, all []eligibility.Entry, i int, now time.Time, rep *Report) {
	e := all[i]
	defer func() {
		if p := recover(); p != nil {
			rep.Panics++
			rep.Errors++
			log.Error("entry panic recovered",
				logx.String("entry", e.ID),
				logx.Any("panic", p),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	dec := d.engine.Decide(ctx, e, now, all)
	d.publish(eventbus.Decision, eventbus.DecisionEvent{
		TickID: tickID, EntryID: e.ID, Stage: dec.Stage.String(), WillSend: dec.WillSend, Reason: dec.Reason,
	})

	if !dec.WillSend {
		if dec.Stage == eligibility.StageSchedule {
			return
		}
		rep.Blocked++
		log.Info("entry blocked", logx.String("entry", e.ID), logx.String("stage", dec.Stage.String()), logx.String("reason", dec.Reason))
		d.appendAudit(ctx, log, storage.AuditEntry{
			At: now, TickID: tickID, EntryID: e.ID, Stage: dec.Stage.String(), Reason: dec.Reason, Details: verdictDetails(dec),
		})
		if err := d.source.MarkBlocked(ctx, e.ID, dec.Reason); err != nil {
			log.Warn("mark blocked failed", logx.String("entry", e.ID), logx.Err(err))
		}
		if dec.Stage.Alertable() {
			d.alert(ctx, log, notifier.Alert{EntryID: e.ID, Stage: dec.Stage.String(), Reason: dec.Reason, Message: e.Message, At: now})
		}
		return
	}

	callCtx := ctx
	if cfg.EntryTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.EntryTimeout)
		defer cancel()
	}
	_, err := d.sender.SendText(callCtx, cfg.Chat, e.Message, &kit.SendOptions{ParseMode: cfg.ParseMode})
	if err != nil {
		rep.Errors++
		reason := err.Error()
		log.Warn("send failed", logx.String("entry", e.ID), logx.Err(err))
		d.publish(eventbus.SendResult, eventbus.SendEvent{TickID: tickID, EntryID: e.ID, OK: false, Error: reason})
		d.appendAudit(ctx, log, storage.AuditEntry{
			At: now, TickID: tickID, EntryID: e.ID, Stage: "transport", Reason: reason, Details: verdictDetails(dec),
		})
		if err := d.source.MarkError(ctx, e.ID, reason); err != nil {
			log.Warn("mark error failed", logx.String("entry", e.ID), logx.Err(err))
		}
		d.alert(ctx, log, notifier.Alert{EntryID: e.ID, Stage: "transport", Reason: reason, Message: e.Message, At: now})
		return
	}

	rep.Sent++
	// Later entries in this tick see the send for duplicate detection.
	all[i].LastFire = eligibility.SentAt(now)
	d.engine.RecordSend(ctx, now)
	d.publish(eventbus.SendResult, eventbus.SendEvent{TickID: tickID, EntryID: e.ID, OK: true})
	d.appendAudit(ctx, log, storage.AuditEntry{
		At: now, TickID: tickID, EntryID: e.ID, Stage: eligibility.StageNone.String(), Reason: dec.Reason, OK: true, Details: verdictDetails(dec),
	})
	if err := d.source.MarkSent(ctx, e.ID, now); err != nil {
		log.Warn("mark sent failed", logx.String("entry", e.ID), logx.Err(err))
	}
	log.Info("entry sent", logx.String("entry", e.ID), logx.String("reason", dec.Reason))

	if dec.HasURLs() && cfg.Poll.Enabled {
		d.sendPoll(ctx, log, cfg, tickID, e.ID)
	}
}

func (d *Dispatcher) sendPoll(ctx context.Context, log logx.Logger, cfg Config, tickID, entryID string) {
	to := cfg.PollChat
	if to.IsZero() {
		to = cfg.Chat
	}
	_, err := d.sender.SendPoll(ctx, to, cfg.Poll.Question, cfg.Poll.Options)
	ev := eventbus.SendEvent{TickID: tickID, EntryID: entryID, OK: err == nil}
	if err != nil {
		ev.Error = err.Error()
		log.Warn("poll failed", logx.String("entry", entryID), logx.Err(err))
	}
	d.publish(eventbus.PollResult, ev)
}

func (d *Dispatcher) alert(ctx context.Context, log logx.Logger, a notifier.Alert) {
	if d.alerter == nil {
		return
	}
	if err := d.alerter.Alert(ctx, a); err != nil && !errors.Is(err, notifier.ErrDisabled) {
		log.Warn("admin alert not queued", logx.String("entry", a.EntryID), logx.String("stage", a.Stage), logx.Err(err))
	}
}

func (d *Dispatcher) appendAudit(ctx context.Context, log logx.Logger, e storage.AuditEntry) {
	if d.audit == nil {
		return
	}
	if err := d.audit.AppendAudit(ctx, e); err != nil {
		log.Debug("audit append failed", logx.String("entry", e.EntryID), logx.Err(err))
	}
}

func (d *Dispatcher) publish(t eventbus.Type, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: t, Data: data})
}

func verdictDetails(dec eligibility.Decision) string {
	if dec.Verdict == nil {
		return ""
	}
	v := dec.Verdict
	out := make([]string, 0, len(v.Details)+len(v.FoundURLs)+len(v.BlockedDomains))
	out = append(out, v.Details...)
	for _, u := range v.FoundURLs {
		out = append(out, "url: "+u)
	}
	for _, b := range v.BlockedDomains {
		out = append(out, "blocked: "+b)
	}
	return strings.Join(out, "; ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
