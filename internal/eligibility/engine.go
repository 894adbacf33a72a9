package eligibility

import (
	"context"
	"sync/atomic"
	"time"

	"zeitslot/pkg/logx"
)

// Settings is everything the engine needs beyond the entries themselves.
type Settings struct {
	Policy          Policy
	Limits          RateLimits
	DuplicateWindow time.Duration
}

// DefaultSettings returns the built-in policy and limits.
func DefaultSettings() Settings {
	return Settings{
		Policy:          DefaultPolicy(),
		Limits:          RateLimits{}.withDefaults(),
		DuplicateWindow: DefaultDuplicateWindow,
	}
}

type engineState struct {
	validator *Validator
	limiter   *RateLimiter
	window    time.Duration
}

// Engine is the single authority for the per-entry send/block decision.
// It never sends and never increments counters on its own.
type Engine struct {
	store CounterStore
	log   logx.Logger
	state atomic.Pointer[engineState]
}

func NewEngine(s Settings, store CounterStore, log logx.Logger) (*Engine, error) {
	e := &Engine{store: store, log: log}
	if err := e.Apply(s); err != nil {
		return nil, err
	}
	return e, nil
}

// Apply compiles s and swaps it in. On error the previous settings stay active.
func (e *Engine) Apply(s Settings) error {
	v, err := NewValidator(s.Policy)
	if err != nil {
		return err
	}
	window := s.DuplicateWindow
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	e.state.Store(&engineState{
		validator: v,
		limiter:   NewRateLimiter(e.store, s.Limits, e.log.With(logx.String("comp", "ratelimit"))),
		window:    window,
	})
	return nil
}

// Validator exposes the active content validator.
func (e *Engine) Validator() *Validator { return e.state.Load().validator }

// Decide runs Schedule, Duplicate, Validation and RateLimit in order; the
// first failing stage sets Stage and Reason. all is a read-only snapshot of
// every entry in this invocation.
func (e *Engine) Decide(ctx context.Context, entry Entry, now time.Time, all []Entry) Decision {
	st := e.state.Load()
	d := Decision{EntryID: entry.ID, Stage: StageSchedule}

	if !entry.Enabled {
		d.Reason = "entry disabled"
		return d
	}
	if NormalizeMessage(entry.Message) == "" {
		d.Reason = "empty message"
		return d
	}
	if !IsDue(now, entry.ScheduledAt, entry.Rule, entry.LastFire) {
		d.Reason = "not due (" + entry.Rule.String() + ")"
		return d
	}

	d.Stage = StageDuplicate
	if dup := FindDuplicate(entry.Message, all, entry.ID, now, st.window); dup.Found {
		d.Reason = dup.Reason
		return d
	}

	d.Stage = StageValidation
	vd := st.validator.Validate(entry.Message)
	d.Verdict = &vd
	if !vd.Valid {
		d.Reason = vd.Reason
		return d
	}

	d.Stage = StageRateLimit
	if rs := st.limiter.Check(ctx, now); !rs.Allowed {
		d.Reason = rs.Reason
		return d
	}

	d.Stage = StageNone
	d.WillSend = true
	d.Reason = vd.Reason
	return d
}

// RecordSend counts a confirmed successful send against the rate limits.
func (e *Engine) RecordSend(ctx context.Context, now time.Time) {
	e.state.Load().limiter.Increment(ctx, now)
}

// RateStatus reports the current limiter state without mutating it.
func (e *Engine) RateStatus(ctx context.Context, now time.Time) RateStatus {
	return e.state.Load().limiter.Check(ctx, now)
}
