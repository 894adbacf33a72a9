package eligibility

import (
	"context"
	"fmt"
	"time"

	"zeitslot/pkg/logx"
)

const (
	DefaultPerHour = 3
	DefaultPerDay  = 5
	DefaultHourTTL = time.Hour
	// DefaultDayTTL is shorter than a day: the counter store only keeps keys
	// for six hours, so the daily ceiling is an approximation.
	DefaultDayTTL = 6 * time.Hour
)

// CounterStore is a best-effort key/value counter with per-key expiry.
// Missing or expired keys count as zero.
type CounterStore interface {
	Count(ctx context.Context, key string) (int, error)
	Incr(ctx context.Context, key string, ttl time.Duration) error
}

// RateLimits configures the send ceilings.
type RateLimits struct {
	PerHour int
	PerDay  int
	HourTTL time.Duration
	DayTTL  time.Duration
}

func (l RateLimits) withDefaults() RateLimits {
	if l.PerHour <= 0 {
		l.PerHour = DefaultPerHour
	}
	if l.PerDay <= 0 {
		l.PerDay = DefaultPerDay
	}
	if l.HourTTL <= 0 {
		l.HourTTL = DefaultHourTTL
	}
	if l.DayTTL <= 0 {
		l.DayTTL = DefaultDayTTL
	}
	return l
}

// RateStatus is the result of a read-only limit check.
type RateStatus struct {
	Allowed   bool
	Reason    string
	HourCount int
	DayCount  int
}

// RateLimiter gates sends on hour and day buckets. Check never mutates;
// Increment is called only after a confirmed send. Check-then-increment is
// not atomic, so overlapping invocations may overshoot a ceiling.
type RateLimiter struct {
	store  CounterStore
	limits RateLimits
	log    logx.Logger
}

func NewRateLimiter(store CounterStore, limits RateLimits, log logx.Logger) *RateLimiter {
	return &RateLimiter{store: store, limits: limits.withDefaults(), log: log}
}

func (r *RateLimiter) Limits() RateLimits { return r.limits }

// HourKey and DayKey name the calendar buckets containing t.
func HourKey(t time.Time) string { return "rate:hour:" + t.Format("2006010215") }
func DayKey(t time.Time) string  { return "rate:day:" + t.Format("20060102") }

// Check compares the current bucket counts with the ceilings. Store errors
// fail open.
func (r *RateLimiter) Check(ctx context.Context, now time.Time) RateStatus {
	st := RateStatus{
		HourCount: r.count(ctx, HourKey(now)),
		DayCount:  r.count(ctx, DayKey(now)),
	}
	switch {
	case st.HourCount >= r.limits.PerHour:
		st.Reason = fmt.Sprintf("hourly limit reached (%d/%d)", st.HourCount, r.limits.PerHour)
	case st.DayCount >= r.limits.PerDay:
		st.Reason = fmt.Sprintf("daily limit reached (%d/%d)", st.DayCount, r.limits.PerDay)
	default:
		st.Allowed = true
		st.Reason = fmt.Sprintf("within limits (hour %d/%d, day %d/%d)", st.HourCount, r.limits.PerHour, st.DayCount, r.limits.PerDay)
	}
	return st
}

// Increment counts one successful send in both buckets and refreshes their expiry.
func (r *RateLimiter) Increment(ctx context.Context, now time.Time) {
	if r.store == nil {
		return
	}
	if err := r.store.Incr(ctx, HourKey(now), r.limits.HourTTL); err != nil {
		r.log.Warn("rate counter increment failed", logx.String("bucket", "hour"), logx.Err(err))
	}
	if err := r.store.Incr(ctx, DayKey(now), r.limits.DayTTL); err != nil {
		r.log.Warn("rate counter increment failed", logx.String("bucket", "day"), logx.Err(err))
	}
}

func (r *RateLimiter) count(ctx context.Context, key string) int {
	if r.store == nil {
		return 0
	}
	n, err := r.store.Count(ctx, key)
	if err != nil {
		r.log.Warn("rate counter unavailable, failing open", logx.String("key", key), logx.Err(err))
		return 0
	}
	return n
}
