package eligibility

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestNormalizeTruncatesToMinute(t *testing.T) {
	t.Parallel()
	in := time.Date(2026, 3, 10, 9, 30, 59, 999, time.UTC)
	got := Normalize(in)
	want := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Normalize = %v, want %v", got, want)
	}
}

func TestOneTimeIgnoresLastFireState(t *testing.T) {
	t.Parallel()
	loc := berlin(t)
	at := time.Date(2026, 3, 10, 9, 30, 0, 0, loc)
	rule := RepeatRule{Kind: RuleOneTime}

	states := []FireState{
		Unset(),
		Errored("boom"),
		BlockedBy("spam"),
		SentAt(at.AddDate(0, 0, -1)),
	}
	for _, st := range states {
		if !IsDue(at.Add(42*time.Second), at, rule, st) {
			t.Fatalf("one-time with %v: want due", st)
		}
	}

	misses := []time.Time{
		at.Add(time.Minute),
		at.Add(-time.Minute),
		at.AddDate(0, 0, 1),
		at.AddDate(1, 0, 0),
	}
	for _, now := range misses {
		if IsDue(now, at, rule, Unset()) {
			t.Fatalf("one-time at %v: want not due", now)
		}
	}
}

func TestEveryNDaysMultiples(t *testing.T) {
	t.Parallel()
	loc := berlin(t)
	at := time.Date(2026, 1, 5, 8, 15, 0, 0, loc)

	for _, n := range []int{2, 3, 7, 14} {
		rule := RepeatRule{Kind: RuleEveryNDays, N: n}
		for k := 0; k < 6; k++ {
			now := at.AddDate(0, 0, k*n).Add(17 * time.Second)
			if !IsDue(now, at, rule, Unset()) {
				t.Fatalf("n=%d k=%d (%v): want due", n, k, now)
			}
			off := at.AddDate(0, 0, k*n+1)
			if IsDue(off, at, rule, Unset()) {
				t.Fatalf("n=%d off-day %v: want not due", n, off)
			}
		}
		if IsDue(at.AddDate(0, 0, -n), at, rule, Unset()) {
			t.Fatalf("n=%d before anchor: want not due", n)
		}
	}
}

func TestEveryNDaysAcrossDST(t *testing.T) {
	t.Parallel()
	loc := berlin(t)
	// Clocks move forward on 2026-03-29 in Berlin.
	at := time.Date(2026, 3, 27, 9, 0, 0, 0, loc)
	now := time.Date(2026, 3, 29, 9, 0, 0, 0, loc)
	if !IsDue(now, at, RepeatRule{Kind: RuleEveryNDays, N: 2}, Unset()) {
		t.Fatal("want due two calendar days later despite DST shift")
	}
}

func TestMinuteGuardBlocksEveryVariant(t *testing.T) {
	t.Parallel()
	loc := berlin(t)
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, loc) // a Monday
	now := at.Add(30 * time.Second)
	last := SentAt(at.Add(5 * time.Second))

	rules := []RepeatRule{
		{Kind: RuleOneTime},
		{Kind: RuleEveryMinute},
		{Kind: RuleDaily},
		{Kind: RuleWeekly},
		{Kind: RuleMonthly},
		{Kind: RuleYearly},
		{Kind: RuleEveryNDays, N: 7},
		{Kind: RuleWeekday, Day: time.Monday},
	}
	for _, r := range rules {
		if !IsDue(now, at, r, Unset()) {
			t.Fatalf("%v: want due without prior send", r)
		}
		if IsDue(now, at, r, last) {
			t.Fatalf("%v: want guard to block a second fire in the same minute", r)
		}
	}
}

func TestRecurringVariants(t *testing.T) {
	t.Parallel()
	loc := berlin(t)
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, loc) // Monday

	tests := []struct {
		name string
		rule RepeatRule
		now  time.Time
		want bool
	}{
		{"daily next day", RepeatRule{Kind: RuleDaily}, at.AddDate(0, 0, 1), true},
		{"daily wrong minute", RepeatRule{Kind: RuleDaily}, at.Add(time.Minute), false},
		{"daily before anchor", RepeatRule{Kind: RuleDaily}, at.AddDate(0, 0, -3), true},
		{"weekly next week", RepeatRule{Kind: RuleWeekly}, at.AddDate(0, 0, 7), true},
		{"weekly wrong day", RepeatRule{Kind: RuleWeekly}, at.AddDate(0, 0, 3), false},
		{"monthly next month", RepeatRule{Kind: RuleMonthly}, at.AddDate(0, 1, 0), true},
		{"monthly wrong day", RepeatRule{Kind: RuleMonthly}, at.AddDate(0, 1, 1), false},
		{"yearly next year", RepeatRule{Kind: RuleYearly}, at.AddDate(1, 0, 0), true},
		{"yearly other month", RepeatRule{Kind: RuleYearly}, at.AddDate(1, 1, 0), false},
		{"weekday friday", RepeatRule{Kind: RuleWeekday, Day: time.Friday}, at.AddDate(0, 0, 4), true},
		{"weekday wrong day", RepeatRule{Kind: RuleWeekday, Day: time.Friday}, at.AddDate(0, 0, 5), false},
		{"unknown never", RepeatRule{Kind: RuleUnknown}, at, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(tt.now, at, tt.rule, Unset()); got != tt.want {
				t.Fatalf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEveryMinute(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 6, 2, 7, 41, 10, 0, time.UTC)
	rule := RepeatRule{Kind: RuleEveryMinute}

	if !IsDue(now, at, rule, Unset()) {
		t.Fatal("unset: want due")
	}
	if !IsDue(now, at, rule, SentAt(now.Add(-time.Minute))) {
		t.Fatal("sent previous minute: want due")
	}
	if IsDue(now, at, rule, SentAt(now.Add(-5*time.Second))) {
		t.Fatal("sent this minute: want not due")
	}
	if !IsDue(now, at, rule, Errored("timeout")) {
		t.Fatal("errored: want due")
	}
}

func TestZeroAnchorNeverDue(t *testing.T) {
	t.Parallel()
	if IsDue(time.Now(), time.Time{}, RepeatRule{Kind: RuleEveryMinute}, Unset()) {
		t.Fatal("zero anchor: want not due")
	}
}

func TestNowReadInAnchorLocation(t *testing.T) {
	t.Parallel()
	loc := berlin(t)
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, loc)
	now := at.UTC().AddDate(0, 0, 1) // 10:00 UTC, 12:00 Berlin
	if !IsDue(now, at, RepeatRule{Kind: RuleDaily}, Unset()) {
		t.Fatal("want due when now is given in UTC")
	}
}
