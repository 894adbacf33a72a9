package eligibility

import (
	"testing"
	"time"
)

func TestParseRule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		kind RuleKind
		n    int
		day  time.Weekday
	}{
		{raw: "", kind: RuleOneTime},
		{raw: "einmalig", kind: RuleOneTime},
		{raw: "Once", kind: RuleOneTime},
		{raw: "every minute", kind: RuleEveryMinute},
		{raw: "  Jede   Minute ", kind: RuleEveryMinute},
		{raw: "täglich", kind: RuleDaily},
		{raw: "DAILY", kind: RuleDaily},
		{raw: "wöchentlich", kind: RuleWeekly},
		{raw: "monthly", kind: RuleMonthly},
		{raw: "jährlich", kind: RuleYearly},
		{raw: "every 3 days", kind: RuleEveryNDays, n: 3},
		{raw: "alle 14 Tage", kind: RuleEveryNDays, n: 14},
		{raw: "every 5 days", kind: RuleUnknown},
		{raw: "Montag", kind: RuleWeekday, day: time.Monday},
		{raw: "every friday", kind: RuleWeekday, day: time.Friday},
		{raw: "jeden Sonntag", kind: RuleWeekday, day: time.Sunday},
		{raw: "whenever", kind: RuleUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseRule(tt.raw)
			if got.Kind != tt.kind {
				t.Fatalf("ParseRule(%q).Kind = %v, want %v", tt.raw, got.Kind, tt.kind)
			}
			if got.N != tt.n {
				t.Fatalf("ParseRule(%q).N = %d, want %d", tt.raw, got.N, tt.n)
			}
			if tt.kind == RuleWeekday && got.Day != tt.day {
				t.Fatalf("ParseRule(%q).Day = %v, want %v", tt.raw, got.Day, tt.day)
			}
			if got.Raw != tt.raw {
				t.Fatalf("Raw = %q, want %q", got.Raw, tt.raw)
			}
		})
	}
}

func TestRuleString(t *testing.T) {
	t.Parallel()
	if s := (RepeatRule{Kind: RuleEveryNDays, N: 7}).String(); s != "every 7 days" {
		t.Fatalf("String = %q", s)
	}
	if s := (RepeatRule{Kind: RuleWeekday, Day: time.Tuesday}).String(); s != "every tuesday" {
		t.Fatalf("String = %q", s)
	}
}
