package rowsource

import (
	"strings"
	"time"

	"zeitslot/internal/eligibility"
)

// FireStateLayout is the timestamp layout of persisted "Sent:" states.
const FireStateLayout = "2006-01-02 15:04:05"

const (
	prefixSent    = "Sent:"
	prefixError   = "Error:"
	prefixBlocked = "Blocked:"
)

var enabledWords = map[string]bool{
	"true": true, "yes": true, "y": true, "ja": true, "j": true, "x": true, "1": true,
	"on": true, "wahr": true, "aktiv": true, "active": true, "enabled": true,
	"✓": true, "✔": true, "☑": true,
}

// ParseEnabled maps the many spellings operators use for "on" to a boolean.
// Anything else, including empty text, is false.
func ParseEnabled(raw string) bool {
	return enabledWords[strings.ToLower(strings.TrimSpace(raw))]
}

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2.1.2006 15:04",
	"02/01/2006 15:04",
}

// ParseDate reads a scheduled date in loc. Malformed input yields the zero
// time, which the schedule evaluator treats as never due.
func ParseDate(raw string, loc *time.Location) time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if layout == time.RFC3339 {
				t = t.In(loc)
			}
			return t
		}
	}
	return time.Time{}
}

// ParseFireState reads a persisted last-fire state. Empty or unparseable
// text is Unset.
func ParseFireState(raw string, loc *time.Location) eligibility.FireState {
	s := strings.TrimSpace(raw)
	if loc == nil {
		loc = time.Local
	}
	switch {
	case hasPrefixFold(s, prefixSent):
		t, err := time.ParseInLocation(FireStateLayout, strings.TrimSpace(s[len(prefixSent):]), loc)
		if err != nil {
			return eligibility.Unset()
		}
		return eligibility.SentAt(t)
	case hasPrefixFold(s, prefixError):
		return eligibility.Errored(strings.TrimSpace(s[len(prefixError):]))
	case hasPrefixFold(s, prefixBlocked):
		return eligibility.BlockedBy(strings.TrimSpace(s[len(prefixBlocked):]))
	default:
		return eligibility.Unset()
	}
}

// FormatFireState is the inverse of ParseFireState.
func FormatFireState(st eligibility.FireState, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	switch st.Kind {
	case eligibility.FireSent:
		return prefixSent + " " + st.At.In(loc).Format(FireStateLayout)
	case eligibility.FireError:
		return prefixError + " " + oneLine(st.Text)
	case eligibility.FireBlocked:
		return prefixBlocked + " " + oneLine(st.Text)
	default:
		return ""
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
