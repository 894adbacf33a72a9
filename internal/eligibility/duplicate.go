package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultDuplicateWindow is how far back a delivered message counts as a duplicate.
const DefaultDuplicateWindow = 24 * time.Hour

// Duplicate describes a match found by FindDuplicate.
type Duplicate struct {
	Found   bool
	EntryID string
	SentAt  time.Time
	Reason  string
}

// NormalizeMessage trims, case-folds and collapses internal whitespace.
func NormalizeMessage(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FindDuplicate reports whether another entry in all delivered the same
// message within window before now. A send exactly window ago is outside. Only successful sends count; the first
// match in iteration order wins.
func FindDuplicate(message string, all []Entry, selfID string, now time.Time, window time.Duration) Duplicate {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	want := NormalizeMessage(message)
	if want == "" {
		return Duplicate{}
	}
	from := now.Add(-window)
	for _, e := range all {
		if e.ID == selfID {
			continue
		}
		sent, ok := e.LastFire.SentTime()
		if !ok || !sent.After(from) || sent.After(now) {
			continue
		}
		if NormalizeMessage(e.Message) != want {
			continue
		}
		return Duplicate{
			Found:   true,
			EntryID: e.ID,
			SentAt:  sent,
			Reason:  fmt.Sprintf("same message already sent by entry %s %s", e.ID, humanize.RelTime(sent, now, "ago", "from now")),
		}
	}
	return Duplicate{}
}
