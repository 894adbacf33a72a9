package eligibility

import "time"

// Normalize truncates t to minute granularity (seconds and below zeroed).
// All schedule comparisons go through it so trigger jitter inside a minute
// never changes a match.
func Normalize(t time.Time) time.Time {
	// Zone offsets are whole minutes, so absolute truncation equals wall-clock truncation.
	return t.Truncate(time.Minute)
}

// sameMinute compares two instants at minute granularity.
func sameMinute(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}

// calendarDays returns the whole calendar days from a to b (b later => positive),
// ignoring wall-clock time and DST shifts. Both are read in their own locations.
func calendarDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}
