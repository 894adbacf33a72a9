package eligibility

import "time"

// everyMinuteGap is the minimum distance between two sends of an every-minute entry.
const everyMinuteGap = 60 * time.Second

// IsDue reports whether now is a valid fire instant for an entry anchored at
// scheduledAt with the given rule and last outcome.
//
// now is read in scheduledAt's location so calendar fields line up. A zero
// scheduledAt (malformed source date) is never due.
func IsDue(now, scheduledAt time.Time, rule RepeatRule, last FireState) bool {
	if scheduledAt.IsZero() || rule.Kind == RuleUnknown {
		return false
	}
	now = Normalize(now.In(scheduledAt.Location()))
	at := Normalize(scheduledAt)

	// Minute-level guard: a second invocation in the same minute never re-fires.
	if sent, ok := last.SentTime(); ok && sameMinute(sent, now) {
		return false
	}

	timeMatch := now.Hour() == at.Hour() && now.Minute() == at.Minute()

	switch rule.Kind {
	case RuleOneTime:
		return timeMatch && now.Year() == at.Year() && now.Month() == at.Month() && now.Day() == at.Day()
	case RuleEveryMinute:
		sent, ok := last.SentTime()
		return !ok || now.Sub(Normalize(sent)) >= everyMinuteGap
	case RuleDaily:
		return timeMatch
	case RuleWeekly:
		return timeMatch && now.Weekday() == at.Weekday()
	case RuleMonthly:
		return timeMatch && now.Day() == at.Day()
	case RuleYearly:
		return timeMatch && now.Day() == at.Day() && now.Month() == at.Month()
	case RuleEveryNDays:
		if !timeMatch || rule.N <= 0 {
			return false
		}
		days := calendarDays(at, now)
		return days >= 0 && days%rule.N == 0
	case RuleWeekday:
		return timeMatch && now.Weekday() == rule.Day
	default:
		return false
	}
}
