package eligibility

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RuleKind is the closed set of recurrence kinds.
type RuleKind int

const (
	RuleUnknown RuleKind = iota // never fires
	RuleOneTime
	RuleEveryMinute
	RuleDaily
	RuleWeekly
	RuleMonthly
	RuleYearly
	RuleEveryNDays
	RuleWeekday
)

// RepeatRule is a parsed recurrence policy.
// N is set for RuleEveryNDays, Day for RuleWeekday.
type RepeatRule struct {
	Kind RuleKind
	N    int
	Day  time.Weekday
	Raw  string
}

func (r RepeatRule) String() string {
	switch r.Kind {
	case RuleOneTime:
		return "once"
	case RuleEveryMinute:
		return "every minute"
	case RuleDaily:
		return "daily"
	case RuleWeekly:
		return "weekly"
	case RuleMonthly:
		return "monthly"
	case RuleYearly:
		return "yearly"
	case RuleEveryNDays:
		return fmt.Sprintf("every %d days", r.N)
	case RuleWeekday:
		return "every " + strings.ToLower(r.Day.String())
	default:
		return fmt.Sprintf("unknown(%q)", r.Raw)
	}
}

// allowedEveryNDays is the set of supported day intervals.
var allowedEveryNDays = map[int]bool{2: true, 3: true, 7: true, 14: true}

var ruleWords = map[string]RuleKind{
	"":             RuleOneTime,
	"once":         RuleOneTime,
	"one-time":     RuleOneTime,
	"one time":     RuleOneTime,
	"onetime":      RuleOneTime,
	"none":         RuleOneTime,
	"no":           RuleOneTime,
	"einmalig":     RuleOneTime,
	"nein":         RuleOneTime,
	"every minute": RuleEveryMinute,
	"minutely":     RuleEveryMinute,
	"jede minute":  RuleEveryMinute,
	"minütlich":    RuleEveryMinute,
	"daily":        RuleDaily,
	"every day":    RuleDaily,
	"täglich":      RuleDaily,
	"taeglich":     RuleDaily,
	"jeden tag":    RuleDaily,
	"weekly":       RuleWeekly,
	"every week":   RuleWeekly,
	"wöchentlich":  RuleWeekly,
	"woechentlich": RuleWeekly,
	"monthly":      RuleMonthly,
	"every month":  RuleMonthly,
	"monatlich":    RuleMonthly,
	"yearly":       RuleYearly,
	"annually":     RuleYearly,
	"every year":   RuleYearly,
	"jährlich":     RuleYearly,
	"jaehrlich":    RuleYearly,
}

var weekdayWords = map[string]time.Weekday{
	"monday":     time.Monday,
	"tuesday":    time.Tuesday,
	"wednesday":  time.Wednesday,
	"thursday":   time.Thursday,
	"friday":     time.Friday,
	"saturday":   time.Saturday,
	"sunday":     time.Sunday,
	"montag":     time.Monday,
	"dienstag":   time.Tuesday,
	"mittwoch":   time.Wednesday,
	"donnerstag": time.Thursday,
	"freitag":    time.Friday,
	"samstag":    time.Saturday,
	"sonntag":    time.Sunday,
}

var (
	reEveryNDays = regexp.MustCompile(`^(?:every|alle)\s+(\d{1,3})\s+(?:days|tage)$`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// ParseRule maps free recurrence text to a RepeatRule. It is total:
// unrecognised text yields RuleUnknown, which never fires.
func ParseRule(raw string) RepeatRule {
	s := reSpaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), " ")
	r := RepeatRule{Raw: raw}

	if k, ok := ruleWords[s]; ok {
		r.Kind = k
		return r
	}
	if m := reEveryNDays.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && allowedEveryNDays[n] {
			r.Kind = RuleEveryNDays
			r.N = n
		}
		return r
	}

	day := s
	for _, prefix := range []string{"every ", "jeden ", "jede "} {
		day = strings.TrimPrefix(day, prefix)
	}
	if wd, ok := weekdayWords[day]; ok {
		r.Kind = RuleWeekday
		r.Day = wd
	}
	return r
}
