package eligibility

import (
	"fmt"
	"time"
)

// Entry is one schedulable message definition, already normalised by the row source.
type Entry struct {
	ID          string
	ScheduledAt time.Time // zero when the source date was missing or malformed
	Message     string
	Rule        RepeatRule
	Enabled     bool
	LastFire    FireState
}

// FireKind is the persisted outcome of the previous attempt.
type FireKind int

const (
	FireUnset FireKind = iota
	FireSent
	FireError
	FireBlocked
)

func (k FireKind) String() string {
	switch k {
	case FireSent:
		return "sent"
	case FireError:
		return "error"
	case FireBlocked:
		return "blocked"
	default:
		return "unset"
	}
}

// FireState is Unset, Sent(At), Error(Text) or Blocked(Text).
type FireState struct {
	Kind FireKind
	At   time.Time // FireSent only
	Text string    // FireError / FireBlocked only
}

func Unset() FireState                { return FireState{} }
func SentAt(t time.Time) FireState    { return FireState{Kind: FireSent, At: t} }
func Errored(text string) FireState   { return FireState{Kind: FireError, Text: text} }
func BlockedBy(text string) FireState { return FireState{Kind: FireBlocked, Text: text} }

// SentTime returns the last successful send instant, if any.
func (s FireState) SentTime() (time.Time, bool) {
	if s.Kind != FireSent || s.At.IsZero() {
		return time.Time{}, false
	}
	return s.At, true
}

func (s FireState) String() string {
	switch s.Kind {
	case FireSent:
		return "sent@" + s.At.Format(time.RFC3339)
	case FireError, FireBlocked:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Text)
	default:
		return "unset"
	}
}

// BlockStage names the pipeline stage that stopped an entry.
type BlockStage int

const (
	StageNone BlockStage = iota
	StageSchedule
	StageDuplicate
	StageValidation
	StageRateLimit
)

func (s BlockStage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageSchedule:
		return "schedule"
	case StageDuplicate:
		return "duplicate"
	case StageValidation:
		return "validation"
	case StageRateLimit:
		return "rate_limit"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Alertable reports whether operators should hear about a block at this stage.
// Schedule misses are the normal case for almost every entry on every tick.
func (s BlockStage) Alertable() bool {
	return s == StageDuplicate || s == StageValidation || s == StageRateLimit
}

// Decision is the engine's sole output per entry per tick.
type Decision struct {
	EntryID  string
	WillSend bool
	Stage    BlockStage
	Reason   string

	// Verdict is set once the content validator has run.
	Verdict *Verdict
}

// HasURLs reports whether the validated message contained at least one URL.
func (d Decision) HasURLs() bool {
	return d.Verdict != nil && len(d.Verdict.FoundURLs) > 0
}
