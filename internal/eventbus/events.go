package eventbus

import "time"

// Type names an event kind.
type Type string

const (
	TickStarted  Type = "tick.started"
	TickFinished Type = "tick.finished"
	Decision     Type = "entry.decision"
	SendResult   Type = "entry.send"
	PollResult   Type = "entry.poll"

	AlertQueued  Type = "alert.queued"
	AlertDeduped Type = "alert.deduped"
	AlertDropped Type = "alert.dropped"
	AlertSent    Type = "alert.sent"
	AlertFailed  Type = "alert.failed"

	ConfigReloaded Type = "config.reloaded"
)

// TickEvent is the payload of TickStarted and TickFinished.
type TickEvent struct {
	TickID   string        `json:"tick_id"`
	Entries  int           `json:"entries"`
	Sent     int           `json:"sent,omitempty"`
	Blocked  int           `json:"blocked,omitempty"`
	Errors   int           `json:"errors,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// DecisionEvent is the payload of Decision.
type DecisionEvent struct {
	TickID   string `json:"tick_id"`
	EntryID  string `json:"entry_id"`
	Stage    string `json:"stage"`
	WillSend bool   `json:"will_send"`
	Reason   string `json:"reason"`
}

// SendEvent is the payload of SendResult and PollResult.
type SendEvent struct {
	TickID  string `json:"tick_id"`
	EntryID string `json:"entry_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// AlertEvent is the payload of the Alert* events.
type AlertEvent struct {
	EntryID string    `json:"entry_id"`
	Stage   string    `json:"stage"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
