package notifier

import (
	"time"

	kit "zeitslot/internal/transport"
)

// Config controls the async admin alert pipeline.
type Config struct {
	Enabled         bool
	Target          kit.ChatTarget
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Alert is what operators receive when an entry is blocked or fails to send.
type Alert struct {
	EntryID string
	Stage   string // eligibility.BlockStage name, or "transport"
	Reason  string
	Message string // full entry text for review
	At      time.Time
}
