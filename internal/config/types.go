package config

// Config is the file-backed process configuration.
//
// Durations are Go duration strings ("500ms", "10s", "1m"). Sections that are
// pointers may be omitted entirely and then take runtime defaults.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Policy     PolicyConfig     `json:"policy"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Duplicates DuplicatesConfig `json:"duplicates"`
	Poll       PollConfig       `json:"poll"`
	Notifier   *NotifierConfig  `json:"notifier,omitempty"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	APIURL string `json:"api_url,omitempty"`
	// Timeout bounds one Bot API call (default 15s).
	Timeout string `json:"timeout,omitempty"`

	ChatID     int64 `json:"chat_id"`
	ThreadID   int   `json:"thread_id,omitempty"`
	PollChatID int64 `json:"poll_chat_id,omitempty"` // default: chat_id

	AdminChatID   int64 `json:"admin_chat_id,omitempty"`
	AdminThreadID int   `json:"admin_thread_id,omitempty"`

	// ParseMode for entry messages: "", "HTML" or "MarkdownV2".
	ParseMode string `json:"parse_mode,omitempty"`
	// Sanitize strips tags Telegram rejects when parse_mode is HTML.
	Sanitize bool `json:"sanitize,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger.
//
// Defaults: spec "* * * * *", timezone Local, startup_jitter "3s".
type SchedulerConfig struct {
	Enabled       bool   `json:"enabled"`
	Spec          string `json:"spec,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	StartupJitter string `json:"startup_jitter,omitempty"`
	// Timeout bounds one tick (default: none).
	Timeout string `json:"timeout,omitempty"`
}

// PolicyConfig is the content validator policy. Zero numbers take the
// built-in defaults; an omitted list takes the built-in list while an
// explicit empty list disables it.
type PolicyConfig struct {
	RequireKeyword bool     `json:"require_keyword"`
	Keywords       []string `json:"keywords,omitempty"`

	BlockedDomains []string `json:"blocked_domains"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
	StrictDomains  bool     `json:"strict_domains"`

	MaxLength        int     `json:"max_length,omitempty"`
	MaxURLs          int     `json:"max_urls,omitempty"`
	CapsRatio        float64 `json:"caps_ratio,omitempty"`
	PunctuationRatio float64 `json:"punctuation_ratio,omitempty"`
	DigitRun         int     `json:"digit_run,omitempty"`
	RepeatRun        int     `json:"repeat_run,omitempty"`

	SpamPhrases []string     `json:"spam_phrases"`
	CustomRules []CustomRule `json:"custom_rules,omitempty"`
}

// CustomRule is a named CEL expression; see eligibility.CustomRule.
type CustomRule struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// RateLimitConfig: zero values take defaults (3/hour, 5/day, ttl 1h/6h).
type RateLimitConfig struct {
	PerHour int    `json:"per_hour,omitempty"`
	PerDay  int    `json:"per_day,omitempty"`
	HourTTL string `json:"hour_ttl,omitempty"`
	DayTTL  string `json:"day_ttl,omitempty"`
}

type DuplicatesConfig struct {
	Window string `json:"window,omitempty"` // default "24h"
}

// PollConfig is the follow-up poll posted after a message with links.
type PollConfig struct {
	Enabled  bool     `json:"enabled"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// NotifierConfig controls the admin alert pipeline.
//
// If the whole section is omitted, alerts are enabled whenever
// telegram.admin_chat_id is set.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./zeitslot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9464"
	// Pprof mounts /debug/pprof/ on the metrics listener.
	Pprof bool   `json:"pprof,omitempty"`
	Token string `json:"token,omitempty"`
}
