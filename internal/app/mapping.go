package app

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"zeitslot/internal/config"
	"zeitslot/internal/dispatch"
	"zeitslot/internal/eligibility"
	"zeitslot/internal/metrics"
	"zeitslot/internal/notifier"
	"zeitslot/internal/scheduler"
	"zeitslot/internal/storage"
	kit "zeitslot/internal/transport"
	"zeitslot/internal/transport/telegram"
	logx "zeitslot/pkg/logx"
)

const (
	defaultStoragePath   = "./zeitslot.db"
	defaultStartupJitter = 3 * time.Second
	defaultSendTimeout   = 20 * time.Second
	defaultPollQuestion  = "Was this helpful?"
)

var defaultPollOptions = []string{"Yes", "No"}

// mapLogConfig maps logging; a non-empty override replaces logging.level.
func mapLogConfig(cfg *config.Config, levelOverride string) logx.Config {
	level := cfg.Logging.Level
	if levelOverride != "" {
		level = levelOverride
	}
	return logx.Config{
		Level:   level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig: an omitted section means sqlite at ./zeitslot.db.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "sqlite", Path: defaultStoragePath}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapPolicy(pc config.PolicyConfig) eligibility.Policy {
	p := eligibility.DefaultPolicy()
	p.RequireKeyword = pc.RequireKeyword
	p.Keywords = slices.Clone(pc.Keywords)
	// nil keeps the built-in list; an explicit empty list clears it
	if pc.BlockedDomains != nil {
		p.BlockedDomains = slices.Clone(pc.BlockedDomains)
	}
	if pc.SpamPhrases != nil {
		p.SpamPhrases = slices.Clone(pc.SpamPhrases)
	}
	p.AllowedDomains = slices.Clone(pc.AllowedDomains)
	p.StrictDomains = pc.StrictDomains
	if pc.MaxLength > 0 {
		p.MaxLength = pc.MaxLength
	}
	if pc.MaxURLs > 0 {
		p.MaxURLs = pc.MaxURLs
	}
	if pc.CapsRatio > 0 {
		p.CapsRatio = pc.CapsRatio
	}
	if pc.PunctuationRatio > 0 {
		p.PunctuationRatio = pc.PunctuationRatio
	}
	if pc.DigitRun > 0 {
		p.DigitRun = pc.DigitRun
	}
	if pc.RepeatRun > 0 {
		p.RepeatRun = pc.RepeatRun
	}
	for _, r := range pc.CustomRules {
		p.CustomRules = append(p.CustomRules, eligibility.CustomRule{Name: r.Name, Expr: r.Expr})
	}
	return p
}

func mapEngineSettings(cfg *config.Config) (eligibility.Settings, error) {
	s := eligibility.DefaultSettings()
	s.Policy = mapPolicy(cfg.Policy)

	rl := cfg.RateLimit
	hourTTL, err := config.ParseDurationOrDefault("rate_limit.hour_ttl", rl.HourTTL, eligibility.DefaultHourTTL)
	if err != nil {
		return s, err
	}
	dayTTL, err := config.ParseDurationOrDefault("rate_limit.day_ttl", rl.DayTTL, eligibility.DefaultDayTTL)
	if err != nil {
		return s, err
	}
	s.Limits = eligibility.RateLimits{PerHour: rl.PerHour, PerDay: rl.PerDay, HourTTL: hourTTL, DayTTL: dayTTL}
	if s.Limits.PerHour <= 0 {
		s.Limits.PerHour = eligibility.DefaultPerHour
	}
	if s.Limits.PerDay <= 0 {
		s.Limits.PerDay = eligibility.DefaultPerDay
	}

	s.DuplicateWindow, err = config.ParseDurationOrDefault("duplicates.window", cfg.Duplicates.Window, eligibility.DefaultDuplicateWindow)
	if err != nil {
		return s, err
	}
	return s, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	target := kit.ChatTarget{ChatID: cfg.Telegram.AdminChatID, ThreadID: cfg.Telegram.AdminThreadID}
	out := notifier.Config{
		Enabled:         target.ChatID != 0,
		Target:          target,
		Workers:         2,
		QueueSize:       256,
		RatePerSec:      1,
		RetryMax:        3,
		RetryBase:       500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		DedupWindow:     10 * time.Minute,
		DedupMaxEntries: 2000,
	}
	n := cfg.Notifier
	if n == nil {
		return out, nil
	}
	out.Enabled = n.Enabled && target.ChatID != 0
	if n.Workers > 0 {
		out.Workers = n.Workers
	}
	if n.QueueSize > 0 {
		out.QueueSize = n.QueueSize
	}
	if n.RatePerSec > 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.RetryMax > 0 {
		out.RetryMax = n.RetryMax
	}
	if n.DedupMaxEntries > 0 {
		out.DedupMaxEntries = n.DedupMaxEntries
	}
	out.PersistDedup = n.PersistDedup

	var err error
	if out.RetryBase, err = config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, out.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, out.RetryMaxDelay); err != nil {
		return out, err
	}
	if out.DedupWindow, err = config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, out.DedupWindow); err != nil {
		return out, err
	}
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationField("scheduler.timeout", cfg.Scheduler.Timeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Spec:     strings.TrimSpace(cfg.Scheduler.Spec),
		Timezone: strings.TrimSpace(cfg.Scheduler.Timezone),
		Timeout:  timeout,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	// "0s" disables the jitter; only an omitted value takes the default
	jitter := defaultStartupJitter
	if raw := strings.TrimSpace(cfg.Scheduler.StartupJitter); raw != "" {
		d, err := config.ParseDurationField("scheduler.startup_jitter", raw)
		if err != nil {
			return dispatch.Config{}, err
		}
		jitter = d
	}
	sendTimeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, defaultSendTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	tg := cfg.Telegram
	out := dispatch.Config{
		Chat:          kit.ChatTarget{ChatID: tg.ChatID, ThreadID: tg.ThreadID},
		ParseMode:     tg.ParseMode,
		StartupJitter: jitter,
		EntryTimeout:  sendTimeout,
		Poll: dispatch.PollConfig{
			Enabled:  cfg.Poll.Enabled,
			Question: strings.TrimSpace(cfg.Poll.Question),
			Options:  slices.Clone(cfg.Poll.Options),
		},
	}
	if tg.PollChatID != 0 {
		out.PollChat = kit.ChatTarget{ChatID: tg.PollChatID}
	}
	if out.Poll.Question == "" {
		out.Poll.Question = defaultPollQuestion
	}
	if len(out.Poll.Options) == 0 {
		out.Poll.Options = slices.Clone(defaultPollOptions)
	}
	return out, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 15*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:    strings.TrimSpace(cfg.Telegram.Token),
		APIURL:   strings.TrimSpace(cfg.Telegram.APIURL),
		Timeout:  timeout,
		Sanitize: cfg.Telegram.Sanitize,
	}, nil
}

func mapMetricsConfig(cfg *config.Config) metrics.ServerConfig {
	addr := strings.TrimSpace(cfg.Metrics.Addr)
	if addr == "" {
		addr = metrics.DefaultAddr
	}
	return metrics.ServerConfig{
		Enabled: cfg.Metrics.Enabled,
		Addr:    addr,
		Pprof:   cfg.Metrics.Pprof,
		Token:   strings.TrimSpace(cfg.Metrics.Token),
	}
}

// loadLocation resolves scheduler.timezone; empty means the host zone.
func loadLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}
