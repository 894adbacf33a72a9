package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "zeitslot/pkg/logx"
)

// Validate checks values that can be judged without building components:
// durations, ranges, enumerations and the timezone. Expressions and cron
// specs are checked by the components that compile them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	nonNeg := func(path string, v int) {
		if v < 0 {
			add(fmt.Errorf("%s must be >= 0", path))
		}
	}
	ratio := func(path string, v float64) {
		if v < 0 || v > 1 {
			add(fmt.Errorf("%s must be within [0,1]", path))
		}
	}

	t := cfg.Telegram
	dur("telegram.timeout", t.Timeout)
	switch strings.ToUpper(strings.TrimSpace(t.ParseMode)) {
	case "", "HTML", "MARKDOWN", "MARKDOWNV2":
	default:
		add(fmt.Errorf("telegram.parse_mode: unknown %q", t.ParseMode))
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown %q", cfg.Logging.Level))
	}

	s := cfg.Scheduler
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	dur("scheduler.startup_jitter", s.StartupJitter)
	dur("scheduler.timeout", s.Timeout)

	p := cfg.Policy
	nonNeg("policy.max_length", p.MaxLength)
	nonNeg("policy.max_urls", p.MaxURLs)
	nonNeg("policy.digit_run", p.DigitRun)
	nonNeg("policy.repeat_run", p.RepeatRun)
	ratio("policy.caps_ratio", p.CapsRatio)
	ratio("policy.punctuation_ratio", p.PunctuationRatio)
	if p.StrictDomains && len(p.AllowedDomains) == 0 {
		add(errors.New("policy.strict_domains requires policy.allowed_domains"))
	}
	seen := map[string]bool{}
	for i, r := range p.CustomRules {
		name := strings.TrimSpace(r.Name)
		switch {
		case name == "":
			add(fmt.Errorf("policy.custom_rules[%d].name required", i))
		case seen[name]:
			add(fmt.Errorf("policy.custom_rules[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if strings.TrimSpace(r.Expr) == "" {
			add(fmt.Errorf("policy.custom_rules[%d].expr required", i))
		}
	}

	rl := cfg.RateLimit
	nonNeg("rate_limit.per_hour", rl.PerHour)
	nonNeg("rate_limit.per_day", rl.PerDay)
	dur("rate_limit.hour_ttl", rl.HourTTL)
	dur("rate_limit.day_ttl", rl.DayTTL)

	dur("duplicates.window", cfg.Duplicates.Window)

	if cfg.Poll.Enabled && len(cfg.Poll.Options) > 0 && (len(cfg.Poll.Options) < 2 || len(cfg.Poll.Options) > 10) {
		add(errors.New("poll.options must have 2..10 entries"))
	}

	if n := cfg.Notifier; n != nil {
		nonNeg("notifier.workers", n.Workers)
		nonNeg("notifier.queue_size", n.QueueSize)
		nonNeg("notifier.rate_per_sec", n.RatePerSec)
		nonNeg("notifier.retry_max", n.RetryMax)
		nonNeg("notifier.dedup_max_entries", n.DedupMaxEntries)
		dur("notifier.retry_base", n.RetryBase)
		dur("notifier.retry_max_delay", n.RetryMaxDelay)
		dur("notifier.dedup_window", n.DedupWindow)
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				add(errors.New("storage.path is required when storage.driver=sqlite"))
			}
		case "memory", "mem":
		default:
			add(fmt.Errorf("storage.driver: unknown %q", st.Driver))
		}
		dur("storage.busy_timeout", st.BusyTimeout)
	}

	return errors.Join(errs...)
}
