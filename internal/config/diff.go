package config

import (
	"reflect"
	"sort"
	"strings"

	logx "zeitslot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secrets (the bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := ot.Token != nt.Token
	ot.Token, nt.Token = "", ""
	if tokenChanged || ot != nt {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Int64("telegram.poll_chat_id", nt.PollChatID),
			logx.Bool("telegram.admin_set", nt.AdminChatID != 0),
			logx.String("telegram.parse_mode", nt.ParseMode),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.spec", strings.TrimSpace(newCfg.Scheduler.Spec)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Policy, newCfg.Policy) {
		changed = append(changed, "policy")
		np := newCfg.Policy
		attrs = append(attrs,
			logx.Bool("policy.require_keyword", np.RequireKeyword),
			logx.Int("policy.keywords", len(np.Keywords)),
			logx.Int("policy.blocked_domains", len(np.BlockedDomains)),
			logx.Int("policy.allowed_domains", len(np.AllowedDomains)),
			logx.Bool("policy.strict_domains", np.StrictDomains),
			logx.Int("policy.custom_rules", len(np.CustomRules)),
		)
	}

	if oldCfg.RateLimit != newCfg.RateLimit {
		changed = append(changed, "rate_limit")
		attrs = append(attrs,
			logx.Int("rate_limit.per_hour", newCfg.RateLimit.PerHour),
			logx.Int("rate_limit.per_day", newCfg.RateLimit.PerDay),
		)
	}

	if oldCfg.Duplicates != newCfg.Duplicates {
		changed = append(changed, "duplicates")
		attrs = append(attrs, logx.String("duplicates.window", newCfg.Duplicates.Window))
	}

	if !reflect.DeepEqual(oldCfg.Poll, newCfg.Poll) {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.Bool("poll.enabled", newCfg.Poll.Enabled),
			logx.Int("poll.options", len(newCfg.Poll.Options)),
		)
	}

	// nil means runtime defaults on both sides
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.workers", n.Workers),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.String("notifier.dedup_window", n.DedupWindow),
				logx.Bool("notifier.persist_dedup", n.PersistDedup),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs,
				logx.String("storage.driver", strings.TrimSpace(s.Driver)),
				logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
			)
		}
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
			logx.Bool("metrics.pprof", newCfg.Metrics.Pprof),
			logx.Bool("metrics.token_set", newCfg.Metrics.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
