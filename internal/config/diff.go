package config

import (
	"reflect"
	"sort"
	"strings"

	logx "crmbot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe log fields
// describing the new values. Secrets are reported only as "_set" booleans.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.APIURL != nt.APIURL || ot.WebhookURL != nt.WebhookURL || ot.ChatID != nt.ChatID ||
		ot.RequestTimeout != nt.RequestTimeout || ot.RatePerSec != nt.RatePerSec ||
		isSet(ot.Token) != isSet(nt.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", isSet(nt.Token)),
			logx.Bool("telegram.webhook_set", isSet(nt.WebhookURL)),
			logx.Int("telegram.rate_per_sec", nt.RatePerSec),
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
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.deadline_check", newCfg.Scheduler.DeadlineCheck),
			logx.String("scheduler.daily_summary", newCfg.Scheduler.DailySummary),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Any("reminders.default_hours", newCfg.Reminders.DefaultHours),
			logx.String("reminders.ledger", newCfg.Reminders.Ledger),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if ost.Driver != nst.Driver || ost.Path != nst.Path || ost.BusyTimeout != nst.BusyTimeout ||
		ost.MaxConns != nst.MaxConns || isSet(ost.DSN) != isSet(nst.DSN) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nst.Driver),
			logx.Bool("storage.dsn_set", isSet(nst.DSN)),
		)
	}

	oh, nh := oldCfg.HTTP, newCfg.HTTP
	if oh.Enabled != nh.Enabled || oh.Addr != nh.Addr || oh.ReadTimeout != nh.ReadTimeout ||
		oh.WriteTimeout != nh.WriteTimeout || oh.IdleTimeout != nh.IdleTimeout ||
		isSet(oh.AdminToken) != isSet(nh.AdminToken) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", nh.Enabled),
			logx.String("http.addr", nh.Addr),
			logx.Bool("http.admin_token_set", isSet(nh.AdminToken)),
		)
	}

	if redisAddr(oldCfg.Redis) != redisAddr(newCfg.Redis) {
		changed = append(changed, "redis")
		attrs = append(attrs, logx.String("redis.addr", redisAddr(newCfg.Redis)))
	}

	sort.Strings(changed)
	return changed, attrs
}

func isSet(s string) bool { return strings.TrimSpace(s) != "" }

func redisAddr(r *RedisConfig) string {
	if r == nil {
		return ""
	}
	return r.Addr
}
