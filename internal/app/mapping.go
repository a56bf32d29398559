package app

import (
	"strings"
	"time"

	"crmbot/internal/config"
	"crmbot/internal/domain"
	"crmbot/internal/httpapi"
	"crmbot/internal/notifier"
	"crmbot/internal/reminder"
	"crmbot/internal/storage"
	"crmbot/internal/task/scheduler"
	"crmbot/internal/transport/telegram/botapi"
	logx "crmbot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

// Durations below were validated by config.Validate, so parse errors are not
// expected here; the defaults apply to empty values.

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		DSN:         strings.TrimSpace(cfg.Storage.DSN),
		BusyTimeout: busy,
		MaxConns:    cfg.Storage.MaxConns,
	}
}

func mapBotAPIConfig(cfg *config.Config) botapi.Config {
	timeout, _ := config.ParseDurationOrDefault("telegram.request_timeout", cfg.Telegram.RequestTimeout, config.DefaultRequestTimeout)
	return botapi.Config{URL: cfg.Telegram.APIURL, Timeout: timeout}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	timeout, _ := config.ParseDurationOrDefault("telegram.request_timeout", cfg.Telegram.RequestTimeout, config.DefaultRequestTimeout)
	return notifier.Config{RatePerSec: cfg.Telegram.RatePerSec, Timeout: timeout}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	timeout, _ := config.ParseDurationOrDefault("scheduler.job_timeout", cfg.Scheduler.JobTimeout, config.DefaultJobTimeout)
	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Timezone:       strings.TrimSpace(cfg.Scheduler.Timezone),
		DefaultTimeout: timeout,
	}
}

func mapLedgerConfig(cfg *config.Config) reminder.LedgerConfig {
	ttl, _ := config.ParseDurationOrDefault("reminders.ledger_ttl", cfg.Reminders.LedgerTTL, config.DefaultLedgerTTL)
	return reminder.LedgerConfig{Kind: cfg.Reminders.Ledger, TTL: ttl}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	rt, _ := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	wt, _ := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 30*time.Second)
	it, _ := config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, 60*time.Second)
	return httpapi.Config{Addr: cfg.HTTP.Addr, ReadTimeout: rt, WriteTimeout: wt, IdleTimeout: it}
}

// redisClient returns nil when no redis section is configured.
func redisClient(cfg *config.Config) *redis.Client {
	if cfg.Redis == nil || strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// seedSettings are the values of a freshly created settings row: inactive,
// every notification kind on, credentials and offsets from config.
func seedSettings(cfg *config.Config) domain.NotificationSettings {
	st := notifier.DefaultSettings()
	st.BotToken = strings.TrimSpace(cfg.Telegram.Token)
	st.ChatID = strings.TrimSpace(cfg.Telegram.ChatID)
	if len(cfg.Reminders.DefaultHours) > 0 {
		st.TaskReminderHours = append([]int(nil), cfg.Reminders.DefaultHours...)
	}
	return st
}

func location(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
