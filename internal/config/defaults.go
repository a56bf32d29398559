package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"crmbot/internal/storage"
)

const (
	DefaultAPIURL         = "https://api.telegram.org"
	DefaultRequestTimeout = 10 * time.Second
	DefaultRatePerSec     = 20
	DefaultDeadlineCheck  = "@hourly"
	DefaultDailySummary   = "09:00"
	DefaultJobTimeout     = 2 * time.Minute
	DefaultLedgerTTL      = 48 * time.Hour
	DefaultHTTPAddr       = ":8080"
	DefaultSQLitePath     = "./data/crmbot.db"
)

// DefaultReminderHours are the offsets used when neither config nor settings provide any.
var DefaultReminderHours = []int{24, 1}

// Normalize fills omitted fields with defaults. It never overrides explicit values.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Telegram.APIURL) == "" {
		c.Telegram.APIURL = DefaultAPIURL
	}
	c.Telegram.APIURL = strings.TrimRight(strings.TrimSpace(c.Telegram.APIURL), "/")
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = DefaultRatePerSec
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Scheduler.DeadlineCheck) == "" {
		c.Scheduler.DeadlineCheck = DefaultDeadlineCheck
	}
	if strings.TrimSpace(c.Scheduler.DailySummary) == "" {
		c.Scheduler.DailySummary = DefaultDailySummary
	}
	if len(c.Reminders.DefaultHours) == 0 {
		c.Reminders.DefaultHours = append([]int(nil), DefaultReminderHours...)
	}
	if strings.TrimSpace(c.Reminders.Ledger) == "" {
		c.Reminders.Ledger = "none"
	}
	c.Reminders.Ledger = strings.ToLower(strings.TrimSpace(c.Reminders.Ledger))
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = storage.DriverSQLite
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if d, ok := storage.CanonicalDriver(c.Storage.Driver); ok {
		c.Storage.Driver = d
	}
	if c.Storage.Driver == storage.DriverSQLite && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultSQLitePath
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
}

// Validate checks cross-field constraints and every duration/time string.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.request_timeout", c.Telegram.RequestTimeout)
	add(err)
	_, err = ParseDurationField("scheduler.job_timeout", c.Scheduler.JobTimeout)
	add(err)
	_, err = ParseDurationField("reminders.ledger_ttl", c.Reminders.LedgerTTL)
	add(err)
	_, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add(err)
	_, err = ParseDurationField("http.read_timeout", c.HTTP.ReadTimeout)
	add(err)
	_, err = ParseDurationField("http.write_timeout", c.HTTP.WriteTimeout)
	add(err)
	_, err = ParseDurationField("http.idle_timeout", c.HTTP.IdleTimeout)
	add(err)
	_, _, err = ParseClock("scheduler.daily_summary", c.Scheduler.DailySummary)
	add(err)
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	for i, h := range c.Reminders.DefaultHours {
		if h <= 0 {
			add(fmt.Errorf("reminders.default_hours[%d]: must be > 0, got %d", i, h))
		}
	}
	switch c.Reminders.Ledger {
	case "none", "store":
	case "redis":
		if c.Redis == nil || strings.TrimSpace(c.Redis.Addr) == "" {
			add(errors.New("reminders.ledger=redis requires redis.addr"))
		}
	default:
		add(fmt.Errorf("reminders.ledger: unknown value %q", c.Reminders.Ledger))
	}

	switch d, _ := storage.CanonicalDriver(c.Storage.Driver); d {
	case storage.DriverSQLite:
	case storage.DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn is required for postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown value %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}
