// Package app wires configuration, storage, the Telegram notification
// service, the scheduler and the HTTP server into one process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"crmbot/internal/config"
	"crmbot/internal/domain"
	"crmbot/internal/httpapi"
	"crmbot/internal/messages"
	"crmbot/internal/notifier"
	"crmbot/internal/reminder"
	"crmbot/internal/runtime/supervisor"
	"crmbot/internal/storage"
	"crmbot/internal/task/scheduler"
	"crmbot/internal/telegram"
	"crmbot/internal/transport/telegram/botapi"
	"crmbot/internal/transport/telegram/router"
	logx "crmbot/pkg/logx"

	"github.com/jmhodges/clock"
	"github.com/redis/go-redis/v9"
)

type App struct {
	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger
	sup  *supervisor.Supervisor

	store  storage.Store
	rdb    *redis.Client
	sender *notifier.Sender
	tg     *telegram.Service
	sched  *scheduler.Service
	http   *httpapi.Server
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.Component("config")))

	a := &App{cfgm: cfgm, logs: logSvc, log: log.With(logx.Component("app"))}
	if err := a.build(ctx, cfg, log); err != nil {
		a.closeResources()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, log logx.Logger) error {
	store, err := storage.Open(ctx, mapStorageConfig(cfg), log.With(logx.Component("storage")))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = store
	a.log.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	a.rdb = redisClient(cfg)
	ledger, err := reminder.NewLedger(mapLedgerConfig(cfg), store, redisCmdable(a.rdb), log)
	if err != nil {
		return fmt.Errorf("reminders: %w", err)
	}

	api := botapi.New(mapBotAPIConfig(cfg), nil)
	a.sender = notifier.NewSender(api, mapNotifierConfig(cfg), log.With(logx.Component("notifier")))
	settings := notifier.NewSettingsSource(store, func() domain.NotificationSettings { return seedSettings(a.cfgm.Get()) }, log)

	loc := location(cfg.Scheduler.Timezone)
	format := messages.Formatter{Location: loc}
	clk := clock.New()

	rt := router.New(router.Deps{
		Settings: settings,
		Tasks:    store,
		Deals:    store,
		Sender:   a.sender,
		Format:   format,
		Clock:    clk,
		Answerer: api,
		Timeout:  30 * time.Second,
		Log:      log,
	})

	a.tg = telegram.New(telegram.Deps{
		Settings:   settings,
		Sender:     a.sender,
		API:        api,
		Scanner:    reminder.NewScanner(settings, store, a.sender, format, ledger, log),
		Summary:    reminder.NewSummaryBuilder(settings, store, a.sender, format, loc, log),
		Router:     rt,
		Format:     format,
		Clock:      clk,
		WebhookURL: func() string { return a.cfgm.Get().Telegram.WebhookURL },
		Log:        log,
	})

	a.sched = scheduler.New(mapSchedulerConfig(cfg), log)
	if err := registerJobs(a.sched, a.tg, cfg); err != nil {
		return err
	}

	a.http = httpapi.New(httpapi.Deps{
		Telegram:   a.tg,
		Records:    store,
		AdminToken: func() string { return a.cfgm.Get().HTTP.AdminToken },
		Log:        log,
	})
	return nil
}

// Seed loads a CRM fixture file into the configured storage.
func (a *App) Seed(ctx context.Context, path string) (storage.SeedReport, error) {
	f, err := storage.LoadSeedFile(path)
	if err != nil {
		return storage.SeedReport{}, err
	}
	rep, err := storage.Seed(ctx, a.store, f, time.Now())
	if err != nil {
		return rep, err
	}
	a.log.Info("storage seeded",
		logx.String("path", path),
		logx.Int("users", rep.Users),
		logx.Int("clients", rep.Clients),
		logx.Int("deals", rep.Deals),
		logx.Int("tasks", rep.Tasks),
	)
	return rep, nil
}

// Telegram exposes the notification API for in-process callers.
func (a *App) Telegram() *telegram.Service { return a.tg }

// Done is closed when the supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.cfgm.SetValidator(func(_ context.Context, next *config.Config) error {
		// Job schedules are checked here so a bad reload keeps the running ones.
		if _, err := scheduler.ParseSchedule(next.Scheduler.DeadlineCheck); err != nil {
			return fmt.Errorf("scheduler.deadline_check: %w", err)
		}
		return nil
	})

	if _, err := a.tg.Settings(ctx); err != nil {
		return fmt.Errorf("notification settings: %w", err)
	}

	if cfg.HTTP.Enabled {
		if err := a.http.Start(mapHTTPConfig(cfg)); err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	sub, unsubscribe := a.cfgm.Subscribe()
	a.sup.Go("config.reload", func(c context.Context) error {
		defer unsubscribe()
		last := cfg
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	sdNotify(a.log, "READY=1")
	a.log.Info("app started",
		logx.Bool("http", cfg.HTTP.Enabled),
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.String("ledger", cfg.Reminders.Ledger),
	)
	return nil
}

// restartRequired lists changed keys that are only read at startup.
func restartRequired(prev, next *config.Config) []string {
	var keys []string
	check := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}
	check("storage", !reflect.DeepEqual(prev.Storage, next.Storage))
	check("redis", !reflect.DeepEqual(prev.Redis, next.Redis))
	check("reminders.ledger", prev.Reminders.Ledger != next.Reminders.Ledger || prev.Reminders.LedgerTTL != next.Reminders.LedgerTTL)
	check("telegram.api_url", prev.Telegram.APIURL != next.Telegram.APIURL)
	check("http.enabled", prev.HTTP.Enabled != next.HTTP.Enabled)
	check("http.addr", prev.HTTP.Addr != next.HTTP.Addr)
	check("scheduler.timezone", prev.Scheduler.Timezone != next.Scheduler.Timezone)
	return keys
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	if keys := restartRequired(prev, next); len(keys) > 0 {
		a.log.Warn("config change requires restart to take effect", logx.String("keys", strings.Join(keys, ",")))
	}

	a.logs.Apply(mapLogConfig(next))
	a.sender.Apply(mapNotifierConfig(next))

	wasEnabled := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(next))
	if err := registerJobs(a.sched, a.tg, next); err != nil {
		a.log.Warn("job schedule update failed", logx.Err(err))
	}
	switch {
	case wasEnabled && !next.Scheduler.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		a.log.Info("scheduler disabled via config")
	case !wasEnabled && next.Scheduler.Enabled:
		a.sched.Start(ctx)
		a.log.Info("scheduler enabled via config")
	}

	a.log.Info("config applied", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

// Stop shuts components down in dependency order, bounding each step.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	sdNotify(a.log, "STOPPING=1")
	a.log.Info("stopping")
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 5*time.Second, a.http.Stop)
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("resources", 2*time.Second, func(context.Context) error { a.closeResources(); return nil })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis close failed", logx.Err(err))
		}
		a.rdb = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
}

// redisCmdable avoids handing a typed nil client to the ledger.
func redisCmdable(c *redis.Client) redis.Cmdable {
	if c == nil {
		return nil
	}
	return c
}
