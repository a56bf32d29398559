package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"crmbot/internal/metrics"
	logx "crmbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.Component("scheduler")),
		// SecondOptional accepts both 5- and 6-field expressions.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Location is the timezone schedules are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

// Apply swaps the config; a timezone change moves every registered schedule
// to a new cron instance. Runs already started on the old instance finish on
// their own and are still awaited by Stop.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	var old *cron.Cron
	if s.c != nil && oldTZ != strings.TrimSpace(cfg.Timezone) {
		old = s.restartLocked()
	}
	s.mu.Unlock()

	if old != nil {
		// Must not be awaited under s.mu: pending fire calls take it.
		old.Stop()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.base, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.loc = s.loadLocationLocked()
	s.c = s.newCronLocked()
	for i := range s.defs {
		s.registerLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering, cancels in-flight runs and waits for them until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel, s.base = nil, nil, nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for running jobs")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// AddSchedule parses schedule (see ParseSchedule) and registers job under name.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecInterval {
		return s.AddInterval(name, ps.Every, timeout, job)
	}
	return s.AddCron(name, ps.Cron, timeout, job)
}

// AddCron registers or replaces the schedule called name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job})
	if s.c != nil {
		s.registerLocked(&s.defs[len(s.defs)-1])
	}
	s.log.Debug("schedule registered",
		logx.String("name", name),
		logx.String("spec", spec),
		logx.Duration("timeout", timeout),
		logx.String("next", s.previewLocked(spec, 3)),
	)
	return nil
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	return s.AddCron(name, "@every "+every.String(), timeout, job)
}

// AddDaily runs job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseClock(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

// Remove unregisters name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: s.timeoutFor(d)}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) registerLocked(d *scheduleDef) {
	def := *d
	id, err := s.c.AddFunc(d.spec, func() { s.fire(def) })
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = id
}

func (s *Service) fire(d scheduleDef) {
	s.mu.Lock()
	base := s.base
	timeout := s.timeoutFor(d)
	s.mu.Unlock()
	if base == nil {
		return
	}
	s.run(base, d.name, timeout, d.job)
}

func (s *Service) timeoutFor(d scheduleDef) time.Duration {
	if d.timeout > 0 {
		return d.timeout
	}
	return s.cfg.DefaultTimeout
}

// run executes one job invocation with timeout, panic recovery, logging and metrics.
func (s *Service) run(ctx context.Context, name string, timeout time.Duration, job Job) (err error) {
	s.wg.Add(1)
	defer s.wg.Done()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	log := s.log.With(logx.String("job", name))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("job panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		took := time.Since(start)
		status := "ok"
		switch {
		case err != nil && errors.Is(err, context.DeadlineExceeded):
			status = "timeout"
		case err != nil:
			status = "error"
		}
		metrics.RecordJobRun(name, status, took)
		if err != nil {
			log.Warn("job failed", logx.String("status", status), logx.Duration("took", took), logx.Err(err))
			return
		}
		log.Debug("job done", logx.Duration("took", took))
	}()

	return job(ctx)
}

func (s *Service) newCronLocked() *cron.Cron {
	return cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
}

// restartLocked starts a replacement cron and returns the old one, which the
// caller stops after releasing s.mu.
func (s *Service) restartLocked() *cron.Cron {
	old := s.c
	s.loc = s.loadLocationLocked()
	s.c = s.newCronLocked()
	for i := range s.defs {
		s.registerLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
	return old
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewLocked lists the next n run times of spec for debug logs.
func (s *Service) previewLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	t := time.Now().In(loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04"))
	}
	return strings.Join(parts, ", ")
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
