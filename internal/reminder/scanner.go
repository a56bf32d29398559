package reminder

import (
	"context"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/messages"
	"crmbot/internal/metrics"
	"crmbot/internal/notifier"
	"crmbot/internal/storage"
	logx "crmbot/pkg/logx"
)

// Tolerance is the half-width of the window around now+offset.
const Tolerance = 15 * time.Minute

// SettingsGetter returns the current notification settings.
type SettingsGetter interface {
	Get(ctx context.Context) (domain.NotificationSettings, error)
}

// Sender delivers one message; see notifier.Sender.
type Sender interface {
	Send(ctx context.Context, token, chatID, text string, opts ...notifier.SendOption) bool
}

type ScanResult struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Errors  int  `json:"errors"`
}

type Scanner struct {
	settings SettingsGetter
	tasks    storage.TaskReader
	sender   Sender
	format   messages.Formatter
	ledger   Ledger
	log      logx.Logger
}

// NewScanner wires a deadline scanner. ledger may be nil (no dedup).
func NewScanner(settings SettingsGetter, tasks storage.TaskReader, sender Sender, format messages.Formatter, ledger Ledger, log logx.Logger) *Scanner {
	if ledger == nil {
		ledger = NoLedger{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scanner{
		settings: settings,
		tasks:    tasks,
		sender:   sender,
		format:   format,
		ledger:   ledger,
		log:      log.With(logx.Component("reminder.scanner")),
	}
}

// Window returns the inclusive due-date range matched for offset hours at now.
func Window(now time.Time, hours int) (from, to time.Time) {
	target := now.Add(time.Duration(hours) * time.Hour)
	return target.Add(-Tolerance), target.Add(Tolerance)
}

// ScanAndNotify sends one reminder per non-completed task whose due date falls
// inside the window of any configured offset. Offsets are independent: without
// a ledger a task inside two overlapping windows is reminded twice.
func (s *Scanner) ScanAndNotify(ctx context.Context, now time.Time) ScanResult {
	st, err := s.settings.Get(ctx)
	if err != nil {
		s.log.Error("deadline scan failed: settings unavailable", logx.Err(err))
		return ScanResult{Success: false, Sent: 0, Errors: 1}
	}
	if !st.RemindersEnabled() {
		s.log.Debug("deadline scan skipped",
			logx.Bool("active", st.IsActive),
			logx.Bool("configured", st.Configured()),
			logx.Bool("deadlines", st.NotifyTaskDeadlines),
		)
		return ScanResult{Success: true}
	}

	res := ScanResult{Success: true}
	for _, h := range st.TaskReminderHours {
		if h <= 0 {
			continue
		}
		from, to := Window(now, h)
		tasks, err := s.tasks.ListTasks(ctx, storage.TaskQuery{
			DueFrom:         from,
			DueTo:           to,
			ExcludeStatuses: []domain.TaskStatus{domain.TaskCompleted},
		})
		if err != nil {
			s.log.Error("deadline query failed", logx.Int("hours", h), logx.Err(err))
			res.Errors++
			continue
		}

		for _, t := range tasks {
			if t.Status == domain.TaskCompleted {
				continue
			}
			key := ReminderKey(t)
			if !s.ledger.Acquire(ctx, key) {
				metrics.IncReminderSuppressed()
				s.log.Debug("reminder already sent", logx.Int64("task_id", t.ID), logx.Int("hours", h))
				continue
			}
			text := s.format.DeadlineReminder(t, h)
			if s.sender.Send(ctx, st.BotToken, st.ChatID, text, notifier.WithKind(notifier.KindReminder)) {
				res.Sent++
				continue
			}
			s.ledger.Release(ctx, key)
			res.Errors++
		}
	}

	s.log.Info("deadline scan finished",
		logx.Int("offsets", len(st.TaskReminderHours)),
		logx.Int("sent", res.Sent),
		logx.Int("errors", res.Errors),
	)
	return res
}
