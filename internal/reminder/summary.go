package reminder

import (
	"context"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/messages"
	"crmbot/internal/notifier"
	"crmbot/internal/storage"
	logx "crmbot/pkg/logx"
)

const overdueLimit = 5

type SummaryResult struct {
	Success bool `json:"success"`
	Sent    bool `json:"sent"`
}

type SummaryBuilder struct {
	settings SettingsGetter
	tasks    storage.TaskReader
	sender   Sender
	format   messages.Formatter
	loc      *time.Location
	log      logx.Logger
}

// NewSummaryBuilder wires the daily digest. Day boundaries are computed in loc
// (time.Local when nil).
func NewSummaryBuilder(settings SettingsGetter, tasks storage.TaskReader, sender Sender, format messages.Formatter, loc *time.Location, log logx.Logger) *SummaryBuilder {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SummaryBuilder{
		settings: settings,
		tasks:    tasks,
		sender:   sender,
		format:   format,
		loc:      loc,
		log:      log.With(logx.Component("reminder.summary")),
	}
}

// DayBounds returns [midnight, midnight+24h) of the day containing now in loc.
func DayBounds(now time.Time, loc *time.Location) (start, end time.Time) {
	n := now.In(loc)
	start = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour)
}

// BuildAndSend sends the digest of today's and overdue tasks. Sent reports
// whether Telegram accepted the message.
func (b *SummaryBuilder) BuildAndSend(ctx context.Context, now time.Time) SummaryResult {
	st, err := b.settings.Get(ctx)
	if err != nil {
		b.log.Error("daily summary failed: settings unavailable", logx.Err(err))
		return SummaryResult{}
	}
	if !st.IsActive || !st.Configured() {
		b.log.Debug("daily summary skipped", logx.Bool("active", st.IsActive), logx.Bool("configured", st.Configured()))
		return SummaryResult{Success: true}
	}

	digest, err := b.digest(ctx, now)
	if err != nil {
		b.log.Error("daily summary failed", logx.Err(err))
		return SummaryResult{}
	}

	sent := b.sender.Send(ctx, st.BotToken, st.ChatID, b.format.DailySummary(digest), notifier.WithKind(notifier.KindSummary))
	b.log.Info("daily summary finished",
		logx.Int("today", len(digest.Today)),
		logx.Int("overdue", digest.OverdueTotal),
		logx.Bool("sent", sent),
	)
	return SummaryResult{Success: true, Sent: sent}
}

func (b *SummaryBuilder) digest(ctx context.Context, now time.Time) (messages.Digest, error) {
	start, end := DayBounds(now, b.loc)
	excluded := []domain.TaskStatus{domain.TaskCompleted}

	today, err := b.tasks.ListTasks(ctx, storage.TaskQuery{
		DueFrom:         start,
		DueTo:           end,
		DueToExclusive:  true,
		ExcludeStatuses: excluded,
	})
	if err != nil {
		return messages.Digest{}, err
	}

	overdueQ := storage.TaskQuery{
		DueTo:           start,
		DueToExclusive:  true,
		ExcludeStatuses: excluded,
		Limit:           overdueLimit,
	}
	overdue, err := b.tasks.ListTasks(ctx, overdueQ)
	if err != nil {
		return messages.Digest{}, err
	}
	overdueQ.Limit = 0
	total, err := b.tasks.CountTasks(ctx, overdueQ)
	if err != nil {
		return messages.Digest{}, err
	}

	return messages.Digest{Date: now, Today: today, Overdue: overdue, OverdueTotal: total}, nil
}
