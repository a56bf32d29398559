package app

import (
	"context"
	"errors"
	"fmt"

	"crmbot/internal/config"
	"crmbot/internal/reminder"
	"crmbot/internal/task/scheduler"
)

const (
	JobDeadlineCheck = "deadline-check"
	JobDailySummary  = "daily-summary"
)

// Jobs is the part of the notification API the scheduler drives.
type Jobs interface {
	CheckTaskDeadlines(ctx context.Context) reminder.ScanResult
	SendDailySummary(ctx context.Context) reminder.SummaryResult
}

var (
	errScanFailed    = errors.New("deadline scan failed")
	errSummaryFailed = errors.New("daily summary failed")
)

// registerJobs (re)registers both jobs from cfg. Registration is an upsert by
// name, so it is also used on config reload.
func registerJobs(s *scheduler.Service, jobs Jobs, cfg *config.Config) error {
	err := s.AddSchedule(JobDeadlineCheck, cfg.Scheduler.DeadlineCheck, 0, func(ctx context.Context) error {
		res := jobs.CheckTaskDeadlines(ctx)
		if !res.Success {
			return errScanFailed
		}
		if res.Errors > 0 {
			return fmt.Errorf("deadline scan: %d of %d reminders failed", res.Errors, res.Errors+res.Sent)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scheduler.deadline_check: %w", err)
	}

	err = s.AddDaily(JobDailySummary, cfg.Scheduler.DailySummary, 0, func(ctx context.Context) error {
		if res := jobs.SendDailySummary(ctx); !res.Success {
			return errSummaryFailed
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scheduler.daily_summary: %w", err)
	}
	return nil
}
