package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/messages"
	"crmbot/internal/storage"
	logx "crmbot/pkg/logx"
)

func newSummary(settings SettingsGetter, tasks storage.TaskReader, sender Sender) *SummaryBuilder {
	return NewSummaryBuilder(settings, tasks, sender, messages.Formatter{Location: time.UTC}, time.UTC, logx.Nop())
}

func TestSummary_InactiveNoCall(t *testing.T) {
	t.Parallel()
	s := activeSettings(24)
	s.IsActive = false
	sender := &fakeSender{}
	res := newSummary(fakeSettings{st: s}, nil, sender).BuildAndSend(context.Background(), now)
	if res != (SummaryResult{Success: true, Sent: false}) {
		t.Fatalf("res=%+v", res)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sends=%d", len(sender.sent))
	}
}

func TestSummary_SettingsFailure(t *testing.T) {
	t.Parallel()
	res := newSummary(fakeSettings{err: errors.New("boom")}, nil, &fakeSender{}).BuildAndSend(context.Background(), now)
	if res != (SummaryResult{}) {
		t.Fatalf("res=%+v", res)
	}
}

func TestSummary_TwelveTodaySevenOverdue(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	day, _ := DayBounds(now, time.UTC)
	for i := 1; i <= 12; i++ {
		addTask(t, st, fmt.Sprintf("today-%02d", i), day.Add(8*time.Hour+time.Duration(i)*time.Minute), domain.TaskNew)
	}
	for i := 1; i <= 7; i++ {
		addTask(t, st, fmt.Sprintf("late-%02d", i), day.Add(-time.Duration(8-i)*time.Hour), domain.TaskInProgress)
	}
	addTask(t, st, "finished", day.Add(9*time.Hour), domain.TaskCompleted)
	addTask(t, st, "finished-late", day.Add(-time.Hour), domain.TaskCompleted)
	addTask(t, st, "tomorrow", day.Add(24*time.Hour), domain.TaskNew)

	sender := &fakeSender{}
	res := newSummary(fakeSettings{st: activeSettings(24)}, st, sender).BuildAndSend(context.Background(), now)
	if res != (SummaryResult{Success: true, Sent: true}) {
		t.Fatalf("res=%+v", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sends=%d", len(sender.sent))
	}
	text := sender.sent[0].text

	for i := 1; i <= 10; i++ {
		if !strings.Contains(text, fmt.Sprintf("today-%02d", i)) {
			t.Fatalf("today-%02d missing:\n%s", i, text)
		}
	}
	// Overdue ordered by due date ascending: the five oldest are listed.
	for i := 1; i <= 5; i++ {
		if !strings.Contains(text, fmt.Sprintf("late-%02d", i)) {
			t.Fatalf("late-%02d missing:\n%s", i, text)
		}
	}
	for _, absent := range []string{"today-11", "today-12", "late-06", "late-07", "finished", "tomorrow"} {
		if strings.Contains(text, absent) {
			t.Fatalf("%s must not be listed:\n%s", absent, text)
		}
	}
	if n := strings.Count(text, "+2"); n != 2 {
		t.Fatalf("want two +2 suffixes, got %d:\n%s", n, text)
	}
}

func TestSummary_SendFailureReported(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	sender := &fakeSender{fail: func(string) bool { return true }}
	res := newSummary(fakeSettings{st: activeSettings(24)}, st, sender).BuildAndSend(context.Background(), now)
	if res != (SummaryResult{Success: true, Sent: false}) {
		t.Fatalf("res=%+v", res)
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].text, "На сегодня задач нет") {
		t.Fatalf("sent=%+v", sender.sent)
	}
}

func TestDayBounds(t *testing.T) {
	t.Parallel()
	msk := time.FixedZone("MSK", 3*3600)
	// 22:30 UTC is already the next day in Moscow.
	start, end := DayBounds(time.Date(2025, 3, 10, 22, 30, 0, 0, time.UTC), msk)
	if got := start.Format(time.RFC3339); got != "2025-03-11T00:00:00+03:00" {
		t.Fatalf("start=%s", got)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("span=%s", end.Sub(start))
	}
}
