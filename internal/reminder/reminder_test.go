package reminder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/messages"
	"crmbot/internal/notifier"
	"crmbot/internal/storage"
	logx "crmbot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

type fakeSettings struct {
	st  domain.NotificationSettings
	err error
}

func (f fakeSettings) Get(context.Context) (domain.NotificationSettings, error) { return f.st, f.err }

type sentMsg struct {
	token, chat, text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	fail func(text string) bool
}

func (f *fakeSender) Send(_ context.Context, token, chatID, text string, _ ...notifier.SendOption) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{token, chatID, text})
	if f.fail != nil && f.fail(text) {
		return false
	}
	return true
}

func activeSettings(hours ...int) domain.NotificationSettings {
	return domain.NotificationSettings{
		ID:                  1,
		BotToken:            "T",
		ChatID:              "C",
		IsActive:            true,
		NotifyTaskDeadlines: true,
		TaskReminderHours:   hours,
	}
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "crm.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func addTask(t *testing.T, st storage.Store, title string, due time.Time, status domain.TaskStatus) int64 {
	t.Helper()
	id, err := st.CreateTask(context.Background(), domain.Task{
		Title:    title,
		DueDate:  due,
		Status:   status,
		Priority: domain.PriorityMedium,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return id
}

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newScanner(settings SettingsGetter, tasks storage.TaskReader, sender Sender, ledger Ledger) *Scanner {
	return NewScanner(settings, tasks, sender, messages.Formatter{Location: time.UTC}, ledger, logx.Nop())
}

func TestScan_ExactOffsetScenario(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	addTask(t, st, "Подписать договор", now.Add(24*time.Hour), domain.TaskNew)

	sender := &fakeSender{}
	res := newScanner(fakeSettings{st: activeSettings(24, 1)}, st, sender, nil).ScanAndNotify(context.Background(), now)

	if res != (ScanResult{Success: true, Sent: 1, Errors: 0}) {
		t.Fatalf("res=%+v", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sends=%d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.token != "T" || msg.chat != "C" {
		t.Fatalf("destination=%+v", msg)
	}
	if !strings.Contains(msg.text, "Подписать договор") || !strings.Contains(msg.text, "24 часа") {
		t.Fatalf("text=%s", msg.text)
	}
}

func TestScan_WindowTolerance(t *testing.T) {
	t.Parallel()
	for _, h := range []int{1, 3, 24, 48} {
		for _, tc := range []struct {
			delta time.Duration
			want  int
		}{
			{14 * time.Minute, 1},
			{-14 * time.Minute, 1},
			{15 * time.Minute, 1},
			{-15 * time.Minute, 1},
			{16 * time.Minute, 0},
			{-16 * time.Minute, 0},
		} {
			h, tc := h, tc
			t.Run(fmt.Sprintf("h=%d/delta=%s", h, tc.delta), func(t *testing.T) {
				t.Parallel()
				st := openStore(t)
				addTask(t, st, "x", now.Add(time.Duration(h)*time.Hour+tc.delta), domain.TaskInProgress)
				sender := &fakeSender{}
				res := newScanner(fakeSettings{st: activeSettings(h)}, st, sender, nil).ScanAndNotify(context.Background(), now)
				if res.Sent != tc.want || len(sender.sent) != tc.want {
					t.Fatalf("sent=%d calls=%d want %d", res.Sent, len(sender.sent), tc.want)
				}
			})
		}
	}
}

func TestScan_CompletedNeverSelected(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	for _, h := range []int{1, 24} {
		addTask(t, st, "done", now.Add(time.Duration(h)*time.Hour), domain.TaskCompleted)
	}
	addTask(t, st, "cancelled", now.Add(time.Hour), domain.TaskCancelled)

	sender := &fakeSender{}
	res := newScanner(fakeSettings{st: activeSettings(24, 1)}, st, sender, nil).ScanAndNotify(context.Background(), now)
	if res.Sent != 1 {
		t.Fatalf("res=%+v", res)
	}
	for _, m := range sender.sent {
		if strings.Contains(m.text, "done") {
			t.Fatalf("completed task reminded: %s", m.text)
		}
	}
}

func TestScan_NoopWhenDisabled(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	addTask(t, st, "x", now.Add(time.Hour), domain.TaskNew)

	cases := map[string]func(*domain.NotificationSettings){
		"inactive":     func(s *domain.NotificationSettings) { s.IsActive = false },
		"no token":     func(s *domain.NotificationSettings) { s.BotToken = "" },
		"no chat":      func(s *domain.NotificationSettings) { s.ChatID = "" },
		"no deadlines": func(s *domain.NotificationSettings) { s.NotifyTaskDeadlines = false },
	}
	for name, mutate := range cases {
		s := activeSettings(1)
		mutate(&s)
		sender := &fakeSender{}
		res := newScanner(fakeSettings{st: s}, st, sender, nil).ScanAndNotify(context.Background(), now)
		if res != (ScanResult{Success: true}) || len(sender.sent) != 0 {
			t.Fatalf("%s: res=%+v sends=%d", name, res, len(sender.sent))
		}
	}
}

func TestScan_SettingsFailure(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	res := newScanner(fakeSettings{err: errors.New("db down")}, nil, sender, nil).ScanAndNotify(context.Background(), now)
	if res != (ScanResult{Success: false, Sent: 0, Errors: 1}) {
		t.Fatalf("res=%+v", res)
	}
}

type failingTasks struct {
	storage.TaskReader
	failHours time.Time
}

func (f failingTasks) ListTasks(ctx context.Context, q storage.TaskQuery) ([]domain.Task, error) {
	if q.DueFrom.Before(f.failHours) {
		return nil, errors.New("query failed")
	}
	return f.TaskReader.ListTasks(ctx, q)
}

func TestScan_FailuresDoNotAbort(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	addTask(t, st, "ok-1", now.Add(24*time.Hour), domain.TaskNew)
	addTask(t, st, "bad", now.Add(24*time.Hour+time.Minute), domain.TaskNew)
	addTask(t, st, "ok-2", now.Add(24*time.Hour+2*time.Minute), domain.TaskNew)
	addTask(t, st, "never", now.Add(time.Hour), domain.TaskNew)

	sender := &fakeSender{fail: func(text string) bool { return strings.Contains(text, "bad") }}
	// The 1h offset query fails; the 24h offset still runs.
	tasks := failingTasks{TaskReader: st, failHours: now.Add(2 * time.Hour)}
	res := newScanner(fakeSettings{st: activeSettings(1, 24)}, tasks, sender, nil).ScanAndNotify(context.Background(), now)

	if res != (ScanResult{Success: true, Sent: 2, Errors: 2}) {
		t.Fatalf("res=%+v", res)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("sends=%d", len(sender.sent))
	}
}

func TestScan_OverlappingOffsets(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	// Repeated offsets produce identical, overlapping windows.
	addTask(t, st, "twice", now.Add(23*time.Hour+50*time.Minute), domain.TaskNew)

	t.Run("no ledger sends twice", func(t *testing.T) {
		sender := &fakeSender{}
		res := newScanner(fakeSettings{st: activeSettings(24, 24)}, st, sender, nil).ScanAndNotify(context.Background(), now)
		if res.Sent != 2 {
			t.Fatalf("res=%+v", res)
		}
	})

	t.Run("store ledger sends once", func(t *testing.T) {
		sender := &fakeSender{}
		ledger := NewStoreLedger(st, time.Hour, logx.Nop())
		res := newScanner(fakeSettings{st: activeSettings(24, 24)}, st, sender, ledger).ScanAndNotify(context.Background(), now)
		if res.Sent != 1 || len(sender.sent) != 1 {
			t.Fatalf("res=%+v sends=%d", res, len(sender.sent))
		}
	})
}

func TestStoreLedger_ReleaseOnFailure(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	addTask(t, st, "flaky", now.Add(time.Hour), domain.TaskNew)
	ledger := NewStoreLedger(st, time.Hour, logx.Nop())

	failing := &fakeSender{fail: func(string) bool { return true }}
	res := newScanner(fakeSettings{st: activeSettings(1)}, st, failing, ledger).ScanAndNotify(context.Background(), now)
	if res.Errors != 1 {
		t.Fatalf("res=%+v", res)
	}

	ok := &fakeSender{}
	res = newScanner(fakeSettings{st: activeSettings(1)}, st, ok, ledger).ScanAndNotify(context.Background(), now)
	if res.Sent != 1 {
		t.Fatalf("released key must allow a retry: %+v", res)
	}
}

func TestRedisLedger_FailsOpen(t *testing.T) {
	t.Parallel()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLedger(rdb, time.Hour, logx.Nop())
	if !l.Acquire(context.Background(), "reminder:1:1") {
		t.Fatalf("unreachable redis must not suppress reminders")
	}
	l.Release(context.Background(), "reminder:1:1")
}

func TestReminderKey_ChangesWithDueDate(t *testing.T) {
	t.Parallel()
	a := domain.Task{ID: 7, DueDate: now}
	b := domain.Task{ID: 7, DueDate: now.Add(time.Hour)}
	if ReminderKey(a) == ReminderKey(b) {
		t.Fatalf("moved deadline must produce a new key")
	}
}

func TestNewLedger(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })

	cases := []struct {
		kind    string
		store   storage.DedupStore
		rdb     redis.Cmdable
		want    string
		wantErr bool
	}{
		{kind: "", want: "reminder.NoLedger"},
		{kind: "None", want: "reminder.NoLedger"},
		{kind: "store", store: st, want: "*reminder.StoreLedger"},
		{kind: "store", wantErr: true},
		{kind: "redis", rdb: rdb, want: "*reminder.RedisLedger"},
		{kind: "redis", wantErr: true},
		{kind: "memcached", wantErr: true},
	}
	for _, tc := range cases {
		l, err := NewLedger(LedgerConfig{Kind: tc.kind}, tc.store, tc.rdb, logx.Nop())
		if tc.wantErr {
			if err == nil {
				t.Fatalf("kind %q: expected error", tc.kind)
			}
			continue
		}
		if err != nil {
			t.Fatalf("kind %q: %v", tc.kind, err)
		}
		if got := fmt.Sprintf("%T", l); got != tc.want {
			t.Fatalf("kind %q: got %s want %s", tc.kind, got, tc.want)
		}
	}
}
