package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crmbot/internal/domain"
	logx "crmbot/pkg/logx"

	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "crm.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpen_Disabled(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop())
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v want ErrDisabled", err)
	}
	if _, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	st, err := Open(context.Background(), Config{Driver: "SQLite3", Path: filepath.Join(t.TempDir(), "a.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("sqlite3 alias: %v", err)
	}
	_ = st.Close()
}

func TestCanonicalDriver(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{"sqlite": DriverSQLite, " sqlite3 ": DriverSQLite, "PGX": DriverPostgres, "postgresql": DriverPostgres} {
		if got, ok := CanonicalDriver(in); !ok || got != want {
			t.Fatalf("CanonicalDriver(%q)=%q,%v", in, got, ok)
		}
	}
	if _, ok := CanonicalDriver("none"); ok {
		t.Fatalf("none is not a driver")
	}
}

func TestSQLite_SettingsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	if _, ok, err := st.FirstSettings(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	created, err := st.CreateSettings(ctx, domain.NotificationSettings{
		BotToken:            "T",
		ChatID:              "C",
		NotifyNewTasks:      true,
		NotifyTaskDeadlines: true,
		TaskReminderHours:   []int{24, 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected id")
	}

	created.IsActive = true
	created.TaskReminderHours = []int{48, 2}
	if err := st.UpdateSettings(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok, err := st.FirstSettings(ctx)
	if err != nil || !ok {
		t.Fatalf("first: ok=%v err=%v", ok, err)
	}
	if !got.IsActive || got.BotToken != "T" || got.ChatID != "C" || got.NotifyNewClients {
		t.Fatalf("unexpected settings: %+v", got)
	}
	if len(got.TaskReminderHours) != 2 || got.TaskReminderHours[0] != 48 || got.TaskReminderHours[1] != 2 {
		t.Fatalf("hours=%v", got.TaskReminderHours)
	}

	// A second row never becomes authoritative.
	if _, err := st.CreateSettings(ctx, domain.NotificationSettings{BotToken: "other"}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	got, _, _ = st.FirstSettings(ctx)
	if got.ID != created.ID {
		t.Fatalf("first id=%d want %d", got.ID, created.ID)
	}
}

func TestSQLite_UpdateMissingSettings(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	err := st.UpdateSettings(context.Background(), domain.NotificationSettings{ID: 42})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestSQLite_TaskQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	uid, err := st.CreateUser(ctx, domain.User{Name: "Анна"})
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	cid, err := st.CreateClient(ctx, domain.Client{Name: "ООО Ромашка", CreatedAt: base})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	mk := func(title string, due time.Time, status domain.TaskStatus) int64 {
		t.Helper()
		id, err := st.CreateTask(ctx, domain.Task{
			Title:    title,
			DueDate:  due,
			Status:   status,
			Priority: domain.PriorityHigh,
			Assignee: &domain.UserRef{ID: uid},
			Client:   &domain.ClientRef{ID: cid},
		})
		if err != nil {
			t.Fatalf("task %s: %v", title, err)
		}
		return id
	}
	mk("late", base.Add(2*time.Hour), domain.TaskNew)
	mk("early", base.Add(time.Hour), domain.TaskInProgress)
	mk("done", base.Add(90*time.Minute), domain.TaskCompleted)
	mk("edge", base.Add(3*time.Hour), domain.TaskNew)

	q := TaskQuery{
		DueFrom:         base.Add(time.Hour),
		DueTo:           base.Add(3 * time.Hour),
		ExcludeStatuses: []domain.TaskStatus{domain.TaskCompleted},
	}
	tasks, err := st.ListTasks(ctx, q)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var titles []string
	for _, tk := range tasks {
		titles = append(titles, tk.Title)
	}
	if got := strings.Join(titles, ","); got != "early,late,edge" {
		t.Fatalf("titles=%s", got)
	}
	if tasks[0].AssigneeName() != "Анна" || tasks[0].Client == nil || tasks[0].Client.Name != "ООО Ромашка" {
		t.Fatalf("joins not populated: %+v", tasks[0])
	}
	if tasks[0].Deal != nil {
		t.Fatalf("deal should be nil")
	}

	q.DueToExclusive = true
	n, err := st.CountTasks(ctx, q)
	if err != nil || n != 2 {
		t.Fatalf("count exclusive: n=%d err=%v", n, err)
	}

	q.Limit = 1
	tasks, _ = st.ListTasks(ctx, q)
	if len(tasks) != 1 || tasks[0].Title != "early" {
		t.Fatalf("limit: %+v", tasks)
	}
}

func TestSQLite_GetTaskNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if _, err := st.GetTask(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := st.GetDeal(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := st.GetClient(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestSQLite_Deals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	for _, s := range []domain.DealStatus{domain.DealNew, domain.DealWon, domain.DealNegotiation, domain.DealLost} {
		if _, err := st.CreateDeal(ctx, domain.Deal{
			Title:    "deal " + string(s),
			Amount:   decimal.RequireFromString("150000.50"),
			Currency: "RUB",
			Status:   s,
		}); err != nil {
			t.Fatalf("deal: %v", err)
		}
	}

	deals, err := st.ListDeals(ctx, DealQuery{ExcludeStatuses: domain.TerminalDealStatuses})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("len=%d", len(deals))
	}
	// newest first
	if deals[0].Status != domain.DealNegotiation || deals[1].Status != domain.DealNew {
		t.Fatalf("order: %v, %v", deals[0].Status, deals[1].Status)
	}
	if !deals[0].Amount.Equal(decimal.RequireFromString("150000.5")) {
		t.Fatalf("amount=%s", deals[0].Amount)
	}

	got, err := st.GetDeal(ctx, deals[1].ID)
	if err != nil || got.Title != "deal NEW" {
		t.Fatalf("get: %+v err=%v", got, err)
	}
}

func TestSQLite_Dedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	if _, ok, err := st.GetDedup(ctx, "k"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	until := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	if err := st.PutDedup(ctx, "k", until); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := st.GetDedup(ctx, "k")
	if err != nil || !ok || !got.Equal(until) {
		t.Fatalf("got=%v ok=%v err=%v", got, ok, err)
	}
}

func TestDialect_Placeholders(t *testing.T) {
	t.Parallel()
	q := TaskQuery{
		DueFrom:         time.Unix(1, 0),
		DueTo:           time.Unix(2, 0),
		DueToExclusive:  true,
		ExcludeStatuses: []domain.TaskStatus{domain.TaskCompleted, domain.TaskCancelled},
		Limit:           5,
	}
	s, args := postgresDialect.listTasksSQL(q)
	if !strings.Contains(s, "t.due_date >= $1 AND t.due_date < $2 AND t.status NOT IN ($3, $4)") {
		t.Fatalf("where: %s", s)
	}
	if !strings.HasSuffix(s, "LIMIT $5") || len(args) != 5 {
		t.Fatalf("limit: %s args=%v", s, args)
	}
	s, _ = sqliteDialect.countTasksSQL(TaskQuery{})
	if strings.Contains(s, "WHERE") {
		t.Fatalf("unexpected where: %s", s)
	}
}
