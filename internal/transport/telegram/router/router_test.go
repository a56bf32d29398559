package router

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/messages"
	"crmbot/internal/notifier"
	"crmbot/internal/storage"
	kit "crmbot/internal/transport"
	logx "crmbot/pkg/logx"

	"github.com/jmhodges/clock"
	"github.com/shopspring/decimal"
)

type fakeAPI struct {
	mu   sync.Mutex
	sent []kit.Outgoing
	err  error
}

func (f *fakeAPI) SendMessage(_ context.Context, _ string, m kit.Outgoing) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return 1, f.err
}

func (f *fakeAPI) last(t *testing.T) kit.Outgoing {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeAnswerer struct{ ids []string }

func (f *fakeAnswerer) AnswerCallback(_ context.Context, _, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

type staticSettings struct {
	st  domain.NotificationSettings
	err error
}

func (s staticSettings) Get(context.Context) (domain.NotificationSettings, error) { return s.st, s.err }

type fixture struct {
	st    storage.Store
	api   *fakeAPI
	ans   *fakeAnswerer
	clk   clock.FakeClock
	r     *Router
	now   time.Time
	setts staticSettings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "crm.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		st:  st,
		api: &fakeAPI{},
		ans: &fakeAnswerer{},
		clk: clock.NewFake(),
		now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		setts: staticSettings{st: domain.NotificationSettings{
			ID: 1, BotToken: "T", ChatID: "-100500", IsActive: true,
		}},
	}
	f.clk.Set(f.now)
	f.r = f.router()
	return f
}

func (f *fixture) router() *Router {
	return New(Deps{
		Settings: f.setts,
		Tasks:    f.st,
		Deals:    f.st,
		Sender:   notifier.NewSender(f.api, notifier.Config{RatePerSec: 1000}, logx.Nop()),
		Format:   messages.Formatter{Location: time.UTC},
		Clock:    f.clk,
		Answerer: f.ans,
		Log:      logx.Nop(),
	})
}

func (f *fixture) addTask(t *testing.T, title string, due time.Time, status domain.TaskStatus) int64 {
	t.Helper()
	id, err := f.st.CreateTask(context.Background(), domain.Task{
		Title: title, DueDate: due, Status: status, Priority: domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return id
}

func message(chatID int64, text string) kit.Update {
	return kit.Update{ID: 1, Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: chatID, FromID: 7, Text: text}}
}

func callback(chatID int64, data string) kit.Update {
	return kit.Update{ID: 2, Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: chatID, FromID: 7, Data: data}}
}

func TestRoute_Messages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	fm := messages.Formatter{Location: time.UTC}

	cases := []struct {
		text   string
		action Action
		want   string
	}{
		{"/start", ActionHelp, fm.HelpText()},
		{"/help@crm_bot", ActionHelp, fm.HelpText()},
		{"/unknown", ActionUnknownCmd, fm.UnknownCommand()},
		{"привет", ActionGreeting, fm.Greeting()},
	}
	for _, tc := range cases {
		res := f.r.Route(context.Background(), message(42, tc.text))
		if !res.Success || res.Action != tc.action {
			t.Fatalf("%q: got %+v, want success action=%s", tc.text, res, tc.action)
		}
		m := f.api.last(t)
		if m.Text != tc.want || m.ChatID != "42" {
			t.Fatalf("%q: sent %+v", tc.text, m)
		}
	}
}

func TestRoute_TasksWindowAndButtons(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var soon []int64
	for i := 0; i < 6; i++ {
		soon = append(soon, f.addTask(t, "soon", f.now.Add(time.Duration(i+1)*time.Hour), domain.TaskNew))
	}
	f.addTask(t, "done", f.now.Add(30*time.Minute), domain.TaskCompleted)
	f.addTask(t, "later", f.now.Add(25*time.Hour), domain.TaskNew)
	f.addTask(t, "past", f.now.Add(-time.Hour), domain.TaskInProgress)

	res := f.r.Route(context.Background(), message(42, "/tasks"))
	if !res.Success || res.Action != ActionTasks {
		t.Fatalf("got %+v", res)
	}
	m := f.api.last(t)
	if len(m.Keyboard) != listLimit {
		t.Fatalf("buttons=%d want %d", len(m.Keyboard), listLimit)
	}
	for i, row := range m.Keyboard {
		if want := TaskPayload(soon[i]); row[0].Data != want {
			t.Fatalf("row %d data=%q want %q", i, row[0].Data, want)
		}
	}
	if strings.Contains(m.Text, "done") || strings.Contains(m.Text, "later") || strings.Contains(m.Text, "past") {
		t.Fatalf("unexpected task in list: %s", m.Text)
	}
}

func TestRoute_TasksFollowsClock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addTask(t, "tomorrow", f.now.Add(30*time.Hour), domain.TaskNew)

	f.r.Route(context.Background(), message(42, "/tasks"))
	if kb := f.api.last(t).Keyboard; len(kb) != 0 {
		t.Fatalf("task outside window listed: %+v", kb)
	}

	f.clk.Add(12 * time.Hour)
	f.r.Route(context.Background(), message(42, "/tasks"))
	if kb := f.api.last(t).Keyboard; len(kb) != 1 {
		t.Fatalf("task inside window missing: %+v", kb)
	}
}

func TestRoute_DealsExcludeTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range []domain.DealStatus{domain.DealNew, domain.DealWon, domain.DealNegotiation, domain.DealLost} {
		if _, err := f.st.CreateDeal(ctx, domain.Deal{
			Title: "deal " + string(s), Amount: decimal.NewFromInt(1000), Currency: "RUB", Status: s,
		}); err != nil {
			t.Fatalf("create deal: %v", err)
		}
	}

	res := f.r.Route(ctx, message(42, "/deals"))
	if !res.Success || res.Action != ActionDeals {
		t.Fatalf("got %+v", res)
	}
	m := f.api.last(t)
	if len(m.Keyboard) != 2 {
		t.Fatalf("buttons=%d want 2: %s", len(m.Keyboard), m.Text)
	}
	if strings.Contains(m.Text, string(domain.DealWon)) || strings.Contains(m.Text, string(domain.DealLost)) {
		t.Fatalf("terminal deal listed: %s", m.Text)
	}
	for _, row := range m.Keyboard {
		if !strings.HasPrefix(row[0].Data, dealPrefix) {
			t.Fatalf("bad payload %q", row[0].Data)
		}
	}
}

func TestRoute_Callbacks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	fm := messages.Formatter{Location: time.UTC}
	id := f.addTask(t, "Позвонить клиенту", f.now.Add(time.Hour), domain.TaskNew)

	cases := []struct {
		data   string
		action Action
		want   string
	}{
		{TaskPayload(id), ActionTask, "Позвонить клиенту"},
		{"task_999", ActionNotFound, fm.TaskNotFound()},
		{"task_oops", ActionNotFound, fm.TaskNotFound()},
		{"deal_5", ActionNotFound, fm.DealNotFound()},
	}
	for _, tc := range cases {
		res := f.r.Route(context.Background(), callback(42, tc.data))
		if !res.Success || res.Action != tc.action {
			t.Fatalf("%q: got %+v want %s", tc.data, res, tc.action)
		}
		if m := f.api.last(t); !strings.Contains(m.Text, tc.want) {
			t.Fatalf("%q: text %q lacks %q", tc.data, m.Text, tc.want)
		}
	}
	if len(f.ans.ids) != len(cases) {
		t.Fatalf("answered %d callbacks, want %d", len(f.ans.ids), len(cases))
	}
}

func TestRoute_UnknownCallbackIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := f.r.Route(context.Background(), callback(42, "client_3"))
	if !res.Success || res.Action != ActionIgnored {
		t.Fatalf("got %+v", res)
	}
	if len(f.api.sent) != 0 || len(f.ans.ids) != 0 {
		t.Fatalf("ignored callback produced traffic")
	}

	res = f.r.Route(context.Background(), kit.Update{ID: 3, Kind: kit.UpdateOther})
	if !res.Success || res.Action != ActionIgnored {
		t.Fatalf("other update: %+v", res)
	}
}

func TestRoute_ChatFallbackAndFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.r.Route(context.Background(), message(0, "/help"))
	if got := f.api.last(t).ChatID; got != "-100500" {
		t.Fatalf("fallback chat=%q", got)
	}

	f.api.err = errors.New("boom")
	if res := f.r.Route(context.Background(), message(42, "/help")); res.Success {
		t.Fatalf("undelivered reply reported success: %+v", res)
	}

	f.api.err = nil
	f.setts = staticSettings{err: errors.New("db down")}
	r := f.router()
	if res := r.Route(context.Background(), message(42, "/help")); res.Success || res.Action != ActionFailed {
		t.Fatalf("settings failure: %+v", res)
	}
}

type panicTasks struct{ storage.TaskReader }

func (panicTasks) ListTasks(context.Context, storage.TaskQuery) ([]domain.Task, error) {
	panic("kaboom")
}

func TestRoute_PanicRecovered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := New(Deps{
		Settings: f.setts,
		Tasks:    panicTasks{},
		Deals:    f.st,
		Sender:   notifier.NewSender(f.api, notifier.Config{}, logx.Nop()),
		Format:   messages.Formatter{Location: time.UTC},
		Clock:    f.clk,
	})
	res := r.Route(context.Background(), message(42, "/tasks"))
	if res.Success || res.Action != ActionFailed || res.Err == nil {
		t.Fatalf("got %+v", res)
	}
}

func TestCommands(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for _, c := range Commands() {
		if kind := ParseCommand("/" + c.Command).Kind; kind == CmdUnrecognized || kind == CmdPlainText {
			t.Fatalf("menu command %q is not routed", c.Command)
		}
		seen[c.Command] = true
	}
	if !seen["tasks"] || !seen["deals"] {
		t.Fatalf("menu incomplete: %v", seen)
	}
}
