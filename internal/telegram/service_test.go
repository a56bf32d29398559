package telegram

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
	"crmbot/internal/reminder"
	"crmbot/internal/storage"
	kit "crmbot/internal/transport"
	"crmbot/internal/transport/telegram/router"
	logx "crmbot/pkg/logx"

	"github.com/jmhodges/clock"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []kit.Outgoing
	webhooks []string
	commands int
	chatErr  error
}

func (f *fakeAPI) SendMessage(_ context.Context, _ string, m kit.Outgoing) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return len(f.sent), nil
}

func (f *fakeAPI) GetMe(context.Context, string) (tele.User, error) {
	return tele.User{ID: 1, Username: "crm_bot", IsBot: true}, nil
}

func (f *fakeAPI) GetChat(_ context.Context, _, chatID string) (tele.Chat, error) {
	if f.chatErr != nil {
		return tele.Chat{}, f.chatErr
	}
	return tele.Chat{Title: "Отдел продаж"}, nil
}

func (f *fakeAPI) SetWebhook(_ context.Context, _, url string) error {
	f.webhooks = append(f.webhooks, url)
	return nil
}

func (f *fakeAPI) SetMyCommands(context.Context, string, []kit.BotCommand) error {
	f.commands++
	return nil
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	svc   *Service
	api   *fakeAPI
	store storage.Store
	now   time.Time
}

func newFixture(t *testing.T, webhook string) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "crm.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFake()
	clk.Set(now)

	api := &fakeAPI{}
	settings := notifier.NewSettingsSource(st, notifier.DefaultSettings, logx.Nop())
	sender := notifier.NewSender(api, notifier.Config{RatePerSec: 1000}, logx.Nop())
	format := messages.Formatter{Location: time.UTC}

	svc := New(Deps{
		Settings: settings,
		Sender:   sender,
		API:      api,
		Scanner:  reminder.NewScanner(settings, st, sender, format, nil, logx.Nop()),
		Summary:  reminder.NewSummaryBuilder(settings, st, sender, format, time.UTC, logx.Nop()),
		Router: router.New(router.Deps{
			Settings: settings, Tasks: st, Deals: st, Sender: sender, Format: format, Clock: clk,
		}),
		Format:     format,
		Clock:      clk,
		WebhookURL: func() string { return webhook },
		Log:        logx.Nop(),
	})
	return &fixture{svc: svc, api: api, store: st, now: now}
}

func (f *fixture) activate(t *testing.T, patch domain.SettingsPatch) {
	t.Helper()
	tok, chat, on := "T", "C", true
	patch.BotToken, patch.ChatID, patch.IsActive = &tok, &chat, &on
	if _, err := f.svc.UpdateSettings(context.Background(), patch); err != nil {
		t.Fatalf("update settings: %v", err)
	}
}

func TestNotify_GatedByActiveAndFlags(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	ctx := context.Background()
	task := domain.Task{ID: 1, Title: "Отправить КП", DueDate: f.now.Add(time.Hour), Status: domain.TaskNew}
	deal := domain.Deal{ID: 2, Title: "Поставка", Amount: decimal.NewFromInt(5000), Currency: "RUB", Status: domain.DealWon}

	if f.svc.SendTaskNotification(ctx, task) || f.api.count() != 0 {
		t.Fatalf("inactive settings must not send")
	}

	off := false
	f.activate(t, domain.SettingsPatch{NotifyNewClients: &off})

	if !f.svc.SendTaskNotification(ctx, task) {
		t.Fatalf("task notification not sent")
	}
	if f.svc.NotifyNewClient(ctx, domain.Client{ID: 3, Name: "ИП Петров"}) {
		t.Fatalf("client notification sent with flag off")
	}
	if !f.svc.NotifyNewDeal(ctx, deal) || !f.svc.NotifyDealCompleted(ctx, deal) {
		t.Fatalf("deal notifications not sent")
	}
	if got := f.api.count(); got != 3 {
		t.Fatalf("sent=%d want 3", got)
	}
	if !strings.Contains(f.api.sent[0].Text, "Отправить КП") {
		t.Fatalf("task text: %s", f.api.sent[0].Text)
	}

	hist := f.svc.History()
	if len(hist) != 3 || hist[2].Kind != notifier.KindDealCompleted {
		t.Fatalf("history=%+v", hist)
	}
}

func TestCheckTaskDeadlines_UsesFreshSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	ctx := context.Background()
	if _, err := f.store.CreateTask(ctx, domain.Task{
		Title: "Созвон", DueDate: f.now.Add(24 * time.Hour), Status: domain.TaskNew, Priority: domain.PriorityHigh,
	}); err != nil {
		t.Fatalf("task: %v", err)
	}

	if res := f.svc.CheckTaskDeadlines(ctx); !res.Success || res.Sent != 0 {
		t.Fatalf("inactive scan: %+v", res)
	}

	f.activate(t, domain.SettingsPatch{})
	res := f.svc.CheckTaskDeadlines(ctx)
	if !res.Success || res.Sent != 1 || res.Errors != 0 {
		t.Fatalf("scan: %+v", res)
	}
	if !strings.Contains(f.api.sent[0].Text, "24 часа") {
		t.Fatalf("reminder text: %s", f.api.sent[0].Text)
	}

	if sum := f.svc.SendDailySummary(ctx); !sum.Success || !sum.Sent {
		t.Fatalf("summary: %+v", sum)
	}
}

func TestSendMessage_IgnoresActiveFlag(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	ctx := context.Background()

	if f.svc.SendMessage(ctx, "hi") {
		t.Fatalf("send without credentials must fail")
	}
	tok, chat := "T", "C"
	if _, err := f.svc.UpdateSettings(ctx, domain.SettingsPatch{BotToken: &tok, ChatID: &chat}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !f.svc.SendMessage(ctx, "hi") || !f.svc.TestMessage(ctx) {
		t.Fatalf("configured send failed")
	}
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	ctx := context.Background()

	if c := f.svc.CheckConnection(ctx); c.OK || c.Message == "" {
		t.Fatalf("unconfigured: %+v", c)
	}
	f.activate(t, domain.SettingsPatch{})
	c := f.svc.CheckConnection(ctx)
	if !c.OK || c.BotUsername != "crm_bot" || c.ChatTitle != "Отдел продаж" {
		t.Fatalf("connection: %+v", c)
	}

	f.api.chatErr = errors.New("chat not found")
	c = f.svc.CheckConnection(ctx)
	if c.OK || c.BotUsername != "crm_bot" || !strings.Contains(c.Message, "chat not found") {
		t.Fatalf("bad chat: %+v", c)
	}
}

func TestSetWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "")
	f.activate(t, domain.SettingsPatch{})
	if err := f.svc.SetWebhook(ctx); !errors.Is(err, ErrNoWebhookURL) {
		t.Fatalf("err=%v want ErrNoWebhookURL", err)
	}

	f = newFixture(t, "https://crm.example.com/telegram/webhook")
	if err := f.svc.SetWebhook(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err=%v want ErrNotConfigured", err)
	}
	f.activate(t, domain.SettingsPatch{})
	if err := f.svc.SetWebhook(ctx); err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	if len(f.api.webhooks) != 1 || f.api.commands != 1 {
		t.Fatalf("webhooks=%v commands=%d", f.api.webhooks, f.api.commands)
	}
}

func TestProcessWebhook(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	f.activate(t, domain.SettingsPatch{})

	res := f.svc.ProcessWebhook(context.Background(), kit.Update{
		ID: 10, Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 99, Text: "/help"},
	})
	if !res.Success || res.Action != router.ActionHelp {
		t.Fatalf("route: %+v", res)
	}
	if f.api.sent[0].ChatID != "99" {
		t.Fatalf("reply chat=%q", f.api.sent[0].ChatID)
	}
}

func TestUpdateSettings_RejectsBadHours(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	_, err := f.svc.UpdateSettings(context.Background(), domain.SettingsPatch{TaskReminderHours: []int{24, 0}})
	if !errors.Is(err, domain.ErrInvalidReminderHours) {
		t.Fatalf("err=%v", err)
	}
}
