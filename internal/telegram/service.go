// Package telegram is the Telegram notification API the rest of the CRM
// calls: event notifications, scheduled scans, webhook processing and
// connection management. Settings are re-read from storage on every call.
package telegram

import (
	"context"
	"errors"
	"strings"

	"crmbot/internal/domain"
	"crmbot/internal/messages"
	"crmbot/internal/notifier"
	"crmbot/internal/reminder"
	kit "crmbot/internal/transport"
	"crmbot/internal/transport/telegram/router"
	logx "crmbot/pkg/logx"

	"github.com/jmhodges/clock"
	tele "gopkg.in/telebot.v4"
)

var (
	ErrInactive      = errors.New("telegram notifications are disabled")
	ErrNotConfigured = errors.New("bot token or chat id is not configured")
	ErrNoWebhookURL  = errors.New("webhook url is not configured")
)

// Settings reads and patches the settings row.
type Settings interface {
	Get(ctx context.Context) (domain.NotificationSettings, error)
	Update(ctx context.Context, patch domain.SettingsPatch) (domain.NotificationSettings, error)
}

type Sender interface {
	Send(ctx context.Context, token, chatID, text string, opts ...notifier.SendOption) bool
	History() []notifier.HistoryItem
}

// BotAPI is the management part of the Bot API.
type BotAPI interface {
	GetMe(ctx context.Context, token string) (tele.User, error)
	GetChat(ctx context.Context, token, chatID string) (tele.Chat, error)
	SetWebhook(ctx context.Context, token, url string) error
	SetMyCommands(ctx context.Context, token string, cmds []kit.BotCommand) error
}

type Deps struct {
	Settings Settings
	Sender   Sender
	API      BotAPI
	Scanner  *reminder.Scanner
	Summary  *reminder.SummaryBuilder
	Router   *router.Router
	Format   messages.Formatter
	Clock    clock.Clock
	// WebhookURL returns the public webhook address from the live config.
	WebhookURL func() string
	Log        logx.Logger
}

type Service struct {
	d   Deps
	log logx.Logger
}

func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.WebhookURL == nil {
		d.WebhookURL = func() string { return "" }
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{d: d, log: log.With(logx.Component("telegram"))}
}

func (s *Service) CheckTaskDeadlines(ctx context.Context) reminder.ScanResult {
	return s.d.Scanner.ScanAndNotify(ctx, s.d.Clock.Now())
}

func (s *Service) SendDailySummary(ctx context.Context) reminder.SummaryResult {
	return s.d.Summary.BuildAndSend(ctx, s.d.Clock.Now())
}

// SendTaskNotification announces a newly assigned task.
func (s *Service) SendTaskNotification(ctx context.Context, t domain.Task) bool {
	return s.notify(ctx, notifier.KindNewTask, func(st domain.NotificationSettings) bool { return st.NotifyNewTasks },
		func() string { return s.d.Format.NewTask(t) })
}

func (s *Service) NotifyNewClient(ctx context.Context, c domain.Client) bool {
	return s.notify(ctx, notifier.KindNewClient, func(st domain.NotificationSettings) bool { return st.NotifyNewClients },
		func() string { return s.d.Format.NewClient(c) })
}

func (s *Service) NotifyNewDeal(ctx context.Context, d domain.Deal) bool {
	return s.notify(ctx, notifier.KindNewDeal, func(st domain.NotificationSettings) bool { return st.NotifyNewDeals },
		func() string { return s.d.Format.NewDeal(d) })
}

// NotifyDealCompleted is gated by the new-deals flag; there is no separate
// switch for closing events.
func (s *Service) NotifyDealCompleted(ctx context.Context, d domain.Deal) bool {
	return s.notify(ctx, notifier.KindDealCompleted, func(st domain.NotificationSettings) bool { return st.NotifyNewDeals },
		func() string { return s.d.Format.DealCompleted(d) })
}

func (s *Service) notify(ctx context.Context, kind notifier.Kind, enabled func(domain.NotificationSettings) bool, render func() string) bool {
	st, err := s.d.Settings.Get(ctx)
	if err != nil {
		s.log.Error("settings unavailable", logx.String("kind", string(kind)), logx.Err(err))
		return false
	}
	if !st.IsActive || !enabled(st) {
		s.log.Debug("notification disabled", logx.String("kind", string(kind)))
		return false
	}
	return s.d.Sender.Send(ctx, st.BotToken, st.ChatID, render(), notifier.WithKind(kind))
}

// SendMessage posts text to the configured chat. It does not check IsActive
// so operators can message the chat while notifications are paused.
func (s *Service) SendMessage(ctx context.Context, text string) bool {
	st, err := s.d.Settings.Get(ctx)
	if err != nil {
		s.log.Error("settings unavailable", logx.Err(err))
		return false
	}
	return s.d.Sender.Send(ctx, st.BotToken, st.ChatID, text, notifier.WithKind(notifier.KindMessage))
}

// TestMessage sends the connection test message.
func (s *Service) TestMessage(ctx context.Context) bool {
	st, err := s.d.Settings.Get(ctx)
	if err != nil {
		s.log.Error("settings unavailable", logx.Err(err))
		return false
	}
	return s.d.Sender.Send(ctx, st.BotToken, st.ChatID, s.d.Format.TestMessage(s.d.Clock.Now()), notifier.WithKind(notifier.KindTest))
}

type Connection struct {
	OK          bool   `json:"ok"`
	BotUsername string `json:"botUsername,omitempty"`
	ChatTitle   string `json:"chatTitle,omitempty"`
	Message     string `json:"message,omitempty"`
}

// CheckConnection verifies the token with getMe and the destination with getChat.
func (s *Service) CheckConnection(ctx context.Context) Connection {
	st, err := s.d.Settings.Get(ctx)
	if err != nil {
		return Connection{Message: err.Error()}
	}
	if !st.Configured() {
		return Connection{Message: ErrNotConfigured.Error()}
	}
	me, err := s.d.API.GetMe(ctx, st.BotToken)
	if err != nil {
		s.log.Warn("getMe failed", logx.Err(err))
		return Connection{Message: err.Error()}
	}
	conn := Connection{BotUsername: me.Username}
	chat, err := s.d.API.GetChat(ctx, st.BotToken, st.ChatID)
	if err != nil {
		s.log.Warn("getChat failed", logx.String("chat_id", st.ChatID), logx.Err(err))
		conn.Message = err.Error()
		return conn
	}
	conn.OK = true
	conn.ChatTitle = chatTitle(chat)
	return conn
}

func chatTitle(c tele.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name != "" {
		return name
	}
	if c.Username != "" {
		return "@" + c.Username
	}
	return ""
}

func (s *Service) ProcessWebhook(ctx context.Context, u kit.Update) router.Result {
	return s.d.Router.Route(ctx, u)
}

// SetWebhook registers the configured webhook URL and publishes the command menu.
func (s *Service) SetWebhook(ctx context.Context) error {
	st, err := s.d.Settings.Get(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(st.BotToken) == "" {
		return ErrNotConfigured
	}
	url := strings.TrimSpace(s.d.WebhookURL())
	if url == "" {
		return ErrNoWebhookURL
	}
	if err := s.d.API.SetWebhook(ctx, st.BotToken, url); err != nil {
		return err
	}
	if err := s.d.API.SetMyCommands(ctx, st.BotToken, router.Commands()); err != nil {
		s.log.Warn("setMyCommands failed", logx.Err(err))
	}
	s.log.Info("webhook registered", logx.String("url", url))
	return nil
}

func (s *Service) Settings(ctx context.Context) (domain.NotificationSettings, error) {
	return s.d.Settings.Get(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.NotificationSettings, error) {
	st, err := s.d.Settings.Update(ctx, patch)
	if err != nil {
		return st, err
	}
	s.log.Info("notification settings updated",
		logx.Bool("active", st.IsActive),
		logx.Bool("configured", st.Configured()),
		logx.Any("reminder_hours", st.TaskReminderHours),
	)
	return st, nil
}

func (s *Service) History() []notifier.HistoryItem { return s.d.Sender.History() }
