package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"crmbot/internal/metrics"
	kit "crmbot/internal/transport"
	"crmbot/internal/transport/telegram/botapi"
	logx "crmbot/pkg/logx"
	"crmbot/pkg/tgui"

	"golang.org/x/time/rate"
)

// telegramTextLimit is the Bot API limit for one message, in characters.
const telegramTextLimit = 4096

// API is the outbound Bot API surface the sender needs.
type API interface {
	SendMessage(ctx context.Context, token string, m kit.Outgoing) (int, error)
}

type Sender struct {
	api API
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func NewSender(api API, cfg Config, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sender{api: api, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps limits at runtime (config reload).
func (s *Sender) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

type sendOptions struct {
	kind     Kind
	keyboard kit.Keyboard
}

type SendOption func(*sendOptions)

func WithKind(k Kind) SendOption { return func(o *sendOptions) { o.kind = k } }

func WithKeyboard(kb kit.Keyboard) SendOption { return func(o *sendOptions) { o.keyboard = kb } }

// Send posts text (Telegram HTML) to chatID using token. It reports true only
// when Telegram acknowledged the message.
func (s *Sender) Send(ctx context.Context, token, chatID, text string, opts ...SendOption) bool {
	o := sendOptions{kind: KindMessage}
	for _, fn := range opts {
		fn(&o)
	}
	log := s.log.With(logx.String("kind", string(o.kind)))

	token, chatID = strings.TrimSpace(token), strings.TrimSpace(chatID)
	switch {
	case token == "":
		log.Warn("telegram send skipped: bot token is not configured")
		metrics.IncNotification(string(o.kind), "skipped")
		return false
	case chatID == "":
		log.Warn("telegram send skipped: chat id is not configured")
		metrics.IncNotification(string(o.kind), "skipped")
		return false
	}

	s.mu.Lock()
	cfg, limiter := s.cfg, s.limiter
	s.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		log.Warn("telegram send aborted while rate limited", logx.Err(err))
		s.record(o.kind, chatID, text, err)
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	msgID, err := s.api.SendMessage(cctx, token, kit.Outgoing{
		ChatID:    chatID,
		Text:      tgui.TruncHTML(text, telegramTextLimit),
		ParseMode: "HTML",
		Keyboard:  o.keyboard,
	})
	took := time.Since(start)
	s.record(o.kind, chatID, text, err)

	if err != nil {
		metrics.RecordTelegramCall("sendMessage", "error", took)
		fields := []logx.Field{logx.String("chat_id", chatID), logx.Duration("took", took), logx.Err(err)}
		var apiErr *botapi.APIError
		if errors.As(err, &apiErr) && apiErr.Code != 0 {
			fields = append(fields, logx.Int("error_code", apiErr.Code))
		}
		log.Error("telegram send failed", fields...)
		return false
	}
	metrics.RecordTelegramCall("sendMessage", "ok", took)
	log.Debug("telegram message sent", logx.String("chat_id", chatID), logx.Int("message_id", msgID), logx.Duration("took", took))
	return true
}

func (s *Sender) record(kind Kind, chatID, text string, err error) {
	item := HistoryItem{
		At:     time.Now(),
		Kind:   kind,
		ChatID: chatID,
		OK:     err == nil,
		Text:   tgui.TruncRunes(text, 200),
	}
	result := "ok"
	if err != nil {
		item.Error = err.Error()
		result = "failed"
	}
	metrics.IncNotification(string(kind), result)

	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if over := len(s.history) - limit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}

// History returns recent send attempts, oldest first.
func (s *Sender) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}
