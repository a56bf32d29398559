// Package botapi is a thin Telegram Bot API client built on telebot's raw call path.
//
// The bot token is a per-call argument: the notification settings row owns it and
// may change at runtime, so bots are created lazily per token in offline mode
// (no getMe on construction).
package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	kit "crmbot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

const DefaultURL = "https://api.telegram.org"

var ErrNoToken = errors.New("telegram bot token is empty")

// APIError is a non-ok Bot API response or a transport failure for one method.
type APIError struct {
	Method      string
	Code        int
	Description string
	Err         error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("telegram %s failed: %s (code=%d)", e.Method, e.Description, e.Code)
}

func (e *APIError) Unwrap() error { return e.Err }

type Config struct {
	URL     string        // API base, default DefaultURL
	Timeout time.Duration // per-request timeout, default 10s
}

type Client struct {
	cfg  Config
	http *http.Client

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

// New returns a client. hc may be nil.
func New(cfg Config, hc *http.Client) *Client {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, bots: make(map[string]*tele.Bot)}
}

func (c *Client) bot(token string) (*tele.Bot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bots[token]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     c.cfg.URL,
		Token:   token,
		Client:  c.http,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	// Old tokens are rarely reused; keep the cache from growing without bound.
	if len(c.bots) >= 8 {
		c.bots = make(map[string]*tele.Bot)
	}
	c.bots[token] = b
	return b, nil
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call performs one Bot API method and decodes result into out (when non-nil).
// Success requires a JSON envelope with ok=true.
func (c *Client) call(ctx context.Context, token, method string, payload, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := c.bot(token)
	if err != nil {
		return err
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := b.Raw(method, payload)
		done <- result{data, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return &APIError{Method: method, Err: ctx.Err()}
	case r = <-done:
	}

	var env envelope
	if jerr := json.Unmarshal(r.data, &env); jerr != nil {
		if r.err != nil {
			return &APIError{Method: method, Err: r.err}
		}
		return &APIError{Method: method, Err: fmt.Errorf("decode response: %w", jerr)}
	}
	if !env.OK {
		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description, Err: r.err}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &APIError{Method: method, Err: fmt.Errorf("decode result: %w", err)}
		}
	}
	return nil
}

type inlineMarkup struct {
	InlineKeyboard kit.Keyboard `json:"inline_keyboard"`
}

type sendMessageReq struct {
	ChatID      string        `json:"chat_id"`
	Text        string        `json:"text"`
	ParseMode   string        `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineMarkup `json:"reply_markup,omitempty"`
}

// SendMessage posts one sendMessage call and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, token string, m kit.Outgoing) (int, error) {
	req := sendMessageReq{ChatID: strings.TrimSpace(m.ChatID), Text: m.Text, ParseMode: m.ParseMode}
	if len(m.Keyboard) > 0 {
		req.ReplyMarkup = &inlineMarkup{InlineKeyboard: m.Keyboard}
	}
	var msg tele.Message
	if err := c.call(ctx, token, "sendMessage", req, &msg); err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// GetMe returns the bot identity; it is the cheapest token check.
func (c *Client) GetMe(ctx context.Context, token string) (tele.User, error) {
	var u tele.User
	err := c.call(ctx, token, "getMe", struct{}{}, &u)
	return u, err
}

// GetChat resolves chatID, proving the bot can reach the destination.
func (c *Client) GetChat(ctx context.Context, token, chatID string) (tele.Chat, error) {
	var ch tele.Chat
	err := c.call(ctx, token, "getChat", map[string]string{"chat_id": strings.TrimSpace(chatID)}, &ch)
	return ch, err
}

func (c *Client) SetWebhook(ctx context.Context, token, url string) error {
	return c.call(ctx, token, "setWebhook", map[string]string{"url": strings.TrimSpace(url)}, nil)
}

func (c *Client) AnswerCallback(ctx context.Context, token, callbackID string) error {
	return c.call(ctx, token, "answerCallbackQuery", map[string]string{"callback_query_id": callbackID}, nil)
}

// SetMyCommands replaces the bot command menu. Telegram caps the list at 100
// entries and descriptions at 256 characters.
func (c *Client) SetMyCommands(ctx context.Context, token string, cmds []kit.BotCommand) error {
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		if cmd.Command == "" {
			continue
		}
		if cmd.Description == "" {
			cmd.Description = cmd.Command
		}
		if r := []rune(cmd.Description); len(r) > 256 {
			cmd.Description = string(r[:256])
		}
		out = append(out, cmd)
		if len(out) == 100 {
			break
		}
	}
	return c.call(ctx, token, "setMyCommands", map[string]any{"commands": out}, nil)
}
