// Package router dispatches inbound Telegram updates to command and
// callback handlers and replies through the notification sender.
package router

import (
	"context"
	"errors"
	"strconv"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/messages"
	"crmbot/internal/metrics"
	"crmbot/internal/notifier"
	"crmbot/internal/storage"
	kit "crmbot/internal/transport"
	logx "crmbot/pkg/logx"

	"github.com/jmhodges/clock"
)

const (
	listLimit  = 5
	tasksAhead = 24 * time.Hour
)

type Action string

const (
	ActionHelp       Action = "help"
	ActionTasks      Action = "tasks"
	ActionDeals      Action = "deals"
	ActionUnknownCmd Action = "unknown_command"
	ActionGreeting   Action = "greeting"
	ActionTask       Action = "task_details"
	ActionDeal       Action = "deal_details"
	ActionNotFound   Action = "not_found"
	ActionIgnored    Action = "ignored"
	ActionFailed     Action = "failed"
)

// Result reports whether the reply was delivered. Ignored updates succeed.
type Result struct {
	Success bool   `json:"success"`
	Action  Action `json:"action"`
	Err     error  `json:"-"`
}

// Request is the per-update routing state handed to middlewares.
type Request struct {
	Update   kit.Update
	ChatID   int64
	FromID   int64
	Settings domain.NotificationSettings
}

type SettingsGetter interface {
	Get(ctx context.Context) (domain.NotificationSettings, error)
}

type Sender interface {
	Send(ctx context.Context, token, chatID, text string, opts ...notifier.SendOption) bool
}

// CallbackAnswerer acknowledges a button press so the client stops its spinner.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, token, callbackID string) error
}

type Deps struct {
	Settings SettingsGetter
	Tasks    storage.TaskReader
	Deals    storage.DealReader
	Sender   Sender
	Format   messages.Formatter
	Clock    clock.Clock
	Answerer CallbackAnswerer // optional
	Timeout  time.Duration    // per-update; 0 disables
	Log      logx.Logger
}

type Router struct {
	d       Deps
	log     logx.Logger
	handler HandlerFunc
}

func New(d Deps) *Router {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("router"))
	r := &Router{d: d, log: log}
	r.handler = Chain(r.dispatch,
		MWPanicRecover(log),
		MWRequestLog(log),
		MWTimeout(d.Timeout),
	)
	return r
}

// Route handles one update. It never returns an error; failures are
// reported through Result.
func (r *Router) Route(ctx context.Context, u kit.Update) Result {
	req := &Request{Update: u}
	switch u.Kind {
	case kit.UpdateMessage:
		if u.Message != nil {
			req.ChatID, req.FromID = u.Message.ChatID, u.Message.FromID
		}
	case kit.UpdateCallback:
		if u.Callback != nil {
			req.ChatID, req.FromID = u.Callback.ChatID, u.Callback.FromID
		}
	}
	res := r.handler(ctx, req)
	metrics.IncWebhookUpdate(string(res.Action))
	return res
}

func (r *Router) dispatch(ctx context.Context, req *Request) Result {
	u := req.Update
	switch {
	case u.Kind == kit.UpdateMessage && u.Message != nil:
		return r.onMessage(ctx, req)
	case u.Kind == kit.UpdateCallback && u.Callback != nil:
		return r.onCallback(ctx, req)
	default:
		return Result{Success: true, Action: ActionIgnored}
	}
}

func (r *Router) onMessage(ctx context.Context, req *Request) Result {
	cmd := ParseCommand(req.Update.Message.Text)
	switch cmd.Kind {
	case CmdStart, CmdHelp:
		return r.reply(ctx, req, ActionHelp, r.d.Format.HelpText(), nil)
	case CmdTasks:
		return r.listTasks(ctx, req)
	case CmdDeals:
		return r.listDeals(ctx, req)
	case CmdUnrecognized:
		return r.reply(ctx, req, ActionUnknownCmd, r.d.Format.UnknownCommand(), nil)
	default:
		return r.reply(ctx, req, ActionGreeting, r.d.Format.Greeting(), nil)
	}
}

func (r *Router) onCallback(ctx context.Context, req *Request) Result {
	cb := req.Update.Callback
	parsed := ParseCallback(cb.Data)
	if parsed.Kind == CbUnknown {
		return Result{Success: true, Action: ActionIgnored}
	}
	r.answer(ctx, req, cb.ID)

	switch parsed.Kind {
	case CbTask:
		return r.taskDetails(ctx, req, parsed.ID)
	default:
		return r.dealDetails(ctx, req, parsed.ID)
	}
}

func (r *Router) listTasks(ctx context.Context, req *Request) Result {
	now := r.d.Clock.Now()
	tasks, err := r.d.Tasks.ListTasks(ctx, storage.TaskQuery{
		DueFrom:         now,
		DueTo:           now.Add(tasksAhead),
		ExcludeStatuses: []domain.TaskStatus{domain.TaskCompleted},
		Limit:           listLimit,
	})
	if err != nil {
		r.log.Warn("list tasks failed", logx.Err(err))
		return Result{Success: false, Action: ActionFailed, Err: err}
	}
	kb := make(kit.Keyboard, 0, len(tasks))
	for _, t := range tasks {
		kb = append(kb, []kit.Button{{Text: messages.TaskButtonText(t), Data: TaskPayload(t.ID)}})
	}
	return r.reply(ctx, req, ActionTasks, r.d.Format.TaskList(tasks), kb)
}

func (r *Router) listDeals(ctx context.Context, req *Request) Result {
	deals, err := r.d.Deals.ListDeals(ctx, storage.DealQuery{
		ExcludeStatuses: domain.TerminalDealStatuses,
		Limit:           listLimit,
	})
	if err != nil {
		r.log.Warn("list deals failed", logx.Err(err))
		return Result{Success: false, Action: ActionFailed, Err: err}
	}
	kb := make(kit.Keyboard, 0, len(deals))
	for _, d := range deals {
		kb = append(kb, []kit.Button{{Text: messages.DealButtonText(d), Data: DealPayload(d.ID)}})
	}
	return r.reply(ctx, req, ActionDeals, r.d.Format.DealList(deals), kb)
}

func (r *Router) taskDetails(ctx context.Context, req *Request, id int64) Result {
	if id <= 0 {
		return r.reply(ctx, req, ActionNotFound, r.d.Format.TaskNotFound(), nil)
	}
	t, err := r.d.Tasks.GetTask(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Warn("get task failed", logx.Int64("task_id", id), logx.Err(err))
		}
		return r.reply(ctx, req, ActionNotFound, r.d.Format.TaskNotFound(), nil)
	}
	return r.reply(ctx, req, ActionTask, r.d.Format.TaskDetails(t), nil)
}

func (r *Router) dealDetails(ctx context.Context, req *Request, id int64) Result {
	if id <= 0 {
		return r.reply(ctx, req, ActionNotFound, r.d.Format.DealNotFound(), nil)
	}
	d, err := r.d.Deals.GetDeal(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Warn("get deal failed", logx.Int64("deal_id", id), logx.Err(err))
		}
		return r.reply(ctx, req, ActionNotFound, r.d.Format.DealNotFound(), nil)
	}
	return r.reply(ctx, req, ActionDeal, r.d.Format.DealDetails(d), nil)
}

// reply sends text to the chat the update came from, falling back to the
// configured chat when the update carries none.
func (r *Router) reply(ctx context.Context, req *Request, action Action, text string, kb kit.Keyboard) Result {
	st, err := r.settings(ctx, req)
	if err != nil {
		return Result{Success: false, Action: ActionFailed, Err: err}
	}
	chat := st.ChatID
	if req.ChatID != 0 {
		chat = strconv.FormatInt(req.ChatID, 10)
	}
	opts := []notifier.SendOption{notifier.WithKind(notifier.KindReply)}
	if len(kb) > 0 {
		opts = append(opts, notifier.WithKeyboard(kb))
	}
	if !r.d.Sender.Send(ctx, st.BotToken, chat, text, opts...) {
		return Result{Success: false, Action: action, Err: errSendFailed}
	}
	return Result{Success: true, Action: action}
}

var errSendFailed = errors.New("reply not delivered")

func (r *Router) settings(ctx context.Context, req *Request) (domain.NotificationSettings, error) {
	if req.Settings.ID != 0 {
		return req.Settings, nil
	}
	st, err := r.d.Settings.Get(ctx)
	if err != nil {
		r.log.Warn("settings unavailable", logx.Err(err))
		return st, err
	}
	req.Settings = st
	return st, nil
}

func (r *Router) answer(ctx context.Context, req *Request, callbackID string) {
	if r.d.Answerer == nil || callbackID == "" {
		return
	}
	st, err := r.settings(ctx, req)
	if err != nil || st.BotToken == "" {
		return
	}
	if err := r.d.Answerer.AnswerCallback(ctx, st.BotToken, callbackID); err != nil {
		r.log.Debug("answer callback failed", logx.Err(err))
	}
}
