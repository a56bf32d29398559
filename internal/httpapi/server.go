// Package httpapi serves the Telegram webhook, the admin control endpoints,
// Prometheus metrics and a health check over gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/notifier"
	"crmbot/internal/reminder"
	"crmbot/internal/storage"
	"crmbot/internal/telegram"
	kit "crmbot/internal/transport"
	"crmbot/internal/transport/telegram/router"
	logx "crmbot/pkg/logx"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telegram is the notification API the handlers drive; *telegram.Service implements it.
type Telegram interface {
	CheckTaskDeadlines(ctx context.Context) reminder.ScanResult
	SendDailySummary(ctx context.Context) reminder.SummaryResult
	SendTaskNotification(ctx context.Context, t domain.Task) bool
	NotifyNewClient(ctx context.Context, c domain.Client) bool
	NotifyNewDeal(ctx context.Context, d domain.Deal) bool
	NotifyDealCompleted(ctx context.Context, d domain.Deal) bool
	TestMessage(ctx context.Context) bool
	CheckConnection(ctx context.Context) telegram.Connection
	ProcessWebhook(ctx context.Context, u kit.Update) router.Result
	SetWebhook(ctx context.Context) error
	Settings(ctx context.Context) (domain.NotificationSettings, error)
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.NotificationSettings, error)
	History() []notifier.HistoryItem
}

type Records interface {
	storage.TaskReader
	storage.DealReader
	storage.ClientReader
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Deps struct {
	Telegram Telegram
	Records  Records
	// AdminToken returns the bearer token guarding /api; empty disables the check.
	AdminToken func() string
	Log        logx.Logger
}

type Server struct {
	engine *gin.Engine
	log    logx.Logger

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

func init() { gin.SetMode(gin.ReleaseMode) }

func New(d Deps) *Server {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("http"))
	if d.AdminToken == nil {
		d.AdminToken = func() string { return "" }
	}

	e := gin.New()
	e.Use(requestID(), requestLog(log), gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error("handler panic", logx.Any("panic", rec), logx.String("path", c.FullPath()))
		fail(c, http.StatusInternalServerError, "internal error")
		c.Abort()
	}))

	h := &handlers{tg: d.Telegram, rec: d.Records, log: log}

	e.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	e.HEAD("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))

	e.POST("/telegram/webhook", h.webhook)

	api := e.Group("/api/telegram", bearerAuth(d.AdminToken))
	{
		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.putSettings)
		api.GET("/connection", h.connection)
		api.POST("/test", h.test)
		api.POST("/check-deadlines", h.checkDeadlines)
		api.POST("/daily-summary", h.dailySummary)
		api.POST("/webhook", h.setWebhook)
		api.POST("/notify/tasks/:id", h.notifyTask)
		api.POST("/notify/clients/:id", h.notifyClient)
		api.POST("/notify/deals/:id", h.notifyDeal)
		api.POST("/notify/deals/:id/completed", h.notifyDealCompleted)
		api.GET("/history", h.history)
	}

	return &Server{engine: e, log: log}
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("http server already running")
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.srv, s.ln, s.addr = srv, ln, ln.Addr().String()

	go func(addr string) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.String("addr", addr), logx.Err(err))
		}
	}(s.addr)
	s.log.Info("http server listening", logx.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, addr := s.srv, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	s.log.Info("http server stopped", logx.String("addr", addr))
	return err
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
