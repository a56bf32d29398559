package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"crmbot/internal/domain"
	"crmbot/internal/storage"
	"crmbot/internal/telegram"
	"crmbot/internal/transport/telegram/botapi"
	logx "crmbot/pkg/logx"

	"github.com/gin-gonic/gin"
)

type handlers struct {
	tg  Telegram
	rec Records
	log logx.Logger
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

// webhook always answers 200 so Telegram does not redeliver the update.
func (h *handlers) webhook(c *gin.Context) {
	u, err := botapi.DecodeUpdate(c.Request.Body)
	if err != nil {
		h.log.Warn("webhook: bad update body", logx.Err(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	res := h.tg.ProcessWebhook(c.Request.Context(), u)
	c.JSON(http.StatusOK, gin.H{"success": res.Success})
}

type settingsView struct {
	ID                  int64  `json:"id"`
	BotToken            string `json:"botToken"`
	ChatID              string `json:"chatId"`
	IsActive            bool   `json:"isActive"`
	NotifyNewClients    bool   `json:"notifyNewClients"`
	NotifyNewDeals      bool   `json:"notifyNewDeals"`
	NotifyNewTasks      bool   `json:"notifyNewTasks"`
	NotifyTaskDeadlines bool   `json:"notifyTaskDeadlines"`
	TaskReminderHours   []int  `json:"taskReminderHours"`
}

func viewSettings(s domain.NotificationSettings) settingsView {
	hours := s.TaskReminderHours
	if hours == nil {
		hours = []int{}
	}
	return settingsView{
		ID:                  s.ID,
		BotToken:            MaskToken(s.BotToken),
		ChatID:              s.ChatID,
		IsActive:            s.IsActive,
		NotifyNewClients:    s.NotifyNewClients,
		NotifyNewDeals:      s.NotifyNewDeals,
		NotifyNewTasks:      s.NotifyNewTasks,
		NotifyTaskDeadlines: s.NotifyTaskDeadlines,
		TaskReminderHours:   hours,
	}
}

// MaskToken keeps the bot id prefix and the last four characters.
func MaskToken(tok string) string {
	if tok == "" {
		return ""
	}
	r := []rune(tok)
	if len(r) <= 8 {
		return "****"
	}
	head := 4
	for i, ch := range r {
		if ch == ':' {
			head = i + 1
			break
		}
	}
	if head > len(r)-4 {
		head = 4
	}
	return string(r[:head]) + "****" + string(r[len(r)-4:])
}

func (h *handlers) getSettings(c *gin.Context) {
	st, err := h.tg.Settings(c.Request.Context())
	if err != nil {
		h.log.Error("load settings failed", logx.Err(err))
		fail(c, http.StatusInternalServerError, "failed to load settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": viewSettings(st)})
}

func (h *handlers) putSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.tg.UpdateSettings(c.Request.Context(), patch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReminderHours) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("update settings failed", logx.Err(err))
		fail(c, http.StatusInternalServerError, "failed to update settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": viewSettings(st)})
}

func (h *handlers) connection(c *gin.Context) {
	conn := h.tg.CheckConnection(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": conn.OK, "connection": conn})
}

func (h *handlers) test(c *gin.Context) {
	if !h.tg.TestMessage(c.Request.Context()) {
		fail(c, http.StatusBadGateway, "test message was not delivered")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) checkDeadlines(c *gin.Context) {
	res := h.tg.CheckTaskDeadlines(c.Request.Context())
	c.JSON(http.StatusOK, res)
}

func (h *handlers) dailySummary(c *gin.Context) {
	res := h.tg.SendDailySummary(c.Request.Context())
	c.JSON(http.StatusOK, res)
}

func (h *handlers) setWebhook(c *gin.Context) {
	err := h.tg.SetWebhook(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, telegram.ErrNoWebhookURL), errors.Is(err, telegram.ErrNotConfigured):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		h.log.Warn("setWebhook failed", logx.Err(err))
		fail(c, http.StatusBadGateway, err.Error())
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// lookupFailed writes the response for a failed record lookup.
func (h *handlers) lookupFailed(c *gin.Context, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		fail(c, http.StatusNotFound, what+" not found")
		return
	}
	h.log.Error("lookup failed", logx.String("what", what), logx.Err(err))
	fail(c, http.StatusInternalServerError, "failed to load "+what)
}

func sent(c *gin.Context, ok bool) {
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (h *handlers) notifyTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := h.rec.GetTask(c.Request.Context(), id)
	if err != nil {
		h.lookupFailed(c, "task", err)
		return
	}
	sent(c, h.tg.SendTaskNotification(c.Request.Context(), t))
}

func (h *handlers) notifyClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cl, err := h.rec.GetClient(c.Request.Context(), id)
	if err != nil {
		h.lookupFailed(c, "client", err)
		return
	}
	sent(c, h.tg.NotifyNewClient(c.Request.Context(), cl))
}

func (h *handlers) notifyDeal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.rec.GetDeal(c.Request.Context(), id)
	if err != nil {
		h.lookupFailed(c, "deal", err)
		return
	}
	sent(c, h.tg.NotifyNewDeal(c.Request.Context(), d))
}

func (h *handlers) notifyDealCompleted(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.rec.GetDeal(c.Request.Context(), id)
	if err != nil {
		h.lookupFailed(c, "deal", err)
		return
	}
	if !d.Status.Terminal() {
		fail(c, http.StatusConflict, "deal is not closed")
		return
	}
	sent(c, h.tg.NotifyDealCompleted(c.Request.Context(), d))
}

func (h *handlers) history(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "items": h.tg.History()})
}
