package notifier

import (
	"context"
	"fmt"
	"sync"

	"crmbot/internal/domain"
	"crmbot/internal/storage"
	logx "crmbot/pkg/logx"
)

// SettingsSource is the single entry point to the notification settings row.
type SettingsSource struct {
	store    storage.SettingsStore
	defaults func() domain.NotificationSettings
	log      logx.Logger

	// mu serializes lazy creation and read-modify-write updates.
	mu sync.Mutex
}

// NewSettingsSource returns a source backed by store. defaults seeds the row
// when none exists; it is called on each creation so config reloads apply.
func NewSettingsSource(store storage.SettingsStore, defaults func() domain.NotificationSettings, log logx.Logger) *SettingsSource {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SettingsSource{store: store, defaults: defaults, log: log}
}

// Get returns the authoritative settings, creating the row on first use.
func (s *SettingsSource) Get(ctx context.Context) (domain.NotificationSettings, error) {
	st, ok, err := s.store.FirstSettings(ctx)
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("load notification settings: %w", err)
	}
	if ok {
		return st, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(ctx)
}

func (s *SettingsSource) getOrCreateLocked(ctx context.Context) (domain.NotificationSettings, error) {
	st, ok, err := s.store.FirstSettings(ctx)
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("load notification settings: %w", err)
	}
	if ok {
		return st, nil
	}
	def := DefaultSettings()
	if s.defaults != nil {
		def = s.defaults()
	}
	st, err = s.store.CreateSettings(ctx, def)
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("create notification settings: %w", err)
	}
	s.log.Info("notification settings created with defaults",
		logx.Int64("id", st.ID),
		logx.Bool("token_set", st.BotToken != ""),
		logx.Bool("chat_set", st.ChatID != ""),
	)
	return st, nil
}

// Update applies patch to the stored row and returns the result.
func (s *SettingsSource) Update(ctx context.Context, patch domain.SettingsPatch) (domain.NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getOrCreateLocked(ctx)
	if err != nil {
		return domain.NotificationSettings{}, err
	}
	next, err := patch.Apply(cur)
	if err != nil {
		return cur, err
	}
	if err := s.store.UpdateSettings(ctx, next); err != nil {
		return cur, fmt.Errorf("update notification settings: %w", err)
	}
	return next, nil
}

// DefaultSettings are the values of a fresh row: inactive, every notification
// kind enabled, reminders 24h and 1h before the due date.
func DefaultSettings() domain.NotificationSettings {
	return domain.NotificationSettings{
		IsActive:            false,
		NotifyNewClients:    true,
		NotifyNewDeals:      true,
		NotifyNewTasks:      true,
		NotifyTaskDeadlines: true,
		TaskReminderHours:   []int{24, 1},
	}
}
