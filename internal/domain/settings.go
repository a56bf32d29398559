package domain

import (
	"errors"
	"fmt"
	"strings"
)

// NotificationSettings is the singleton configuration row of the Telegram channel.
type NotificationSettings struct {
	ID                  int64
	BotToken            string
	ChatID              string
	IsActive            bool
	NotifyNewClients    bool
	NotifyNewDeals      bool
	NotifyNewTasks      bool
	NotifyTaskDeadlines bool
	TaskReminderHours   []int
}

// Configured reports whether both the credential and the destination are set.
func (s NotificationSettings) Configured() bool {
	return strings.TrimSpace(s.BotToken) != "" && strings.TrimSpace(s.ChatID) != ""
}

// RemindersEnabled reports whether deadline reminders may be sent at all.
func (s NotificationSettings) RemindersEnabled() bool {
	return s.IsActive && s.Configured() && s.NotifyTaskDeadlines
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	BotToken            *string `json:"botToken,omitempty"`
	ChatID              *string `json:"chatId,omitempty"`
	IsActive            *bool   `json:"isActive,omitempty"`
	NotifyNewClients    *bool   `json:"notifyNewClients,omitempty"`
	NotifyNewDeals      *bool   `json:"notifyNewDeals,omitempty"`
	NotifyNewTasks      *bool   `json:"notifyNewTasks,omitempty"`
	NotifyTaskDeadlines *bool   `json:"notifyTaskDeadlines,omitempty"`
	TaskReminderHours   []int   `json:"taskReminderHours,omitempty"`
}

var ErrInvalidReminderHours = errors.New("task reminder hours must be positive integers")

// ValidateReminderHours rejects non-positive offsets. Order is kept as given.
func ValidateReminderHours(hours []int) error {
	for i, h := range hours {
		if h <= 0 {
			return fmt.Errorf("%w: taskReminderHours[%d]=%d", ErrInvalidReminderHours, i, h)
		}
	}
	return nil
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s NotificationSettings) (NotificationSettings, error) {
	if p.BotToken != nil {
		s.BotToken = strings.TrimSpace(*p.BotToken)
	}
	if p.ChatID != nil {
		s.ChatID = strings.TrimSpace(*p.ChatID)
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.NotifyNewClients != nil {
		s.NotifyNewClients = *p.NotifyNewClients
	}
	if p.NotifyNewDeals != nil {
		s.NotifyNewDeals = *p.NotifyNewDeals
	}
	if p.NotifyNewTasks != nil {
		s.NotifyNewTasks = *p.NotifyNewTasks
	}
	if p.NotifyTaskDeadlines != nil {
		s.NotifyTaskDeadlines = *p.NotifyTaskDeadlines
	}
	if p.TaskReminderHours != nil {
		if err := ValidateReminderHours(p.TaskReminderHours); err != nil {
			return s, err
		}
		s.TaskReminderHours = append([]int(nil), p.TaskReminderHours...)
	}
	return s, nil
}
