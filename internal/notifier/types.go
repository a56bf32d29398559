package notifier

import "time"

// Config controls outbound delivery.
type Config struct {
	RatePerSec  int
	Timeout     time.Duration
	HistorySize int
}

// Kind labels a send for metrics and history.
type Kind string

const (
	KindMessage       Kind = "message"
	KindReminder      Kind = "reminder"
	KindSummary       Kind = "summary"
	KindNewTask       Kind = "new_task"
	KindNewClient     Kind = "new_client"
	KindNewDeal       Kind = "new_deal"
	KindDealCompleted Kind = "deal_completed"
	KindReply         Kind = "reply"
	KindTest          Kind = "test"
)

type HistoryItem struct {
	At     time.Time `json:"at"`
	Kind   Kind      `json:"kind"`
	ChatID string    `json:"chatId"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
	Text   string    `json:"text"`
}
