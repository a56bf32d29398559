// Package transport holds the platform-neutral shapes exchanged between the
// Telegram wire layer and the rest of the service.
package transport

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateOther    UpdateKind = "other"
)

// Update is one inbound event. Exactly one of Message/Callback is set for
// the message and callback kinds; UpdateOther carries neither.
type Update struct {
	ID       int
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64 // chat of the message carrying the button (0 if unknown)
	MessageID int
	Data      string
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard [][]Button

// Outgoing is a single text message to send.
type Outgoing struct {
	ChatID    string // numeric id or @channelusername
	Text      string
	ParseMode string
	Keyboard  Keyboard
}

// BotCommand is one entry of the bot's command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}
