package botapi

import (
	"encoding/json"
	"fmt"
	"io"

	kit "crmbot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// maxUpdateBytes bounds webhook bodies; real updates are a few KB.
const maxUpdateBytes = 1 << 20

// DecodeUpdate parses a webhook body (the Bot API Update envelope).
func DecodeUpdate(r io.Reader) (kit.Update, error) {
	var u tele.Update
	if err := json.NewDecoder(io.LimitReader(r, maxUpdateBytes)).Decode(&u); err != nil {
		return kit.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return FromTele(u), nil
}

// FromTele maps a telebot update onto the transport shape.
func FromTele(u tele.Update) kit.Update {
	out := kit.Update{ID: u.ID, Kind: kit.UpdateOther}
	switch {
	case u.Callback != nil:
		cb := u.Callback
		c := &kit.Callback{ID: cb.ID, Data: cb.Data}
		if cb.Sender != nil {
			c.FromID = cb.Sender.ID
		}
		if cb.Message != nil {
			c.MessageID = cb.Message.ID
			if cb.Message.Chat != nil {
				c.ChatID = cb.Message.Chat.ID
			}
		}
		out.Kind = kit.UpdateCallback
		out.Callback = c
	case u.Message != nil:
		m := u.Message
		msg := &kit.Message{ID: m.ID, Text: m.Text}
		if m.Chat != nil {
			msg.ChatID = m.Chat.ID
		}
		if m.Sender != nil {
			msg.FromID = m.Sender.ID
			msg.FromUsername = m.Sender.Username
		}
		out.Kind = kit.UpdateMessage
		out.Message = msg
	}
	return out
}
