package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

type Kind string

const (
	KindCommand  Kind = "command"
	KindText     Kind = "text"
	KindCallback Kind = "callback"
)

// Event is a platform update reduced to what the router needs.
type Event struct {
	ID         string
	ChatID     int64
	UserHandle string
	Kind       Kind
	// Payload is the raw message text or callback data.
	Payload string
	// Command and Args are set for KindCommand only.
	Command string
	Args    string
	// CallbackID must be acknowledged for KindCallback.
	CallbackID string
}

// EventFromUpdate normalises an update. Updates without text or callback
// data yield false.
func EventFromUpdate(u tgbotapi.Update) (Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		ev := Event{
			ID:         uuid.NewString(),
			Kind:       KindCallback,
			Payload:    cb.Data,
			CallbackID: cb.ID,
		}
		if cb.From != nil {
			ev.ChatID = cb.From.ID
			ev.UserHandle = cb.From.UserName
		}
		if cb.Message != nil && cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
		}
		return ev, ev.ChatID != 0

	case u.Message != nil:
		msg := u.Message
		if msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
			return Event{}, false
		}
		ev := Event{
			ID:      uuid.NewString(),
			ChatID:  msg.Chat.ID,
			Kind:    KindText,
			Payload: msg.Text,
		}
		if msg.From != nil {
			ev.UserHandle = msg.From.UserName
		}
		if msg.IsCommand() {
			ev.Kind = KindCommand
			ev.Command = strings.ToLower(msg.Command())
			ev.Args = strings.TrimSpace(msg.CommandArguments())
		}
		return ev, true
	}
	return Event{}, false
}
