package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"storefront-bot/internal/menu"
	"storefront-bot/internal/role"
)

const menuRowWidth = 2

// menuKeyboard renders m as a persistent reply keyboard. Button text is the
// action label, which the router matches on.
func menuKeyboard(m menu.Menu) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	for _, a := range m.Actions {
		row = append(row, tgbotapi.NewKeyboardButton(a.Label))
		if len(row) == menuRowWidth {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

func roleKeyboard() tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, r := range role.Selectable() {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(r.String(), cbRolePrefix+r.String()))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖ Cancel", cbCancel)),
	)
}

// actionKeyboard offers inline shortcuts to the given actions, skipping the
// ones r may not run.
func actionKeyboard(r role.Role, ids ...string) any {
	var row []tgbotapi.InlineKeyboardButton
	for _, id := range ids {
		a, ok := menu.ByID(id)
		if !ok || !a.Allows(r) {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, cbActionPrefix+a.ID))
	}
	if len(row) == 0 {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// menuReply attaches the role's menu to text. Unassigned chats get the
// register-first hint and the keyboard is removed.
func (b *Bot) menuReply(text string, r role.Role) reply {
	m := menu.Build(r)
	if m.RegisterFirst {
		return reply{text: text + "\n\n" + msgRegisterFirst, markup: tgbotapi.NewRemoveKeyboard(true)}
	}
	return reply{text: text, markup: menuKeyboard(m)}
}
