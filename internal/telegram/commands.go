package telegram

import (
	"context"
	"fmt"

	"storefront-bot/internal/analytics"
	"storefront-bot/internal/apperr"
	"storefront-bot/internal/conversation"
	"storefront-bot/internal/role"
)

func (b *Bot) cmdStart(ctx context.Context, ev Event) (reply, error) {
	r := b.roles.Resolve(ctx, ev.ChatID)
	if r == role.Unassigned {
		return b.promptRole(ctx, ev.ChatID), nil
	}
	text := fmt.Sprintf("👋 Welcome back! You are signed in as %s.", b.bold(r.String()))
	return b.menuReply(text, r), nil
}

func (b *Bot) cmdHelp(ctx context.Context, ev Event) (reply, error) {
	return b.menuReply(msgHelp, b.roles.Resolve(ctx, ev.ChatID)), nil
}

func (b *Bot) cmdInfo(ctx context.Context, ev Event) (reply, error) {
	r := b.roles.Resolve(ctx, ev.ChatID)
	handle := ev.UserHandle
	if handle == "" {
		handle = "-"
	}
	text := fmt.Sprintf("ℹ️ Chat ID: %d\nUsername: %s\nRole: %s", ev.ChatID, b.esc(handle), r)
	return b.menuReply(text, r), nil
}

func (b *Bot) cmdMenu(ctx context.Context, ev Event) (reply, error) {
	return b.menuReply(msgMenu, b.roles.Resolve(ctx, ev.ChatID)), nil
}

func (b *Bot) cmdCancel(ctx context.Context, ev Event) (reply, error) {
	b.convs.Cancel(ctx, ev.ChatID)
	return b.menuReply(msgCancelled, b.roles.Resolve(ctx, ev.ChatID)), nil
}

func (b *Bot) cmdRole(ctx context.Context, ev Event) (reply, error) {
	return b.promptRole(ctx, ev.ChatID), nil
}

func (b *Bot) actStats(_ context.Context, _ Event, r role.Role) (reply, error) {
	text, err := b.statsText()
	if err != nil {
		return reply{}, apperr.Upstream("load dispatch journal", err)
	}
	return b.menuReply(text, r), nil
}

func (b *Bot) promptRole(ctx context.Context, chatID int64) reply {
	b.convs.Register(ctx, chatID, conversation.StepRoleChoice, nil)
	return reply{text: msgRolePrompt, markup: roleKeyboard()}
}

// dailyStats aggregates today's dispatch journal. It returns nil when no
// journal is configured.
func (b *Bot) dailyStats() (*analytics.DailyStats, error) {
	if b.recorder == nil {
		return nil, nil
	}
	events, err := b.recorder.LoadEvents()
	if err != nil {
		return nil, err
	}
	return analytics.AnalyzeDaily(events, b.now()), nil
}

func (b *Bot) statsText() (string, error) {
	stats, err := b.dailyStats()
	if err != nil {
		return "", err
	}
	return b.renderStats(stats), nil
}

func (b *Bot) renderStats(stats *analytics.DailyStats) string {
	if stats == nil {
		return "📊 Statistics are not enabled."
	}
	return "📊 " + b.esc(stats.Summary())
}
