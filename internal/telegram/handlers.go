package telegram

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"storefront-bot/internal/apperr"
	"storefront-bot/internal/conversation"
	"storefront-bot/internal/menu"
	"storefront-bot/internal/role"
)

// Callback data.
const (
	cbRolePrefix   = "role:"
	cbActionPrefix = "action:"
	cbCancel       = "cancel"
)

type (
	handlerFunc func(ctx context.Context, ev Event) (reply, error)
	actionFunc  func(ctx context.Context, ev Event, r role.Role) (reply, error)
	stepFunc    func(ctx context.Context, ev Event, conv conversation.Conversation) (reply, error)
)

// callbackRoute binds callback data to a handler: exactly when prefix is
// false, by prefix otherwise.
type callbackRoute struct {
	data   string
	prefix bool
	name   string
	h      handlerFunc
}

func (b *Bot) registerHandlers() {
	b.commands = map[string]handlerFunc{
		"start":  b.cmdStart,
		"help":   b.cmdHelp,
		"info":   b.cmdInfo,
		"menu":   b.cmdMenu,
		"cancel": b.cmdCancel,
		"role":   b.cmdRole,
	}

	// role-gated commands run as their menu action
	b.gatedCommands = map[string]string{
		"stats": menu.Stats,
	}

	b.actions = map[string]actionFunc{
		menu.ListProducts:  b.actListProducts,
		menu.PlaceOrder:    b.actPlaceOrder,
		menu.MyOrders:      b.actMyOrders,
		menu.AddProduct:    b.actAddProduct,
		menu.UpdateProduct: b.actUpdateProduct,
		menu.DeleteProduct: b.actDeleteProduct,
		menu.AllOrders:     b.actAllOrders,
		menu.DeleteOrder:   b.actDeleteOrder,
		menu.Stats:         b.actStats,
		menu.Start:         b.commandAction(b.cmdStart),
		menu.Help:          b.commandAction(b.cmdHelp),
		menu.Info:          b.commandAction(b.cmdInfo),
	}

	b.steps = map[conversation.Step]stepFunc{
		conversation.StepRoleChoice:    b.stepRoleChoice,
		conversation.StepPasscode:      b.stepPasscode,
		conversation.StepProductCreate: b.stepProductCreate,
		conversation.StepProductUpdate: b.stepProductUpdate,
		conversation.StepProductDelete: b.stepProductDelete,
		conversation.StepOrderCreate:   b.stepOrderCreate,
		conversation.StepOrderDelete:   b.stepOrderDelete,
	}

	b.callbacks = []callbackRoute{
		{data: cbCancel, name: "callback:cancel", h: b.cmdCancel},
		{data: cbRolePrefix, prefix: true, name: "callback:role", h: b.cbRole},
		{data: cbActionPrefix, prefix: true, name: "callback:action", h: b.cbAction},
	}
}

func (b *Bot) commandAction(h handlerFunc) actionFunc {
	return func(ctx context.Context, ev Event, _ role.Role) (reply, error) { return h(ctx, ev) }
}

// route picks the one handler for ev. Precedence: callback, command, menu
// label, pending continuation, fallback. Commands and menu labels discard
// any pending continuation before their handler runs, except when the
// caller's role denies them.
func (b *Bot) route(ctx context.Context, ev Event) (string, reply, error) {
	switch ev.Kind {
	case KindCallback:
		if cb, ok := b.matchCallback(ev.Payload); ok {
			r, err := cb.h(ctx, ev)
			return cb.name, r, err
		}
		// stale or foreign buttons must not eat a pending continuation
		return "fallback", reply{}, apperr.Unknown()

	case KindCommand:
		if id, ok := b.gatedCommands[ev.Command]; ok {
			a, _ := menu.ByID(id)
			r, err := b.runAction(ctx, ev, a)
			return "command:" + ev.Command, r, err
		}
		if h, ok := b.commands[ev.Command]; ok {
			b.convs.Cancel(ctx, ev.ChatID)
			r, err := h(ctx, ev)
			return "command:" + ev.Command, r, err
		}

	case KindText:
		if a, ok := menu.ByLabel(strings.TrimSpace(ev.Payload)); ok {
			r, err := b.runAction(ctx, ev, a)
			return "action:" + a.ID, r, err
		}
	}

	if conv, ok := b.convs.Consume(ctx, ev.ChatID); ok {
		if step, ok := b.steps[conv.Step]; ok {
			r, err := step(ctx, ev, conv)
			return "step:" + string(conv.Step), r, err
		}
		log.Error().Str("step", string(conv.Step)).Int64("chat_id", ev.ChatID).Msg("no handler for step")
	}

	return "fallback", reply{}, apperr.Unknown()
}

func (b *Bot) matchCallback(data string) (callbackRoute, bool) {
	for _, cb := range b.callbacks {
		if cb.prefix && strings.HasPrefix(data, cb.data) {
			return cb, true
		}
		if !cb.prefix && data == cb.data {
			return cb, true
		}
	}
	return callbackRoute{}, false
}

// runAction gates a on the caller's role. A denied action leaves any pending
// continuation in place; a permitted one replaces it.
func (b *Bot) runAction(ctx context.Context, ev Event, a menu.Action) (reply, error) {
	r := role.Unassigned
	if !a.Common {
		r = b.roles.Resolve(ctx, ev.ChatID)
		if !a.Allows(r) {
			return reply{}, b.denied(r)
		}
	}
	b.convs.Cancel(ctx, ev.ChatID)
	return b.actions[a.ID](ctx, ev, r)
}

func (b *Bot) denied(r role.Role) error {
	if r == role.Unassigned {
		return apperr.Forbidden(msgRegisterFirst)
	}
	return apperr.Forbidden("⛔ This action is not available for the " + r.String() + " role.")
}

func (b *Bot) cbRole(ctx context.Context, ev Event) (reply, error) {
	return b.chooseRole(ctx, ev, strings.TrimPrefix(ev.Payload, cbRolePrefix))
}

func (b *Bot) cbAction(ctx context.Context, ev Event) (reply, error) {
	a, ok := menu.ByID(strings.TrimPrefix(ev.Payload, cbActionPrefix))
	if !ok {
		return reply{}, apperr.Unknown()
	}
	return b.runAction(ctx, ev, a)
}
