package telegram

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"storefront-bot/internal/api"
	"storefront-bot/internal/apperr"
	"storefront-bot/internal/conversation"
	"storefront-bot/internal/menu"
	"storefront-bot/internal/role"
)

const ctxRole = "role"

// chooseRole handles a role name typed in reply to the role prompt or
// tapped on the inline role keyboard.
func (b *Bot) chooseRole(ctx context.Context, ev Event, choice string) (reply, error) {
	r := role.Parse(choice)
	switch {
	case r == role.Unassigned:
		b.convs.Register(ctx, ev.ChatID, conversation.StepRoleChoice, nil)
		return reply{markup: roleKeyboard()}, apperr.Validation(msgBadRole)

	case r.Privileged():
		if b.passcodes[r] == "" {
			b.convs.Register(ctx, ev.ChatID, conversation.StepRoleChoice, nil)
			return reply{markup: roleKeyboard()}, apperr.Validation(fmt.Sprintf(msgRoleLocked, r))
		}
		b.convs.Register(ctx, ev.ChatID, conversation.StepPasscode, map[string]string{ctxRole: r.String()})
		return reply{text: fmt.Sprintf(msgPasscodePrompt, b.bold(r.String())), markup: cancelKeyboard()}, nil
	}

	b.convs.Cancel(ctx, ev.ChatID)
	return b.assign(ctx, ev, r)
}

func (b *Bot) assign(ctx context.Context, ev Event, r role.Role) (reply, error) {
	if err := b.roles.Assign(ctx, ev.ChatID, ev.UserHandle, r); err != nil {
		return reply{}, apperr.Upstream("assign role", err)
	}
	log.Info().Int64("chat_id", ev.ChatID).Str("role", r.String()).Msg("role assigned")
	return b.menuReply(fmt.Sprintf(msgRoleAssigned, b.bold(r.String())), r), nil
}

func (b *Bot) stepRoleChoice(ctx context.Context, ev Event, _ conversation.Conversation) (reply, error) {
	return b.chooseRole(ctx, ev, ev.Payload)
}

// stepPasscode never gives up: a wrong passcode re-arms the same step.
func (b *Bot) stepPasscode(ctx context.Context, ev Event, conv conversation.Conversation) (reply, error) {
	r := role.Parse(conv.Get(ctxRole))
	want := b.passcodes[r]
	if !r.Privileged() || want == "" {
		log.Warn().Int64("chat_id", ev.ChatID).Str("role", conv.Get(ctxRole)).Msg("passcode step without a passcode role")
		b.convs.Register(ctx, ev.ChatID, conversation.StepRoleChoice, nil)
		return reply{markup: roleKeyboard()}, apperr.Validation(msgBadRole)
	}

	got := strings.TrimSpace(ev.Payload)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		log.Info().Int64("chat_id", ev.ChatID).Str("role", r.String()).Msg("wrong passcode")
		return b.retry(ctx, conv, apperr.Validation(msgBadPasscode))
	}
	return b.assign(ctx, ev, r)
}

// retry re-arms conv so the chat can correct its input.
func (b *Bot) retry(ctx context.Context, conv conversation.Conversation, err error) (reply, error) {
	b.convs.Register(ctx, conv.ChatID, conv.Step, conv.Context)
	return reply{markup: cancelKeyboard()}, err
}

// await registers step for the caller and prompts for its input.
func (b *Bot) await(ctx context.Context, ev Event, r role.Role, step conversation.Step, prompt string) (reply, error) {
	b.convs.Register(ctx, ev.ChatID, step, map[string]string{ctxRole: r.String()})
	return reply{text: prompt, markup: cancelKeyboard()}, nil
}

// done finishes a workflow with a confirmation and the caller's menu.
func (b *Bot) done(conv conversation.Conversation, text string) (reply, error) {
	return b.menuReply(text, role.Parse(conv.Get(ctxRole))), nil
}

func (b *Bot) actListProducts(ctx context.Context, _ Event, r role.Role) (reply, error) {
	products, err := b.gw.ListProducts(ctx, 0)
	if err != nil {
		return reply{}, apperr.Upstream("list products", err)
	}
	if len(products) == 0 {
		return reply{text: "📦 No products yet.", markup: actionKeyboard(r, menu.AddProduct)}, nil
	}
	var sb strings.Builder
	sb.WriteString(b.bold("📦 Products") + "\n")
	for _, p := range products {
		fmt.Fprintf(&sb, "\n#%d %s (%s): %.2f, %d in stock", p.ID, b.esc(p.Name), b.esc(p.Category), p.Price, p.Quantity)
	}
	return reply{
		text:   sb.String(),
		markup: actionKeyboard(r, menu.PlaceOrder, menu.AddProduct, menu.UpdateProduct, menu.DeleteProduct),
	}, nil
}

func (b *Bot) actMyOrders(ctx context.Context, ev Event, r role.Role) (reply, error) {
	orders, err := b.gw.ListUserOrders(ctx, ev.ChatID)
	if err != nil {
		return reply{}, apperr.Upstream("list user orders", err)
	}
	if len(orders) == 0 {
		return reply{text: "📋 You have no orders yet.", markup: actionKeyboard(r, menu.PlaceOrder)}, nil
	}
	return reply{text: b.formatOrders("📋 Your orders", orders, false), markup: actionKeyboard(r, menu.PlaceOrder)}, nil
}

func (b *Bot) actAllOrders(ctx context.Context, _ Event, r role.Role) (reply, error) {
	orders, err := b.gw.ListOrders(ctx)
	if err != nil {
		return reply{}, apperr.Upstream("list orders", err)
	}
	if len(orders) == 0 {
		return reply{text: "📑 There are no orders."}, nil
	}
	return reply{text: b.formatOrders("📑 All orders", orders, true), markup: actionKeyboard(r, menu.DeleteOrder)}, nil
}

func (b *Bot) formatOrders(title string, orders []api.Order, withUser bool) string {
	var sb strings.Builder
	sb.WriteString(b.bold(title) + "\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "\n#%d product %d x %d", o.ID, o.ProductID, o.Quantity)
		if withUser {
			fmt.Fprintf(&sb, " (chat %d)", o.UserID)
		}
	}
	return sb.String()
}

func (b *Bot) actPlaceOrder(ctx context.Context, ev Event, r role.Role) (reply, error) {
	return b.await(ctx, ev, r, conversation.StepOrderCreate, msgOrderCreatePrompt)
}

func (b *Bot) actAddProduct(ctx context.Context, ev Event, r role.Role) (reply, error) {
	return b.await(ctx, ev, r, conversation.StepProductCreate, msgProductCreatePrompt)
}

func (b *Bot) actUpdateProduct(ctx context.Context, ev Event, r role.Role) (reply, error) {
	return b.await(ctx, ev, r, conversation.StepProductUpdate, msgProductUpdatePrompt)
}

func (b *Bot) actDeleteProduct(ctx context.Context, ev Event, r role.Role) (reply, error) {
	return b.await(ctx, ev, r, conversation.StepProductDelete, msgProductDeletePrompt)
}

func (b *Bot) actDeleteOrder(ctx context.Context, ev Event, r role.Role) (reply, error) {
	return b.await(ctx, ev, r, conversation.StepOrderDelete, msgOrderDeletePrompt)
}

func (b *Bot) stepProductCreate(ctx context.Context, ev Event, conv conversation.Conversation) (reply, error) {
	in, err := parseProductCreate(ev.Payload)
	if err != nil {
		return b.retry(ctx, conv, err)
	}
	p, err := b.gw.CreateProduct(ctx, in)
	if err != nil {
		return reply{}, apperr.Upstream("create product", err)
	}
	return b.done(conv, fmt.Sprintf("✅ Product #%d %s created.", p.ID, b.esc(p.Name)))
}

func (b *Bot) stepProductUpdate(ctx context.Context, ev Event, conv conversation.Conversation) (reply, error) {
	id, in, err := parseProductUpdate(ev.Payload)
	if err != nil {
		return b.retry(ctx, conv, err)
	}
	p, err := b.gw.UpdateProduct(ctx, id, in)
	if api.IsNotFound(err) {
		return b.retry(ctx, conv, apperr.Validation(fmt.Sprintf(msgProductNotFound, id)))
	}
	if err != nil {
		return reply{}, apperr.Upstream("update product", err)
	}
	return b.done(conv, fmt.Sprintf("✅ Product #%d %s updated.", p.ID, b.esc(p.Name)))
}

func (b *Bot) stepProductDelete(ctx context.Context, ev Event, conv conversation.Conversation) (reply, error) {
	id, err := parseID(ev.Payload)
	if err != nil {
		return b.retry(ctx, conv, err)
	}
	err = b.gw.DeleteProduct(ctx, id)
	if api.IsNotFound(err) {
		return b.retry(ctx, conv, apperr.Validation(fmt.Sprintf(msgProductNotFound, id)))
	}
	if err != nil {
		return reply{}, apperr.Upstream("delete product", err)
	}
	return b.done(conv, fmt.Sprintf("🗑 Product #%d deleted.", id))
}

func (b *Bot) stepOrderCreate(ctx context.Context, ev Event, conv conversation.Conversation) (reply, error) {
	pid, qty, err := parseOrderCreate(ev.Payload)
	if err != nil {
		return b.retry(ctx, conv, err)
	}
	o, err := b.gw.CreateOrder(ctx, api.OrderInput{UserID: ev.ChatID, ProductID: pid, Quantity: qty})
	if api.IsNotFound(err) {
		return b.retry(ctx, conv, apperr.Validation(fmt.Sprintf(msgProductNotFound, pid)))
	}
	if err != nil {
		return reply{}, apperr.Upstream("create order", err)
	}
	return b.done(conv, fmt.Sprintf("✅ Order #%d placed: product %d x %d.", o.ID, o.ProductID, o.Quantity))
}

func (b *Bot) stepOrderDelete(ctx context.Context, ev Event, conv conversation.Conversation) (reply, error) {
	id, err := parseID(ev.Payload)
	if err != nil {
		return b.retry(ctx, conv, err)
	}
	err = b.gw.DeleteOrder(ctx, id)
	if api.IsNotFound(err) {
		return b.retry(ctx, conv, apperr.Validation(fmt.Sprintf(msgOrderNotFound, id)))
	}
	if err != nil {
		return reply{}, apperr.Upstream("delete order", err)
	}
	return b.done(conv, fmt.Sprintf("❌ Order #%d deleted.", id))
}
