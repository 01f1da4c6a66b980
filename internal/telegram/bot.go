package telegram

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"storefront-bot/internal/api"
	"storefront-bot/internal/apperr"
	"storefront-bot/internal/conversation"
	"storefront-bot/internal/logger"
	"storefront-bot/internal/role"
	"storefront-bot/internal/storage"
)

// Gateway is the part of the remote CRUD service the workflows use.
type Gateway interface {
	ListProducts(ctx context.Context, userID int64) ([]api.Product, error)
	CreateProduct(ctx context.Context, in api.ProductInput) (api.Product, error)
	UpdateProduct(ctx context.Context, id int64, in api.ProductInput) (api.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListOrders(ctx context.Context) ([]api.Order, error)
	ListUserOrders(ctx context.Context, chatID int64) ([]api.Order, error)
	CreateOrder(ctx context.Context, in api.OrderInput) (api.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

type Options struct {
	// Passcodes guard the privileged roles. A role without a passcode
	// cannot be selected.
	Passcodes map[role.Role]string
	ParseMode string
	Recorder  storage.Recorder
	// WebhookSecret is registered as the webhook's secret_token.
	WebhookSecret string
}

type Bot struct {
	api       *tgbotapi.BotAPI
	s         sender
	gw        Gateway
	roles     *role.Resolver
	convs     conversation.Store
	recorder  storage.Recorder
	passcodes map[role.Role]string
	parseMode string
	secret    string
	now       func() time.Time

	commands      map[string]handlerFunc
	gatedCommands map[string]string
	actions       map[string]actionFunc
	steps         map[conversation.Step]stepFunc
	callbacks     []callbackRoute

	wg sync.WaitGroup
}

func New(botToken string, gw Gateway, roles *role.Resolver, convs conversation.Store, opts Options) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	b := newBot(botAPISender{api: botAPI}, gw, roles, convs, opts)
	b.api = botAPI
	log.Info().Str("bot", botAPI.Self.UserName).Msg("authorized on telegram")
	return b, nil
}

func newBot(s sender, gw Gateway, roles *role.Resolver, convs conversation.Store, opts Options) *Bot {
	b := &Bot{
		s:         s,
		gw:        gw,
		roles:     roles,
		convs:     convs,
		recorder:  opts.Recorder,
		passcodes: opts.Passcodes,
		parseMode: opts.ParseMode,
		secret:    opts.WebhookSecret,
		now:       time.Now,
	}
	if b.passcodes == nil {
		b.passcodes = map[role.Role]string{}
	}
	b.registerHandlers()
	return b
}

// Start long-polls Telegram until ctx is cancelled, dispatching each update
// on its own goroutine.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	log.Info().Msg("long polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			b.Go(ctx, update)
		}
	}
}

// Go dispatches update asynchronously.
func (b *Bot) Go(ctx context.Context, update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.HandleUpdate(ctx, update)
	}()
}

// Wait blocks until every dispatch started by Go has finished.
func (b *Bot) Wait() { b.wg.Wait() }

// HandleUpdate normalises and dispatches one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ev, ok := EventFromUpdate(update)
	if !ok {
		log.Debug().Int("update_id", update.UpdateID).Msg("ignoring update without text")
		return
	}
	b.Dispatch(ctx, ev)
}

// Dispatch routes ev to exactly one handler and sends exactly one message.
func (b *Bot) Dispatch(ctx context.Context, ev Event) {
	start := b.now()
	lg := logger.WithChat(ev.ChatID).With().
		Str("event_id", ev.ID).
		Str("kind", string(ev.Kind)).
		Logger()

	if ev.CallbackID != "" {
		if _, err := b.s.Request(tgbotapi.NewCallback(ev.CallbackID, "")); err != nil {
			lg.Warn().Err(err).Msg("failed to answer callback")
		}
	}

	handler, outcome := "panic", "panic"
	defer func() {
		if p := recover(); p != nil {
			lg.Error().Interface("panic", p).Msg("handler panicked")
			b.convs.Cancel(ctx, ev.ChatID)
			b.send(ev.ChatID, reply{text: msgTryLater})
		}
		b.record(ev, handler, outcome, start)
	}()

	var (
		r   reply
		err error
	)
	handler, r, err = b.route(ctx, ev)
	outcome = "ok"
	if err != nil {
		outcome = string(apperr.CodeOf(err))
		r = b.renderError(ctx, ev, r, err, lg)
	}
	b.send(ev.ChatID, r)

	lg.Info().
		Str("handler", handler).
		Str("outcome", outcome).
		Dur("took", b.now().Sub(start)).
		Msg("event dispatched")
}

func (b *Bot) record(ev Event, handler, outcome string, start time.Time) {
	if b.recorder == nil {
		return
	}
	err := b.recorder.AppendEvent(storage.Event{
		Timestamp:  start.UTC(),
		ChatID:     ev.ChatID,
		Kind:       string(ev.Kind),
		Handler:    handler,
		Outcome:    outcome,
		DurationMs: b.now().Sub(start).Milliseconds(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to append dispatch journal")
	}
}

// renderError turns a handler failure into the single reply for the event
// and applies the state change its class requires.
func (b *Bot) renderError(ctx context.Context, ev Event, r reply, err error, lg zerolog.Logger) reply {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		// the handler has already re-registered its continuation
		return reply{text: apperr.MessageOf(err, msgInvalidInput), markup: r.markup}
	case apperr.CodeForbidden:
		return reply{text: apperr.MessageOf(err, msgForbidden)}
	case apperr.CodeUnknown:
		rl := b.roles.Resolve(ctx, ev.ChatID)
		return b.menuReply(msgUnknown, rl)
	default:
		lg.Warn().Err(err).Msg("upstream failure")
		b.convs.Cancel(ctx, ev.ChatID)
		return reply{text: msgTryLater}
	}
}

// reply is the single outbound message produced for an event. markup is one
// of the tgbotapi keyboard types or nil.
type reply struct {
	text   string
	markup any
}

func (b *Bot) send(chatID int64, r reply) {
	msg := tgbotapi.NewMessage(chatID, r.text)
	msg.ParseMode = b.parseMode
	if r.markup != nil {
		msg.ReplyMarkup = r.markup
	}
	if _, err := b.s.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

// esc escapes user supplied text for the configured parse mode.
func (b *Bot) esc(s string) string {
	if b.parseMode == tgbotapi.ModeHTML {
		return html.EscapeString(s)
	}
	return s
}

func (b *Bot) bold(s string) string {
	if b.parseMode == tgbotapi.ModeHTML {
		return "<b>" + html.EscapeString(s) + "</b>"
	}
	return s
}

// SendDailyReport posts the current day's dispatch statistics to chatID and
// logs them as JSON.
func (b *Bot) SendDailyReport(ctx context.Context, chatID int64) error {
	stats, err := b.dailyStats()
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if stats != nil {
		if raw, err := stats.ToJSON(); err == nil {
			log.Info().RawJSON("stats", []byte(raw)).Int64("chat_id", chatID).Msg("daily report")
		}
	}
	msg := tgbotapi.NewMessage(chatID, b.renderStats(stats))
	msg.ParseMode = b.parseMode
	if _, err := b.s.Send(msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

// RegisterWebhook points Telegram at link. Telegram echoes the secret in
// every delivery. Setting the same link again is a no-op on Telegram's side.
func (b *Bot) RegisterWebhook(link string) error {
	u, err := url.Parse(link)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("webhook url %q must be an absolute https url", link)
	}
	params := tgbotapi.Params{"url": u.String()}
	params.AddNonEmpty("secret_token", b.secret)
	if _, err := b.s.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	log.Info().Str("url", u.String()).Bool("secret", b.secret != "").Msg("webhook registered")
	return nil
}

// RemoveWebhook is required before long polling when a webhook was set.
func (b *Bot) RemoveWebhook() error {
	_, err := b.s.Request(tgbotapi.DeleteWebhookConfig{})
	return err
}
