package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-bot/internal/api"
	"storefront-bot/internal/api/apitest"
	"storefront-bot/internal/conversation"
	"storefront-bot/internal/role"
	"storefront-bot/internal/storage"
)

type apiCall struct {
	endpoint string
	params   tgbotapi.Params
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	calls    []apiCall
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{endpoint: endpoint, params: params})
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "nothing was sent")
	return f.sent[len(f.sent)-1]
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) AppendEvent(e storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memRecorder) LoadEvents() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event(nil), m.events...), nil
}

type harness struct {
	bot   *Bot
	fs    *fakeSender
	srv   *apitest.Server
	convs *conversation.MemoryStore
	rec   *memRecorder
}

const (
	adminPass = "s3cret"
	modPass   = "m0d"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, 2*time.Second)
	return newHarnessWithGateway(t, srv, client)
}

func newHarnessWithGateway(t *testing.T, srv *apitest.Server, gw Gateway) *harness {
	t.Helper()
	h := &harness{
		fs:    &fakeSender{},
		srv:   srv,
		convs: conversation.NewMemoryStore(),
		rec:   &memRecorder{},
	}
	h.bot = newBot(h.fs, gw, role.NewResolver(api.NewClient(srv.URL, 2*time.Second)), h.convs, Options{
		Passcodes: map[role.Role]string{role.Admin: adminPass, role.Moderator: modPass},
		ParseMode:     tgbotapi.ModeHTML,
		Recorder:      h.rec,
		WebhookSecret: "hook-secret",
	})
	return h
}

func (h *harness) dispatch(t *testing.T, ev Event) tgbotapi.MessageConfig {
	t.Helper()
	before := h.fs.count()
	h.bot.Dispatch(context.Background(), ev)
	require.Equal(t, before+1, h.fs.count(), "every event must produce exactly one message")
	return h.fs.last(t)
}

func (h *harness) text(t *testing.T, chatID int64, s string) tgbotapi.MessageConfig {
	t.Helper()
	return h.dispatch(t, Event{ID: "ev", ChatID: chatID, UserHandle: "alice", Kind: KindText, Payload: s})
}

func (h *harness) command(t *testing.T, chatID int64, name string) tgbotapi.MessageConfig {
	t.Helper()
	return h.dispatch(t, Event{ID: "ev", ChatID: chatID, UserHandle: "alice", Kind: KindCommand, Payload: "/" + name, Command: name})
}

func (h *harness) callback(t *testing.T, chatID int64, data string) tgbotapi.MessageConfig {
	t.Helper()
	return h.dispatch(t, Event{ID: "ev", ChatID: chatID, UserHandle: "alice", Kind: KindCallback, Payload: data, CallbackID: "cb-1"})
}

func (h *harness) pending(t *testing.T, chatID int64) (conversation.Conversation, bool) {
	t.Helper()
	return h.convs.Pending(context.Background(), chatID)
}

func (h *harness) assignRole(chatID int64, r role.Role) {
	h.srv.PutUser(api.User{Username: "alice", ChatID: chatID, Role: r.String()})
}

func keyboardLabels(t *testing.T, msg tgbotapi.MessageConfig) []string {
	t.Helper()
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok, "expected a reply keyboard, got %T", msg.ReplyMarkup)
	var out []string
	for _, row := range kb.Keyboard {
		for _, btn := range row {
			out = append(out, btn.Text)
		}
	}
	return out
}

func TestRoleSelectionWithPasscodeRetry(t *testing.T) {
	h := newHarness(t)
	const chat = 100

	msg := h.command(t, chat, "start")
	assert.Equal(t, msgRolePrompt, msg.Text)
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, msg.ReplyMarkup)
	c, ok := h.pending(t, chat)
	require.True(t, ok)
	assert.Equal(t, conversation.StepRoleChoice, c.Step)

	msg = h.text(t, chat, "Admin")
	assert.Contains(t, msg.Text, "passcode")
	c, ok = h.pending(t, chat)
	require.True(t, ok)
	assert.Equal(t, conversation.StepPasscode, c.Step)
	assert.Equal(t, "Admin", c.Get("role"))

	msg = h.text(t, chat, "wrong")
	assert.Equal(t, msgBadPasscode, msg.Text)
	c, ok = h.pending(t, chat)
	require.True(t, ok, "a failed passcode must leave the step armed")
	assert.Equal(t, conversation.StepPasscode, c.Step)
	assert.Equal(t, "Admin", c.Get("role"))

	msg = h.text(t, chat, " "+adminPass+" ")
	assert.Contains(t, msg.Text, "registered as")
	_, ok = h.pending(t, chat)
	assert.False(t, ok)

	u, ok := h.srv.User(chat)
	require.True(t, ok)
	assert.Equal(t, "Admin", u.Role)
	assert.Equal(t, "alice", u.Username)
	assert.Contains(t, keyboardLabels(t, msg), "🗑 Delete product")
}

func TestUserRoleNeedsNoPasscode(t *testing.T) {
	h := newHarness(t)
	h.command(t, 1, "start")

	msg := h.text(t, 1, "user")
	assert.Contains(t, msg.Text, "registered as")
	assert.NotContains(t, keyboardLabels(t, msg), "➕ Add product")

	u, ok := h.srv.User(1)
	require.True(t, ok)
	assert.Equal(t, "User", u.Role)
}

func TestRoleCallbackAndUnknownRole(t *testing.T) {
	h := newHarness(t)

	msg := h.callback(t, 5, "role:Moderator")
	assert.Contains(t, msg.Text, "passcode")
	h.fs.mu.Lock()
	require.Len(t, h.fs.requests, 1)
	assert.IsType(t, tgbotapi.CallbackConfig{}, h.fs.requests[0])
	h.fs.mu.Unlock()

	h.command(t, 5, "role")
	msg = h.text(t, 5, "Superuser")
	assert.Equal(t, msgBadRole, msg.Text)
	c, ok := h.pending(t, 5)
	require.True(t, ok)
	assert.Equal(t, conversation.StepRoleChoice, c.Step)
}

func TestPrivilegedRoleWithoutPasscodeIsLocked(t *testing.T) {
	h := newHarness(t)
	delete(h.bot.passcodes, role.Moderator)

	h.command(t, 9, "start")
	msg := h.text(t, 9, "Moderator")
	assert.Contains(t, msg.Text, "not available")
	c, ok := h.pending(t, 9)
	require.True(t, ok)
	assert.Equal(t, conversation.StepRoleChoice, c.Step)
}

func TestStartForRegisteredChatShowsMenu(t *testing.T) {
	h := newHarness(t)
	h.assignRole(3, role.Moderator)

	msg := h.command(t, 3, "start")
	assert.Contains(t, msg.Text, "Moderator")
	assert.Equal(t, []string{
		"📦 Products", "➕ Add product", "✏️ Update product", "📑 All orders",
		"🏠 Start", "❓ Help", "ℹ️ Info",
	}, keyboardLabels(t, msg))
	_, ok := h.pending(t, 3)
	assert.False(t, ok)
}

func TestCommandDiscardsContinuation(t *testing.T) {
	h := newHarness(t)
	h.assignRole(2, role.Admin)

	h.text(t, 2, "➕ Add product")
	_, ok := h.pending(t, 2)
	require.True(t, ok)

	msg := h.command(t, 2, "help")
	assert.Equal(t, msgHelp, msg.Text)
	_, ok = h.pending(t, 2)
	assert.False(t, ok)
	assert.Empty(t, h.srv.Products())
}

func TestLabelReplacesContinuation(t *testing.T) {
	h := newHarness(t)
	h.assignRole(2, role.Admin)

	h.text(t, 2, "➕ Add product")
	h.text(t, 2, "❌ Delete order")
	c, ok := h.pending(t, 2)
	require.True(t, ok)
	assert.Equal(t, conversation.StepOrderDelete, c.Step)
}

func TestForbiddenLabelKeepsContinuation(t *testing.T) {
	h := newHarness(t)
	h.assignRole(4, role.User)

	h.text(t, 4, "🛒 Place order")
	msg := h.text(t, 4, "🗑 Delete product")
	assert.Contains(t, msg.Text, "not available for the User role")

	c, ok := h.pending(t, 4)
	require.True(t, ok)
	assert.Equal(t, conversation.StepOrderCreate, c.Step)
}

func TestUnassignedChatMustRegisterFirst(t *testing.T) {
	h := newHarness(t)
	msg := h.text(t, 8, "📦 Products")
	assert.Equal(t, msgRegisterFirst, msg.Text)
}

func TestFallback(t *testing.T) {
	h := newHarness(t)

	msg := h.text(t, 6, "hello?")
	assert.True(t, strings.HasPrefix(msg.Text, msgUnknown))
	assert.Contains(t, msg.Text, msgRegisterFirst)
	assert.IsType(t, tgbotapi.ReplyKeyboardRemove{}, msg.ReplyMarkup)

	h.assignRole(6, role.User)
	msg = h.text(t, 6, "hello?")
	assert.Equal(t, msgUnknown, msg.Text)
	assert.Contains(t, keyboardLabels(t, msg), "🛒 Place order")
}

func TestUnmatchedCallbackKeepsContinuation(t *testing.T) {
	h := newHarness(t)
	h.assignRole(7, role.User)
	h.text(t, 7, "🛒 Place order")

	msg := h.callback(t, 7, "something-stale")
	assert.Equal(t, msgUnknown, msg.Text)
	_, ok := h.pending(t, 7)
	assert.True(t, ok)
}

func TestCancelCallback(t *testing.T) {
	h := newHarness(t)
	h.assignRole(7, role.User)
	h.text(t, 7, "🛒 Place order")

	msg := h.callback(t, 7, cbCancel)
	assert.Equal(t, msgCancelled, msg.Text)
	_, ok := h.pending(t, 7)
	assert.False(t, ok)
}

func TestUnknownCommandFeedsContinuation(t *testing.T) {
	h := newHarness(t)
	h.command(t, 11, "start")

	msg := h.dispatch(t, Event{ChatID: 11, Kind: KindCommand, Payload: "/nope", Command: "nope"})
	assert.Equal(t, msgBadRole, msg.Text)
	c, ok := h.pending(t, 11)
	require.True(t, ok)
	assert.Equal(t, conversation.StepRoleChoice, c.Step)
}

func TestProductCreateValidationAndSuccess(t *testing.T) {
	h := newHarness(t)
	h.assignRole(2, role.Moderator)

	msg := h.text(t, 2, "➕ Add product")
	assert.Equal(t, msgProductCreatePrompt, msg.Text)

	msg = h.text(t, 2, "Tea,Drinks,abc,1")
	assert.Contains(t, msg.Text, "Price")
	c, ok := h.pending(t, 2)
	require.True(t, ok)
	assert.Equal(t, conversation.StepProductCreate, c.Step)
	assert.Equal(t, "Moderator", c.Get("role"))

	msg = h.text(t, 2, "Tea, Drinks, 2.5, 10")
	assert.Contains(t, msg.Text, "created")
	assert.Contains(t, keyboardLabels(t, msg), "📑 All orders")
	_, ok = h.pending(t, 2)
	assert.False(t, ok)

	products := h.srv.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "Tea", products[0].Name)
	assert.Equal(t, "Drinks", products[0].Category)
	assert.InDelta(t, 2.5, products[0].Price, 1e-9)
	assert.Equal(t, 10, products[0].Quantity)
}

func TestProductUpdateAndDelete(t *testing.T) {
	h := newHarness(t)
	h.assignRole(2, role.Admin)
	p := h.srv.PutProduct(api.ProductInput{Name: "Tea", Category: "Drinks", Price: 1, Quantity: 1})

	h.text(t, 2, "✏️ Update product")
	msg := h.text(t, 2, "999,Coffee,Drinks,3,4")
	assert.Contains(t, msg.Text, "not found")
	c, ok := h.pending(t, 2)
	require.True(t, ok)
	assert.Equal(t, conversation.StepProductUpdate, c.Step)

	msg = h.text(t, 2, fmt.Sprintf("%d,Coffee,Drinks,3,4", p.ID))
	assert.Contains(t, msg.Text, "updated")
	assert.Equal(t, "Coffee", h.srv.Products()[0].Name)

	h.text(t, 2, "🗑 Delete product")
	msg = h.text(t, 2, fmt.Sprint(p.ID))
	assert.Contains(t, msg.Text, "deleted")
	assert.Empty(t, h.srv.Products())
}

func TestPlaceAndListOrders(t *testing.T) {
	h := newHarness(t)
	h.assignRole(20, role.User)
	h.assignRole(21, role.Admin)
	p := h.srv.PutProduct(api.ProductInput{Name: "Tea", Category: "Drinks", Price: 1, Quantity: 5})

	msg := h.text(t, 20, "📋 My orders")
	assert.Contains(t, msg.Text, "no orders")

	h.text(t, 20, "🛒 Place order")
	msg = h.text(t, 20, "12345,1")
	assert.Contains(t, msg.Text, "not found")

	msg = h.text(t, 20, fmt.Sprintf("%d,0", p.ID))
	assert.Contains(t, msg.Text, "at least one")

	msg = h.text(t, 20, fmt.Sprintf("%d,2", p.ID))
	assert.Contains(t, msg.Text, "placed")
	orders := h.srv.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, int64(20), orders[0].UserID)
	assert.Equal(t, 2, orders[0].Quantity)

	msg = h.text(t, 20, "📋 My orders")
	assert.Contains(t, msg.Text, fmt.Sprintf("#%d product %d x 2", orders[0].ID, p.ID))

	msg = h.text(t, 21, "📑 All orders")
	assert.Contains(t, msg.Text, "(chat 20)")

	h.text(t, 21, "❌ Delete order")
	msg = h.text(t, 21, fmt.Sprint(orders[0].ID))
	assert.Contains(t, msg.Text, "deleted")
	assert.Empty(t, h.srv.Orders())
}

func TestListProductsEscapesAndOffersActions(t *testing.T) {
	h := newHarness(t)
	h.assignRole(2, role.User)
	h.srv.PutProduct(api.ProductInput{Name: "<Tea>", Category: "Drinks", Price: 1.5, Quantity: 3})

	msg := h.text(t, 2, "📦 Products")
	assert.Contains(t, msg.Text, "&lt;Tea&gt;")
	assert.Contains(t, msg.Text, "1.50")

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 1)
	assert.Equal(t, cbActionPrefix+"place_order", *kb.InlineKeyboard[0][0].CallbackData)

	msg = h.callback(t, 2, cbActionPrefix+"place_order")
	assert.Equal(t, msgOrderCreatePrompt, msg.Text)
}

func TestUpstreamFailureCancelsContinuation(t *testing.T) {
	h := newHarness(t)
	h.assignRole(2, role.Admin)
	h.text(t, 2, "➕ Add product")

	h.srv.SetDown(true)
	msg := h.text(t, 2, "Tea,Drinks,2.5,10")
	assert.Equal(t, msgTryLater, msg.Text)
	_, ok := h.pending(t, 2)
	assert.False(t, ok)
}

func TestDirectoryOutageFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.assignRole(2, role.Admin)
	h.srv.SetDown(true)

	msg := h.text(t, 2, "📦 Products")
	assert.Equal(t, msgRegisterFirst, msg.Text)
}

type panicGateway struct{ Gateway }

func (panicGateway) ListProducts(context.Context, int64) ([]api.Product, error) {
	panic("boom")
}

func TestPanicStillProducesOneMessage(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	h := newHarnessWithGateway(t, srv, panicGateway{})
	h.assignRole(2, role.User)

	msg := h.text(t, 2, "📦 Products")
	assert.Equal(t, msgTryLater, msg.Text)

	events, _ := h.rec.LoadEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "panic", events[0].Outcome)
}

func TestJournalAndStats(t *testing.T) {
	h := newHarness(t)
	h.assignRole(1, role.Admin)
	h.assignRole(2, role.User)

	h.command(t, 2, "menu")
	h.text(t, 2, "gibberish")

	msg := h.command(t, 2, "stats")
	assert.Contains(t, msg.Text, "not available for the User role")

	msg = h.command(t, 1, "stats")
	assert.Contains(t, msg.Text, "Events: 3")
	assert.Contains(t, msg.Text, "Unique chats: 1")
	assert.Contains(t, msg.Text, "UNKNOWN_INPUT: 1")
	assert.Contains(t, msg.Text, "FORBIDDEN: 1")

	events, err := h.rec.LoadEvents()
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "command:menu", events[0].Handler)
	assert.Equal(t, "ok", events[0].Outcome)
	assert.Equal(t, "fallback", events[1].Handler)
	assert.Equal(t, "command:stats", events[3].Handler)
}

func TestInfo(t *testing.T) {
	h := newHarness(t)
	h.assignRole(77, role.User)
	msg := h.command(t, 77, "info")
	assert.Contains(t, msg.Text, "Chat ID: 77")
	assert.Contains(t, msg.Text, "Username: alice")
	assert.Contains(t, msg.Text, "Role: User")
}

func TestSendDailyReport(t *testing.T) {
	h := newHarness(t)
	h.command(t, 1, "menu")

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	require.NoError(t, h.bot.SendDailyReport(context.Background(), 555))
	msg := h.fs.last(t)
	assert.Equal(t, int64(555), msg.ChatID)
	assert.Contains(t, msg.Text, "Events: 1")

	assert.Contains(t, buf.String(), `"message":"daily report"`)
	assert.Contains(t, buf.String(), `"total_events": 1`)
}

func TestSendDailyReportWithoutJournal(t *testing.T) {
	h := newHarness(t)
	h.bot.recorder = nil

	require.NoError(t, h.bot.SendDailyReport(context.Background(), 555))
	assert.Equal(t, "📊 Statistics are not enabled.", h.fs.last(t).Text)
}

func TestRegisterWebhook(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.bot.RegisterWebhook("https://example.org/webhook"))
	require.NoError(t, h.bot.RemoveWebhook())
	assert.Error(t, h.bot.RegisterWebhook("http://example.org/webhook"))
	assert.Error(t, h.bot.RegisterWebhook("/webhook"))

	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	require.Len(t, h.fs.calls, 1)
	assert.Equal(t, "setWebhook", h.fs.calls[0].endpoint)
	assert.Equal(t, "https://example.org/webhook", h.fs.calls[0].params["url"])
	assert.Equal(t, "hook-secret", h.fs.calls[0].params["secret_token"])

	require.Len(t, h.fs.requests, 1)
	assert.IsType(t, tgbotapi.DeleteWebhookConfig{}, h.fs.requests[0])
}

func TestForbiddenCommandKeepsContinuation(t *testing.T) {
	h := newHarness(t)
	h.assignRole(4, role.User)
	h.text(t, 4, "🛒 Place order")

	msg := h.command(t, 4, "stats")
	assert.Contains(t, msg.Text, "not available for the User role")

	c, ok := h.pending(t, 4)
	require.True(t, ok)
	assert.Equal(t, conversation.StepOrderCreate, c.Step)
}

func TestStatsCommandReplacesContinuationForAdmin(t *testing.T) {
	h := newHarness(t)
	h.assignRole(1, role.Admin)
	h.text(t, 1, "➕ Add product")

	msg := h.command(t, 1, "stats")
	assert.Contains(t, msg.Text, "Dispatch statistics")
	_, ok := h.pending(t, 1)
	assert.False(t, ok)
}

func TestSameChatConcurrentSubmitAppliesOnce(t *testing.T) {
	for round := 0; round < 10; round++ {
		h := newHarness(t)
		h.assignRole(2, role.Admin)
		h.text(t, 2, "➕ Add product")
		before := h.fs.count()

		const n = 6
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.bot.Dispatch(context.Background(), Event{ChatID: 2, Kind: KindText, Payload: "Tea,Drinks,1,1"})
			}()
		}
		wg.Wait()

		require.Len(t, h.srv.Products(), 1, "round %d", round)

		h.fs.mu.Lock()
		replies := h.fs.sent[before:]
		h.fs.mu.Unlock()
		require.Len(t, replies, n, "one message per event")

		created, fallback := 0, 0
		for _, m := range replies {
			switch {
			case strings.Contains(m.Text, "created"):
				created++
			case m.Text == msgUnknown:
				fallback++
			}
		}
		assert.Equal(t, 1, created, "round %d", round)
		assert.Equal(t, n-1, fallback, "round %d", round)
	}
}

func TestConcurrentChatsAreIndependent(t *testing.T) {
	h := newHarness(t)
	const chats = 20

	for i := int64(1); i <= chats; i++ {
		h.bot.Go(context.Background(), tgbotapi.Update{
			Message: &tgbotapi.Message{
				Chat:     &tgbotapi.Chat{ID: i},
				Text:     "/start",
				Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
			},
		})
	}
	h.bot.Wait()

	assert.Equal(t, chats, h.fs.count())
	for i := int64(1); i <= chats; i++ {
		c, ok := h.pending(t, i)
		require.True(t, ok, "chat %d", i)
		assert.Equal(t, conversation.StepRoleChoice, c.Step)
	}
}
