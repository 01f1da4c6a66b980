package conversation

import (
	"context"
	"time"
)

// Step names the input a chat is expected to send next.
type Step string

const (
	StepRoleChoice    Step = "awaiting_role_choice"
	StepPasscode      Step = "awaiting_passcode"
	StepProductCreate Step = "awaiting_product_create"
	StepProductUpdate Step = "awaiting_product_update"
	StepProductDelete Step = "awaiting_product_delete"
	StepOrderCreate   Step = "awaiting_order_create"
	StepOrderDelete   Step = "awaiting_order_delete"
)

// Conversation is the single pending continuation of a chat.
type Conversation struct {
	ChatID    int64             `json:"chat_id"`
	Step      Step              `json:"step"`
	CreatedAt time.Time         `json:"created_at"`
	Context   map[string]string `json:"context,omitempty"`
}

// Get returns a context value, or "" when absent.
func (c Conversation) Get(key string) string {
	return c.Context[key]
}

// Store holds at most one Conversation per chat. Register replaces any
// previous entry. Consume removes and returns the entry atomically per chat,
// so concurrent consumers for one chat observe it at most once. Operations
// on different chats never contend.
type Store interface {
	Register(ctx context.Context, chatID int64, step Step, data map[string]string)
	Consume(ctx context.Context, chatID int64) (Conversation, bool)
	Cancel(ctx context.Context, chatID int64)
	// Pending returns the entry without removing it.
	Pending(ctx context.Context, chatID int64) (Conversation, bool)
	// Sweep drops entries created before cutoff and returns how many.
	Sweep(ctx context.Context, cutoff time.Time) int
}

func copyContext(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
