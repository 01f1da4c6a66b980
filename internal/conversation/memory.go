package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process memory. Entries are immutable
// once stored; replacing or removing one is a single map operation keyed by
// chat, which gives per-chat atomicity without a store-wide lock.
type MemoryStore struct {
	entries sync.Map // int64 -> *Conversation
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Register(_ context.Context, chatID int64, step Step, data map[string]string) {
	s.entries.Store(chatID, &Conversation{
		ChatID:    chatID,
		Step:      step,
		CreatedAt: s.now(),
		Context:   copyContext(data),
	})
}

func (s *MemoryStore) Consume(_ context.Context, chatID int64) (Conversation, bool) {
	v, ok := s.entries.LoadAndDelete(chatID)
	if !ok {
		return Conversation{}, false
	}
	return clone(v.(*Conversation)), true
}

func (s *MemoryStore) Cancel(_ context.Context, chatID int64) {
	s.entries.Delete(chatID)
}

func (s *MemoryStore) Pending(_ context.Context, chatID int64) (Conversation, bool) {
	v, ok := s.entries.Load(chatID)
	if !ok {
		return Conversation{}, false
	}
	return clone(v.(*Conversation)), true
}

// Sweep uses compare-and-delete so an entry registered after the scan read
// the old one is never removed.
func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) int {
	n := 0
	s.entries.Range(func(k, v any) bool {
		c := v.(*Conversation)
		if c.CreatedAt.Before(cutoff) && s.entries.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n
}

func clone(c *Conversation) Conversation {
	out := *c
	out.Context = copyContext(c.Context)
	return out
}
