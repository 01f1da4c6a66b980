package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore keeps conversations in Redis, one key per chat. Consume relies
// on GETDEL so only one reader ever receives an entry. Expiry is left to the
// key TTL.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "conversation:", now: time.Now}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) key(chatID int64) string { return fmt.Sprintf("%s%d", s.prefix, chatID) }

func (s *RedisStore) Register(ctx context.Context, chatID int64, step Step, data map[string]string) {
	c := Conversation{ChatID: chatID, Step: step, CreatedAt: s.now(), Context: copyContext(data)}
	raw, err := json.Marshal(c)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("encode conversation")
		return
	}
	if err := s.client.Set(ctx, s.key(chatID), raw, s.ttl).Err(); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Str("step", string(step)).Msg("store conversation")
	}
}

func (s *RedisStore) Consume(ctx context.Context, chatID int64) (Conversation, bool) {
	return s.read(ctx, chatID, s.client.GetDel(ctx, s.key(chatID)))
}

func (s *RedisStore) Cancel(ctx context.Context, chatID int64) {
	if err := s.client.Del(ctx, s.key(chatID)).Err(); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("cancel conversation")
	}
}

func (s *RedisStore) Pending(ctx context.Context, chatID int64) (Conversation, bool) {
	return s.read(ctx, chatID, s.client.Get(ctx, s.key(chatID)))
}

func (s *RedisStore) Sweep(context.Context, time.Time) int { return 0 }

func (s *RedisStore) read(ctx context.Context, chatID int64, cmd *redis.StringCmd) (Conversation, bool) {
	raw, err := cmd.Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("load conversation")
		}
		return Conversation{}, false
	}
	var c Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("decode conversation")
		return Conversation{}, false
	}
	if c.Context == nil {
		c.Context = map[string]string{}
	}
	return c, true
}
