package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "callhub:presence"
	defaultTTL       = 90 * time.Second
)

// RedisMirror copies presence into Redis: a set of online user ids plus one
// expiring key per user, so a crashed process does not leave users online
// forever.
type RedisMirror struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisMirror(rdb *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisMirror{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) SetKey() string { return m.prefix + ":online" }

func (m *RedisMirror) UserKey(userID string) string { return m.prefix + ":user:" + userID }

func (m *RedisMirror) SetOnline(ctx context.Context, userID string) error {
	if m.rdb == nil {
		return fmt.Errorf("presence: redis client is nil")
	}
	pipe := m.rdb.TxPipeline()
	pipe.SAdd(ctx, m.SetKey(), userID)
	pipe.Set(ctx, m.UserKey(userID), time.Now().UTC().Format(time.RFC3339), m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: mirror online: %w", err)
	}
	return nil
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID string) error {
	if m.rdb == nil {
		return fmt.Errorf("presence: redis client is nil")
	}
	pipe := m.rdb.TxPipeline()
	pipe.SRem(ctx, m.SetKey(), userID)
	pipe.Del(ctx, m.UserKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: mirror offline: %w", err)
	}
	return nil
}
