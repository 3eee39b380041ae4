// Package redis keeps idempotency keys for order creation in Redis.
package redis

import (
	"context"
	"errors"
	"time"

	"orders/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "idemp:"

// IdempotencyStore claims a key with SET NX and keeps the created order id next to it.
// Both keys expire after ttl.
type IdempotencyStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *goredis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string   { return keyPrefix + scope + ":" + key }
func resultKey(scope, key string) string { return keyPrefix + "map:" + scope + ":" + key }

func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	return s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
}

func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	return s.rdb.Set(ctx, resultKey(scope, key), value, s.ttl).Err()
}

func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, resultKey(scope, key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, lockKey(scope, key)).Err()
}

// Check pings the server.
func (s *IdempotencyStore) Check(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)
