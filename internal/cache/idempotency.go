package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyGuard claims short-lived keys with SET NX so an identical
// booking submitted twice in quick succession, possibly against different
// gateway replicas, is accepted only once.
type IdempotencyGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewIdempotencyGuard creates the guard.
func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &IdempotencyGuard{redis: client, ttl: ttl}
}

// Acquire claims key for the guard's TTL. It returns false when the key was
// already claimed and is still live.
func (g *IdempotencyGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.redis.SetNX(ctx, idempotencyKey(key), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

// Release drops a claimed key early, e.g. after the backend rejects the
// booking, so the user can retry immediately.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	if err := g.redis.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: failed to release idempotency key: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
