// Package cache holds the gateway's short-lived Redis state: an identity
// cache keyed by session cookie and an idempotency guard for bookings. The
// backend remains the source of truth for everything here.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
)

// IdentityCache memoizes /api/me responses per session cookie so that every
// proxied request does not cost a backend round trip. Entries expire quickly;
// a revoked session is at most one TTL stale.
type IdentityCache struct {
	redis   *redis.Client
	ttl     time.Duration
	metrics *metrics.PortalMetrics
	tracer  trace.Tracer
}

// NewIdentityCache creates the cache. m may be nil.
func NewIdentityCache(client *redis.Client, ttl time.Duration, m *metrics.PortalMetrics) *IdentityCache {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &IdentityCache{
		redis:   client,
		ttl:     ttl,
		metrics: m,
		tracer:  otel.Tracer("healthapp.internal.cache"),
	}
}

// Get returns the cached identity for a session cookie, or ok=false on a
// miss. Redis errors are reported as misses so the caller falls through to
// the backend.
func (c *IdentityCache) Get(ctx context.Context, cookie string) (healthapi.Identity, bool) {
	ctx, span := c.tracer.Start(ctx, "cache.identity_get")
	defer span.End()

	data, err := c.redis.Get(ctx, identityKey(cookie)).Bytes()
	if err != nil {
		if err != redis.Nil {
			span.RecordError(err)
			c.metrics.ObserveIdentityCache("error")
			return healthapi.Identity{}, false
		}
		c.metrics.ObserveIdentityCache("miss")
		return healthapi.Identity{}, false
	}

	var id healthapi.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		span.RecordError(err)
		c.metrics.ObserveIdentityCache("error")
		return healthapi.Identity{}, false
	}
	c.metrics.ObserveIdentityCache("hit")
	return id, true
}

// Put stores the identity for a session cookie.
func (c *IdentityCache) Put(ctx context.Context, cookie string, id healthapi.Identity) error {
	ctx, span := c.tracer.Start(ctx, "cache.identity_put")
	defer span.End()

	data, err := json.Marshal(id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache: failed to marshal identity: %w", err)
	}
	if err := c.redis.Set(ctx, identityKey(cookie), data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache: failed to store identity: %w", err)
	}
	return nil
}

// Purge drops the cached identity for a session cookie, e.g. on logout.
func (c *IdentityCache) Purge(ctx context.Context, cookie string) error {
	ctx, span := c.tracer.Start(ctx, "cache.identity_purge")
	defer span.End()

	if err := c.redis.Del(ctx, identityKey(cookie)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache: failed to purge identity: %w", err)
	}
	return nil
}

// identityKey hashes the cookie so raw session tokens never land in Redis.
func identityKey(cookie string) string {
	sum := sha256.Sum256([]byte(cookie))
	return fmt.Sprintf("identity:%s", hex.EncodeToString(sum[:]))
}
