// Package noncecache provides an auxiliary, non-authoritative
// replay-window cache for request nonces (spec §6 auth): it rejects a
// reused (tenant, nonce) pair within the signature's acceptable clock
// skew. It is explicitly auxiliary — if Redis is unavailable, callers
// should fail open on the cache check alone and continue to rely on
// the timestamp-skew check, since nonce replay protection is
// defense-in-depth, not the sole guard against forged requests.
package noncecache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache records recently seen nonces in Redis with a TTL matching the
// signature's allowed clock skew.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Cache. ttl should match (or slightly exceed) the
// HMAC skew window configured for the deployment, so a nonce can never
// be replayed after its signature would independently be rejected for
// staleness.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func key(tenantID, nonce string) string {
	return "ferry:nonce:" + tenantID + ":" + nonce
}

// CheckAndRemember atomically records (tenantID, nonce) if unseen and
// reports whether it was already present (a replay). Uses SET NX so
// the check-and-set is race-free under concurrent requests racing the
// same nonce.
func (c *Cache) CheckAndRemember(ctx context.Context, tenantID, nonce string) (replay bool, err error) {
	ok, err := c.client.SetNX(ctx, key(tenantID, nonce), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("noncecache: setnx: %w", err)
	}

	return !ok, nil
}
