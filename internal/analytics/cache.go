package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed views in Redis under organization-versioned keys.
// Invalidation never deletes: bumping the organization's data version makes
// every cached view for that organization unreachable, and the stale entries
// age out through TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a view cache. ttl bounds staleness for entries whose
// version is still current.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func versionKey(orgID int64) string {
	return fmt.Sprintf("analytics:ver:org:%d", orgID)
}

// Version returns the organization's current data version, 0 when unset.
func (c *Cache) Version(ctx context.Context, orgID int64) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(orgID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Bump advances the organization's data version, invalidating every cached
// view at once. Called after an ingestion run lands new rows.
func (c *Cache) Bump(ctx context.Context, orgID int64) error {
	return c.client.Incr(ctx, versionKey(orgID)).Err()
}

// Key builds the storage key for one view at one version.
func (c *Cache) Key(orgID, version int64, view, filterTag string) string {
	return fmt.Sprintf("analytics:v%d:org:%d:%s:%s", version, orgID, view, filterTag)
}

// Get returns the cached payload for key, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set stores a computed view under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, payload []byte) error {
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}
