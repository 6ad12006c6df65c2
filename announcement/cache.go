// Package announcement keeps the "nearly sold out" announcement in an
// in-process cache and refreshes it periodically.
package announcement

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"conference-central/logging"
)

// Key is the cache entry the announcement lives under.
const Key = "RECENT_ANNOUNCEMENTS"

const DefaultCleanupInterval = 10 * time.Minute

// Cache is a string key/value cache.
type Cache struct {
	cache *gocache.Cache
}

// NewCache creates a cache whose entries never expire unless set with a TTL.
func NewCache() *Cache {
	return &Cache{cache: gocache.New(gocache.NoExpiration, DefaultCleanupInterval)}
}

// Get returns the cached value, if any.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	value, found := c.cache.Get(key)
	if !found {
		return "", false
	}
	s, ok := value.(string)
	if !ok {
		logging.Ctx(ctx).Error().Str("key", key).Msg("announcement cache holds a non-string value")
		return "", false
	}
	return s, true
}

// Set stores value. A zero ttl keeps it until replaced or deleted.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.cache.Set(key, value, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) {
	c.cache.Delete(key)
}
