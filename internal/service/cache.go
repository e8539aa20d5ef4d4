package service

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/crypto/blake2b"
)

// ResultCache holds provider results for a short time so repeated searches
// within a session do not spend API quota. It is safe for concurrent use.
type ResultCache struct {
	cache    *ttlcache.Cache[string, any]
	ttl      time.Duration
	stopOnce sync.Once
}

// NewResultCache creates a cache and starts its expiry loop. A zero ttl
// disables caching.
func NewResultCache(ttl time.Duration, capacity uint64) *ResultCache {
	cache := ttlcache.New[string, any](
		ttlcache.WithTTL[string, any](ttl),
		ttlcache.WithCapacity[string, any](capacity),
		ttlcache.WithDisableTouchOnHit[string, any](),
	)
	go cache.Start()

	return &ResultCache{cache: cache, ttl: ttl}
}

// Get returns a cached value
func (c *ResultCache) Get(key string) (any, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	item := c.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set stores a value with the default TTL
func (c *ResultCache) Set(key string, value any) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.cache.Set(key, value, ttlcache.DefaultTTL)
}

// Len returns the number of cached items
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// Stop ends the expiry loop
func (c *ResultCache) Stop() {
	if c != nil {
		c.stopOnce.Do(c.cache.Stop)
	}
}

// CacheKey derives a fixed-length key from its parts. Parts are normalized
// (trimmed and lowercased) so "Gym " and "gym" share an entry.
func CacheKey(namespace string, parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
		h.Write([]byte{0})
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}
