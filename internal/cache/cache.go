package cache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

// Cache defines the interface for result caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Result, bool, error)
	Set(ctx context.Context, key string, value models.Result, ttl time.Duration) error
}

// KeyPrecision is the number of decimals coordinates are rounded to for cache identity.
const KeyPrecision = 4

// Key derives the cache key for coordinates: latitude and longitude rounded independently
// to four decimals. Inputs that round to the same pair share a slot.
func Key(c models.Coordinates) string {
	return fmt.Sprintf("%.4f,%.4f", RoundCoordinate(c.Latitude), RoundCoordinate(c.Longitude))
}

// RoundCoordinate rounds v to KeyPrecision decimals, halves away from zero. Negative zero is
// folded into zero so -0.00001 and 0.00001 share a key.
func RoundCoordinate(v float64) float64 {
	const scale = 1e4
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

// InMemoryCache implements Cache using a map guarded by a RWMutex, with TTL-based expiration.
// Expired entries are never returned; they are removed on access or by Sweep.
type InMemoryCache struct {
	mu    sync.RWMutex
	data  map[string]cacheEntry
	clock clock.Clock
}

// cacheEntry stores a cached result with its absolute expiration timestamp.
type cacheEntry struct {
	value     models.Result
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache. A nil clock uses the system clock.
func NewInMemoryCache(c clock.Clock) *InMemoryCache {
	if c == nil {
		c = clock.Real{}
	}
	return &InMemoryCache{
		data:  make(map[string]cacheEntry),
		clock: c,
	}
}

// Get retrieves a copy of the cached result for key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Result, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.Result{}, false, nil
	}

	if !c.clock.Now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry since the read lock was released.
		if cur, ok := c.data[key]; ok && !c.clock.Now().Before(cur.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return models.Result{}, false, nil
	}

	return entry.value.Clone(), true, nil
}

// Set stores a copy of value with the given TTL, replacing any existing entry for key.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Result, ttl time.Duration) error {
	entry := cacheEntry{
		value:     value.Clone(),
		expiresAt: c.clock.Now().Add(ttl),
	}
	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and returns how many were evicted.
func (c *InMemoryCache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
