package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

const (
	keyPrefix = "temperature:"
	// memcached reads expirations above 30 days as absolute unix timestamps.
	maxRelativeExpiry = 30 * 24 * time.Hour
)

// ErrCorruptEntry is returned by Get when a stored value cannot be decoded.
var ErrCorruptEntry = errors.New("cache: corrupt memcached entry")

// memcacheClient is the subset of *memcache.Client used here.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Ping() error
	Close() error
}

// MemcachedCache stores results in memcached so replicas share one cache.
type MemcachedCache struct {
	client memcacheClient
	clock  clock.Clock
}

// storedResult carries its own deadline so freshness follows the injected clock rather
// than memcached's whole-second expiry.
type storedResult struct {
	Result    models.Result `json:"result"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// NewMemcachedCache connects to the comma-separated server list in addrs
// (e.g. "host1:11211,host2:11211"). Zero timeout or maxIdleConns keep the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, c clock.Clock) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses in %q", addrs)
	}
	mc := memcache.New(servers...)
	if timeout > 0 {
		mc.Timeout = timeout
	}
	if maxIdleConns > 0 {
		mc.MaxIdleConns = maxIdleConns
	}
	return newMemcachedCache(mc, c), nil
}

func newMemcachedCache(client memcacheClient, c clock.Clock) *MemcachedCache {
	if c == nil {
		c = clock.Real{}
	}
	return &MemcachedCache{client: client, clock: c}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get returns a live entry. Misses and clock-expired entries are (zero, false, nil);
// transport failures and undecodable values are errors.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Result{}, false, err
	}
	item, err := c.client.Get(keyPrefix + key)
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return models.Result{}, false, nil
	case err != nil:
		return models.Result{}, false, fmt.Errorf("memcached get %s: %w", key, err)
	}

	var stored storedResult
	if err := json.Unmarshal(item.Value, &stored); err != nil {
		return models.Result{}, false, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, key, err)
	}
	if !c.clock.Now().Before(stored.ExpiresAt) {
		return models.Result{}, false, nil
	}
	return stored.Result, true, nil
}

// Set stores value under key for ttl.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Result, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := c.clock.Now()
	raw, err := json.Marshal(storedResult{Result: value, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("memcached encode %s: %w", key, err)
	}
	err = c.client.Set(&memcache.Item{
		Key:        keyPrefix + key,
		Value:      raw,
		Expiration: expiration(ttl, now),
	})
	if err != nil {
		return fmt.Errorf("memcached set %s: %w", key, err)
	}
	return nil
}

// expiration converts ttl to memcached's format: relative seconds rounded up so the server
// never drops an entry before storedResult.ExpiresAt, or an absolute unix time past 30 days.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 1
	}
	if ttl > maxRelativeExpiry {
		return int32(now.Add(ttl).Unix())
	}
	secs := ttl / time.Second
	if ttl%time.Second != 0 {
		secs++
	}
	return int32(secs)
}

// Ping reports whether every configured server is reachable. Used by /health.
func (c *MemcachedCache) Ping() error {
	if err := c.client.Ping(); err != nil {
		return fmt.Errorf("memcached ping: %w", err)
	}
	return nil
}

// Close releases idle connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
