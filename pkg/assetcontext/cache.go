package assetcontext

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity and DefaultCacheTTL match spec.md §4.5's bounded
// LRU (capacity 128, TTL 120s).
const (
	DefaultCacheCapacity = 128
	DefaultCacheTTL      = 120 * time.Second
)

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// resultCache is a tenant- and projection-scoped LRU+TTL cache, keyed on
// every field that can change what a lookup returns.
type resultCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

func newResultCache(capacity int, ttl time.Duration) (*resultCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	inner, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &resultCache{inner: inner, ttl: ttl}, nil
}

func cacheKey(q Query) string {
	projection := append([]string(nil), q.Projection...)
	if len(projection) == 0 {
		projection = DefaultProjection
	}
	isActive := "nil"
	if q.Filter.IsActive != nil {
		isActive = fmt.Sprintf("%v", *q.Filter.IsActive)
	}
	return strings.Join([]string{
		q.TenantID, string(q.Mode), q.Value,
		q.Filter.OSType, q.Filter.ServiceType, q.Filter.Environment, isActive,
		strings.Join(projection, ","),
	}, "|")
}

func (c *resultCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.inner.Get(key)
	if !ok {
		return Result{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.inner.Remove(key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *resultCache) put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, cacheEntry{result: result, expiresAt: time.Now().Add(c.ttl)})
}

func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
}
