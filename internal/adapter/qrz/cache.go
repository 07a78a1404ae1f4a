package qrz

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/observability"
)

// CachedLookup wraps a Lookup with an in-memory LRU cache keyed by callsign.
type CachedLookup struct {
	inner   domain.Lookup
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedLookup creates a cache decorator around a lookup.
func NewCachedLookup(inner domain.Lookup, maxEntries int, metrics *observability.Metrics) *CachedLookup {
	return &CachedLookup{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Lookup implements domain.Lookup.
func (c *CachedLookup) Lookup(ctx context.Context, call string) (domain.LookupResult, error) {
	key := strings.ToUpper(call)
	if result, ok := c.cache.get(key); ok {
		c.metrics.LookupCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.LookupCache.WithLabelValues("miss").Inc()

	result, err := c.inner.Lookup(ctx, call)
	if err != nil {
		return result, err
	}
	// Entries without a position are retried; the operator may add one later.
	if result.Latitude != nil && result.Longitude != nil {
		c.cache.put(key, result)
	}
	return result, nil
}

// lruCache holds up to limit lookup results, evicting the least recently
// read callsign. The list front is the most recent entry.
type lruCache struct {
	limit int

	mu    sync.Mutex
	order *list.List
	byKey map[string]*list.Element
}

type cached struct {
	call   string
	result domain.LookupResult
}

func newLRUCache(limit int) *lruCache {
	return &lruCache{
		limit: limit,
		order: list.New(),
		byKey: make(map[string]*list.Element),
	}
}

func (c *lruCache) get(call string) (domain.LookupResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[call]
	if !ok {
		return domain.LookupResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cached).result, true
}

func (c *lruCache) put(call string, result domain.LookupResult) {
	if c.limit <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[call]; ok {
		el.Value.(*cached).result = result
		c.order.MoveToFront(el)
		return
	}
	c.byKey[call] = c.order.PushFront(&cached{call: call, result: result})

	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.byKey, oldest.Value.(*cached).call)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
