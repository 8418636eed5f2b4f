package openelevation

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/observability"
)

// CachedResolver wraps an ElevationResolver with an in-memory LRU cache.
// Failed lookups are not cached so a later row at the same point retries.
type CachedResolver struct {
	inner   domain.ElevationResolver
	cache   *lruCache[string, float64]
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner domain.ElevationResolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   newLRUCache[string, float64](maxEntries),
		metrics: metrics,
	}
}

// CoordinateKey rounds a coordinate to six decimal places (about 0.1 m).
func CoordinateKey(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}

func (c *CachedResolver) ResolveElevation(ctx context.Context, lat, lon float64) (float64, error) {
	key := CoordinateKey(lat, lon)
	if elevation, ok := c.cache.get(key); ok {
		c.metrics.ElevationCache.WithLabelValues("memory", "hit").Inc()
		return elevation, nil
	}
	c.metrics.ElevationCache.WithLabelValues("memory", "miss").Inc()

	elevation, err := c.inner.ResolveElevation(ctx, lat, lon)
	if err != nil {
		return 0, err
	}
	c.cache.put(key, elevation)
	return elevation, nil
}

// Len returns the number of cached coordinates.
func (c *CachedResolver) Len() int {
	return c.cache.len()
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[K comparable, V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[K]*entry[K, V]
	head       *entry[K, V] // most recently used
	tail       *entry[K, V] // least recently used
}

type entry[K comparable, V any] struct {
	key   K
	value V
	prev  *entry[K, V]
	next  *entry[K, V]
}

func newLRUCache[K comparable, V any](maxEntries int) *lruCache[K, V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[K, V]{
		maxEntries: maxEntries,
		entries:    make(map[K]*entry[K, V]),
	}
}

func (c *lruCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[K, V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[K, V]) addToFront(e *entry[K, V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[K, V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
