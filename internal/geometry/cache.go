package geometry

import (
	"context"
	"fmt"
	"sync"
)

// CachedProvider wraps a Provider with an in-memory LRU cache. Street
// geometry is effectively immutable over an analysis run, and signs on the
// same block resolve to the same way, so hit rates are high.
type CachedProvider struct {
	inner Provider
	cache *lruCache
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner Provider, maxEntries int) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedProvider) GeometryFor(ctx context.Context, streetID string) (*Street, error) {
	key := "way:" + streetID
	if street, ok := c.cache.get(key); ok {
		return street, nil
	}
	street, err := c.inner.GeometryFor(ctx, streetID)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, street)
	return street, nil
}

func (c *CachedProvider) NearestStreet(ctx context.Context, lat, lon float64) (*Street, error) {
	// Four decimal places is roughly 11m, so signs on the same stretch of
	// curb share a cache slot.
	key := fmt.Sprintf("near:%.4f,%.4f", lat, lon)
	if street, ok := c.cache.get(key); ok {
		return street, nil
	}
	street, err := c.inner.NearestStreet(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, street)
	return street, nil
}

// lruCache is a simple thread-safe LRU cache for street geometry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *Street
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*Street, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *Street) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
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

func (c *lruCache) remove(e *entry) {
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

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
