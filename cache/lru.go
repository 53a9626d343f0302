// Package cache provides a small hash-keyed LRU used to keep hot entities
// and derived trajectories out of the store's read path. Values are
// treated as immutable; the cache never copies.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/semsphere/semsphere/hash"
)

// LRU is a fixed-capacity least-recently-used cache keyed by content
// hash. Safe for concurrent use.
type LRU[V any] struct {
	mu        sync.Mutex
	capacity  int
	items     map[hash.Hash]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V any] struct {
	key   hash.Hash
	value V
}

// NewLRU creates a cache holding at most capacity entries. Capacity below
// one disables caching entirely (every Get misses).
func NewLRU[V any](capacity int) *LRU[V] {
	return &LRU[V]{
		capacity:  capacity,
		items:     make(map[hash.Hash]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached value for key.
func (c *LRU[V]) Get(key hash.Hash) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry[V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set caches a value, evicting the least recently used entry when full.
func (c *LRU[V]) Set(key hash.Hash, value V) {
	if c.capacity < 1 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.evictList.MoveToFront(el)
		el.Value.(*entry[V]).value = value
		return
	}

	el := c.evictList.PushFront(&entry[V]{key: key, value: value})
	c.items[key] = el

	for c.evictList.Len() > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.evictList.Remove(back)
		delete(c.items, back.Value.(*entry[V]).key)
	}
}

// Remove drops a key, if present. Used when derived data is invalidated.
func (c *LRU[V]) Remove(key hash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.evictList.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats reports cumulative hit and miss counts.
func (c *LRU[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
