package cache

import (
	"container/list"
	"sync"
)

const defaultCapacity = 1024

// LRU is a concurrency-safe bounded key/value store with least-recently-used
// eviction.
//
// Get counts as a touch; Has, Peek, and Delete do not. When Set introduces a
// new key at capacity, the single least recently touched existing key is
// evicted first, so the key being written is never its own victim.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	values   map[K]V
	order    *list.List
	index    map[K]*list.Element
}

// NewLRU creates an LRU bounded to capacity entries. A non-positive capacity
// falls back to a generous default rather than an unbounded store.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &LRU[K, V]{
		capacity: capacity,
		values:   make(map[K]V),
		order:    list.New(),
		index:    make(map[K]*list.Element),
	}
}

// Set inserts or overwrites key and marks it most recently used.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.index[key]; exists {
		c.values[key] = value
		c.order.MoveToFront(element)
		return
	}

	if len(c.values) >= c.capacity {
		c.evictOldestLocked()
	}
	c.values[key] = value
	c.index[key] = c.order.PushFront(key)
}

// Get returns the stored value and touches the key.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.index[key]
	if !exists {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(element)

	return c.values[key], true
}

// Peek returns the stored value without updating recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, exists := c.values[key]

	return value, exists
}

// Has reports presence without updating recency.
func (c *LRU[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.values[key]

	return exists
}

// Delete removes key when present.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.index[key]
	if !exists {
		return
	}
	c.order.Remove(element)
	delete(c.index, key)
	delete(c.values, key)
}

// Clear removes every entry.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[K]V)
	c.index = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the current entry count.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.values)
}

func (c *LRU[K, V]) evictOldestLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	key, ok := back.Value.(K)
	if !ok {
		c.order.Remove(back)
		return
	}
	c.order.Remove(back)
	delete(c.index, key)
	delete(c.values, key)
}
