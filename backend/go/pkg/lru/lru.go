package lru

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// Config bounds a Cache by entry count, total weight, or both.
type Config struct {
	// Capacity is the maximum number of entries. 0 means unbounded.
	Capacity int
	// MaxWeight is the maximum sum of entry weights. 0 means unbounded.
	MaxWeight int
}

type entry[K comparable, V any] struct {
	key     K
	value   V
	weight  int
	expires time.Time // zero means no expiry
}

// Cache is a thread-safe LRU cache with optional per-entry expiry.
type Cache[K comparable, V any] struct {
	cfg    Config
	now    func() time.Time
	mu     sync.Mutex
	ll     *list.List
	items  map[K]*list.Element
	weight int
}

// New creates a Cache. At least one of Capacity and MaxWeight must be set.
func New[K comparable, V any](cfg Config) (*Cache[K, V], error) {
	if cfg.Capacity <= 0 && cfg.MaxWeight <= 0 {
		return nil, errors.New("lru: Capacity or MaxWeight must be set")
	}
	return &Cache[K, V]{
		cfg:   cfg,
		now:   time.Now,
		ll:    list.New(),
		items: make(map[K]*list.Element),
	}, nil
}

// Get returns the value for key and marks it most recently used.
// Expired entries are removed on access.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.remove(el)
		return zero, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// Put inserts or replaces key. A ttl <= 0 never expires.
// Entries heavier than MaxWeight are not stored.
func (c *Cache[K, V]) Put(key K, value V, weight int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	if c.cfg.MaxWeight > 0 && weight > c.cfg.MaxWeight {
		return
	}
	e := &entry[K, V]{key: key, value: value, weight: weight}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.items[key] = c.ll.PushFront(e)
	c.weight += weight

	for c.overLimit() {
		c.remove(c.ll.Back())
	}
}

// Remove drops key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Weight returns the total weight of all entries.
func (c *Cache[K, V]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

func (c *Cache[K, V]) overLimit() bool {
	if c.cfg.Capacity > 0 && c.ll.Len() > c.cfg.Capacity {
		return true
	}
	return c.cfg.MaxWeight > 0 && c.weight > c.cfg.MaxWeight
}

// remove assumes c.mu is held.
func (c *Cache[K, V]) remove(el *list.Element) {
	c.ll.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.weight -= e.weight
}
