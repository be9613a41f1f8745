package cache

import (
	"container/list"
	"sync"
	"time"
)

var _ Cache[string, int] = (*LRU[string, int])(nil)

// LRU is a size-bounded map whose entries also expire after a fixed TTL.
// Expired entries are dropped lazily on Get and in bulk by CleanExpired.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	index    map[K]*list.Element
	order    *list.List // front is most recently used
}

type lruEntry[K comparable, V any] struct {
	key     K
	val     V
	expires time.Time
}

// NewLRU returns an empty cache. A capacity below one is treated as one.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	return &LRU[K, V]{
		capacity: max(capacity, 1),
		ttl:      ttl,
		now:      time.Now,
		index:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*lruEntry[K, V])
	if !c.now().Before(e.expires) {
		c.drop(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.val, true
}

// Put stores val and evicts the least recently used entry when full.
func (c *LRU[K, V]) Put(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.index[key]; ok {
		e := el.Value.(*lruEntry[K, V])
		e.val, e.expires = val, expires
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(&lruEntry[K, V]{key: key, val: val, expires: expires})
	for c.order.Len() > c.capacity {
		c.drop(c.order.Back())
	}
}

func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CleanExpired implements Cleaner.
func (c *LRU[K, V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*lruEntry[K, V]).expires) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}

// drop expects c.mu to be held.
func (c *LRU[K, V]) drop(el *list.Element) {
	delete(c.index, el.Value.(*lruEntry[K, V]).key)
	c.order.Remove(el)
}
