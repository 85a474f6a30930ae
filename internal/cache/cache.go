package cache

import "sync"

// EvictFunc is called for every entry the cache drops on its own:
// overflow beyond the limit, replacement by Put, or Clear.
// Entries removed through Take or TakeBest are handed to the caller instead.
type EvictFunc[K comparable, V any] func(key K, value V)

// node is an entry in the doubly-linked recency list.
// The head is the most recently used, the tail the least recently used.
type node[K comparable, V any] struct {
	key   K
	value V
	prev  *node[K, V]
	next  *node[K, V]
}

// Cache is a thread-safe LRU cache with a hard entry limit.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*node[K, V]
	head    *node[K, V]
	tail    *node[K, V]
	limit   int
	onEvict EvictFunc[K, V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the entry limit (0 = unlimited).
	Capacity int
	// Hits counts successful Take/TakeBest calls.
	Hits uint64
	// Misses counts Take/TakeBest calls that found nothing.
	Misses uint64
	// Evictions counts entries dropped through the eviction callback.
	Evictions uint64
}

// New creates a cache holding at most limit entries. A limit of 0 means
// unlimited. onEvict may be nil.
func New[K comparable, V any](limit int, onEvict EvictFunc[K, V]) *Cache[K, V] {
	if limit < 0 {
		limit = 0
	}
	return &Cache[K, V]{
		entries: make(map[K]*node[K, V]),
		limit:   limit,
		onEvict: onEvict,
	}
}

// Put stores value as the most recently used entry. An existing value for
// key is evicted first. If the cache then exceeds its limit the least
// recently used entries are evicted.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	var dropped []*node[K, V]
	if old, ok := c.entries[key]; ok {
		c.unlink(old)
		delete(c.entries, key)
		dropped = append(dropped, old)
	}

	n := &node[K, V]{key: key, value: value}
	c.entries[key] = n
	c.pushFront(n)

	for c.limit > 0 && len(c.entries) > c.limit {
		oldest := c.tail
		c.unlink(oldest)
		delete(c.entries, oldest.key)
		dropped = append(dropped, oldest)
	}
	c.evictions += uint64(len(dropped))
	c.mu.Unlock()

	c.notify(dropped)
}

// Take removes and returns the entry for key.
func (c *Cache[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.unlink(n)
	delete(c.entries, key)
	c.hits++
	return n.value, true
}

// TakeBest removes and returns the entry accepted by match that ranks
// lowest under less. Ties go to the most recently used entry.
func (c *Cache[K, V]) TakeBest(match func(K, V) bool, less func(a, b V) bool) (K, V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *node[K, V]
	for n := c.head; n != nil; n = n.next {
		if match(n.key, n.value) && (best == nil || less(n.value, best.value)) {
			best = n
		}
	}
	if best == nil {
		c.misses++
		var (
			zeroK K
			zeroV V
		)
		return zeroK, zeroV, false
	}
	c.unlink(best)
	delete(c.entries, best.key)
	c.hits++
	return best.key, best.value, true
}

// Clear evicts every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	dropped := make([]*node[K, V], 0, len(c.entries))
	for n := c.tail; n != nil; n = n.prev {
		dropped = append(dropped, n)
	}
	c.entries = make(map[K]*node[K, V])
	c.head, c.tail = nil, nil
	c.evictions += uint64(len(dropped))
	c.mu.Unlock()

	c.notify(dropped)
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the entry limit.
func (c *Cache[K, V]) Capacity() int {
	return c.limit
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Len:       len(c.entries),
		Capacity:  c.limit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache[K, V]) notify(dropped []*node[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, n := range dropped {
		c.onEvict(n.key, n.value)
	}
}

// pushFront inserts n as the most recently used node. Caller must hold c.mu.
func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// unlink detaches n from the list. Caller must hold c.mu.
func (c *Cache[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
