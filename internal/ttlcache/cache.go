package ttlcache

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
	seq uint64
}

type item[V any] struct {
	value V
	ts    time.Time
	seq   uint64
}

// Cache keeps a bounded set of recently stored values. Entries expire after
// ttl and the oldest entries are evicted once capacity is exceeded.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]item[V]
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
	seq      uint64
}

// New creates a cache with the provided capacity and ttl.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{
		items:    make(map[string]item[V], capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value stored under key if it is still inside the ttl window.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && now.Sub(it.ts) <= c.ttl {
		return it.value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present and fresh.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores value under key, refreshing its timestamp.
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.items[key] = item[V]{value: value, ts: now, seq: c.seq}
	c.order = append(c.order, entry{key: key, ts: now, seq: c.seq})
	c.compact(now)
}

// Len returns the number of stored entries, including any not yet compacted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// a re-Set key has a newer order entry; only drop the matching one
		if it, ok := c.items[oldest.key]; ok && it.seq == oldest.seq {
			delete(c.items, oldest.key)
		}
	}
}
