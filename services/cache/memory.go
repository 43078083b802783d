package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry is a single fast tier entry
type memoryEntry[T any] struct {
	slot    string
	entry   Entry[T]
	element *list.Element // For LRU tracking
}

// MemoryTier is an in-process LRU cache with TTL.
// Thread-safe implementation using sync.Mutex.
type MemoryTier[T any] struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry[T] // Key: Slot(key)
	lruList *list.List                 // Front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// NewMemoryTier creates a MemoryTier holding at most maxSize entries
func NewMemoryTier[T any](maxSize int, ttl time.Duration, now func() time.Time) *MemoryTier[T] {
	if now == nil {
		now = time.Now
	}
	return &MemoryTier[T]{
		entries: make(map[string]*memoryEntry[T]),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the value stored under key.
// An expired entry is removed and reported as a miss unless skipTTL is set.
func (c *MemoryTier[T]) Get(_ context.Context, key string, skipTTL bool) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	slot := Slot(key)
	e, exists := c.entries[slot]
	if !exists {
		c.misses++
		return zero, false, nil
	}

	if !skipTTL && e.entry.Expired(c.now()) {
		c.removeEntry(slot)
		c.misses++
		return zero, false, nil
	}

	c.lruList.MoveToFront(e.element)
	c.hits++
	return e.entry.Data, true, nil
}

// Put stores data under key stamped with the current time
func (c *MemoryTier[T]) Put(_ context.Context, key string, data T, skipTTL bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !skipTTL {
		c.purgeExpired(now)
	}

	slot := Slot(key)
	fresh := Entry[T]{Data: data, StoredAt: now, TTL: c.ttl}

	if e, exists := c.entries[slot]; exists {
		e.entry = fresh
		c.lruList.MoveToFront(e.element)
		return nil
	}

	for c.lruList.Len() >= c.maxSize && c.lruList.Len() > 0 {
		c.evictLRU()
	}

	e := &memoryEntry[T]{slot: slot, entry: fresh}
	e.element = c.lruList.PushFront(slot)
	c.entries[slot] = e
	return nil
}

// Clear removes all entries
func (c *MemoryTier[T]) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*memoryEntry[T])
	c.lruList.Init()
	return nil
}

// Len returns the number of entries, expired ones included
func (c *MemoryTier[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns cache statistics
func (c *MemoryTier[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Stats represents fast tier statistics
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// purgeExpired removes every expired entry (must be called with lock held)
func (c *MemoryTier[T]) purgeExpired(now time.Time) int {
	purged := 0
	for slot, e := range c.entries {
		if e.entry.Expired(now) {
			c.removeEntry(slot)
			purged++
		}
	}
	return purged
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *MemoryTier[T]) removeEntry(slot string) {
	if e, exists := c.entries[slot]; exists {
		c.lruList.Remove(e.element)
		delete(c.entries, slot)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *MemoryTier[T]) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	slot := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, slot)
}
