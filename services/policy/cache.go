package policy

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	name       string
	policy     *Compiled
	insertedAt time.Time
	element    *list.Element
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// Cache is an in-memory LRU cache with TTL for compiled policies, keyed by
// policy name. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewCache creates a cache holding at most maxSize policies for ttl each
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached policy, or nil if absent or expired
func (c *Cache) Get(name string) *Compiled {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[name]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(name)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.policy
}

// Set stores a policy, evicting the least recently used entry when full
func (c *Cache) Set(name string, policy *Compiled) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[name]; exists {
		entry.policy = policy
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		name:       name,
		policy:     policy,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(name)
	c.entries[name] = entry
}

// Invalidate removes a policy from the cache
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(name)
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// must be called with lock held
func (c *Cache) removeEntry(name string) {
	if entry, exists := c.entries[name]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, name)
	}
}

// must be called with lock held
func (c *Cache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	name := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, name)
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for name, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			c.removeEntry(name)
			expired++
		}
	}
	return expired
}

// StartCleanupWorker periodically drops expired entries until ctx is done
func (c *Cache) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}
