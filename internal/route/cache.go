package route

import (
	"strings"
	"sync"
	"time"
)

// keyPrefixLen bounds how much of the normalized message feeds the
// cache key. Near-identical phrasings from the same user share a key.
const keyPrefixLen = 64

// Cache holds recent routing decisions per (user, message prefix).
// Concurrent reads are cheap; writes are last-write-wins. Bounded:
// when full, the oldest entry is evicted.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int

	// now is swappable so TTL expiry is testable without sleeping.
	now func() time.Time
}

type cacheEntry struct {
	decision Decision
	storedAt time.Time
}

// NewCache creates a cache with the given TTL and capacity.
func NewCache(ttl time.Duration, capacity int) *Cache {
	return &Cache{
		entries:  make(map[string]cacheEntry, capacity),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached decision for (userID, message) if present and
// not expired.
func (c *Cache) Get(userID, message string) (Decision, bool) {
	key := cacheKey(userID, message)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return Decision{}, false
	}
	return e.decision, true
}

// Set stores a decision, evicting the oldest entry when at capacity.
// Callers must not store critical decisions; crisis turns are always
// re-classified.
func (c *Cache) Set(userID, message string, d Decision) {
	key := cacheKey(userID, message)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{decision: d, storedAt: c.now()}
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		first     = true
	)
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cacheKey is userID plus the first keyPrefixLen bytes of the
// lowercased, whitespace-collapsed message.
func cacheKey(userID, message string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(message)), " ")
	if len(normalized) > keyPrefixLen {
		normalized = normalized[:keyPrefixLen]
	}
	return userID + "|" + normalized
}
