// Package avatar resolves profile picture URLs for roster entries. Lookups go
// through an in-memory TTL cache keyed by normalized phone, so the same
// contact seen under different gateway ID spellings shares one entry. Fetches
// run on a bounded worker pool and never block a roster load.
package avatar

import (
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/normalize"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/observer"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// DefaultTTL is how long a resolved URL (or a confirmed absence) stays valid.
const DefaultTTL = 24 * time.Hour

type entry struct {
	url       string // empty means the contact has no picture
	fetchedAt time.Time
}

// Cache is a TTL cache of profile picture URLs. Absence is cached too: a
// contact known to have no picture is not refetched until the entry expires.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	ttl       time.Duration
	companyID string
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewCache creates a Cache. ttl <= 0 falls back to DefaultTTL.
func NewCache(companyID string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:   make(map[string]entry),
		ttl:       ttl,
		companyID: companyID,
	}
}

// Get returns the cached URL for phone. ok is true for any non-expired entry,
// including a cached absence (empty url).
func (c *Cache) Get(phone string) (url string, ok bool) {
	key := normalize.Normalize(phone)

	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found {
		c.misses.Add(1)
		observer.IncAvatarCacheCheck(c.companyID, "miss")
		return "", false
	}
	if utils.Now().Sub(e.fetchedAt) > c.ttl {
		c.misses.Add(1)
		observer.IncAvatarCacheCheck(c.companyID, "expired")
		return "", false
	}

	c.hits.Add(1)
	if e.url == "" {
		observer.IncAvatarCacheCheck(c.companyID, "negative_hit")
	} else {
		observer.IncAvatarCacheCheck(c.companyID, "hit")
	}
	return e.url, true
}

// Set stores the resolved URL for phone. An empty url records a confirmed
// absence.
func (c *Cache) Set(phone, url string) {
	key := normalize.Normalize(phone)
	if key == "" {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{url: url, fetchedAt: utils.Now()}
	c.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	cutoff := utils.Now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.fetchedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit/miss counters accumulated since creation.
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
		Size:    c.Len(),
	}
}

type CacheStats struct {
	Hits    int64
	Misses  int64
	HitRate float64
	Size    int
}
