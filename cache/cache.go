// Package cache is the API-layer result cache. The extraction engine itself
// stays stateless; only the HTTP handlers consult the cache, and a cached
// result is marked as such so clients can tell.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/trawlhq/trawl/models"
)

// entry holds a cached result with its creation timestamp.
type entry struct {
	result    *models.ExtractionResult
	createdAt time.Time
}

// Cache is an in-memory TTL cache for search results, safe for concurrent
// use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
}

// New creates a Cache. A background goroutine sweeps expired entries every
// five minutes.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
	go c.cleanupLoop()
	return c
}

// Key derives a cache key from the full request identity: the query, the
// filter set, and the record limit. Two requests differing in any filter
// must never share a key.
func Key(query string, filters models.FilterSpec, limit int) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte("|"))
	if spec, err := json.Marshal(filters); err == nil {
		h.Write(spec)
	}
	fmt.Fprintf(h, "|%d", limit)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached result younger than the TTL, and whether it hit.
// The result is a copy: callers stamp per-response fields (CacheStatus)
// onto it, and the stored entry must never see those writes.
func (c *Cache) Get(key string) (*models.ExtractionResult, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || time.Since(e.createdAt) > c.ttl {
		return nil, false
	}
	cp := *e.result
	return &cp, true
}

// Set stores a result. Only successful, non-synthetic results are worth
// keeping: blocked and errored results must be retried, not replayed.
func (c *Cache) Set(key string, result *models.ExtractionResult) {
	if !result.Success || result.Method == models.MethodSynthetic {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{result: result, createdAt: time.Now()}
}

// cleanupLoop evicts expired entries every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-c.ttl)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
