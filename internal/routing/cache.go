package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/shared-ride/internal/clock"
	"github.com/example/shared-ride/internal/models"
)

const DefaultCacheTTL = 5 * time.Minute

// Cache maps a directed (origin, destination) pair, rounded to ~1.1 m, to a computed path.
// It is best effort: concurrent callers may both miss and both compute.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	clock clock.Clock
}

type cacheEntry struct {
	path *models.PathResult
	ts   time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration, clk clock.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl, clock: clk}
}

func keyFor(a, b models.Coordinate) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coordinate) string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lng)
}

// Get returns the cached path and true if present and younger than the TTL.
func (c *Cache) Get(a, b models.Coordinate) (*models.PathResult, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.ts) >= c.ttl {
		c.mu.Lock()
		// another writer may have refreshed the entry meanwhile
		if cur, ok := c.store[k]; ok && cur.ts.Equal(e.ts) {
			delete(c.store, k)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.path, true
}

// Set stores a path in the cache.
func (c *Cache) Set(a, b models.Coordinate, p *models.PathResult) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{path: p, ts: c.clock.Now()}
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Prune drops every expired entry.
func (c *Cache) Prune() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.store {
		if now.Sub(e.ts) >= c.ttl {
			delete(c.store, k)
			n++
		}
	}
	return n
}
