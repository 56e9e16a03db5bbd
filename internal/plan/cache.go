package plan

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Cache holds plans by key.
//
// Thread-safety: safe for concurrent use. Lookups take a read lock; a miss
// is built outside the lock and published with last-write-wins, which is
// correct because a plan is a pure function of its key.
type Cache struct {
	mu    sync.RWMutex
	plans map[Key]*QueryPlan

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats summarizes cache usage.
type CacheStats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{plans: make(map[Key]*QueryPlan)}
}

// Get returns the plan for key.
func (c *Cache) Get(key Key) (*QueryPlan, bool) {
	c.mu.RLock()
	p, ok := c.plans[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return p, ok
}

// Put publishes a plan, replacing any plan with the same key.
func (c *Cache) Put(p *QueryPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[p.Key] = p
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}

// Clear drops every plan.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans = make(map[Key]*QueryPlan)
}

// Plans returns the cached plans sorted by key.
func (c *Cache) Plans() []*QueryPlan {
	c.mu.RLock()
	out := make([]*QueryPlan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Size: c.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
