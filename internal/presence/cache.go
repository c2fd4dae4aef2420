package presence

import (
	"sync"
	"time"
)

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 30 * time.Second

// Cache holds the last reachability answer for the owner. Single slot.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	reachable  bool
	observedAt time.Time
	filled     bool
}

// NewCache returns an empty cache. A nil now uses time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// Get returns the cached value and true while it is younger than the TTL.
func (c *Cache) Get() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.filled || c.now().Sub(c.observedAt) >= c.ttl {
		return false, false
	}
	return c.reachable, true
}

// Set overwrites the slot, stamped with the current time.
func (c *Cache) Set(reachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reachable = reachable
	c.observedAt = c.now()
	c.filled = true
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}
