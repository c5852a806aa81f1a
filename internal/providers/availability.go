package providers

import (
	"context"
	"sync"
	"time"
)

// availabilityTTL is how long a probe result is trusted before re-probing.
const availabilityTTL = 30 * time.Second

// AvailabilityCache memoizes Provider.Available results per provider name.
// Probes can hit the network; callers on the hot path (doctor, status
// endpoints) should not pay that cost more than once per TTL.
type AvailabilityCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]availabilityEntry
}

type availabilityEntry struct {
	available bool
	checkedAt time.Time
}

// NewAvailabilityCache creates a cache with the given TTL; ttl <= 0 uses
// the default.
func NewAvailabilityCache(ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = availabilityTTL
	}
	return &AvailabilityCache{
		ttl:     ttl,
		entries: make(map[string]availabilityEntry),
	}
}

// Available probes p, serving a cached result when fresh.
func (c *AvailabilityCache) Available(ctx context.Context, p Provider) bool {
	c.mu.Lock()
	entry, ok := c.entries[p.Name()]
	c.mu.Unlock()

	if ok && time.Since(entry.checkedAt) < c.ttl {
		return entry.available
	}

	available := p.Available(ctx)

	c.mu.Lock()
	c.entries[p.Name()] = availabilityEntry{available: available, checkedAt: time.Now()}
	c.mu.Unlock()

	return available
}

// Invalidate drops the cached result for a provider name.
func (c *AvailabilityCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
