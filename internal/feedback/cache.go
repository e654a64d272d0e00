package feedback

import (
	"sync"
	"time"
)

// prefCounts is the per-agent tally a preference score derives from.
type prefCounts struct {
	positive int
	total    int
}

// userPrefs is one user's cached tally with its build time.
type userPrefs struct {
	counts  map[string]prefCounts
	builtAt time.Time
}

// preferenceCache holds per-user preference tallies with a TTL. Reads of
// an expired entry miss, which triggers reconstruction from history;
// writes are last-writer-wins per user.
type preferenceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]*userPrefs
}

func newPreferenceCache(ttl time.Duration) *preferenceCache {
	return &preferenceCache{
		ttl:     ttl,
		entries: make(map[string]*userPrefs),
	}
}

// get returns the user's tally only while fresh.
func (c *preferenceCache) get(userID string, now time.Time) (*userPrefs, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[userID]
	if !ok || now.Sub(entry.builtAt) >= c.ttl {
		return nil, false
	}
	return entry, true
}

func (c *preferenceCache) set(userID string, counts map[string]prefCounts, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = &userPrefs{counts: counts, builtAt: now}
}

// invalidate drops the user's entry so the next read rebuilds with the
// newest feedback included.
func (c *preferenceCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
