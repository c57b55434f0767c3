package store

import (
	"sync"
	"time"
)

// userExistsCache is the short-lived front-cache SPEC_FULL.md's Open
// Question decision #2 commits to: the DM recipient existence check
// is resolved against the persistent user table, fronted by a 60s
// in-memory cache so a burst of DMs to the same recipient does not
// round-trip Postgres on every message. Mirrors l1Cache's
// insertedAt-plus-TTL shape rather than introducing a new eviction
// idiom for one narrow lookup.
type userExistsCache struct {
	mu      sync.Mutex
	entries map[int64]userExistsEntry
	ttl     time.Duration
}

type userExistsEntry struct {
	exists    bool
	expiresAt time.Time
}

func newUserExistsCache(ttl time.Duration) *userExistsCache {
	return &userExistsCache{
		entries: make(map[int64]userExistsEntry),
		ttl:     ttl,
	}
}

func (c *userExistsCache) get(userID int64) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok || time.Now().After(e.expiresAt) {
		return false, false
	}
	return e.exists, true
}

func (c *userExistsCache) put(userID int64, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = userExistsEntry{exists: exists, expiresAt: time.Now().Add(c.ttl)}
}
