package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okinrev/veza/internal/chat/hub"
)

type l1Entry struct {
	msg        *hub.Message
	insertedAt time.Time
}

// l1Cache is a bounded in-process message cache keyed by room and by DM
// pair, evicted both on TTL and on a simple size cap (oldest-first),
// mirroring optimized_persistence.rs's CacheEntry/TTL sweep without its
// access-count LFU bookkeeping, which nothing in this dispatch path reads.
type l1Cache struct {
	mu       sync.RWMutex
	byRoom   map[string][]*l1Entry
	byDMPair map[string][]*l1Entry
	size     int
	maxSize  int
	ttl      time.Duration
}

func newL1Cache(maxSize int, ttl time.Duration) *l1Cache {
	return &l1Cache{
		byRoom:   make(map[string][]*l1Entry),
		byDMPair: make(map[string][]*l1Entry),
		maxSize:  maxSize,
		ttl:      ttl,
	}
}

func dmKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func (c *l1Cache) put(msg *hub.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &l1Entry{msg: msg, insertedAt: time.Now()}
	switch msg.Kind {
	case hub.KindRoom:
		c.byRoom[msg.RoomID] = append(c.byRoom[msg.RoomID], entry)
	case hub.KindDirect:
		key := dmKey(msg.AuthorID, msg.RecipientID)
		c.byDMPair[key] = append(c.byDMPair[key], entry)
	}
	c.size++

	if c.size > c.maxSize {
		c.evictOldest()
	}
}

// evictOldest drops the single oldest room bucket entry. Called with
// the lock held. A full LRU isn't worth it here: rooms are bounded in
// count and the sweep loop already reclaims by TTL.
func (c *l1Cache) evictOldest() {
	var oldestRoom string
	var oldestTime time.Time
	for room, entries := range c.byRoom {
		if len(entries) == 0 {
			continue
		}
		if oldestTime.IsZero() || entries[0].insertedAt.Before(oldestTime) {
			oldestTime = entries[0].insertedAt
			oldestRoom = room
		}
	}
	if oldestRoom != "" && len(c.byRoom[oldestRoom]) > 0 {
		c.byRoom[oldestRoom] = c.byRoom[oldestRoom][1:]
		c.size--
	}
}

func (c *l1Cache) roomHistory(room string, limit int) ([]*hub.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, ok := c.byRoom[room]
	if !ok || len(entries) == 0 {
		return nil, false
	}
	return tail(entries, limit), true
}

func (c *l1Cache) dmHistory(userA, userB int64, limit int) ([]*hub.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, ok := c.byDMPair[dmKey(userA, userB)]
	if !ok || len(entries) == 0 {
		return nil, false
	}
	return tail(entries, limit), true
}

func tail(entries []*l1Entry, limit int) []*hub.Message {
	if limit > len(entries) {
		limit = len(entries)
	}
	start := len(entries) - limit
	out := make([]*hub.Message, 0, limit)
	for _, e := range entries[start:] {
		out = append(out, e.msg)
	}
	return out
}

func (c *l1Cache) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *l1Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.ttl)
	for room, entries := range c.byRoom {
		kept := entries[:0]
		for _, e := range entries {
			if e.insertedAt.After(cutoff) {
				kept = append(kept, e)
			} else {
				c.size--
			}
		}
		if len(kept) == 0 {
			delete(c.byRoom, room)
		} else {
			c.byRoom[room] = kept
		}
	}
	for pair, entries := range c.byDMPair {
		kept := entries[:0]
		for _, e := range entries {
			if e.insertedAt.After(cutoff) {
				kept = append(kept, e)
			} else {
				c.size--
			}
		}
		if len(kept) == 0 {
			delete(c.byDMPair, pair)
		} else {
			c.byDMPair[pair] = kept
		}
	}
}
