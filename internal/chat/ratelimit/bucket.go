// Package ratelimit implements the Advanced Rate Limiter (§4.E): a
// token bucket per (subject, limit type), IP-level attack detection,
// and a timed auto-blacklist. Grounded on the teacher's
// ws/internal/single/limits/rate_limiter.go TokenBucket algorithm,
// generalized from one bucket per client to many buckets per client
// keyed by limit type (messages, connections, auth attempts, ...).
package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket is the teacher's algorithm verbatim: refill by elapsed
// time x rate, cap at capacity, consume on success.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(capacity, refillPerSecond float64) *tokenBucket {
	return &tokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillPerSecond,
		lastRefill: time.Now(),
	}
}

// tryConsume reports whether a token was available, and if not, the
// number of seconds until the next token refills.
func (b *tokenBucket) tryConsume(n float64) (bool, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens >= n {
		b.tokens -= n
		return true, 0
	}

	deficit := n - b.tokens
	return false, deficit / b.refillRate
}
