package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	b := newTokenBucket(5, 1)
	b.lastRefill = time.Now().Add(-time.Hour)

	ok, _ := b.tryConsume(1)
	require.True(t, ok)
	require.LessOrEqual(t, b.tokens, b.capacity)
}

func TestTokenBucketNeverGoesNegative(t *testing.T) {
	b := newTokenBucket(2, 1)

	for i := 0; i < 5; i++ {
		b.tryConsume(1)
	}
	require.GreaterOrEqual(t, b.tokens, 0.0)
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b := newTokenBucket(1, 10)
	ok, _ := b.tryConsume(1)
	require.True(t, ok)

	ok, retryAfter := b.tryConsume(1)
	require.False(t, ok)
	require.Greater(t, retryAfter, 0.0)

	b.lastRefill = time.Now().Add(-time.Second)
	ok, _ = b.tryConsume(1)
	require.True(t, ok)
}
