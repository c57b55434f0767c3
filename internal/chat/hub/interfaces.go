package hub

import "context"

// Store is the subset of the Tiered Message Store (§4.G) the hub
// depends on. The concrete implementation lives in internal/chat/store.
type Store interface {
	SaveMessage(ctx context.Context, msg *Message) error
	RoomHistory(ctx context.Context, room string, limit int) ([]*Message, error)
	DMHistory(ctx context.Context, userA, userB int64, limit int) ([]*Message, error)
}

// RateLimiter is the subset of the Advanced Rate Limiter (§4.E) the
// hub consults before accepting a message.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, ip string, userID int64, channel string, limitType string) (allowed bool, retryAfter float64, reason string)
}

// Moderator is the subset of the Moderation Engine (§4.F) the hub
// consults for every inbound message.
type Moderator interface {
	AnalyzeMessage(ctx context.Context, userID int64, username, content, room string) (blocked bool, reason string)
}

// ConnectionGuard is the accept-rate guard consulted before a
// handshake is allowed to proceed, per §5's connection-level
// backpressure policy. internal/chat/ratelimit.ConnectionGuard
// implements this.
type ConnectionGuard interface {
	Allow(ip string) bool
}

// UserDirectory resolves whether a user id corresponds to a known
// account, per the Open Question decision in SPEC_FULL.md §14 (item 2):
// direct-message recipient existence is checked against a persistent
// lookup, not only the live session map.
type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}
