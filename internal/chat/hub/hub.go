// Package hub implements the Session & Connection Hub (§4.H): WebSocket
// accept and JWT handshake, per-client send queues, room/DM dispatch,
// and history lookups backed by the Tiered Message Store.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/metrics"
)

// Hub owns every live session and room. There is no single
// process-wide lock on the hot path: the session/room/user registries
// are sharded concurrent maps, and fan-out to a room walks its members
// and enqueues onto each member's send queue without blocking,
// mirroring the teacher's fire-and-forget broadcast but scoped per room
// instead of globally.
type Hub struct {
	sessions *sessionRegistry
	users    *userIndex
	rooms    *roomRegistry
	known    map[string]bool // statically known room names

	store     Store
	limiter   RateLimiter
	moderator Moderator
	userDir   UserDirectory
	bus       *eventbus.Client
	metrics   *metrics.Registry
	logger    zerolog.Logger

	wg sync.WaitGroup
}

type Deps struct {
	Store       Store
	RateLimiter RateLimiter
	Moderator   Moderator
	UserDir     UserDirectory
	Bus         *eventbus.Client
	Metrics     *metrics.Registry
	Logger      zerolog.Logger
	KnownRooms  []string
}

func New(deps Deps) *Hub {
	known := make(map[string]bool, len(deps.KnownRooms))
	for _, r := range deps.KnownRooms {
		known[r] = true
	}
	return &Hub{
		sessions:  newSessionRegistry(),
		users:     newUserIndex(),
		rooms:     newRoomRegistry(),
		known:     known,
		store:     deps.Store,
		limiter:   deps.RateLimiter,
		moderator: deps.Moderator,
		userDir:   deps.UserDir,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// Accept registers a newly upgraded connection and spawns its session
// loop. It returns once the session's run loop exits (disconnect).
func (h *Hub) Accept(conn wsConn, userID int64, username, role, remoteIP string) {
	s := newSession(conn, userID, username, role, remoteIP, h)
	h.sessions.put(s)
	h.users.add(s)
	h.metrics.IncrementConnections()
	h.logger.Info().Str("session_id", s.ID).Int64("user_id", userID).Msg("session accepted")

	h.wg.Add(1)
	defer h.wg.Done()

	s.run()

	h.unregister(s)
}

func (h *Hub) unregister(s *Session) {
	h.sessions.remove(s.ID)
	h.users.remove(s)
	for _, room := range s.joinedRooms() {
		if r, ok := h.rooms.get(room); ok {
			r.leave(s)
		}
	}
	close(s.send)
	h.metrics.DecrementConnections()
	h.metrics.RecordConnectionDuration(time.Since(s.ConnectedAt))
	h.logger.Info().Str("session_id", s.ID).Msg("session disconnected")
}

// forceDisconnect closes a slow client's connection from the hub side;
// its reader will observe the close and unwind the run loop normally.
func (h *Hub) forceDisconnect(s *Session) {
	_ = s.conn.Close()
	h.metrics.RecordConnectionError()
}

func (h *Hub) RoomExists(name string) bool { return h.known[name] }

// dispatch applies the rules of §4.H to a decoded inbound envelope.
func (h *Hub) dispatch(ctx context.Context, s *Session, env InboundEnvelope) {
	switch env.Type {
	case "join":
		h.handleJoin(s, env.Data.Room)
	case "message":
		h.handleRoomMessage(ctx, s, env.Data.Room, env.Data.Content)
	case "direct_message":
		h.handleDirectMessage(ctx, s, env.Data.ToUser, env.Data.Content)
	case "room_history":
		h.handleRoomHistory(ctx, s, env.Data.Room, env.Data.Limit)
	case "dm_history":
		h.handleDMHistory(ctx, s, env.Data.With, env.Data.Limit)
	default:
		s.sendEnvelope("error", ErrorPayload{Message: "Format JSON invalide."})
	}
}

func (h *Hub) handleJoin(s *Session, room string) {
	if !h.RoomExists(room) {
		s.sendEnvelope("error", ErrorPayload{Message: "Room inexistante."})
		return
	}
	r := h.rooms.getOrCreate(room)
	r.join(s)
	s.rooms.Store(room, struct{}{})
	s.sendEnvelope("join_ack", JoinAck{Room: room, Status: "ok"})
}

func (h *Hub) handleRoomMessage(ctx context.Context, s *Session, room, content string) {
	if !h.RoomExists(room) {
		s.sendEnvelope("error", ErrorPayload{Message: "Room inexistante."})
		return
	}

	if h.limiter != nil {
		if allowed, retryAfter, reason := h.limiter.CheckRateLimit(ctx, s.RemoteIP, s.UserID, room, "messages_per_minute"); !allowed {
			s.sendEnvelope("error", ErrorPayload{Message: errs.KindRateLimitExceeded.Public(map[string]any{
				"action": "message", "window": retryAfter,
			})})
			h.logger.Warn().Int64("user_id", s.UserID).Str("reason", reason).Msg("message rate limited")
			return
		}
	}

	if h.moderator != nil {
		if blocked, reason := h.moderator.AnalyzeMessage(ctx, s.UserID, s.Username, content, room); blocked {
			s.sendEnvelope("error", ErrorPayload{Message: errs.KindInappropriateContent.Public(nil)})
			h.logger.Info().Int64("user_id", s.UserID).Str("reason", reason).Msg("message blocked by moderation")
			return
		}
	}

	now := time.Now()
	msg := &Message{
		ID:             generateSessionID(),
		Kind:           KindRoom,
		AuthorID:       s.UserID,
		AuthorUsername: s.Username,
		RoomID:         room,
		Content:        content,
		CreatedAt:      now,
		Status:         StatusSent,
	}

	r, ok := h.rooms.get(room)
	if ok {
		payload := NewMessagePayload{
			Room: room, AuthorID: s.UserID, AuthorUsername: s.Username,
			Content: content, CreatedAt: now.UnixMilli(),
		}
		r.each(func(member *Session) { member.sendEnvelope("new_message", payload) })
	}

	h.metrics.IncrementMessagesSent()
	if h.store != nil {
		if err := h.store.SaveMessage(ctx, msg); err != nil {
			h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to persist room message")
		}
	}
}

func (h *Hub) handleDirectMessage(ctx context.Context, s *Session, toUser int64, content string) {
	exists := false
	if h.userDir != nil {
		var err error
		exists, err = h.userDir.UserExists(ctx, toUser)
		if err != nil {
			h.logger.Error().Err(err).Int64("to_user", toUser).Msg("user directory lookup failed")
		}
	}
	if !exists {
		exists = h.users.hasSession(toUser)
	}
	if !exists {
		s.sendEnvelope("error", ErrorPayload{Message: "Destinataire introuvable."})
		return
	}

	now := time.Now()
	msg := &Message{
		ID:             generateSessionID(),
		Kind:           KindDirect,
		AuthorID:       s.UserID,
		AuthorUsername: s.Username,
		RecipientID:    toUser,
		Content:        content,
		CreatedAt:      now,
		Status:         StatusSent,
	}

	payload := NewMessagePayload{
		AuthorID: s.UserID, AuthorUsername: s.Username,
		Content: content, CreatedAt: now.UnixMilli(),
	}
	for _, recipient := range h.users.sessionsFor(toUser) {
		recipient.sendEnvelope("new_message", payload)
	}

	h.metrics.IncrementMessagesSent()
	if h.store != nil {
		if err := h.store.SaveMessage(ctx, msg); err != nil {
			h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to persist direct message")
		}
	}
}

func (h *Hub) handleRoomHistory(ctx context.Context, s *Session, room string, limit int) {
	if h.store == nil {
		s.sendEnvelope("room_history", HistoryPayload{Room: room, Messages: nil})
		return
	}
	msgs, err := h.store.RoomHistory(ctx, room, limit)
	if err != nil {
		s.sendEnvelope("error", ErrorPayload{Message: "Historique indisponible."})
		return
	}
	s.sendEnvelope("room_history", HistoryPayload{Room: room, Messages: msgs})
}

func (h *Hub) handleDMHistory(ctx context.Context, s *Session, with int64, limit int) {
	if h.store == nil {
		s.sendEnvelope("dm_history", HistoryPayload{With: with, Messages: nil})
		return
	}
	msgs, err := h.store.DMHistory(ctx, s.UserID, with, limit)
	if err != nil {
		s.sendEnvelope("error", ErrorPayload{Message: "Historique indisponible."})
		return
	}
	s.sendEnvelope("dm_history", HistoryPayload{With: with, Messages: msgs})
}

func (h *Hub) GetStats() map[string]any {
	return map[string]any{
		"connected_sessions": h.sessions.count(),
	}
}

// Shutdown closes every live connection and waits for their session
// loops to unwind. It does not cancel in-flight store writes; the
// store's own batch writer flushes on its own shutdown path.
func (h *Hub) Shutdown(ctx context.Context) error {
	for i := range h.sessions.shards {
		shard := &h.sessions.shards[i]
		shard.mu.RLock()
		for _, s := range shard.byID {
			_ = s.conn.Close()
		}
		shard.mu.RUnlock()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.New(errs.KindShutdownTimeout)
	}
}

// wsConn is the subset of *websocket.Conn the hub needs, so tests can
// substitute a fake without opening a real socket.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadLimit(int64)
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	SetPongHandler(func(string) error)
	Close() error
}

func generateSessionID() string {
	return uuid.NewString()
}
