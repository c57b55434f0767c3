package hub

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/okinrev/veza/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Session is a single accepted WebSocket connection bound to a user
// identity (§3 Client Session). It owns a bounded send queue (sendBuffer
// frames; a full queue force-disconnects the client) and is processed
// by exactly one writer and one reader, per the
// invariant in §8: "exactly one writer task is associated with its
// send queue."
type Session struct {
	ID        string
	UserID    int64
	Username  string
	Role      string
	RemoteIP  string
	ConnectedAt time.Time

	conn wsConn
	send chan []byte

	rooms sync.Map // room name -> struct{}

	hub *Hub
}

func newSession(conn wsConn, userID int64, username, role, remoteIP string, h *Hub) *Session {
	return &Session{
		ID:          generateSessionID(),
		UserID:      userID,
		Username:    username,
		Role:        role,
		RemoteIP:    remoteIP,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		hub:         h,
	}
}

// enqueue pushes an outbound frame to the session's send queue without
// blocking. If the queue is full the session is treated as slow and
// force-disconnected, per §5 backpressure policy.
func (s *Session) enqueue(frame []byte) {
	select {
	case s.send <- frame:
	default:
		s.hub.forceDisconnect(s)
	}
}

func (s *Session) sendEnvelope(typ string, data any) {
	frame, err := sonic.Marshal(OutboundEnvelope{Type: typ, Data: data})
	if err != nil {
		return
	}
	s.enqueue(frame)
}

// run drives the writer loop and spawns the reader goroutine. It
// returns once the connection is closed, at which point the caller
// unregisters the session.
func (s *Session) run() {
	defer logging.RecoverPanic(s.hub.logger, "hub.session.run", map[string]any{"session_id": s.ID})

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	inbound := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go s.readPump(inbound, readErr)

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.metrics.RecordConnectionError()
				return
			}

		case <-pingTicker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case raw := <-inbound:
			s.handleInbound(raw)

		case <-readErr:
			return
		}
	}
}

func (s *Session) readPump(inbound chan<- []byte, readErr chan<- error) {
	defer close(readErr)
	defer logging.RecoverPanic(s.hub.logger, "hub.session.readPump", map[string]any{"session_id": s.ID})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case inbound <- message:
		default:
			s.hub.logger.Warn().Str("session_id", s.ID).Msg("inbound channel full, dropping frame")
		}
	}
}

// handleInbound decodes an inbound frame and dispatches it per §4.H.
// Parse failures reply with an error frame and keep the connection
// open, matching the spec's "do not close" rule.
func (s *Session) handleInbound(raw []byte) {
	start := time.Now()
	defer func() { s.hub.metrics.RecordMessageLatency(time.Since(start)) }()

	s.hub.metrics.IncrementMessagesReceived()
	s.hub.metrics.RecordMessageSize(len(raw))

	var env InboundEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		s.sendEnvelope("error", ErrorPayload{Message: "Format JSON invalide."})
		return
	}

	ctx := context.Background()
	s.hub.dispatch(ctx, s, env)
}

func (s *Session) joinedRooms() []string {
	out := []string{}
	s.rooms.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}
