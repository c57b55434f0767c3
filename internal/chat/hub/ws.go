package hub

import (
	"net"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/okinrev/veza/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS authenticates the handshake per §4.H steps 1-3 (bearer header
// or query-param token, both accepted since browsers cannot set custom
// headers on a WebSocket upgrade request) and, on success, upgrades the
// connection and hands it to the Hub.
func ServeWS(h *Hub, jwtManager *auth.JWTManager, requireAuth bool, connGuard ConnectionGuard, w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if connGuard != nil && !connGuard.Allow(ip) {
		h.metrics.RecordConnectionError()
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	var userID int64 = 0
	username, role := "anonymous", "guest"

	if requireAuth {
		claims, err := jwtManager.WebSocketAuth(r)
		if err != nil {
			h.logger.Warn().Err(err).Msg("websocket handshake rejected")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			h.metrics.RecordConnectionError()
			return
		}
		userID, username, role = claims.UserID, claims.Username, claims.Role
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.Accept(conn, userID, username, role, ip)
}

// clientIP prefers the first hop of X-Forwarded-For (set by a reverse
// proxy) and falls back to the direct connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HealthHandler reports liveness for the process supervisor.
func HealthHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := sonic.Marshal(map[string]string{"status": "ok"})
		_, _ = w.Write(body)
	}
}

// StatsHandler exposes live connection counts for operational visibility.
func StatsHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := sonic.Marshal(h.GetStats())
		_, _ = w.Write(body)
	}
}
