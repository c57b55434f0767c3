// Package transport exposes the Stream Core (§4.D) over the wire: a
// REST surface for stream lifecycle and a WebSocket surface for
// broadcasters pushing encoded chunks and listeners pulling them,
// grounded on internal/chat/hub/ws.go's upgrade/auth pattern and
// internal/httpapi's echo wiring.
package transport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/auth"
	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/stream/buffer"
	"github.com/okinrev/veza/internal/stream/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Deps struct {
	Manager     *core.StreamManager
	JWTManager  *auth.JWTManager
	RequireAuth bool
	BufferCfg   buffer.Config
	Logger      zerolog.Logger
}

// Server is the streamserver binary's HTTP surface.
type Server struct {
	echo *echo.Echo
	deps Deps
}

func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, deps: deps}
	e.POST("/streams", s.createStream)
	e.POST("/streams/:id/start", s.startStream)
	e.POST("/streams/:id/end", s.endStream)
	e.GET("/streams/:id", s.getStream)
	e.GET("/streams/:id/broadcast", s.broadcast)
	e.GET("/streams/:id/listen", s.listen)
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

type createStreamRequest struct {
	Title   string `json:"title"`
	OwnerID int64  `json:"owner_id"`
	Genre   string `json:"genre"`
}

func (s *Server) createStream(c echo.Context) error {
	var req createStreamRequest
	if err := c.Bind(&req); err != nil {
		return respondErr(c, errs.New(errs.KindInvalidFormat, "field", "body"))
	}
	if req.Title == "" || req.OwnerID == 0 {
		return respondErr(c, errs.New(errs.KindMissingParameter, "param", "title/owner_id"))
	}
	stream, err := s.deps.Manager.CreateStream(core.Metadata{Title: req.Title, OwnerID: req.OwnerID, Genre: req.Genre})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": stream.ID, "state": string(stream.State())})
}

func (s *Server) startStream(c echo.Context) error {
	id := c.Param("id")
	if err := s.deps.Manager.Start(id); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) endStream(c echo.Context) error {
	id := c.Param("id")
	if err := s.deps.Manager.End(id); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) getStream(c echo.Context) error {
	id := c.Param("id")
	stream, ok := s.deps.Manager.Get(id)
	if !ok {
		return respondErr(c, errs.New(errs.KindNotFound, "stream_id", id))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id": stream.ID, "state": string(stream.State()), "listeners": stream.ListenerCount(),
	})
}

// broadcast accepts the owning client's WebSocket connection and feeds
// every binary frame it sends into the stream's fan-out, per §4.D's
// chunk ingestion path. Each frame is treated as one already-encoded
// chunk (Opus or MP3, per the stream's codec negotiated out of band).
func (s *Server) broadcast(c echo.Context) error {
	r := c.Request()
	w := c.Response()
	id := c.Param("id")

	stream, ok := s.deps.Manager.Get(id)
	if !ok {
		return respondErr(c, errs.New(errs.KindNotFound, "stream_id", id))
	}
	claims, err := s.authenticate(r)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	if claims != nil && claims.UserID != stream.Metadata.OwnerID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn().Err(err).Msg("broadcast upgrade failed")
		return nil
	}
	defer conn.Close()

	var seq uint64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		seq++
		s.deps.Manager.FanOut(r.Context(), id, &buffer.Chunk{Data: data, SequenceNo: seq, TimestampMs: time.Now().UnixMilli()})
	}
}

// listen accepts a listener's WebSocket connection, registers an
// adaptive buffer for it via AddListener, and streams queued chunks
// back until the connection drops or the stream ends.
func (s *Server) listen(c echo.Context) error {
	r := c.Request()
	w := c.Response()
	id := c.Param("id")

	claims, err := s.authenticate(r)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	var userID int64
	if claims != nil {
		userID = claims.UserID
	}

	bandwidth := 0
	if bw := c.QueryParam("bandwidth_bps"); bw != "" {
		if n, err := strconv.Atoi(bw); err == nil {
			bandwidth = n
		}
	}

	listener, err := s.deps.Manager.AddListener(id, userID, bandwidth, s.deps.BufferCfg)
	if err != nil {
		return respondErr(c, err)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn().Err(err).Msg("listen upgrade failed")
		return nil
	}
	defer func() {
		conn.Close()
		_ = s.deps.Manager.RemoveListener(id, listener.ID)
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if st, ok := s.deps.Manager.Get(id); !ok || st.State() == core.StateCompleted || st.State() == core.StateFailed {
			return nil
		}
		chunk, status := listener.NextChunk()
		if chunk == nil {
			if status == buffer.StatusEmpty {
				continue
			}
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk.Data); err != nil {
			return nil
		}
	}
	return nil
}

// authenticate mirrors hub.ServeWS's bearer/query-param acceptance;
// nil claims with a nil error means auth is disabled.
func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	if !s.deps.RequireAuth {
		return nil, nil
	}
	return s.deps.JWTManager.WebSocketAuth(r)
}

func respondErr(c echo.Context, err error) error {
	if e, ok := errs.As(err); ok {
		return c.JSON(e.Kind.HTTPStatus(), map[string]string{"error": e.Public()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
