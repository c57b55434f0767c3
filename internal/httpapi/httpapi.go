// Package httpapi implements the auxiliary HTTP surface named in §6:
// health reporting and a thin REST shim over the Tiered Message Store.
// This is explicitly "out of scope" core logic per spec.md §1, but is
// required shape the chathub binary exposes; grounded on the teacher's
// rustyguts-bken/server echo wiring (see SPEC_FULL.md's domain stack).
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/chat/hub"
	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/sysload"
)

// Store is the subset of the Tiered Message Store the REST surface
// needs; internal/chat/store.Store satisfies it directly.
type Store interface {
	hub.Store
}

// HubStats reports live connection counts for /health.
type HubStats interface {
	GetStats() map[string]any
}

type Deps struct {
	Store     Store
	Hub       HubStats
	Sampler   *sysload.Sampler
	Guard     *sysload.Guard
	Version   string
	ServiceID string
	Logger    zerolog.Logger
}

// Server wraps an echo.Echo with the routes of §6.
type Server struct {
	echo      *echo.Echo
	deps      Deps
	startedAt time.Time
}

func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, deps: deps, startedAt: time.Now()}
	e.GET("/health", s.health)
	e.GET("/api/messages", s.listMessages)
	e.POST("/api/messages", s.postMessage)
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) ListenAndServe(addr string) error { return s.echo.Start(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

type healthResponse struct {
	Status         string         `json:"status"`
	Service        string         `json:"service"`
	Version        string         `json:"version"`
	UptimeSeconds  float64        `json:"uptime_seconds"`
	Checks         map[string]any `json:"checks"`
	Alerts         []string       `json:"alerts"`
	Performance    map[string]any `json:"performance"`
}

func (s *Server) health(c echo.Context) error {
	checks := map[string]any{"process": "ok"}
	var alerts []string
	perf := map[string]any{}

	if s.deps.Sampler != nil {
		perf["cpu_percent"] = s.deps.Sampler.CPUPercent()
		perf["heap_mb"] = s.deps.Sampler.HeapMB()
		perf["goroutines"] = s.deps.Sampler.Goroutines()
	}
	if s.deps.Guard != nil && !s.deps.Guard.AllowNewConnection() {
		alerts = append(alerts, "cpu usage above reject threshold")
	}
	if s.deps.Hub != nil {
		checks["hub"] = s.deps.Hub.GetStats()
	}

	status := "healthy"
	if len(alerts) > 0 {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, healthResponse{
		Status:        status,
		Service:       s.deps.ServiceID,
		Version:       s.deps.Version,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Checks:        checks,
		Alerts:        alerts,
		Performance:   perf,
	})
}

// listMessages implements GET /api/messages?room=...&limit=... or
// ?user1=...&user2=...&limit=..., per §6.
func (s *Server) listMessages(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	ctx := c.Request().Context()

	if room := c.QueryParam("room"); room != "" {
		msgs, err := s.deps.Store.RoomHistory(ctx, room, limit)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, msgs)
	}

	user1, err1 := strconv.ParseInt(c.QueryParam("user1"), 10, 64)
	user2, err2 := strconv.ParseInt(c.QueryParam("user2"), 10, 64)
	if err1 != nil || err2 != nil {
		return respondErr(c, errs.New(errs.KindMissingParameter, "param", "room or user1/user2"))
	}
	msgs, err := s.deps.Store.DMHistory(ctx, user1, user2, limit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

type postMessageRequest struct {
	Content  string `json:"content"`
	Author   int64  `json:"author"`
	Room     string `json:"room,omitempty"`
	IsDirect bool   `json:"is_direct,omitempty"`
	To       int64  `json:"to,omitempty"`
}

type postMessageResponse struct {
	ID string `json:"id"`
}

// postMessage implements POST /api/messages, per §6. This is the
// administrative/thin-client path; the Session Hub's WebSocket
// dispatch (§4.H) is the primary write path and additionally applies
// rate-limiting and moderation, which this shim does not.
func (s *Server) postMessage(c echo.Context) error {
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return respondErr(c, errs.New(errs.KindInvalidFormat, "field", "body"))
	}
	if req.Content == "" || req.Author == 0 {
		return respondErr(c, errs.New(errs.KindMissingParameter, "param", "content/author"))
	}

	msg := &hub.Message{
		ID:             generateID(),
		Kind:           hub.KindRoom,
		AuthorID:       req.Author,
		Content:        req.Content,
		RoomID:         req.Room,
		CreatedAt:      time.Now(),
		Status:         hub.StatusSent,
	}
	if req.IsDirect {
		msg.Kind = hub.KindDirect
		msg.RoomID = ""
		msg.RecipientID = req.To
	}

	if err := s.deps.Store.SaveMessage(c.Request().Context(), msg); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, postMessageResponse{ID: msg.ID})
}

func respondErr(c echo.Context, err error) error {
	if e, ok := errs.As(err); ok {
		return c.JSON(e.Kind.HTTPStatus(), map[string]string{"error": e.Public()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func generateID() string {
	return uuid.NewString()
}
