package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okinrev/veza/internal/chat/hub"
)

var _ hub.ConnectionGuard = (*ConnectionGuard)(nil)

// ConnectionGuard is the accept-rate guard the Session Hub and Stream
// Core consult before completing a handshake: a global token bucket
// for system-wide protection plus a per-IP bucket so one address
// cannot exhaust the accept budget of every other client. This sits
// in front of the per-limit-type buckets in Limiter, which only apply
// once a connection already exists.
type ConnectionGuard struct {
	mu    sync.RWMutex
	perIP map[string]*ipEntry

	ipRate  rate.Limit
	ipBurst int
	ipTTL   time.Duration

	global *rate.Limiter
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnectionGuardConfig mirrors the defaults in §5's backpressure
// policy: generous burst for legitimate reconnect storms, modest
// sustained rate per IP.
type ConnectionGuardConfig struct {
	IPBurst     int
	IPRate      float64
	IPTTL       time.Duration
	GlobalBurst int
	GlobalRate  float64
}

func NewConnectionGuard(cfg ConnectionGuardConfig) *ConnectionGuard {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 10
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 1.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}
	return &ConnectionGuard{
		perIP:   make(map[string]*ipEntry),
		ipRate:  rate.Limit(cfg.IPRate),
		ipBurst: cfg.IPBurst,
		ipTTL:   cfg.IPTTL,
		global:  rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
	}
}

// Allow reports whether a new connection attempt from ip may proceed.
// The global bucket is checked first so one hot IP can't mask a
// system-wide flood; the per-IP bucket is checked second.
func (g *ConnectionGuard) Allow(ip string) bool {
	if !g.global.Allow() {
		return false
	}
	return g.ipLimiter(ip).Allow()
}

func (g *ConnectionGuard) ipLimiter(ip string) *rate.Limiter {
	g.mu.RLock()
	e, ok := g.perIP[ip]
	g.mu.RUnlock()
	if ok {
		g.mu.Lock()
		e.lastAccess = time.Now()
		g.mu.Unlock()
		return e.limiter
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.perIP[ip]; ok {
		e.lastAccess = time.Now()
		return e.limiter
	}
	e = &ipEntry{limiter: rate.NewLimiter(g.ipRate, g.ipBurst), lastAccess: time.Now()}
	g.perIP[ip] = e
	return e.limiter
}

// Sweep removes per-IP buckets idle longer than IPTTL, preventing the
// map from growing unboundedly under churn of transient client IPs.
func (g *ConnectionGuard) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ip, e := range g.perIP {
		if now.Sub(e.lastAccess) > g.ipTTL {
			delete(g.perIP, ip)
		}
	}
}

// TrackedIPs reports how many per-IP buckets are currently live, for
// metrics/diagnostics.
func (g *ConnectionGuard) TrackedIPs() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.perIP)
}
