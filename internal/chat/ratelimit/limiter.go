// Package ratelimit implements the Advanced Rate Limiter (§4.E): a
// token bucket per (subject, limit type), IP-level attack detection,
// and a timed auto-blacklist. Grounded on the teacher's
// ws/internal/single/limits/rate_limiter.go TokenBucket algorithm,
// generalized from one bucket per client to many buckets per client
// keyed by limit type (messages, connections, auth attempts, ...).
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okinrev/veza/internal/chat/hub"
	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/metrics"
)

// LimitType names a category of action with its own burst/refill
// budget, per §4.E.
type LimitType string

const (
	LimitMessagesPerMinute  LimitType = "messages_per_minute"
	LimitConnectionsPerHour LimitType = "connections_per_hour"
	LimitAuthAttemptsPerMin LimitType = "auth_attempts_per_min"
	LimitAPIRequestsPerMin  LimitType = "api_requests_per_min"
	LimitFileUploadsPerMin  LimitType = "file_uploads_per_min"
)

// ReputationLevel scales a user bucket's capacity, per §4.E step 3.
type ReputationLevel string

const (
	ReputationNewUser ReputationLevel = "new_user"
	ReputationNormal  ReputationLevel = "normal"
	ReputationTrusted ReputationLevel = "trusted"
	ReputationVIP     ReputationLevel = "vip"
	ReputationSystem  ReputationLevel = "system"
)

func reputationMultiplier(level ReputationLevel) float64 {
	switch level {
	case ReputationNewUser:
		return 0.5
	case ReputationTrusted:
		return 1.5
	case ReputationVIP:
		return 2.0
	case ReputationSystem:
		return 5.0
	default:
		return 1.0
	}
}

// ModerationLevel scales a channel bucket's refill rate, per §4.E step 4.
type ModerationLevel string

const (
	ModerationLow      ModerationLevel = "low"
	ModerationNormal   ModerationLevel = "normal"
	ModerationHigh     ModerationLevel = "high"
	ModerationLockdown ModerationLevel = "lockdown"
)

func moderationMultiplier(level ModerationLevel) float64 {
	switch level {
	case ModerationLow:
		return 1.5
	case ModerationHigh:
		return 0.5
	case ModerationLockdown:
		return 0.1
	default:
		return 1.0
	}
}

type Budget struct {
	Capacity   float64
	RefillRate float64 // tokens per second
}

type Config struct {
	Budgets               map[LimitType]Budget
	AutoBlacklistDuration time.Duration
	IPSuspiciousViolations int
	IPBlacklistViolations  int
	AttackWindow           time.Duration
	DDoSEventThreshold     int
	BruteForceEventThresh  int
	BotEventThreshold      int
	InactiveReapTime       time.Duration
}

func perMinute(count, burst float64) Budget { return Budget{Capacity: burst, RefillRate: count / 60} }
func perHour(count, burst float64) Budget   { return Budget{Capacity: burst, RefillRate: count / 3600} }

func DefaultConfig() Config {
	return Config{
		Budgets: map[LimitType]Budget{
			LimitMessagesPerMinute:  perMinute(60, 10),
			LimitConnectionsPerHour: perHour(120, 5),
			LimitAuthAttemptsPerMin: perMinute(5, 2),
			LimitAPIRequestsPerMin:  perMinute(1000, 1000),
			LimitFileUploadsPerMin:  perMinute(10, 10),
		},
		AutoBlacklistDuration:  15 * time.Minute,
		IPSuspiciousViolations: 5,
		IPBlacklistViolations:  10,
		AttackWindow:           60 * time.Second,
		DDoSEventThreshold:     100,
		BruteForceEventThresh:  10,
		BotEventThreshold:      50,
		InactiveReapTime:       time.Hour,
	}
}

type subjectBuckets struct {
	lastSeen time.Time
	byLimit  map[LimitType]*tokenBucket
}

// blacklistEntry mirrors §3 Blacklist Entry.
type blacklistEntry struct {
	reason       string
	blockedAt    time.Time
	expiresAt    time.Time
	autoGenerated bool
}

// Limiter implements hub.RateLimiter plus an IP reputation layer: each
// violation is tallied per IP inside a sliding AttackWindow, and an IP
// crossing IPBlacklistViolations is blocked outright until
// AutoBlacklistDuration elapses. Raw (non-violation) request volume is
// separately evaluated by an AttackDetector for DDoS/brute-force/bot
// patterns, per §4.E.
type Limiter struct {
	cfg     Config
	bus     *eventbus.Client
	metrics *metrics.Registry
	attacks *AttackDetector

	mu     sync.Mutex
	byUser map[int64]*subjectBuckets
	byIP   map[string]*subjectBuckets

	violationsMu sync.Mutex
	violations   map[string][]time.Time
	blacklist    map[string]*blacklistEntry

	trustMu sync.Mutex
	trust   map[string]float64
}

var _ hub.RateLimiter = (*Limiter)(nil)

func New(cfg Config, bus *eventbus.Client, reg *metrics.Registry) *Limiter {
	return &Limiter{
		cfg:        cfg,
		bus:        bus,
		metrics:    reg,
		attacks:    newAttackDetector(cfg),
		byUser:     make(map[int64]*subjectBuckets),
		byIP:       make(map[string]*subjectBuckets),
		violations: make(map[string][]time.Time),
		blacklist:  make(map[string]*blacklistEntry),
		trust:      make(map[string]float64),
	}
}

// CheckRateLimit satisfies hub.RateLimiter: a chat-path call with no
// reputation/moderation context or attack-detection request info.
func (l *Limiter) CheckRateLimit(ctx context.Context, ip string, userID int64, channel string, limitType string) (bool, float64, string) {
	return l.Check(ctx, CheckRequest{
		IP: ip, UserID: userID, Channel: channel, LimitType: LimitType(limitType),
		Reputation: ReputationNormal, ModerationLevel: ModerationNormal,
	})
}

// CheckRequest carries every input to the full §4.E decision: subject
// identity, the budget being consumed, the caller's reputation and the
// channel's moderation level (both scale the relevant bucket), and
// optional request metadata (path/User-Agent) for attack detection.
type CheckRequest struct {
	IP              string
	UserID          int64
	Channel         string
	LimitType       LimitType
	Reputation      ReputationLevel
	ModerationLevel ModerationLevel
	Request         RequestInfo
}

// Result mirrors §4.E's RateLimitResult.
type Result struct {
	Allowed           bool
	Reason            string
	RetryAfter        float64
	RemainingTokens   float64
	BurstRemaining    float64
	ReputationImpact  float64
}

// Check runs the full ordered pipeline of §4.E: blacklist, IP bucket,
// user bucket (reputation-scaled), channel bucket (moderation-scaled),
// short-circuiting on the first denial, then evaluates attack
// detection against the raw request event stream.
func (l *Limiter) Check(ctx context.Context, req CheckRequest) Result {
	l.metrics.IncrementRateRequestsProcessed()

	if req.IP != "" {
		if entry, blocked := l.blacklistEntryFor(req.IP); blocked {
			l.metrics.IncrementRateRequestsBlocked("blacklisted")
			return Result{Allowed: false, Reason: entry.reason, RetryAfter: time.Until(entry.expiresAt).Seconds()}
		}
	}

	lt := req.LimitType
	budget, ok := l.cfg.Budgets[lt]
	if !ok {
		lt = LimitMessagesPerMinute
		budget = l.cfg.Budgets[lt]
	}

	if req.IP != "" {
		bucket := l.bucketFor(0, req.IP, lt, budget)
		if allowed, retryAfter := bucket.tryConsume(1); !allowed {
			l.metrics.IncrementRateRequestsBlocked(string(lt))
			l.recordViolation(req.IP)
			return Result{Allowed: false, Reason: fmt.Sprintf("%s_exceeded", lt), RetryAfter: retryAfter}
		}
	}

	if req.UserID != 0 {
		scaled := Budget{Capacity: budget.Capacity * reputationMultiplier(req.Reputation), RefillRate: budget.RefillRate * reputationMultiplier(req.Reputation)}
		bucket := l.bucketFor(req.UserID, "", lt, scaled)
		if allowed, retryAfter := bucket.tryConsume(1); !allowed {
			l.metrics.IncrementRateRequestsBlocked(string(lt))
			return Result{Allowed: false, Reason: fmt.Sprintf("%s_exceeded", lt), RetryAfter: retryAfter, ReputationImpact: -0.01}
		}
	}

	if req.Channel != "" {
		scaled := Budget{Capacity: budget.Capacity, RefillRate: budget.RefillRate * moderationMultiplier(req.ModerationLevel)}
		bucket := l.bucketFor(0, "channel:"+req.Channel, lt, scaled)
		if allowed, retryAfter := bucket.tryConsume(1); !allowed {
			l.metrics.IncrementRateRequestsBlocked(string(lt))
			return Result{Allowed: false, Reason: fmt.Sprintf("%s_exceeded", lt), RetryAfter: retryAfter}
		}
	}

	if req.IP != "" {
		if kind := l.attacks.Evaluate(req.IP, req.Request); kind != AttackNone {
			l.handleAttack(req.IP, kind)
			if kind == AttackDDoS || kind == AttackBruteForce {
				return Result{Allowed: false, Reason: attackReason(kind), RetryAfter: l.cfg.AutoBlacklistDuration.Seconds()}
			}
		}
	}

	return Result{Allowed: true}
}

func attackReason(kind AttackKind) string {
	switch kind {
	case AttackDDoS:
		return "DDoS attack detected"
	case AttackBruteForce:
		return "brute force attack detected"
	default:
		return string(kind)
	}
}

// handleAttack applies the §4.E attack response: DDoS and brute force
// both blacklist the IP outright; bot detection marks it Suspicious
// via a trust-score decrement without blacklisting.
func (l *Limiter) handleAttack(ip string, kind AttackKind) {
	l.metrics.IncrementAttacksDetected(string(kind))
	switch kind {
	case AttackDDoS, AttackBruteForce:
		l.blacklistIP(ip, attackReason(kind), true)
	case AttackBot:
		l.adjustTrust(ip, -0.3)
	}
	l.publishAttack(ip, string(kind))
}

func (l *Limiter) adjustTrust(ip string, delta float64) {
	l.trustMu.Lock()
	defer l.trustMu.Unlock()
	t, ok := l.trust[ip]
	if !ok {
		t = 0.5
	}
	t += delta
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	l.trust[ip] = t
}

func (l *Limiter) bucketFor(userID int64, ip string, lt LimitType, budget Budget) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sb *subjectBuckets
	if userID != 0 {
		var ok bool
		sb, ok = l.byUser[userID]
		if !ok {
			sb = &subjectBuckets{byLimit: make(map[LimitType]*tokenBucket)}
			l.byUser[userID] = sb
		}
	} else {
		var ok bool
		sb, ok = l.byIP[ip]
		if !ok {
			sb = &subjectBuckets{byLimit: make(map[LimitType]*tokenBucket)}
			l.byIP[ip] = sb
		}
	}
	sb.lastSeen = time.Now()

	b, ok := sb.byLimit[lt]
	if !ok {
		b = newTokenBucket(budget.Capacity, budget.RefillRate)
		sb.byLimit[lt] = b
	}
	return b
}

// recordViolation tallies a rate-limit rejection against the source
// IP. Crossing IPSuspiciousViolations marks it Suspicious (logged via
// an attack event); crossing IPBlacklistViolations blacklists it
// outright for AutoBlacklistDuration, per §8's invariant.
func (l *Limiter) recordViolation(ip string) {
	l.violationsMu.Lock()
	now := time.Now()
	cutoff := now.Add(-l.cfg.AttackWindow)
	events := l.violations[ip]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	l.violations[ip] = kept
	count := len(kept)
	l.violationsMu.Unlock()

	switch {
	case count >= l.cfg.IPBlacklistViolations:
		l.blacklistIP(ip, "repeated rate limit violations", true)
	case count >= l.cfg.IPSuspiciousViolations:
		l.publishAttack(ip, "suspicious")
	}
}

func (l *Limiter) blacklistIP(ip, reason string, auto bool) {
	l.violationsMu.Lock()
	now := time.Now()
	l.blacklist[ip] = &blacklistEntry{
		reason:        reason,
		blockedAt:     now,
		expiresAt:     now.Add(l.cfg.AutoBlacklistDuration),
		autoGenerated: auto,
	}
	size := len(l.blacklist)
	l.violationsMu.Unlock()
	l.metrics.SetBlacklistSize(size)
}

func (l *Limiter) publishAttack(ip, attackType string) {
	if l.bus == nil {
		return
	}
	_ = l.bus.PublishEvent(eventbus.Subject.AttackDetected(), map[string]any{
		"ip":   ip,
		"type": attackType,
		"at":   time.Now().Unix(),
	})
}

// blacklistEntryFor returns the live entry for ip, reaping it first if
// expired, per §4.E step 1 ("expired entries are removed on access").
func (l *Limiter) blacklistEntryFor(ip string) (*blacklistEntry, bool) {
	l.violationsMu.Lock()
	defer l.violationsMu.Unlock()
	entry, ok := l.blacklist[ip]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(l.blacklist, ip)
		return nil, false
	}
	return entry, true
}

// Reap drops bucket state for subjects inactive longer than
// InactiveReapTime, bounding memory for a long-running process, and
// sweeps the attack detector's per-IP event windows.
func (l *Limiter) Reap() {
	l.mu.Lock()
	cutoff := time.Now().Add(-l.cfg.InactiveReapTime)
	for id, sb := range l.byUser {
		if sb.lastSeen.Before(cutoff) {
			delete(l.byUser, id)
		}
	}
	for ip, sb := range l.byIP {
		if sb.lastSeen.Before(cutoff) {
			delete(l.byIP, ip)
		}
	}
	l.mu.Unlock()

	l.violationsMu.Lock()
	for ip, entry := range l.blacklist {
		if time.Now().After(entry.expiresAt) {
			delete(l.blacklist, ip)
		}
	}
	l.violationsMu.Unlock()

	l.attacks.reap(l.cfg.InactiveReapTime)
}

func (l *Limiter) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Reap()
		}
	}
}
