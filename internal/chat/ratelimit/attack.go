package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// RequestInfo is the subset of an inbound request the attack
// detectors need, per §4.E: request path (for the brute-force
// detector) and User-Agent (for the bot detector).
type RequestInfo struct {
	Path      string
	UserAgent string
}

var botUserAgentMarkers = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python", "java", "headless", "selenium", "phantom", "automated",
}

func looksLikeBotUA(ua string) bool {
	lower := strings.ToLower(ua)
	for _, m := range botUserAgentMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func looksLikeAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth")
}

type requestEvent struct {
	at   time.Time
	info RequestInfo
}

// ipEvents is a sliding window of recent request events for one IP,
// evaluated by DetectAttack on every request. Evidence storage is
// capped at evidenceCap per §9's design note to keep per-IP memory
// bounded; the count used for threshold comparisons is tracked
// separately so a sustained attack past the evidence cap is still
// detected.
type ipEvents struct {
	mu       sync.Mutex
	times    []time.Time
	evidence []requestEvent
}

const evidenceCap = 100

func (e *ipEvents) record(now time.Time, info RequestInfo, window time.Duration) (count, authCount, botUACount int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-window)
	kept := e.times[:0]
	for _, t := range e.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	e.times = kept

	e.evidence = append(e.evidence, requestEvent{at: now, info: info})
	keptEvidence := e.evidence[:0]
	for _, ev := range e.evidence {
		if ev.at.After(cutoff) {
			keptEvidence = append(keptEvidence, ev)
		}
	}
	e.evidence = keptEvidence
	if len(e.evidence) > evidenceCap {
		e.evidence = e.evidence[len(e.evidence)-evidenceCap:]
	}

	count = len(e.times)
	for _, ev := range e.evidence {
		if looksLikeAuthPath(ev.info.Path) {
			authCount++
		}
		if looksLikeBotUA(ev.info.UserAgent) {
			botUACount++
		}
	}
	return
}

// AttackDetector evaluates the §4.E attack patterns (DDoS, brute
// force, bot) against a sliding per-IP request window.
type AttackDetector struct {
	cfg Config

	mu     sync.Mutex
	byIP   map[string]*ipEvents
}

func newAttackDetector(cfg Config) *AttackDetector {
	return &AttackDetector{cfg: cfg, byIP: make(map[string]*ipEvents)}
}

func (d *AttackDetector) eventsFor(ip string) *ipEvents {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byIP[ip]
	if !ok {
		e = &ipEvents{}
		d.byIP[ip] = e
	}
	return e
}

// AttackKind names a detected pattern, per §3 Attack Pattern.
type AttackKind string

const (
	AttackNone        AttackKind = ""
	AttackDDoS        AttackKind = "ddos"
	AttackBruteForce  AttackKind = "brute_force"
	AttackBot         AttackKind = "bot"
)

// Evaluate records one request event for ip and reports whether it
// crosses a detection threshold. DDoS and brute-force both warrant an
// immediate blacklist; bot detection only marks the IP Suspicious.
func (d *AttackDetector) Evaluate(ip string, info RequestInfo) AttackKind {
	events := d.eventsFor(ip)
	count, authCount, botUACount := events.record(time.Now(), info, d.cfg.AttackWindow)

	if count > d.cfg.DDoSEventThreshold {
		return AttackDDoS
	}
	if authCount > d.cfg.BruteForceEventThresh {
		return AttackBruteForce
	}
	if botUACount > d.cfg.BotEventThreshold {
		return AttackBot
	}
	return AttackNone
}

func (d *AttackDetector) reap(inactiveAfter time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-inactiveAfter)
	for ip, e := range d.byIP {
		e.mu.Lock()
		stale := len(e.times) == 0 || e.times[len(e.times)-1].Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(d.byIP, ip)
		}
	}
}
