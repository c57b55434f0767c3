package moderation

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/chat/hub"
	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/metrics"
)

// WeightedTerm is a lexicon entry with its own confidence weight, so
// the word lists behind every detector are configuration rather than
// hardcoded constants, per the Open Question decision in
// SPEC_FULL.md §14 (item 3).
type WeightedTerm struct {
	Term   string
	Weight float64
}

// Config carries every threshold and lexicon the detectors consult.
// Defaults mirror the literal values in spec.md §4.F.
type Config struct {
	ProfileRetention       time.Duration
	SpamThreshold          float64
	ToxicityThreshold      float64
	InappropriateThreshold float64
	FraudThreshold         float64
	AbuseThreshold         float64
	SuspicionThreshold     float64

	ForbiddenWords  []WeightedTerm
	ToxicTerms      []WeightedTerm
	FraudPhrases    []string
	NSFWKeywords    []string
	ViolenceKeywords []string
	DrugsKeywords   []string
}

// DefaultConfig returns the literal thresholds and lexicons from §4.F,
// suitable as a starting point for a deployment's own word lists.
func DefaultConfig() Config {
	return Config{
		ProfileRetention:       30 * 24 * time.Hour,
		SpamThreshold:          0.5,
		ToxicityThreshold:      0.3,
		InappropriateThreshold: 0.2,
		FraudThreshold:         0.3,
		AbuseThreshold:         0.4,
		SuspicionThreshold:     0.6,
		ForbiddenWords: []WeightedTerm{
			{Term: "viagra", Weight: 0.3},
			{Term: "casino", Weight: 0.2},
			{Term: "free money", Weight: 0.3},
		},
		ToxicTerms: []WeightedTerm{
			{Term: "idiot", Weight: 0.3},
			{Term: "hate", Weight: 0.4},
			{Term: "kill", Weight: 0.5},
			{Term: "kys", Weight: 0.8},
		},
		FraudPhrases: []string{
			"you have won a prize", "send your bank details", "double your crypto",
			"click here urgent", "verify your account now",
		},
		NSFWKeywords:     []string{"nsfw", "xxx"},
		ViolenceKeywords: []string{"kill you", "gonna hurt you"},
		DrugsKeywords:    []string{"buy drugs", "cocaine for sale"},
	}
}

var (
	urlRegex     = regexp.MustCompile(`https?://\S+`)
	emailRegex   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRegex   = regexp.MustCompile(`\b\d{2}[ .\-]?\d{2}[ .\-]?\d{2}[ .\-]?\d{2}[ .\-]?\d{2}\b`)
	exclaimRe    = regexp.MustCompile(`!`)
)

// hasCharRun reports whether any character other than a newline
// repeats four or more times in a row.
func hasCharRun(content string) bool {
	run, prev := 0, rune(-1)
	for _, r := range content {
		if r == prev && r != '\n' {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= 4 {
			return true
		}
	}
	return false
}

// Engine scores each inbound message against a deterministic set of
// detectors and decides whether it should be blocked, mirroring
// analyze_message's violation pipeline. Every detector returns a
// confidence in [0,1]; a message is flagged once any single
// detector's confidence crosses its configured threshold.
type Engine struct {
	cfg     Config
	store   *profileStore
	bus     *eventbus.Client
	metrics *metrics.Registry
	logger  zerolog.Logger
}

var _ hub.Moderator = (*Engine)(nil)

func New(cfg Config, bus *eventbus.Client, reg *metrics.Registry, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, store: newProfileStore(), bus: bus, metrics: reg, logger: logger}
}

func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.store.sweep(e.cfg.ProfileRetention)
		}
	}
}

// AnalyzeMessage satisfies hub.Moderator.
func (e *Engine) AnalyzeMessage(ctx context.Context, userID int64, username, content, room string) (bool, string) {
	return e.AnalyzeMessageFull(ctx, userID, username, content, room, 0)
}

type violation struct {
	kind       string
	confidence float64
}

// AnalyzeMessageFull is the full §4.F pipeline including the optional
// typing_duration signal used by the typing-speed EWMA and the
// bot-suspicion detector.
func (e *Engine) AnalyzeMessageFull(ctx context.Context, userID int64, username, content, room string, typingSeconds float64) (bool, string) {
	profile := e.store.getOrCreate(userID, username)
	repetitions, floodWindow, roomTotal := profile.recordMessage(content, room, typingSeconds)

	var findings []violation
	add := func(kind string, score float64) {
		if score > 0 {
			findings = append(findings, violation{kind, score})
		}
	}

	add("spam", e.spamScore(content, repetitions, floodWindow))
	add("toxicity", e.toxicityScore(content))
	add("inappropriate", e.inappropriateScore(content))
	add("fraud", e.fraudScore(content))
	add("abuse", e.abuseScore(profile, roomTotal))
	add("suspicious", e.suspicionScore(profile))

	if len(findings) == 0 {
		return false, ""
	}

	profile.applyViolations(len(findings))

	blocked := false
	reason := ""
	var blockedConfidences = map[string]float64{}
	for _, f := range findings {
		threshold := e.thresholdFor(f.kind)
		e.metrics.IncrementModerationViolation(f.kind)
		if f.confidence >= threshold {
			blocked = true
			if reason == "" {
				reason = f.kind
			}
			blockedConfidences[f.kind] = f.confidence
		}
	}

	if blocked {
		e.publishViolation(userID, room, reason)
		sanction, duration := e.determineSanction(profile, blockedConfidences)
		if sanction != "" {
			e.metrics.IncrementModerationSanction(sanction)
			e.publishSanction(userID, sanction, duration)
		}
	}

	return blocked, reason
}

func (e *Engine) thresholdFor(kind string) float64 {
	switch kind {
	case "spam":
		return e.cfg.SpamThreshold
	case "toxicity":
		return e.cfg.ToxicityThreshold
	case "inappropriate":
		return e.cfg.InappropriateThreshold
	case "fraud":
		return e.cfg.FraudThreshold
	case "abuse":
		return e.cfg.AbuseThreshold
	case "suspicious":
		return e.cfg.SuspicionThreshold
	default:
		return 1.0
	}
}

func (e *Engine) spamScore(content string, repetitions int, floodWindowSecs float64) float64 {
	score := 0.0
	if urlRegex.MatchString(content) {
		score += 0.2
	}
	if emailRegex.MatchString(content) || phoneRegex.MatchString(content) {
		score += 0.15
	}
	if repetitions > 3 {
		score += 0.2 * min1(float64(repetitions)/10.0)
	}
	if floodWindowSecs >= 0 && floodWindowSecs < 10 {
		score += 0.25
	}
	if len(content) > 500 {
		score += 0.1
	}
	if hasCharRun(content) {
		score += 0.15
	}
	lower := strings.ToLower(content)
	for _, w := range e.cfg.ForbiddenWords {
		if strings.Contains(lower, w.Term) {
			score += w.Weight
		}
	}
	return score
}

func (e *Engine) toxicityScore(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, w := range e.cfg.ToxicTerms {
		if strings.Contains(lower, w.Term) {
			score += w.Weight
		}
	}
	if len(content) > 10 {
		upper := 0
		letters := 0
		for _, r := range content {
			if r >= 'A' && r <= 'Z' {
				upper++
				letters++
			} else if r >= 'a' && r <= 'z' {
				letters++
			}
		}
		if letters > 0 && float64(upper)/float64(letters) > 0.7 {
			score += 0.2
		}
	}
	n := len(exclaimRe.FindAllString(content, -1))
	if n > 3 {
		score += 0.1 * min1(float64(n)/10.0)
	}
	return min1(score)
}

// ToxicitySeverity buckets a toxicity confidence per §4.F's display
// scale: Low<0.5<Medium<0.7<High<0.9<=Extreme.
func ToxicitySeverity(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "extreme"
	case confidence >= 0.7:
		return "high"
	case confidence >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// toxicitySanctionMultiplier scales a toxicity confidence into the
// sanction score. Scenario S4 (spec.md §8) fixes the concrete table:
// a 0.4 confidence is "Medium" for sanction purposes with a 0.8
// multiplier, distinct from the coarser display buckets above.
func toxicitySanctionMultiplier(confidence float64) float64 {
	switch {
	case confidence >= 0.7:
		return 1.5
	case confidence >= 0.5:
		return 1.2
	case confidence >= 0.3:
		return 0.8
	default:
		return 0.6
	}
}

func (e *Engine) inappropriateScore(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, w := range e.cfg.NSFWKeywords {
		if strings.Contains(lower, w) {
			score += 0.25
		}
	}
	for _, w := range e.cfg.ViolenceKeywords {
		if strings.Contains(lower, w) {
			score += 0.25
		}
	}
	for _, w := range e.cfg.DrugsKeywords {
		if strings.Contains(lower, w) {
			score += 0.25
		}
	}
	return min1(score)
}

func (e *Engine) fraudScore(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, p := range e.cfg.FraudPhrases {
		if strings.Contains(lower, p) {
			score += 0.4
		}
	}
	if urlRegex.MatchString(content) && (strings.Contains(lower, "urgent") || strings.Contains(lower, "verify")) {
		score += 0.3
	}
	return min1(score)
}

// abuseScore implements the §4.F abuse detector: message flood, room
// raid, and cumulative-harassment signals.
func (e *Engine) abuseScore(p *Profile, roomTotal int) float64 {
	score := 0.0
	if p.messageCountSince(30*time.Second) >= 10 {
		score += 0.6
	}
	if rooms, total := p.roomSpread(); rooms > 5 && total > 50 {
		score += 0.4
		_ = roomTotal
	}
	if p.totalViolations() > 10 {
		score += 0.3
	}
	return min1(score)
}

// suspicionScore implements the bot-suspicion composite: fast typing,
// near-zero human errors, low unique-word ratio, 24/7 activity, and
// sub-second inter-message gaps.
func (e *Engine) suspicionScore(p *Profile) float64 {
	typingSpeed, wordRatio, activeHours, subSecondFraction := p.suspicionSignals()
	score := 0.0
	if typingSpeed > 15 {
		score += 0.25
	}
	if p.humanErrorCountSnapshot() == 0 && p.TotalMessages > 10 {
		score += 0.2
	}
	if wordRatio < 0.3 {
		score += 0.2
	}
	if activeHours >= 20 {
		score += 0.15
	}
	score += 0.2 * subSecondFraction
	return min1(score)
}

// determineSanction implements §4.F's progressive sanction policy: a
// weighted sum of the confidences that crossed their threshold,
// multiplied by a history factor derived from the profile's total
// past violations, mapped onto a sanction tier. Returns the sanction
// name and its duration (zero for Warning/none).
func (e *Engine) determineSanction(p *Profile, confidences map[string]float64) (string, time.Duration) {
	total := 0.0
	if c, ok := confidences["spam"]; ok {
		total += c * 0.5
	}
	if c, ok := confidences["toxicity"]; ok {
		total += c * toxicitySanctionMultiplier(c)
	}
	if c, ok := confidences["fraud"]; ok {
		total += c * 1.0
	}
	if c, ok := confidences["abuse"]; ok {
		total += c * 0.8
	}
	if c, ok := confidences["suspicious"]; ok {
		total += c * 0.4
	}

	past := p.totalViolations()
	var historyFactor float64
	switch {
	case past <= 2:
		historyFactor = 1.0
	case past <= 5:
		historyFactor = 1.2
	case past <= 10:
		historyFactor = 1.5
	default:
		historyFactor = 2.0
	}
	total *= historyFactor

	switch {
	case total < 0.5:
		return "", 0
	case total < 0.7:
		return "warning", 0
	case total < 1.0:
		return "mute", time.Hour
	case total < 1.5:
		return "temp_ban", 24 * time.Hour
	default:
		return "temp_ban", 7 * 24 * time.Hour
	}
}

func (e *Engine) publishViolation(userID int64, room, kind string) {
	if e.bus == nil {
		return
	}
	_ = e.bus.PublishEvent(eventbus.Subject.ModerationViolation(), map[string]any{
		"user_id": strconv.FormatInt(userID, 10),
		"room":    room,
		"type":    kind,
	})
}

func (e *Engine) publishSanction(userID int64, sanction string, duration time.Duration) {
	if e.bus == nil {
		return
	}
	_ = e.bus.PublishEvent(eventbus.Subject.ModerationSanction(), map[string]any{
		"user_id":     strconv.FormatInt(userID, 10),
		"sanction":    sanction,
		"duration_s":  duration.Seconds(),
	})
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
