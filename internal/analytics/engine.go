package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/logging"
)

// Config carries the §4.K tunables from config.Config.
type Config struct {
	RetentionDays int
}

// Engine is the analytics/engagement surface both binaries wire in:
// play-session lifecycle, recommendation feedback, and A/B testing.
type Engine struct {
	cfg      Config
	sessions *SessionTracker
	feedback *FeedbackTracker
	abtests  *ABTestTracker

	bus    *eventbus.Client
	logger zerolog.Logger
}

func New(cfg Config, bus *eventbus.Client, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		sessions: newSessionTracker(),
		feedback: NewFeedbackTracker(),
		abtests:  NewABTestTracker(),
		bus:      bus,
		logger:   logger,
	}
}

func (e *Engine) Sessions() *SessionTracker   { return e.sessions }
func (e *Engine) Feedback() *FeedbackTracker  { return e.feedback }
func (e *Engine) ABTests() *ABTestTracker     { return e.abtests }

// EndSession closes a play session, folds it into aggregates, and
// announces it on the event bus for downstream consumers (e.g. a
// dashboard or the Discovery Engine's trending tracker).
func (e *Engine) EndSession(sessionID string, completionPct float64, reason SkipReason) (*PlaySession, error) {
	s, err := e.sessions.End(sessionID, completionPct, reason)
	if err != nil {
		return nil, err
	}
	if e.bus != nil {
		_ = e.bus.PublishEvent(eventbus.Subject.AnalyticsPlaySessionEnded(), map[string]any{
			"user_id": s.UserID, "track_id": s.TrackID, "completion_pct": completionPct, "skip_reason": string(reason),
		})
	}
	return s, nil
}

// AssignArm assigns a user to an A/B test arm and announces the
// assignment.
func (e *Engine) AssignArm(testID string, userID int64) (string, bool) {
	arm, ok := e.abtests.AssignArm(testID, userID)
	if ok && e.bus != nil {
		_ = e.bus.PublishEvent(eventbus.Subject.AnalyticsABAssigned(testID), map[string]any{"user_id": userID, "arm": arm})
	}
	return arm, ok
}

// Run drives the periodic cleanup task that deletes/reaps sessions
// older than RetentionDays, per §4.K.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cleanup()
		}
	}
}

func (e *Engine) cleanup() {
	defer logging.RecoverPanic(e.logger, "analytics.cleanup_tick", nil)
	retention := time.Duration(e.cfg.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	n := e.sessions.cleanup(retention)
	if n > 0 {
		e.logger.Info().Int("reaped", n).Msg("analytics cleanup reaped stale sessions")
	}
}
