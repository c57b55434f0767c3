// Package analytics implements Analytics/Engagement (§4.K): play
// session lifecycle tracking, recommendation feedback (feeding back
// into the Discovery Engine's EngagementTracker hook), and A/B test
// assignment, grounded on the moderation engine's profile/sweep
// pattern for per-subject state plus periodic cleanup.
package analytics

import "time"

// SkipReason enumerates why a play session ended early. §4.K's
// distillation only says "skip reason"; this taxonomy is the
// supplemented detail from the original source's playback lifecycle.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipUserSkipped   SkipReason = "user_skipped"
	SkipNextInQueue   SkipReason = "next_in_queue"
	SkipTrackEnded    SkipReason = "track_ended"
	SkipError         SkipReason = "error"
	SkipStationChange SkipReason = "station_change"
)

// PlaySession is one listen, per §4.K.
type PlaySession struct {
	ID               string
	UserID           int64
	TrackID          int64
	StartedAt        time.Time
	EndedAt          time.Time
	DurationMs       int64
	CompletionPct    float64
	SkipReason       SkipReason
}

func (s *PlaySession) ended() bool { return !s.EndedAt.IsZero() }

// TrackAggregate is the per-track rollup updated on every session end.
type TrackAggregate struct {
	TrackID       int64
	TotalPlays    int64
	TotalListenMs int64
	CompletionSum float64
	SkipCount     int64
}

func (a *TrackAggregate) averageCompletion() float64 {
	if a.TotalPlays == 0 {
		return 0
	}
	return a.CompletionSum / float64(a.TotalPlays)
}

// UserAggregate is the per-user rollup updated on every session end.
type UserAggregate struct {
	UserID        int64
	TotalPlays    int64
	TotalListenMs int64
}
