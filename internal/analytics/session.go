package analytics

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okinrev/veza/internal/errs"
)

func generateSessionID() string {
	return uuid.NewString()
}

// SessionTracker owns the lifecycle of every open play session plus
// the per-track and per-user aggregates they roll up into, per §4.K.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*PlaySession
	tracks   map[int64]*TrackAggregate
	users    map[int64]*UserAggregate
}

func newSessionTracker() *SessionTracker {
	return &SessionTracker{
		sessions: make(map[string]*PlaySession),
		tracks:   make(map[int64]*TrackAggregate),
		users:    make(map[int64]*UserAggregate),
	}
}

// Start begins a new play session.
func (t *SessionTracker) Start(userID, trackID int64) *PlaySession {
	s := &PlaySession{ID: generateSessionID(), UserID: userID, TrackID: trackID, StartedAt: time.Now()}
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
	return s
}

// Update records in-progress playback position as a completion
// percentage, for a client reporting periodic progress ticks.
func (t *SessionTracker) Update(sessionID string, completionPct float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return errs.New(errs.KindNotFound, "session_id", sessionID)
	}
	s.CompletionPct = completionPct
	return nil
}

// End closes a session and folds it into the per-track/per-user
// aggregates, per §4.K: "Per-track and per-user aggregates are
// updated on session end."
func (t *SessionTracker) End(sessionID string, completionPct float64, reason SkipReason) (*PlaySession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "session_id", sessionID)
	}
	s.EndedAt = time.Now()
	s.CompletionPct = completionPct
	s.SkipReason = reason
	s.DurationMs = s.EndedAt.Sub(s.StartedAt).Milliseconds()
	delete(t.sessions, sessionID)

	track, ok := t.tracks[s.TrackID]
	if !ok {
		track = &TrackAggregate{TrackID: s.TrackID}
		t.tracks[s.TrackID] = track
	}
	track.TotalPlays++
	track.TotalListenMs += s.DurationMs
	track.CompletionSum += completionPct
	if reason != SkipNone && reason != SkipTrackEnded {
		track.SkipCount++
	}

	user, ok := t.users[s.UserID]
	if !ok {
		user = &UserAggregate{UserID: s.UserID}
		t.users[s.UserID] = user
	}
	user.TotalPlays++
	user.TotalListenMs += s.DurationMs

	return s, nil
}

func (t *SessionTracker) TrackAggregate(trackID int64) (TrackAggregate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.tracks[trackID]
	if !ok {
		return TrackAggregate{}, false
	}
	return *a, true
}

func (t *SessionTracker) UserAggregate(userID int64) (UserAggregate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.users[userID]
	if !ok {
		return UserAggregate{}, false
	}
	return *a, true
}

// cleanup removes open sessions that have been abandoned (never
// ended) for longer than olderThan, so a client crash doesn't leak
// session state forever. §4.K's cleanup task targets closed session
// history in a persistent store; here the in-process tracker only
// needs to reap stale open sessions, since ended sessions are already
// removed at End() time.
func (t *SessionTracker) cleanup(olderThan time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for id, s := range t.sessions {
		if s.StartedAt.Before(cutoff) {
			delete(t.sessions, id)
			n++
		}
	}
	return n
}
