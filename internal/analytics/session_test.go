package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartCreatesOpenSession(t *testing.T) {
	tr := newSessionTracker()
	s := tr.Start(1, 100)
	require.NotEmpty(t, s.ID)
	require.Equal(t, int64(1), s.UserID)
	require.Equal(t, int64(100), s.TrackID)
}

func TestUpdateFailsForUnknownSession(t *testing.T) {
	tr := newSessionTracker()
	err := tr.Update("missing", 0.5)
	require.Error(t, err)
}

func TestEndFoldsSessionIntoTrackAndUserAggregates(t *testing.T) {
	tr := newSessionTracker()
	s := tr.Start(1, 100)

	ended, err := tr.End(s.ID, 0.8, SkipTrackEnded)
	require.NoError(t, err)
	require.Equal(t, 0.8, ended.CompletionPct)

	track, ok := tr.TrackAggregate(100)
	require.True(t, ok)
	require.Equal(t, int64(1), track.TotalPlays)
	require.Equal(t, int64(0), track.SkipCount)

	user, ok := tr.UserAggregate(1)
	require.True(t, ok)
	require.Equal(t, int64(1), user.TotalPlays)
}

func TestEndCountsNonTerminalSkipReasonsAsSkips(t *testing.T) {
	tr := newSessionTracker()
	s := tr.Start(1, 100)

	_, err := tr.End(s.ID, 0.2, SkipUserSkipped)
	require.NoError(t, err)

	track, ok := tr.TrackAggregate(100)
	require.True(t, ok)
	require.Equal(t, int64(1), track.SkipCount)
}

func TestEndRemovesSessionFromOpenSet(t *testing.T) {
	tr := newSessionTracker()
	s := tr.Start(1, 100)
	_, err := tr.End(s.ID, 1.0, SkipTrackEnded)
	require.NoError(t, err)

	_, err = tr.End(s.ID, 1.0, SkipTrackEnded)
	require.Error(t, err)
}

func TestCleanupReapsOnlyStaleOpenSessions(t *testing.T) {
	tr := newSessionTracker()
	fresh := tr.Start(1, 100)
	stale := tr.Start(2, 200)
	tr.sessions[stale.ID].StartedAt = time.Now().Add(-time.Hour)

	n := tr.cleanup(time.Minute)
	require.Equal(t, 1, n)

	_, stillOpen := tr.sessions[fresh.ID]
	require.True(t, stillOpen)
	_, staleStillOpen := tr.sessions[stale.ID]
	require.False(t, staleStillOpen)
}
