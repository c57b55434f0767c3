package core

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/metrics"
	"github.com/okinrev/veza/internal/stream/buffer"
)

var testRegistry = metrics.NewRegistry()

func testConfig() Config {
	return Config{
		MaxConcurrentStreams:  2,
		MaxListenersTotal:     2,
		ChunkPoolSize:         4,
		BufferAdaptationSpeed: 0.1,
		MeasurementWindow:     5,
	}
}

func newTestManager() *StreamManager {
	return New(testConfig(), nil, testRegistry, zerolog.Nop())
}

func TestCanTransitionAllowsOnlyDocumentedEdges(t *testing.T) {
	require.True(t, canTransition(StateInitializing, StateStarting))
	require.True(t, canTransition(StateLive, StatePaused))
	require.False(t, canTransition(StateInitializing, StateLive))
	require.False(t, canTransition(StateCompleted, StateLive))
}

func TestGenerateStreamIDIsUnique(t *testing.T) {
	a := generateStreamID()
	b := generateStreamID()
	require.NotEqual(t, a, b)
	require.NotEmpty(t, a)
}

func TestCreateStreamRejectsOnceAtCapacity(t *testing.T) {
	m := newTestManager()

	_, err := m.CreateStream(Metadata{Title: "one"})
	require.NoError(t, err)
	_, err = m.CreateStream(Metadata{Title: "two"})
	require.NoError(t, err)

	_, err = m.CreateStream(Metadata{Title: "three"})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindQuotaExceeded, e.Kind)
}

func TestStartTransitionsStreamToLive(t *testing.T) {
	m := newTestManager()
	s, err := m.CreateStream(Metadata{Title: "one"})
	require.NoError(t, err)
	require.Equal(t, StateStarting, s.State())

	require.NoError(t, m.Start(s.ID))
	require.Equal(t, StateLive, s.State())
}

func TestAddListenerRejectsOnceAtGlobalCapacity(t *testing.T) {
	m := newTestManager()
	s, _ := m.CreateStream(Metadata{Title: "one"})
	require.NoError(t, m.Start(s.ID))

	_, err := m.AddListener(s.ID, 1, 128000, buffer.Config{MaxSize: 10})
	require.NoError(t, err)
	_, err = m.AddListener(s.ID, 2, 128000, buffer.Config{MaxSize: 10})
	require.NoError(t, err)

	_, err = m.AddListener(s.ID, 3, 128000, buffer.Config{MaxSize: 10})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindQuotaExceeded, e.Kind)
}

func TestFanOutDeliversChunkToListenerBuffer(t *testing.T) {
	m := newTestManager()
	s, _ := m.CreateStream(Metadata{Title: "one"})
	require.NoError(t, m.Start(s.ID))

	l, err := m.AddListener(s.ID, 1, 128000, buffer.Config{MaxSize: 10})
	require.NoError(t, err)

	m.FanOut(context.Background(), s.ID, &buffer.Chunk{Data: []byte("abc")})

	chunk, _ := l.NextChunk()
	require.NotNil(t, chunk)
	require.Equal(t, []byte("abc"), chunk.Data)
}

func TestRemoveListenerDecrementsGlobalCount(t *testing.T) {
	m := newTestManager()
	s, _ := m.CreateStream(Metadata{Title: "one"})
	require.NoError(t, m.Start(s.ID))
	l, err := m.AddListener(s.ID, 1, 128000, buffer.Config{MaxSize: 10})
	require.NoError(t, err)

	require.NoError(t, m.RemoveListener(s.ID, l.ID))
	require.Equal(t, 0, s.ListenerCount())

	_, err = m.AddListener(s.ID, 2, 128000, buffer.Config{MaxSize: 10})
	require.NoError(t, err)
}

func TestEndTransitionsThroughEndingToCompleted(t *testing.T) {
	m := newTestManager()
	s, _ := m.CreateStream(Metadata{Title: "one"})
	require.NoError(t, m.Start(s.ID))

	require.NoError(t, m.End(s.ID))
	require.Equal(t, StateCompleted, s.State())
}
