// Package core implements the Stream Core (§4.D): the StreamManager
// owning stream lifecycle, listener registration, and chunk fan-out
// with per-listener backpressure, grounded on hub.Hub's sharded
// registries and fire-and-forget dispatch pattern.
package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/metrics"
	"github.com/okinrev/veza/internal/stream/buffer"
	streamsync "github.com/okinrev/veza/internal/stream/sync"
)

// LifecycleState is a stream's position in the §4.D state machine.
type LifecycleState string

const (
	StateInitializing LifecycleState = "initializing"
	StateStarting      LifecycleState = "starting"
	StateLive          LifecycleState = "live"
	StatePaused        LifecycleState = "paused"
	StateBuffering     LifecycleState = "buffering"
	StateEnding        LifecycleState = "ending"
	StateCompleted     LifecycleState = "completed"
	StateFailed        LifecycleState = "failed"
)

// validTransitions enumerates the §4.D lifecycle edges.
var validTransitions = map[LifecycleState][]LifecycleState{
	StateInitializing: {StateStarting, StateFailed},
	StateStarting:      {StateLive, StateFailed},
	StateLive:          {StatePaused, StateBuffering, StateEnding, StateFailed},
	StatePaused:        {StateLive, StateEnding, StateFailed},
	StateBuffering:     {StateLive, StateEnding, StateFailed},
	StateEnding:        {StateCompleted, StateFailed},
}

func canTransition(from, to LifecycleState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Metadata describes a stream's source, per create_stream's signature
// in §4.D.
type Metadata struct {
	Title   string
	OwnerID int64
	Genre   string
}

// Listener is one subscriber to a stream: its own adaptive buffer,
// its sync adjustment, and a drop counter for backpressure accounting.
type Listener struct {
	ID           string
	UserID       int64
	BandwidthBps int

	buf       *buffer.AdaptiveBuffer
	drops     int64
	quality   buffer.Quality
}

func (l *Listener) DropCount() int64 { return l.drops }

// NextChunk pulls the next queued chunk for this listener, per §4.B's
// get_next_chunk. The returned Status reflects the buffer's fill ratio
// after the pop.
func (l *Listener) NextChunk() (*buffer.Chunk, buffer.Status) {
	return l.buf.GetNextChunk()
}

// Quality reports the listener's current adaptive-quality tier.
func (l *Listener) Quality() buffer.Quality {
	return l.quality
}

// Stream is one live broadcast: its lifecycle state, registered
// listeners, and the buffer/sync engines backing fan-out.
type Stream struct {
	ID       string
	Metadata Metadata

	mu        sync.RWMutex
	state     LifecycleState
	listeners map[string]*Listener

	seq uint64
}

func (s *Stream) State() LifecycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Stream) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Config carries the capacity limits §4.D names.
type Config struct {
	MaxConcurrentStreams int
	MaxListenersTotal    int
	ChunkPoolSize        int
	BufferAdaptationSpeed float64
	MeasurementWindow    int
}

// StreamManager owns every live stream, per §4.D.
type StreamManager struct {
	cfg      Config
	pool     *buffer.ChunkPool
	analyzer *buffer.BandwidthAnalyzer
	bus      *eventbus.Client
	metrics  *metrics.Registry
	logger   zerolog.Logger

	mu           sync.RWMutex
	streams      map[string]*Stream
	syncEngines  map[string]*streamsync.Engine
	listenersTotal int
}

func New(cfg Config, bus *eventbus.Client, m *metrics.Registry, logger zerolog.Logger) *StreamManager {
	return &StreamManager{
		cfg:         cfg,
		pool:        buffer.NewChunkPool(cfg.ChunkPoolSize),
		analyzer:    buffer.NewBandwidthAnalyzer(cfg.MeasurementWindow),
		bus:         bus,
		metrics:     m,
		logger:      logger,
		streams:     make(map[string]*Stream),
		syncEngines: make(map[string]*streamsync.Engine),
	}
}

func generateStreamID() string {
	return uuid.NewString()
}

// CreateStream registers a new stream in Initializing state and
// immediately transitions it to Starting, per §4.D. It rejects the
// request once MaxConcurrentStreams is reached.
func (m *StreamManager) CreateStream(metadata Metadata) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.streams) >= m.cfg.MaxConcurrentStreams {
		return nil, errs.New(errs.KindQuotaExceeded, "limit", m.cfg.MaxConcurrentStreams)
	}

	id := generateStreamID()
	stream := &Stream{
		ID:        id,
		Metadata:  metadata,
		state:     StateInitializing,
		listeners: make(map[string]*Listener),
	}
	stream.state = StateStarting
	m.streams[id] = stream
	m.syncEngines[id] = streamsync.NewEngine(streamsync.NewClock())

	m.metrics.SetStreamsActive(len(m.streams))
	if m.bus != nil {
		_ = m.bus.PublishEvent(eventbus.Subject.StreamLifecycle(id), map[string]any{"state": string(stream.state)})
	}
	return stream, nil
}

// Start transitions a stream from Starting to Live.
func (m *StreamManager) Start(streamID string) error {
	return m.transition(streamID, StateLive)
}

func (m *StreamManager) transition(streamID string, to LifecycleState) error {
	m.mu.RLock()
	stream, ok := m.streams[streamID]
	m.mu.RUnlock()
	if !ok {
		return errs.New(errs.KindNotFound, "stream_id", streamID)
	}

	stream.mu.Lock()
	from := stream.state
	if !canTransition(from, to) {
		stream.mu.Unlock()
		return errs.New(errs.KindInvalidPlaybackState, "from", string(from), "to", string(to))
	}
	stream.state = to
	stream.mu.Unlock()

	if m.bus != nil {
		_ = m.bus.PublishEvent(eventbus.Subject.StreamLifecycle(streamID), map[string]any{"state": string(to)})
	}
	return nil
}

// AddListener registers a listener on a stream with its own adaptive
// buffer, bounded by MaxListenersTotal across all streams, per §4.D.
func (m *StreamManager) AddListener(streamID string, userID int64, bandwidthBps int, bufCfg buffer.Config) (*Listener, error) {
	m.mu.Lock()
	stream, ok := m.streams[streamID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(errs.KindNotFound, "stream_id", streamID)
	}
	if m.listenersTotal >= m.cfg.MaxListenersTotal {
		m.mu.Unlock()
		return nil, errs.New(errs.KindQuotaExceeded, "limit", m.cfg.MaxListenersTotal)
	}
	m.listenersTotal++
	m.mu.Unlock()

	bufCfg.AdaptationSpeed = m.cfg.BufferAdaptationSpeed
	l := &Listener{
		ID:           generateStreamID(),
		UserID:       userID,
		BandwidthBps: bandwidthBps,
		buf:          buffer.New(streamID, bufCfg, m.analyzer, m.pool),
		quality:      buffer.RecommendedQuality(bandwidthBps),
	}

	stream.mu.Lock()
	stream.listeners[l.ID] = l
	stream.mu.Unlock()

	m.metrics.SetListenersActive(m.listenersTotal)
	if m.bus != nil {
		_ = m.bus.PublishEvent(eventbus.Subject.StreamListenerJoined(streamID), map[string]any{"listener_id": l.ID, "user_id": userID})
	}
	return l, nil
}

func (m *StreamManager) RemoveListener(streamID, listenerID string) error {
	m.mu.Lock()
	stream, ok := m.streams[streamID]
	syncEngine := m.syncEngines[streamID]
	if ok {
		m.listenersTotal--
	}
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.KindNotFound, "stream_id", streamID)
	}

	stream.mu.Lock()
	l, ok := stream.listeners[listenerID]
	if ok {
		delete(stream.listeners, listenerID)
	}
	stream.mu.Unlock()
	if !ok {
		return errs.New(errs.KindNotFound, "listener_id", listenerID)
	}
	l.buf.Close()
	if syncEngine != nil {
		syncEngine.RemoveListener(listenerID)
	}

	m.metrics.SetListenersActive(m.listenersTotal)
	if m.bus != nil {
		_ = m.bus.PublishEvent(eventbus.Subject.StreamListenerLeft(streamID), map[string]any{"listener_id": listenerID})
	}
	return nil
}

// FanOut enqueues one encoded chunk into every active listener's
// buffer, applying that listener's most recent sync adjustment.
// Per §4.D, a Full listener buffer increments its drop counter and
// optionally downgrades quality instead of blocking the stream.
func (m *StreamManager) FanOut(ctx context.Context, streamID string, chunk *buffer.Chunk) {
	m.mu.RLock()
	stream, ok := m.streams[streamID]
	syncEngine := m.syncEngines[streamID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	stream.mu.RLock()
	listeners := make([]*Listener, 0, len(stream.listeners))
	for _, l := range stream.listeners {
		listeners = append(listeners, l)
	}
	stream.mu.RUnlock()

	stream.mu.Lock()
	stream.seq++
	seq := stream.seq
	stream.mu.Unlock()

	for _, l := range listeners {
		l := l
		c := &buffer.Chunk{Data: chunk.Data, SequenceNo: seq, TimestampMs: chunk.TimestampMs}
		if syncEngine != nil {
			adj := syncEngine.SyncListener(l.ID, l.BandwidthBps, l.bufferHealth())
			c.TimestampMs += adj.TimestampOffset / 1000
		}

		status, err := l.buf.AddChunk(c)
		if err != nil {
			l.drops++
			m.metrics.IncrementChunksDropped()
			if status == buffer.StatusFull {
				l.quality = buffer.QualityLow
			}
			continue
		}
	}
}

func (l *Listener) bufferHealth() float64 {
	stats := l.buf.GetStats()
	if stats.TargetSize <= 0 {
		return 1
	}
	health := float64(l.buf.Len()) / stats.TargetSize
	if health > 1 {
		health = 1
	}
	return health
}

// End transitions a stream to Ending then Completed, closing every
// listener buffer.
func (m *StreamManager) End(streamID string) error {
	if err := m.transition(streamID, StateEnding); err != nil {
		return err
	}

	m.mu.RLock()
	stream, ok := m.streams[streamID]
	m.mu.RUnlock()
	if ok {
		stream.mu.Lock()
		for _, l := range stream.listeners {
			l.buf.Close()
		}
		stream.mu.Unlock()
	}

	return m.transition(streamID, StateCompleted)
}

func (m *StreamManager) Get(streamID string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[streamID]
	return s, ok
}

func (m *StreamManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.streams))
	for id, s := range m.streams {
		if s.State() == StateLive || s.State() == StatePaused || s.State() == StateBuffering {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.End(id); err != nil {
			m.logger.Warn().Err(err).Str("stream_id", id).Msg("failed to end stream during shutdown")
		}
	}
	return nil
}
