package sync

import (
	"math/rand"
	"sync"
	"time"
)

// MasterTime is the stream's reference clock, per §4.C: wall time plus
// a monotonic offset, with an optional external offset (e.g. from an
// upstream NTP-disciplined source) folded in.
type MasterTime struct {
	TimestampUs  int64
	PrecisionUs  int64
}

// Clock produces MasterTime snapshots for one stream.
type Clock struct {
	start        time.Time
	externalOffsetUs int64
}

func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// SetExternalOffset folds in a correction from an external time
// source (e.g. an upstream encoder's embedded timestamp).
func (c *Clock) SetExternalOffset(offsetUs int64) { c.externalOffsetUs = offsetUs }

func (c *Clock) Now() MasterTime {
	elapsed := time.Since(c.start).Microseconds()
	return MasterTime{
		TimestampUs: c.start.UnixMicro() + elapsed + c.externalOffsetUs,
		PrecisionUs: 1000, // millisecond-class precision from wall clock sampling
	}
}

// QualitySwitch mirrors the §4.C quality_switch hint.
type QualitySwitch string

const (
	QualitySwitchNone QualitySwitch = ""
	QualitySwitchLow  QualitySwitch = "low"
	QualitySwitchHigh QualitySwitch = "high"
)

// SyncAdjustment is what sync_listeners produces for one listener,
// per §4.C.
type SyncAdjustment struct {
	TimestampOffset int64
	PlaybackRate    float64
	BufferTarget    float64
	QualitySwitch   QualitySwitch
	SyncPoint       int64
}

// ListenerState is the per-listener input sync_listeners needs:
// bandwidth class, buffer health (0..1), and the listener's drift
// history.
type ListenerState struct {
	ListenerID     string
	BandwidthBps   int
	BufferHealth   float64
	drift          *DriftCompensator
}

// Engine runs sync_listeners for one stream, tracking drift history per
// listener, per §4.C.
type Engine struct {
	clock *Clock

	mu        sync.Mutex
	listeners map[string]*ListenerState
}

func NewEngine(clock *Clock) *Engine {
	return &Engine{clock: clock, listeners: make(map[string]*ListenerState)}
}

func (e *Engine) stateFor(listenerID string, bandwidthBps int, bufferHealth float64) *ListenerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.listeners[listenerID]
	if !ok {
		s = &ListenerState{ListenerID: listenerID, drift: NewDriftCompensator(20)}
		e.listeners[listenerID] = s
	}
	s.BandwidthBps = bandwidthBps
	s.BufferHealth = bufferHealth
	return s
}

func (e *Engine) RemoveListener(listenerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, listenerID)
}

// measureLatencyMs applies the §4.C bandwidth-class heuristic plus a
// jitter sample of at most 10ms.
func measureLatencyMs(bandwidthBps int) float64 {
	var base float64
	switch {
	case bandwidthBps <= 64_000:
		base = 150
	case bandwidthBps <= 256_000:
		base = 80
	case bandwidthBps <= 1_000_000:
		base = 30
	default:
		base = 10
	}
	jitter := rand.Float64() * 10
	return base + jitter
}

func bufferTargetForLatency(latencyMs float64) float64 {
	switch {
	case latencyMs <= 20:
		return 25
	case latencyMs <= 50:
		return 50
	case latencyMs <= 100:
		return 75
	case latencyMs <= 200:
		return 100
	default:
		return 150
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SyncListener computes one listener's adjustment for the current
// master time. The measured latency is recorded as a drift sample, and
// the rolling mean of the listener's samples is used as its drift.
func (e *Engine) SyncListener(listenerID string, bandwidthBps int, bufferHealth float64) SyncAdjustment {
	state := e.stateFor(listenerID, bandwidthBps, bufferHealth)
	master := e.clock.Now()

	latencyMs := measureLatencyMs(bandwidthBps)

	e.mu.Lock()
	state.drift.Record(latencyMs)
	driftMs, _ := state.drift.MeanVariance()
	e.mu.Unlock()

	rate := 1.0 + clamp(driftMs/1_000_000, -0.005, 0.005)

	qs := QualitySwitchNone
	switch {
	case bufferHealth < 0.3:
		qs = QualitySwitchLow
	case bufferHealth > 0.8 && bandwidthBps > 256_000:
		qs = QualitySwitchHigh
	}

	return SyncAdjustment{
		TimestampOffset: int64(latencyMs * 1000),
		PlaybackRate:    rate,
		BufferTarget:    bufferTargetForLatency(latencyMs),
		QualitySwitch:   qs,
		SyncPoint:       master.TimestampUs,
	}
}

// SyncListeners runs SyncListener for every given listener ID. Per
// §4.C, listeners are synced independently: one listener's adjustment
// does not block or depend on another's, and this function's result
// ordering carries no cross-listener guarantee.
func (e *Engine) SyncListeners(listenerIDs []string, bandwidth map[string]int, bufferHealth map[string]float64) map[string]SyncAdjustment {
	out := make(map[string]SyncAdjustment, len(listenerIDs))
	for _, id := range listenerIDs {
		out[id] = e.SyncListener(id, bandwidth[id], bufferHealth[id])
	}
	return out
}

// StabilityScore reports a listener's current drift stability, per
// §4.C's Drift Compensator.
func (e *Engine) StabilityScore(listenerID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.listeners[listenerID]
	if !ok {
		return 1
	}
	return s.drift.StabilityScore()
}
