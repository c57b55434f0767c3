package buffer

import (
	"errors"
	"sync"
	"time"
)

var ErrBufferFull = errors.New("buffer is full")

// Status mirrors the §4.B fill-ratio thresholds reported by
// get_next_chunk.
type Status string

const (
	StatusEmpty    Status = "empty"
	StatusFilling  Status = "filling"
	StatusOptimal  Status = "optimal"
	StatusFull     Status = "full"
	StatusUnderrunHigh     Status = "underrun_high"
	StatusUnderrunCritical Status = "underrun_critical"
)

// statusForFillRatio implements the get_next_chunk status bands (§4.B):
// the only path where Underrun is ever reported, per the original
// (veza-stream-server/src/core/buffer.rs) draining the queue low
// enough to risk starving playback.
func statusForFillRatio(ratio float64) Status {
	switch {
	case ratio < 0.1:
		return StatusEmpty
	case ratio < 0.4:
		return StatusUnderrunCritical
	case ratio < 0.6:
		return StatusUnderrunHigh
	case ratio >= 0.5 && ratio <= 0.9:
		return StatusOptimal
	case ratio > 0.9:
		return StatusFull
	default:
		return StatusFilling
	}
}

// statusForFillOnAdd implements add_chunk's status bands: Empty,
// Filling, Optimal, Full only, per the original's
// update_status_from_fill_ratio. A buffer simply filling up from
// empty (a normal startup condition) is never an Underrun — that
// status only exists on the draining side (statusForFillRatio, used
// by GetNextChunk).
func statusForFillOnAdd(ratio float64) Status {
	switch {
	case ratio < 0.1:
		return StatusEmpty
	case ratio >= 0.5 && ratio <= 0.9:
		return StatusOptimal
	case ratio > 0.9:
		return StatusFull
	default:
		return StatusFilling
	}
}

// Stats reports the rolling statistics §4.B's get_stats exposes.
type Stats struct {
	PeakSize    int
	SizeEWMA    float64
	MemoryBytes int64
	TargetSize  float64
}

// Config carries the per-buffer tunables from §4.B / config.Config.
type Config struct {
	MaxSize                int
	MinTargetSize          float64
	MaxTargetSize          float64
	AdaptationSpeed        float64 // default 0.1
	EnableQualitySwitching bool
}

// AdaptiveBuffer is one stream's chunk queue with adaptive target
// sizing, per §4.B.
type AdaptiveBuffer struct {
	mu       sync.Mutex
	streamID string
	cfg      Config
	analyzer *BandwidthAnalyzer
	pool     *ChunkPool

	chunks     []*Chunk
	targetSize float64

	peakSize int
	sizeEWMA float64
	memBytes int64

	lastDrainAt time.Time
	drainCount  int
}

func New(streamID string, cfg Config, analyzer *BandwidthAnalyzer, pool *ChunkPool) *AdaptiveBuffer {
	if cfg.AdaptationSpeed <= 0 {
		cfg.AdaptationSpeed = 0.1
	}
	if cfg.MinTargetSize <= 0 {
		cfg.MinTargetSize = 10
	}
	if cfg.MaxTargetSize <= 0 {
		cfg.MaxTargetSize = float64(cfg.MaxSize)
	}
	return &AdaptiveBuffer{
		streamID:    streamID,
		cfg:         cfg,
		analyzer:    analyzer,
		pool:        pool,
		targetSize:  cfg.MinTargetSize,
		lastDrainAt: time.Now(),
	}
}

// AddChunk appends chunk at the tail, updating rolling stats and
// triggering adaptation, per §4.B. Once the queue holds MaxSize chunks
// it returns StatusFull with ErrBufferFull and does not enqueue the
// chunk; the Stream Core counts it as dropped.
func (b *AdaptiveBuffer) AddChunk(c *Chunk) (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if len(b.chunks) >= b.cfg.MaxSize {
		err = ErrBufferFull
	} else {
		b.chunks = append(b.chunks, c)
	}

	size := len(b.chunks)
	if size > b.peakSize {
		b.peakSize = size
	}
	const alpha = 0.1
	b.sizeEWMA += alpha * (float64(size) - b.sizeEWMA)
	if c != nil {
		b.memBytes += int64(len(c.Data))
	}

	if b.cfg.EnableQualitySwitching {
		b.adapt()
	}

	ratio := 0.0
	if b.targetSize > 0 {
		ratio = float64(size) / b.targetSize
	}
	if err != nil {
		return StatusFull, err
	}
	return statusForFillOnAdd(ratio), err
}

// GetNextChunk pops the head chunk, if any, and reports the resulting
// buffer status.
func (b *AdaptiveBuffer) GetNextChunk() (*Chunk, Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks) == 0 {
		return nil, StatusEmpty
	}
	c := b.chunks[0]
	b.chunks = b.chunks[1:]

	now := time.Now()
	if dt := now.Sub(b.lastDrainAt).Seconds(); dt > 0 {
		b.drainCount++
		b.lastDrainAt = now
	}

	ratio := 0.0
	if b.targetSize > 0 {
		ratio = float64(len(b.chunks)) / b.targetSize
	}
	return c, statusForFillRatio(ratio)
}

// adapt runs the §4.B adaptation algorithm: obtain a bandwidth
// prediction, derive an optimal target from fill/drain rate
// comparison, then smooth toward it by AdaptationSpeed.
func (b *AdaptiveBuffer) adapt() {
	if b.analyzer == nil {
		return
	}
	fillRate, drainRate, _ := b.analyzer.Predict(b.streamID)
	if fillRate == 0 && drainRate == 0 {
		return
	}

	optimal := b.targetSize
	switch {
	case drainRate > 1.2*fillRate:
		optimal = b.targetSize * 1.5
	case fillRate > 1.5*drainRate:
		optimal = b.targetSize * 0.8
	}

	next := b.targetSize + (optimal-b.targetSize)*b.cfg.AdaptationSpeed
	if next < b.cfg.MinTargetSize {
		next = b.cfg.MinTargetSize
	}
	if next > b.cfg.MaxTargetSize {
		next = b.cfg.MaxTargetSize
	}
	b.targetSize = next
}

func (b *AdaptiveBuffer) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	ratio := 0.0
	if b.targetSize > 0 {
		ratio = float64(len(b.chunks)) / b.targetSize
	}
	return statusForFillRatio(ratio)
}

func (b *AdaptiveBuffer) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		PeakSize:    b.peakSize,
		SizeEWMA:    b.sizeEWMA,
		MemoryBytes: b.memBytes,
		TargetSize:  b.targetSize,
	}
}

// Len reports the current queue length, for backpressure decisions in
// the Stream Core.
func (b *AdaptiveBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Close drains remaining chunks back to the shared pool.
func (b *AdaptiveBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool != nil {
		for _, c := range b.chunks {
			b.pool.Put(c)
		}
	}
	b.chunks = nil
}
