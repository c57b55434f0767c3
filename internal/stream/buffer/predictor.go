package buffer

import "sync"

// Measurement is one bandwidth/fill-rate sample fed to BandwidthAnalyzer,
// per §4.B.
type Measurement struct {
	BandwidthBps int
	FillRate     float64 // chunks/sec entering the buffer
	DrainRate    float64 // chunks/sec leaving the buffer
}

// BandwidthAnalyzer keeps a moving window of measurements per stream
// and derives the recommended target buffer size and quality tier,
// per §4.B's piecewise breakpoints.
type BandwidthAnalyzer struct {
	mu     sync.Mutex
	window int
	byStream map[string][]Measurement
}

func NewBandwidthAnalyzer(window int) *BandwidthAnalyzer {
	if window <= 0 {
		window = 20
	}
	return &BandwidthAnalyzer{window: window, byStream: make(map[string][]Measurement)}
}

func (a *BandwidthAnalyzer) Record(streamID string, m Measurement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	samples := append(a.byStream[streamID], m)
	if len(samples) > a.window {
		samples = samples[len(samples)-a.window:]
	}
	a.byStream[streamID] = samples
}

// Predict reports the average fill/drain rate over the window, used by
// the adaptation algorithm to decide whether to grow or shrink the
// target buffer size.
func (a *BandwidthAnalyzer) Predict(streamID string) (avgFillRate, avgDrainRate float64, bandwidthBps int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	samples := a.byStream[streamID]
	if len(samples) == 0 {
		return 0, 0, 0
	}
	var fillSum, drainSum float64
	var bwSum int
	for _, s := range samples {
		fillSum += s.FillRate
		drainSum += s.DrainRate
		bwSum += s.BandwidthBps
	}
	n := float64(len(samples))
	return fillSum / n, drainSum / n, bwSum / len(samples)
}

// Quality names the §4.B recommended-quality tiers.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityMedium   Quality = "medium"
	QualityHigh     Quality = "high"
	QualityLossless Quality = "lossless"
)

// RecommendedTargetSize and RecommendedQuality apply the same
// bandwidth breakpoints §4.B specifies: ≤64kbps, ≤256kbps, ≤1Mbps, else.
func RecommendedTargetSize(bandwidthBps int) int {
	switch {
	case bandwidthBps <= 64_000:
		return 100
	case bandwidthBps <= 256_000:
		return 75
	case bandwidthBps <= 1_000_000:
		return 50
	default:
		return 25
	}
}

func RecommendedQuality(bandwidthBps int) Quality {
	switch {
	case bandwidthBps <= 64_000:
		return QualityLow
	case bandwidthBps <= 256_000:
		return QualityMedium
	case bandwidthBps <= 1_000_000:
		return QualityHigh
	default:
		return QualityLossless
	}
}
