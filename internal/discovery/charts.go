package discovery

import "sync"

// Trend names the direction a chart entry moved since the prior
// recompute, per §6's external chart shape.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
	TrendNew    Trend = "new"
)

// ChartEntry is one ranked row in a recomputed chart, per §6.
type ChartEntry struct {
	TrackID         int64
	Position        int
	PreviousPosition int // 0 means "New"
	Trend           Trend
	WeeksOnChart    int
	PeakPosition    int
}

// chartHistory is the running state for one (chart_type, period) key
// across recomputes, needed to derive previous position, peak, and
// weeks_on_chart.
type chartHistory struct {
	position     map[int64]int
	peak         map[int64]int
	weeksOnChart map[int64]int
}

func newChartHistory() *chartHistory {
	return &chartHistory{
		position:     make(map[int64]int),
		peak:         make(map[int64]int),
		weeksOnChart: make(map[int64]int),
	}
}

// ChartManager recomputes global and per-genre charts on a periodic
// tick, per §4.J.
type ChartManager struct {
	mu       sync.Mutex
	trending *TrendingTracker
	history  map[string]*chartHistory // keyed by "global" or "genre:<name>"
}

func NewChartManager(trending *TrendingTracker) *ChartManager {
	return &ChartManager{trending: trending, history: make(map[string]*chartHistory)}
}

// Recompute derives a chart's entries from the current trending
// ranking and updates the running history for next time, per §4.J's
// periodic hourly recompute.
func (c *ChartManager) Recompute(key string, topN int, ranking []TrendingEntry) []ChartEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	hist, ok := c.history[key]
	if !ok {
		hist = newChartHistory()
		c.history[key] = hist
	}

	entries := make([]ChartEntry, 0, len(ranking))
	seen := make(map[int64]struct{}, len(ranking))
	for i, r := range ranking {
		if topN > 0 && i >= topN {
			break
		}
		position := i + 1
		prev := hist.position[r.TrackID]

		trend := TrendStable
		switch {
		case prev == 0:
			trend = TrendNew
		case position < prev:
			trend = TrendUp
		case position > prev:
			trend = TrendDown
		}

		hist.weeksOnChart[r.TrackID]++
		if peak := hist.peak[r.TrackID]; peak == 0 || position < peak {
			hist.peak[r.TrackID] = position
		}

		entries = append(entries, ChartEntry{
			TrackID:          r.TrackID,
			Position:         position,
			PreviousPosition: prev,
			Trend:            trend,
			WeeksOnChart:     hist.weeksOnChart[r.TrackID],
			PeakPosition:     hist.peak[r.TrackID],
		})
		hist.position[r.TrackID] = position
		seen[r.TrackID] = struct{}{}
	}

	for id := range hist.position {
		if _, ok := seen[id]; !ok {
			delete(hist.position, id)
			delete(hist.weeksOnChart, id)
		}
	}

	return entries
}
