package discovery

import (
	"context"
	"time"

	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/logging"
)

// Run drives the three periodic background tasks §4.J describes:
// trending decay (TrendingUpdateInterval), chart recomputation
// (ChartRecomputeInterval), and radio queue refill (checked on the
// same cadence as trending decay, per the supplemented refill-
// lookahead feature).
func (e *Engine) Run(ctx context.Context) {
	trendingInterval := e.cfg.TrendingUpdateInterval
	if trendingInterval <= 0 {
		trendingInterval = 5 * time.Minute
	}
	chartInterval := e.cfg.ChartRecomputeInterval
	if chartInterval <= 0 {
		chartInterval = time.Hour
	}

	trendingTicker := time.NewTicker(trendingInterval)
	chartTicker := time.NewTicker(chartInterval)
	defer trendingTicker.Stop()
	defer chartTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-trendingTicker.C:
			e.tickTrending(ctx)
		case <-chartTicker.C:
			e.tickCharts(ctx)
		}
	}
}

func (e *Engine) tickTrending(ctx context.Context) {
	defer logging.RecoverPanic(e.logger, "discovery.trending_tick", nil)
	e.trending.Decay()

	refilled := e.radio.Refill(ctx)
	if e.bus != nil {
		for _, stationID := range refilled {
			_ = e.bus.PublishEvent(eventbus.Subject.DiscoveryRadioRefilled(stationID), map[string]any{"station_id": stationID})
		}
	}
}

func (e *Engine) tickCharts(ctx context.Context) {
	defer logging.RecoverPanic(e.logger, "discovery.charts_tick", nil)
	ranking := e.trending.Top(100)
	e.charts.Recompute("global", 100, ranking)

	byGenre := make(map[string][]TrendingEntry)
	for _, r := range ranking {
		byGenre[r.Genre] = append(byGenre[r.Genre], r)
	}
	for genre, entries := range byGenre {
		if genre == "" {
			continue
		}
		e.charts.Recompute("genre:"+genre, 100, entries)
	}

	if e.bus != nil {
		_ = e.bus.PublishEvent(eventbus.Subject.DiscoveryChartsRecomputed(), map[string]any{"tracks": len(ranking)})
	}
}
