package discovery

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/okinrev/veza/internal/errs"
)

// StationType names the §4.J radio station generation strategies.
type StationType string

const (
	StationTrackSeed             StationType = "track_seed"
	StationArtistSeed            StationType = "artist_seed"
	StationGenreSeed             StationType = "genre_seed"
	StationPersonalizedDiscovery StationType = "personalized_discovery"
	StationTrendingMix           StationType = "trending_mix"
	StationDeepCuts              StationType = "deep_cuts"
	StationGenreEvolution        StationType = "genre_evolution"
)

// Station is one radio station: a lazily generated, periodically
// refilled queue of track IDs, per §4.J.
type Station struct {
	ID      string
	UserID  int64
	Type    StationType
	SeedID  int64 // track/artist/genre id the station was seeded from, when applicable

	mu    sync.Mutex
	queue []int64
}

func (s *Station) Queue() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.queue))
	copy(out, s.queue)
	return out
}

// Dequeue pops the next track for playback.
func (s *Station) Dequeue() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	return id, true
}

func (s *Station) lowWaterMark(mark int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) <= mark
}

// RadioManager owns every station and generates/refills their queues,
// per §4.J.
type RadioManager struct {
	cfg      Config
	content  ContentProvider
	trending *TrendingTracker

	mu           sync.RWMutex
	stations     map[string]*Station
	byUserCount  map[int64]int
}

func NewRadioManager(cfg Config, content ContentProvider, trending *TrendingTracker) *RadioManager {
	return &RadioManager{
		cfg:         cfg,
		content:     content,
		trending:    trending,
		stations:    make(map[string]*Station),
		byUserCount: make(map[int64]int),
	}
}

func generateStationID() string {
	return uuid.NewString()
}

// CreateStation enforces max_stations_per_user and lazily generates
// the initial queue for the station's type.
func (r *RadioManager) CreateStation(ctx context.Context, userID int64, stationType StationType, seedID int64) (*Station, error) {
	r.mu.Lock()
	if r.byUserCount[userID] >= r.cfg.MaxStationsPerUser {
		r.mu.Unlock()
		return nil, errs.New(errs.KindQuotaExceeded, "limit", r.cfg.MaxStationsPerUser)
	}
	station := &Station{ID: generateStationID(), UserID: userID, Type: stationType, SeedID: seedID}
	r.stations[station.ID] = station
	r.byUserCount[userID]++
	r.mu.Unlock()

	r.fill(ctx, station)
	return station, nil
}

// fill tops the station's queue up to RadioQueueSize using a strategy
// keyed by station type: content-similarity for seeded stations,
// trending for the mix/discovery types.
func (r *RadioManager) fill(ctx context.Context, station *Station) {
	need := r.cfg.RadioQueueSize - len(station.Queue())
	if need <= 0 {
		return
	}

	var candidates []int64
	switch station.Type {
	case StationTrackSeed, StationArtistSeed, StationGenreSeed, StationDeepCuts, StationGenreEvolution:
		if r.content != nil && station.SeedID != 0 {
			scored, err := r.content.SimilarTracks(ctx, station.SeedID, need)
			if err == nil {
				for _, s := range scored {
					candidates = append(candidates, s.TrackID)
				}
			}
		}
	case StationTrendingMix, StationPersonalizedDiscovery:
		if r.trending != nil {
			for _, e := range r.trending.Top(need) {
				candidates = append(candidates, e.TrackID)
			}
		}
	}

	station.mu.Lock()
	station.queue = append(station.queue, candidates...)
	station.mu.Unlock()
}

// Refill tops off any station whose queue has dropped to or below
// RadioQueueLowWaterMark, per the supplemented refill-lookahead
// feature; intended to be invoked by a periodic sweep. It returns the
// IDs of stations it refilled.
func (r *RadioManager) Refill(ctx context.Context) []string {
	r.mu.RLock()
	stations := make([]*Station, 0, len(r.stations))
	for _, s := range r.stations {
		stations = append(stations, s)
	}
	r.mu.RUnlock()

	var refilled []string
	for _, s := range stations {
		if s.lowWaterMark(r.cfg.RadioQueueLowWaterMark) {
			r.fill(ctx, s)
			refilled = append(refilled, s.ID)
		}
	}
	return refilled
}

func (r *RadioManager) Get(stationID string) (*Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stations[stationID]
	return s, ok
}
