package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/metrics"
)

// FeedbackLogger receives one entry per recommendation surfaced to a
// user, per §4.J step 7 ("Log each recommendation into
// EngagementTracker..."). internal/analytics implements this without
// discovery importing analytics.
type FeedbackLogger interface {
	LogRecommendation(ctx context.Context, userID, trackID int64, algorithm string, confidence float64)
}

// Engine composes the collaborative/content-based/trending pools into
// personalized recommendations, per §4.J.
type Engine struct {
	cfg Config

	profiles    *profileStore
	collaborative CollaborativeProvider
	content     ContentProvider
	trending    *TrendingTracker
	charts      *ChartManager
	radio       *RadioManager
	feedback    FeedbackLogger

	bus     *eventbus.Client
	metrics *metrics.Registry
	logger  zerolog.Logger
}

type Deps struct {
	Config        Config
	Collaborative CollaborativeProvider
	Content       ContentProvider
	Feedback      FeedbackLogger
	Bus           *eventbus.Client
	Metrics       *metrics.Registry
	Logger        zerolog.Logger
}

func New(deps Deps) *Engine {
	trending := NewTrendingTracker(deps.Config.TrendingDecayFactor, deps.Config.TrendingMinPlays)
	return &Engine{
		cfg:           deps.Config,
		profiles:      newProfileStore(),
		collaborative: deps.Collaborative,
		content:       deps.Content,
		trending:      trending,
		charts:        NewChartManager(trending),
		radio:         NewRadioManager(deps.Config, deps.Content, trending),
		feedback:      deps.Feedback,
		bus:           deps.Bus,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
	}
}

func (e *Engine) Trending() *TrendingTracker { return e.trending }
func (e *Engine) Charts() *ChartManager      { return e.charts }
func (e *Engine) Radio() *RadioManager       { return e.radio }

func (e *Engine) RecordLike(userID, trackID int64, genre string) {
	e.profiles.getOrCreate(userID).RecordLike(trackID, genre)
	e.trending.RecordLike(trackID, genre, "")
}

// GetPersonalizedRecommendations runs the §4.J pipeline: pool
// generation, dedup, re-scoring, diversification, truncation, and
// feedback logging.
func (e *Engine) GetPersonalizedRecommendations(ctx context.Context, userID int64, count int, seedTracks []int64) ([]RecommendationResult, error) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.IncrementDiscoveryRequest("recommendations")
		defer func() { e.metrics.RecordDiscoveryLatency(time.Since(start)) }()
	}

	if count <= 0 || count > e.cfg.MaxRecommendationsPerRequest {
		count = e.cfg.MaxRecommendationsPerRequest
	}
	profile := e.profiles.getOrCreate(userID)

	collabN := (count * 6) / 10
	contentN := (count * 3) / 10
	trendingN := count - collabN - contentN

	pool := make(map[int64]RecommendationResult)

	e.fillCollaborative(ctx, userID, profile, collabN, pool)
	e.fillContentBased(ctx, profile, seedTracks, contentN, pool)
	e.fillTrending(trendingN, pool)

	results := make([]RecommendationResult, 0, len(pool))
	for _, r := range pool {
		results = append(results, e.rescore(profile, r))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Confidence > results[j].Confidence })
	results = diversifyByGenre(results, count)

	if e.feedback != nil {
		for _, r := range results {
			e.feedback.LogRecommendation(ctx, userID, r.TrackID, string(r.Algorithm), r.Confidence)
		}
	}
	return results, nil
}

func (e *Engine) fillCollaborative(ctx context.Context, userID int64, profile *Profile, n int, pool map[int64]RecommendationResult) {
	if n <= 0 || e.collaborative == nil {
		return
	}
	similarUsers, err := e.collaborative.SimilarUsers(ctx, userID, 10)
	if err != nil {
		return
	}
	for _, other := range similarUsers {
		otherProfile := e.profiles.getOrCreate(other)
		for _, trackID := range otherProfile.LikedTracks() {
			if profile.HasLiked(trackID) {
				continue
			}
			if len(pool) >= n {
				return
			}
			if _, exists := pool[trackID]; !exists {
				pool[trackID] = RecommendationResult{
					TrackID: trackID, Confidence: 0.7,
					Algorithm: AlgorithmCollaborative, Reason: ReasonFriendsAlsoLike,
				}
			}
		}
	}
}

// contentBasedReason picks the Reason for one content-based candidate:
// an explicit seed (caller asked "more like this track") is
// SimilarToLiked; absent that, a genre the user is already heavily
// invested in is PopularInGenre, a low-similarity long-tail result is
// DeepCut, and everything else falls back to BasedOnHistory.
func contentBasedReason(explicitSeed bool, profile *Profile, s TrackScore) Reason {
	if explicitSeed {
		return ReasonSimilarToLiked
	}
	if profile.FamiliarityRatio(s.Genre) > 0.2 {
		return ReasonPopularInGenre
	}
	if s.Score < 0.3 {
		return ReasonDeepCut
	}
	return ReasonBasedOnHistory
}

func (e *Engine) fillContentBased(ctx context.Context, profile *Profile, seedTracks []int64, n int, pool map[int64]RecommendationResult) {
	if n <= 0 || e.content == nil {
		return
	}
	explicitSeed := len(seedTracks) > 0
	seeds := seedTracks
	if len(seeds) == 0 {
		seeds = profile.LikedTracks()
	}
	added := 0
	for _, seed := range seeds {
		if added >= n {
			break
		}
		similar, err := e.content.SimilarTracks(ctx, seed, n-added)
		if err != nil {
			continue
		}
		for _, s := range similar {
			if profile.HasLiked(s.TrackID) {
				continue
			}
			if _, exists := pool[s.TrackID]; !exists {
				pool[s.TrackID] = RecommendationResult{
					TrackID: s.TrackID, Confidence: s.Score, Algorithm: AlgorithmContentBased,
					Reason: contentBasedReason(explicitSeed, profile, s), Genre: s.Genre,
				}
				added++
			}
		}
	}
}

func (e *Engine) fillTrending(n int, pool map[int64]RecommendationResult) {
	if n <= 0 {
		return
	}
	for _, entry := range e.trending.Top(n) {
		if _, exists := pool[entry.TrackID]; !exists {
			pool[entry.TrackID] = RecommendationResult{
				TrackID: entry.TrackID, Confidence: normalizeTrendingScore(entry.Score),
				Algorithm: AlgorithmTrending, Reason: ReasonTrending, Genre: entry.Genre,
			}
		}
	}
}

// normalizeTrendingScore squashes an unbounded velocity score into
// [0,1] for the re-scoring step below.
func normalizeTrendingScore(score float64) float64 {
	c := score / (score + 100)
	if c > 1 {
		c = 1
	}
	return c
}

// rescore applies §4.J step 4: Trending items scaled by
// popularity_bias, SimilarToLiked items dampened by familiarity, all
// clamped to [0,1].
func (e *Engine) rescore(profile *Profile, r RecommendationResult) RecommendationResult {
	switch {
	case r.Algorithm == AlgorithmTrending:
		r.Confidence *= profile.Preferences().PopularityBias
	case r.Reason == ReasonSimilarToLiked:
		r.Confidence *= 1 - profile.FamiliarityRatio(r.Genre)
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return r
}

// diversifyByGenre applies the §4.J MMR-style diversification,
// simplified to round-robin across genre buckets as the spec
// explicitly allows, then truncates to count.
func diversifyByGenre(sorted []RecommendationResult, count int) []RecommendationResult {
	buckets := make(map[string][]RecommendationResult)
	var order []string
	for _, r := range sorted {
		if _, ok := buckets[r.Genre]; !ok {
			order = append(order, r.Genre)
		}
		buckets[r.Genre] = append(buckets[r.Genre], r)
	}

	out := make([]RecommendationResult, 0, count)
	for len(out) < count {
		progressed := false
		for _, genre := range order {
			if len(buckets[genre]) == 0 {
				continue
			}
			out = append(out, buckets[genre][0])
			buckets[genre] = buckets[genre][1:]
			progressed = true
			if len(out) >= count {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
