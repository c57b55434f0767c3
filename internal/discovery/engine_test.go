package discovery

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/okinrev/veza/internal/metrics"
)

var testRegistry = metrics.NewRegistry()

type fakeCollaborative struct {
	similar map[int64][]int64
}

func (f *fakeCollaborative) SimilarUsers(ctx context.Context, userID int64, limit int) ([]int64, error) {
	return f.similar[userID], nil
}

type fakeContent struct {
	similar map[int64][]TrackScore
}

func (f *fakeContent) SimilarTracks(ctx context.Context, trackID int64, limit int) ([]TrackScore, error) {
	return f.similar[trackID], nil
}

func testConfig() Config {
	return Config{
		MaxRecommendationsPerRequest: 10,
		TrendingDecayFactor:          0.95,
		TrendingMinPlays:             1,
		ChartRecomputeInterval:       0,
		TrendingUpdateInterval:       0,
	}
}

func TestGetPersonalizedRecommendationsBlendsAllThreePools(t *testing.T) {
	collab := &fakeCollaborative{similar: map[int64][]int64{1: {2}}}
	content := &fakeContent{similar: map[int64][]TrackScore{100: {{TrackID: 200, Score: 0.9, Genre: "rock"}}}}

	e := New(Deps{
		Config: testConfig(), Collaborative: collab, Content: content,
		Metrics: testRegistry, Logger: zerolog.Nop(),
	})
	e.profiles.getOrCreate(2).RecordLike(50, "rock")
	e.trending.RecordPlay(300, "pop", "")
	e.trending.RecordPlay(300, "pop", "")

	results, err := e.GetPersonalizedRecommendations(context.Background(), 1, 5, []int64{100})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		require.GreaterOrEqual(t, r.Confidence, 0.0)
		require.LessOrEqual(t, r.Confidence, 1.0)
	}
}

func TestGetPersonalizedRecommendationsCapsAtMaxPerRequest(t *testing.T) {
	content := &fakeContent{similar: map[int64][]TrackScore{}}
	e := New(Deps{Config: testConfig(), Content: content, Metrics: testRegistry, Logger: zerolog.Nop()})

	for i := int64(1); i <= 50; i++ {
		e.trending.RecordPlay(i, "pop", "")
	}

	results, err := e.GetPersonalizedRecommendations(context.Background(), 1, 1000, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), testConfig().MaxRecommendationsPerRequest)
}

func TestRescoreClampsToUnitInterval(t *testing.T) {
	e := New(Deps{Config: testConfig(), Metrics: testRegistry, Logger: zerolog.Nop()})
	profile := e.profiles.getOrCreate(1)
	profile.SetPreferences(Preferences{PopularityBias: 5.0})

	r := e.rescore(profile, RecommendationResult{TrackID: 1, Confidence: 0.9, Algorithm: AlgorithmTrending})
	require.LessOrEqual(t, r.Confidence, 1.0)
}
