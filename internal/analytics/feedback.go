package analytics

import (
	"context"
	"sync"
)

// Feedback is one recommendation's tracked outcome, per §4.K:
// {clicked, played, completion_rate, liked, shared, feedback_score}.
type Feedback struct {
	UserID         int64
	TrackID        int64
	Algorithm      string
	Confidence     float64
	Clicked        bool
	Played         bool
	CompletionRate float64
	Liked          bool
	Shared         bool
}

// FeedbackScore is a simple weighted composite of the tracked signals,
// used to rank algorithm performance.
func (f Feedback) FeedbackScore() float64 {
	score := 0.0
	if f.Clicked {
		score += 0.2
	}
	if f.Played {
		score += 0.3
	}
	score += 0.2 * f.CompletionRate
	if f.Liked {
		score += 0.2
	}
	if f.Shared {
		score += 0.1
	}
	return score
}

// FeedbackTracker implements discovery.FeedbackLogger and retains the
// logged recommendation for later outcome updates (click/play/like/
// share), per §4.J step 7 and §4.K.
type FeedbackTracker struct {
	mu      sync.Mutex
	byKey   map[feedbackKey]*Feedback
}

type feedbackKey struct {
	userID, trackID int64
}

func NewFeedbackTracker() *FeedbackTracker {
	return &FeedbackTracker{byKey: make(map[feedbackKey]*Feedback)}
}

// LogRecommendation satisfies discovery.FeedbackLogger.
func (t *FeedbackTracker) LogRecommendation(ctx context.Context, userID, trackID int64, algorithm string, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := feedbackKey{userID, trackID}
	t.byKey[key] = &Feedback{UserID: userID, TrackID: trackID, Algorithm: algorithm, Confidence: confidence}
}

func (t *FeedbackTracker) RecordClick(userID, trackID int64) {
	t.update(userID, trackID, func(f *Feedback) { f.Clicked = true })
}

func (t *FeedbackTracker) RecordPlay(userID, trackID int64, completionRate float64) {
	t.update(userID, trackID, func(f *Feedback) { f.Played = true; f.CompletionRate = completionRate })
}

func (t *FeedbackTracker) RecordLike(userID, trackID int64) {
	t.update(userID, trackID, func(f *Feedback) { f.Liked = true })
}

func (t *FeedbackTracker) RecordShare(userID, trackID int64) {
	t.update(userID, trackID, func(f *Feedback) { f.Shared = true })
}

func (t *FeedbackTracker) update(userID, trackID int64, apply func(*Feedback)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := feedbackKey{userID, trackID}
	f, ok := t.byKey[key]
	if !ok {
		f = &Feedback{UserID: userID, TrackID: trackID}
		t.byKey[key] = f
	}
	apply(f)
}

// AlgorithmAggregate summarizes feedback score per recommendation
// algorithm, for comparing collaborative vs content-based vs trending
// performance.
func (t *FeedbackTracker) AlgorithmAggregate() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, f := range t.byKey {
		sums[f.Algorithm] += f.FeedbackScore()
		counts[f.Algorithm]++
	}
	out := make(map[string]float64, len(sums))
	for algo, sum := range sums {
		out[algo] = sum / float64(counts[algo])
	}
	return out
}
