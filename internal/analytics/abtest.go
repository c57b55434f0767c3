package analytics

import (
	"hash/fnv"
	"sync"
)

// ABTest is a named experiment with a set of arms (algorithm
// variants), per §4.K: "A/B tests keyed by a test id with per-user
// algorithm assignment and per-arm aggregates."
type ABTest struct {
	ID   string
	Arms []string
}

type armAggregate struct {
	assignments int64
	scoreSum    float64
	scoreCount  int64
}

// ABTestTracker assigns users to arms deterministically (stable across
// repeat calls for the same user) and aggregates per-arm outcomes.
type ABTestTracker struct {
	mu    sync.Mutex
	tests map[string]ABTest
	arms  map[string]map[string]*armAggregate // test id -> arm -> aggregate
}

func NewABTestTracker() *ABTestTracker {
	return &ABTestTracker{
		tests: make(map[string]ABTest),
		arms:  make(map[string]map[string]*armAggregate),
	}
}

func (t *ABTestTracker) RegisterTest(test ABTest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tests[test.ID] = test
	arms := make(map[string]*armAggregate, len(test.Arms))
	for _, a := range test.Arms {
		arms[a] = &armAggregate{}
	}
	t.arms[test.ID] = arms
}

// AssignArm deterministically buckets userID into one of the test's
// arms by hashing (test id, user id), so repeat calls return the same
// arm without needing to persist the assignment separately.
func (t *ABTestTracker) AssignArm(testID string, userID int64) (string, bool) {
	t.mu.Lock()
	test, ok := t.tests[testID]
	t.mu.Unlock()
	if !ok || len(test.Arms) == 0 {
		return "", false
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(testID))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	idx := int(h.Sum32()) % len(test.Arms)
	if idx < 0 {
		idx += len(test.Arms)
	}
	arm := test.Arms[idx]

	t.mu.Lock()
	if agg, ok := t.arms[testID][arm]; ok {
		agg.assignments++
	}
	t.mu.Unlock()

	return arm, true
}

func (t *ABTestTracker) RecordOutcome(testID, arm string, score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg, ok := t.arms[testID][arm]
	if !ok {
		return
	}
	agg.scoreSum += score
	agg.scoreCount++
}

// ArmResult is one arm's aggregated performance for reporting.
type ArmResult struct {
	Arm           string
	Assignments   int64
	AverageScore  float64
}

func (t *ABTestTracker) Results(testID string) []ArmResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	arms := t.arms[testID]
	out := make([]ArmResult, 0, len(arms))
	for arm, agg := range arms {
		avg := 0.0
		if agg.scoreCount > 0 {
			avg = agg.scoreSum / float64(agg.scoreCount)
		}
		out = append(out, ArmResult{Arm: arm, Assignments: agg.assignments, AverageScore: avg})
	}
	return out
}
