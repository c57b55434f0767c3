package moderation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/okinrev/veza/internal/metrics"
)

// shared across every test in this file: promauto registers metrics
// against the default Prometheus registerer, so a fresh Registry per
// test would panic on the second registration of the same metric name.
var testRegistry = metrics.NewRegistry()

func newTestEngine() *Engine {
	return New(DefaultConfig(), nil, testRegistry, zerolog.Nop())
}

func TestAnalyzeMessageAllowsCleanContent(t *testing.T) {
	e := newTestEngine()
	blocked, reason := e.AnalyzeMessage(context.Background(), 1, "alice", "hey, good morning everyone", "general")
	require.False(t, blocked)
	require.Empty(t, reason)
}

func TestAnalyzeMessageFlagsToxicTerms(t *testing.T) {
	e := newTestEngine()
	blocked, reason := e.AnalyzeMessage(context.Background(), 1, "alice", "I hate you, kys", "general")
	require.True(t, blocked)
	require.NotEmpty(t, reason)
}

func TestAnalyzeMessageFlagsSpamLexicon(t *testing.T) {
	e := newTestEngine()
	blocked, _ := e.AnalyzeMessage(context.Background(), 2, "bob", "buy viagra and free money at our casino", "general")
	require.True(t, blocked)
}

func TestToxicitySeverityBuckets(t *testing.T) {
	require.Equal(t, "low", ToxicitySeverity(0.1))
	require.Equal(t, "medium", ToxicitySeverity(0.5))
	require.Equal(t, "high", ToxicitySeverity(0.7))
	require.Equal(t, "extreme", ToxicitySeverity(0.95))
}

func TestDeterminSanctionEscalatesWithRepeatViolations(t *testing.T) {
	e := newTestEngine()
	var last string
	for i := 0; i < 6; i++ {
		_, reason := e.AnalyzeMessage(context.Background(), 3, "carl", "I hate you, kys", "general")
		if reason != "" {
			last = reason
		}
	}
	require.NotEmpty(t, last)

	mild := map[string]float64{"spam": 0.8, "toxicity": 0.4}
	freshSanction, freshDuration := e.determineSanction(newProfile(4, "dana"), mild)
	repeatSanction, repeatDuration := e.determineSanction(e.store.getOrCreate(3, "carl"), mild)
	require.Equal(t, "mute", freshSanction)
	require.Equal(t, "temp_ban", repeatSanction)
	require.Greater(t, repeatDuration, freshDuration)
}
