package sysload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardAllowsNewConnectionsBelowRejectThreshold(t *testing.T) {
	s := &Sampler{cpuPercent: 50}
	g := NewGuard(s, 90, 70)

	require.True(t, g.AllowNewConnection())
	require.False(t, g.ShouldPauseIntake())
}

func TestGuardRejectsNewConnectionsAboveThreshold(t *testing.T) {
	s := &Sampler{cpuPercent: 95}
	g := NewGuard(s, 90, 70)

	require.False(t, g.AllowNewConnection())
}

func TestGuardSignalsPauseIntakeBetweenThresholds(t *testing.T) {
	s := &Sampler{cpuPercent: 75}
	g := NewGuard(s, 90, 70)

	require.True(t, g.AllowNewConnection())
	require.True(t, g.ShouldPauseIntake())
}

func TestHeapMBReflectsMemStats(t *testing.T) {
	s := &Sampler{}
	s.mem.HeapAlloc = 2 * 1024 * 1024
	require.Equal(t, 2.0, s.HeapMB())
}
