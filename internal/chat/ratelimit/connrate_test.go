package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionGuardAppliesDefaults(t *testing.T) {
	g := NewConnectionGuard(ConnectionGuardConfig{})
	require.Equal(t, 10, g.ipBurst)
	require.Equal(t, 5*time.Minute, g.ipTTL)
}

func TestConnectionGuardPerIPBurstExhausts(t *testing.T) {
	g := NewConnectionGuard(ConnectionGuardConfig{
		IPBurst: 2, IPRate: 0.001, IPTTL: time.Minute,
		GlobalBurst: 1000, GlobalRate: 1000,
	})

	require.True(t, g.Allow("1.2.3.4"))
	require.True(t, g.Allow("1.2.3.4"))
	require.False(t, g.Allow("1.2.3.4"))

	// a distinct IP has its own bucket
	require.True(t, g.Allow("5.6.7.8"))
}

func TestConnectionGuardGlobalBudgetAppliesAcrossIPs(t *testing.T) {
	g := NewConnectionGuard(ConnectionGuardConfig{
		IPBurst: 100, IPRate: 100, IPTTL: time.Minute,
		GlobalBurst: 1, GlobalRate: 0.001,
	})

	require.True(t, g.Allow("1.1.1.1"))
	require.False(t, g.Allow("2.2.2.2"))
}

func TestConnectionGuardSweepRemovesIdleEntries(t *testing.T) {
	g := NewConnectionGuard(ConnectionGuardConfig{IPTTL: time.Minute})
	g.Allow("9.9.9.9")
	require.Equal(t, 1, g.TrackedIPs())

	g.Sweep(time.Now().Add(2 * time.Minute))
	require.Equal(t, 0, g.TrackedIPs())
}
