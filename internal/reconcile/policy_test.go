package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdaptivePolicyWindows(t *testing.T) {
	policy := AdaptivePolicy{}
	require.Equal(t, "adaptive", policy.Name())

	maxDelta, tier, ok := policy.Window(0)
	require.True(t, ok)
	require.Equal(t, 0.45, maxDelta)
	require.Equal(t, TierHigh, tier)

	maxDelta, tier, ok = policy.Window(1)
	require.True(t, ok)
	require.Equal(t, 0.25, maxDelta)
	require.Equal(t, TierMedium, tier)

	_, _, ok = policy.Window(2)
	require.False(t, ok)
}

func TestLegacyPolicyWindows(t *testing.T) {
	policy := LegacyPolicy{}
	require.Equal(t, "legacy", policy.Name())

	maxDelta, tier, ok := policy.Window(0)
	require.True(t, ok)
	require.Equal(t, 0.20, maxDelta)
	require.Equal(t, TierHigh, tier)

	_, _, ok = policy.Window(1)
	require.False(t, ok)
}

func TestPolicyByName(t *testing.T) {
	policy, err := PolicyByName("")
	require.NoError(t, err)
	require.Equal(t, "adaptive", policy.Name())

	policy, err = PolicyByName("adaptive")
	require.NoError(t, err)
	require.Equal(t, "adaptive", policy.Name())

	policy, err = PolicyByName("legacy")
	require.NoError(t, err)
	require.Equal(t, "legacy", policy.Name())

	_, err = PolicyByName("optimal")
	require.Error(t, err)
}
