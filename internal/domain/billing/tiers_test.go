package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTierRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"platinum", "", "Free", "pro "} {
		_, err := ParseTier(raw)
		require.Error(t, err, "raw=%q", raw)
	}

	tier, err := ParseTier("starter")
	require.NoError(t, err)
	require.Equal(t, TierStarter, tier)
}

func TestRetentionWindowPerTier(t *testing.T) {
	cases := []struct {
		tier      Tier
		days      int
		unbounded bool
	}{
		{TierFree, 30, false},
		{TierStarter, 90, false},
		{TierPro, 365, false},
		{TierEnterprise, 0, true},
	}
	for _, tc := range cases {
		window, unbounded := RetentionWindow(tc.tier)
		require.Equal(t, tc.unbounded, unbounded, "tier=%s", tc.tier)
		if !tc.unbounded {
			require.Equal(t, time.Duration(tc.days)*24*time.Hour, window, "tier=%s", tc.tier)
		}
	}
}

func TestWindowRankOrdering(t *testing.T) {
	require.Less(t, WindowRank(TierFree), WindowRank(TierStarter))
	require.Less(t, WindowRank(TierStarter), WindowRank(TierPro))
	require.Less(t, WindowRank(TierPro), WindowRank(TierEnterprise))
}
