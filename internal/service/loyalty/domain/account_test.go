package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	cases := map[int64]Tier{
		0:      TierBronze,
		999:    TierBronze,
		1000:   TierSilver,
		4999:   TierSilver,
		5000:   TierGold,
		15000:  TierPlatinum,
		49999:  TierPlatinum,
		50000:  TierDiamond,
		900000: TierDiamond,
	}
	for lifetime, want := range cases {
		assert.Equal(t, want, TierFor(lifetime), "lifetime=%d", lifetime)
	}
}

func TestPointsFor(t *testing.T) {
	assert.Equal(t, int64(12), PointsFor(1299, TierBronze))
	assert.Equal(t, int64(15), PointsFor(1299, TierSilver)) // 12 * 125 / 100
	assert.Equal(t, int64(24), PointsFor(1299, TierDiamond))
	assert.Zero(t, PointsFor(99, TierDiamond))
	assert.Zero(t, PointsFor(-500, TierGold))
}

func TestNextTier(t *testing.T) {
	next, threshold, ok := NextTier(TierGold)
	assert.True(t, ok)
	assert.Equal(t, TierPlatinum, next)
	assert.Equal(t, int64(15000), threshold)

	_, _, ok = NextTier(TierDiamond)
	assert.False(t, ok)
}
