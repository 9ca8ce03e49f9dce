package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVolSurfaceUpdateFromBatchTakesMedian(t *testing.T) {
	s := NewVolSurface()
	obs := []TradeObservation{
		{TimeYears: 30.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 0.5},
		{TimeYears: 30.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 0.6},
		{TimeYears: 30.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 0.7},
	}
	s.UpdateFromBatch(obs)

	key := SurfaceKey{Expiry: BucketExpiry(30.0 / 365), Moneyness: BucketMoneyness(65000, 65000)}
	vol, ok := s.Lookup(key)
	assert.True(t, ok)
	assert.InDelta(t, 0.6, vol, 1e-9)
	assert.Equal(t, uint64(1), s.Version)
}

func TestVolSurfaceValidateDetectsCalendarArbitrage(t *testing.T) {
	s := NewVolSurface()
	moneyness := BucketMoneyness(65000, 65000)

	// 30d at high vol, 90d at much lower vol -> total variance decreases.
	s.UpdateFromBatch([]TradeObservation{
		{TimeYears: 30.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 1.5},
	})
	s.UpdateFromBatch([]TradeObservation{
		{TimeYears: 90.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 0.05},
	})

	_ = moneyness
	assert.False(t, s.Validate())
}

func TestVolSurfaceValidateAcceptsMonotoneTotalVariance(t *testing.T) {
	s := NewVolSurface()
	s.UpdateFromBatch([]TradeObservation{
		{TimeYears: 7.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 0.5},
	})
	s.UpdateFromBatch([]TradeObservation{
		{TimeYears: 30.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 0.5},
	})
	s.UpdateFromBatch([]TradeObservation{
		{TimeYears: 90.0 / 365, Spot: 65000, Strike: 65000, ImpliedIV: 0.5},
	})

	assert.True(t, s.Validate())
}
