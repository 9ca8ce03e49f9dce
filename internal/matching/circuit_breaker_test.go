package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"optionscore/internal/config"
)

func priceCfg() config.PriceMovementCircuitBreakerConfig {
	return config.PriceMovementCircuitBreakerConfig{
		Enabled:             true,
		PercentThreshold:    10,
		TimeWindowSeconds:   60,
		HaltDurationSeconds: 30,
	}
}

func liqCfg() config.LiquidityCircuitBreakerConfig {
	return config.LiquidityCircuitBreakerConfig{
		Enabled:             true,
		MinBidAskOrders:     1,
		MaxSpreadPercent:    20,
		HaltDurationSeconds: 30,
	}
}

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	halted, _ := cb.IsHalted(time.Now())
	assert.False(t, halted)
}

func TestCircuitBreakerTripsOnPriceMovement(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	now := time.Now()
	cb.RecordTrade(decimal.NewFromInt(100), now)
	cb.RecordTrade(decimal.NewFromInt(115), now.Add(time.Second))

	halted, reason := cb.IsHalted(now.Add(time.Second))
	assert.True(t, halted)
	assert.Equal(t, "price_movement", reason)
}

func TestCircuitBreakerIgnoresSmallMovement(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	now := time.Now()
	cb.RecordTrade(decimal.NewFromInt(100), now)
	cb.RecordTrade(decimal.NewFromInt(105), now.Add(time.Second))

	halted, _ := cb.IsHalted(now.Add(time.Second))
	assert.False(t, halted)
}

func TestCircuitBreakerWindowPrunesOldObservations(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	now := time.Now()
	cb.RecordTrade(decimal.NewFromInt(100), now)
	// Far outside the 60s window: the old observation should be
	// pruned, so this large jump is judged against itself alone and
	// never trips (a single-element window never computes a move).
	later := now.Add(2 * time.Minute)
	cb.RecordTrade(decimal.NewFromInt(200), later)

	halted, _ := cb.IsHalted(later)
	assert.False(t, halted)
}

func TestCircuitBreakerHaltAutoExpires(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	now := time.Now()
	cb.tripLocked(now, 30, "manual")

	halted, _ := cb.IsHalted(now.Add(10 * time.Second))
	assert.True(t, halted)

	halted, _ = cb.IsHalted(now.Add(31 * time.Second))
	assert.False(t, halted, "halt must auto-expire once the deadline passes")
}

func TestCircuitBreakerLiquidityTripsOnThinBook(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	now := time.Now()
	cb.CheckLiquidity(now, 0, 5, decimal.NewFromInt(95), decimal.NewFromInt(100))

	halted, reason := cb.IsHalted(now)
	assert.True(t, halted)
	assert.Equal(t, "liquidity_thin", reason)
}

func TestCircuitBreakerLiquidityTripsOnWideSpread(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	now := time.Now()
	cb.CheckLiquidity(now, 2, 2, decimal.NewFromInt(80), decimal.NewFromInt(100))

	halted, reason := cb.IsHalted(now)
	assert.True(t, halted)
	assert.Equal(t, "liquidity_spread", reason)
}

func TestCircuitBreakerResetClearsState(t *testing.T) {
	cb := NewCircuitBreaker(priceCfg(), liqCfg())
	now := time.Now()
	cb.tripLocked(now, 30, "manual")
	cb.Reset()

	halted, _ := cb.IsHalted(now)
	assert.False(t, halted)
	assert.Equal(t, CircuitClosed, cb.State())
}
