// Circuit breakers gate the matching engine's two halt predicates
// (spec.md §4.1): a rolling price-movement window and a liquidity
// snapshot. Structurally grounded on the teacher's PnL-drawdown
// internal/risk/circuit_breaker.go (mutex-guarded state struct,
// cooldown-style auto-reset), retargeted from trade PnL to trade
// price and book liquidity.
package matching

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"optionscore/internal/config"
)

// CircuitState is the halt state of one instrument's circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

func (s CircuitState) String() string {
	if s == CircuitOpen {
		return "open"
	}
	return "closed"
}

type tradeObservation struct {
	price decimal.Decimal
	at    time.Time
}

// CircuitBreaker evaluates the price-movement and liquidity halt
// predicates for a single instrument and tracks the resulting halt
// deadline. Halts auto-expire by absolute deadline, not by a
// recomputed cooldown.
type CircuitBreaker struct {
	mu sync.Mutex

	priceCfg config.PriceMovementCircuitBreakerConfig
	liqCfg   config.LiquidityCircuitBreakerConfig

	state      CircuitState
	haltUntil  time.Time
	haltReason string

	// window holds trade observations within price_cfg.TimeWindowSeconds,
	// oldest first.
	window []tradeObservation
}

// NewCircuitBreaker builds a closed breaker for one instrument.
func NewCircuitBreaker(priceCfg config.PriceMovementCircuitBreakerConfig, liqCfg config.LiquidityCircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		priceCfg: priceCfg,
		liqCfg:   liqCfg,
		state:    CircuitClosed,
	}
}

// IsHalted reports whether the instrument is currently halted, at
// time now. An expired halt transitions back to Closed as a side
// effect, mirroring the teacher's auto-reset-on-check idiom.
func (c *CircuitBreaker) IsHalted(now time.Time) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CircuitOpen {
		return false, ""
	}
	if !now.Before(c.haltUntil) {
		c.state = CircuitClosed
		c.haltReason = ""
		return false, ""
	}
	return true, c.haltReason
}

// RecordTrade appends a trade observation and evaluates the
// price-movement predicate: within the rolling window, if
// |last - oldest_in_window| / oldest > pct_threshold, halt.
func (c *CircuitBreaker) RecordTrade(price decimal.Decimal, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, tradeObservation{price: price, at: now})
	c.pruneWindowLocked(now)

	if !c.priceCfg.Enabled || len(c.window) < 2 {
		return
	}
	oldest := c.window[0].price
	if oldest.IsZero() {
		return
	}
	last := c.window[len(c.window)-1].price
	moved := last.Sub(oldest).Abs().Div(oldest).Mul(decimal.NewFromInt(100))
	if moved.GreaterThan(decimal.NewFromFloat(c.priceCfg.PercentThreshold)) {
		c.tripLocked(now, c.priceCfg.HaltDurationSeconds, "price_movement")
	}
}

// CheckLiquidity evaluates the liquidity predicate against a current
// book snapshot: bid_count, ask_count, best_bid, best_ask.
func (c *CircuitBreaker) CheckLiquidity(now time.Time, bidCount, askCount int, bestBid, bestAsk decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liqCfg.Enabled {
		return
	}

	if bidCount < c.liqCfg.MinBidAskOrders || askCount < c.liqCfg.MinBidAskOrders {
		c.tripLocked(now, c.liqCfg.HaltDurationSeconds, "liquidity_thin")
		return
	}
	if bestBid.IsZero() || bestAsk.IsZero() {
		return
	}
	spreadPct := bestAsk.Sub(bestBid).Div(bestBid).Mul(decimal.NewFromInt(100))
	if spreadPct.GreaterThan(decimal.NewFromFloat(c.liqCfg.MaxSpreadPercent)) {
		c.tripLocked(now, c.liqCfg.HaltDurationSeconds, "liquidity_spread")
	}
}

func (c *CircuitBreaker) tripLocked(now time.Time, haltDurationSeconds int, reason string) {
	c.state = CircuitOpen
	c.haltUntil = now.Add(time.Duration(haltDurationSeconds) * time.Second)
	c.haltReason = reason
}

// pruneWindowLocked drops observations older than TimeWindowSeconds.
func (c *CircuitBreaker) pruneWindowLocked(now time.Time) {
	if c.priceCfg.TimeWindowSeconds <= 0 {
		return
	}
	cutoff := now.Add(-time.Duration(c.priceCfg.TimeWindowSeconds) * time.Second)
	i := 0
	for i < len(c.window) && c.window[i].at.Before(cutoff) {
		i++
	}
	c.window = c.window[i:]
}

// Reset forces the breaker closed, discarding any pending halt and
// the price-movement window. Used by tests and operator intervention.
func (c *CircuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = CircuitClosed
	c.haltReason = ""
	c.window = nil
}

// State returns the current state without side effects, for metrics.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
