// Grid displacement implements spec.md §4.5's strike-grid state
// machine. Pure-calculation shape grounded on the teacher's
// internal/trading/grid/strategy.go (CalculateTargetState: config +
// prior state + current market input -> new state, no side effects),
// retargeted from an order-placement grid that can re-center either
// direction to a strike grid whose bounds only ever grow.
package instrument

import (
	"github.com/shopspring/decimal"

	"optionscore/internal/config"
	"optionscore/internal/core"
)

// SnapToGrid rounds price to the nearest multiple of gridSize.
func SnapToGrid(price, gridSize decimal.Decimal) decimal.Decimal {
	if gridSize.IsZero() {
		return price
	}
	quotient := price.DivRound(gridSize, 0)
	return quotient.Mul(gridSize)
}

// InitialState builds the first GenerationState for (env, asset) given
// a reference spot price snapped to the grid.
func InitialState(env core.Environment, asset string, cfg config.StrikeGridConfig, referencePrice decimal.Decimal) core.GenerationState {
	ref := SnapToGrid(referencePrice, decimal.NewFromFloat(cfg.GridSize))
	upperBound := decimal.NewFromFloat(cfg.UpperBound)
	lowerBound := decimal.NewFromFloat(cfg.LowerBound)
	upperDisp := decimal.NewFromFloat(cfg.UpperDisp)
	lowerDisp := decimal.NewFromFloat(cfg.LowerDisp)

	return core.GenerationState{
		Env:            env,
		Asset:          asset,
		UpperReference: ref,
		LowerReference: ref,
		UpperTrigger:   ref.Add(upperDisp),
		LowerTrigger:   ref.Sub(lowerDisp),
		MaxStrike:      ref.Add(upperBound),
		MinStrike:      ref.Sub(lowerBound),
		LastSpotPrice:  referencePrice,
	}
}

// CycleResult is one displacement cycle's outcome: the updated state
// plus any newly opened strikes at the grid's edges.
type CycleResult struct {
	State        core.GenerationState
	NewStrikes   []decimal.Decimal
	RangeChanged bool
}

// Cycle runs one displacement cycle (spec.md §4.5) given the current
// spot S. Idempotent: fully determined by (prev, spot, cfg).
func Cycle(prev core.GenerationState, spot decimal.Decimal, cfg config.StrikeGridConfig) CycleResult {
	gridSize := decimal.NewFromFloat(cfg.GridSize)
	upperBound := decimal.NewFromFloat(cfg.UpperBound)
	lowerBound := decimal.NewFromFloat(cfg.LowerBound)
	upperDisp := decimal.NewFromFloat(cfg.UpperDisp)
	lowerDisp := decimal.NewFromFloat(cfg.LowerDisp)

	next := prev
	next.LastSpotPrice = spot

	switch {
	case spot.GreaterThanOrEqual(prev.UpperTrigger):
		oldMax := prev.MaxStrike
		newReference := prev.UpperTrigger
		newMax := newReference.Add(upperBound)
		next.UpperReference = newReference
		next.MaxStrike = newMax
		next.UpperTrigger = newReference.Add(upperDisp)
		return CycleResult{
			State:        next,
			NewStrikes:   strikesInRange(oldMax, newMax, gridSize),
			RangeChanged: true,
		}
	case spot.LessThanOrEqual(prev.LowerTrigger):
		oldMin := prev.MinStrike
		newReference := prev.LowerTrigger
		newMin := newReference.Sub(lowerBound)
		next.LowerReference = newReference
		next.MinStrike = newMin
		next.LowerTrigger = newReference.Sub(lowerDisp)
		return CycleResult{
			State:        next,
			NewStrikes:   strikesInRange(newMin.Sub(gridSize), oldMin.Sub(gridSize), gridSize),
			RangeChanged: true,
		}
	default:
		return CycleResult{State: next}
	}
}

// strikesInRange lists every grid-aligned strike in (lo, hi], both
// snapped to gridSize, ascending.
func strikesInRange(lo, hi decimal.Decimal, gridSize decimal.Decimal) []decimal.Decimal {
	if gridSize.IsZero() || !hi.GreaterThan(lo) {
		return nil
	}
	var out []decimal.Decimal
	start := SnapToGrid(lo, gridSize).Add(gridSize)
	for s := start; !s.GreaterThan(hi); s = s.Add(gridSize) {
		out = append(out, s)
	}
	return out
}

// ActiveRange returns the current [min, max] active strike range,
// which is not the generation bounds but the window instruments
// should be Active within — identical to [MinStrike, MaxStrike] in
// this design, since the generator never actively narrows the
// tradable universe below what it has already extended to.
func ActiveRange(state core.GenerationState) (decimal.Decimal, decimal.Decimal) {
	return state.MinStrike, state.MaxStrike
}
