// Package risk implements the margin model and liquidation predicate
// (spec.md §4.3): per-user margin state, order margin checks, position
// limits, and a simplified-SPAN initial/maintenance margin calculation
// for short options. Structurally grounded on the teacher's
// internal/risk/margin/marginsim.go (a mutex-guarded, pure-calculation
// struct keyed by per-symbol parameters with a conservative default).
package risk

import (
	"github.com/shopspring/decimal"

	"optionscore/internal/config"
	"optionscore/internal/core"
)

// Tiers resolves the per-asset stress multiplier (α) and maintenance
// ratio from config.RiskEngineConfig's tier lists, falling back to a
// conservative default when an asset has no explicit entry.
type Tiers struct {
	stressMultiplier  map[string]decimal.Decimal
	maintenanceRatio  map[string]decimal.Decimal
	defaultStress     decimal.Decimal
	defaultMaintRatio decimal.Decimal
}

// NewTiers builds a Tiers lookup from config tier entries. Symbols not
// listed fall back to the first configured tier if present, else a
// conservative hard-coded default (stress 0.15, maintenance ratio
// 0.5) so an unconfigured asset still gets a non-zero margin charge
// rather than silently passing every order.
func NewTiers(initial, maintenance []config.MarginTierConfig) *Tiers {
	t := &Tiers{
		stressMultiplier:  make(map[string]decimal.Decimal, len(initial)),
		maintenanceRatio:  make(map[string]decimal.Decimal, len(maintenance)),
		defaultStress:     decimal.NewFromFloat(0.15),
		defaultMaintRatio: decimal.NewFromFloat(0.5),
	}
	for _, tier := range initial {
		t.stressMultiplier[tier.Symbol] = decimal.NewFromFloat(tier.Percentage)
	}
	for _, tier := range maintenance {
		t.maintenanceRatio[tier.Symbol] = decimal.NewFromFloat(tier.Percentage)
	}
	if len(initial) > 0 {
		t.defaultStress = decimal.NewFromFloat(initial[0].Percentage)
	}
	if len(maintenance) > 0 {
		t.defaultMaintRatio = decimal.NewFromFloat(maintenance[0].Percentage)
	}
	return t
}

func (t *Tiers) stress(symbol string) decimal.Decimal {
	if v, ok := t.stressMultiplier[symbol]; ok {
		return v
	}
	return t.defaultStress
}

func (t *Tiers) maintRatio(symbol string) decimal.Decimal {
	if v, ok := t.maintenanceRatio[symbol]; ok {
		return v
	}
	return t.defaultMaintRatio
}

// PositionInputs describes one short or long option position (or a
// proposed one) for margin calculation purposes.
type PositionInputs struct {
	UnderlyingSymbol string
	OptionType       core.OptionType
	Strike           decimal.Decimal
	ContractSize     decimal.Decimal
	Quantity         decimal.Decimal // always positive; side is implicit in which formula is called
	IndexPrice       decimal.Decimal
	PremiumPaid      decimal.Decimal // for long positions
}

// ShortInitialMargin computes the initial margin for a short position
// per spec.md §4.3:
//
//	short call: n*C*max(α*S, max(S-K, 0))
//	short put:  n*C*K
func (t *Tiers) ShortInitialMargin(p PositionInputs) decimal.Decimal {
	nc := p.Quantity.Mul(p.ContractSize)
	if p.OptionType == core.Put {
		return nc.Mul(p.Strike)
	}

	alpha := t.stress(p.UnderlyingSymbol)
	stressLeg := alpha.Mul(p.IndexPrice)
	intrinsicLeg := p.IndexPrice.Sub(p.Strike)
	if intrinsicLeg.IsNegative() {
		intrinsicLeg = decimal.Zero
	}
	worst := decimal.Max(stressLeg, intrinsicLeg)
	return nc.Mul(worst)
}

// MaintenanceMargin is initial_margin * maintenance_ratio for the
// given underlying.
func (t *Tiers) MaintenanceMargin(underlyingSymbol string, initialMargin decimal.Decimal) decimal.Decimal {
	return initialMargin.Mul(t.maintRatio(underlyingSymbol))
}

// LongPremiumMargin is the initial margin for a long option: the
// premium paid. Long positions carry zero maintenance margin.
func LongPremiumMargin(p PositionInputs) decimal.Decimal {
	return p.PremiumPaid
}
