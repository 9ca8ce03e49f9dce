// Package pricing implements the Black-Scholes pricing core: theoretical
// price, greeks, implied volatility, a per-instrument volatility
// surface, and the mark-price EMA smoother (spec.md §4.6).
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"optionscore/internal/core"
)

const (
	// MinVol and MaxVol bound the volatility domain the pricer and the
	// implied-vol solver will operate in.
	MinVol = 0.01
	MaxVol = 5.0

	// NearExpiryThreshold is a year-fraction below which the pricer
	// returns intrinsic value instead of evaluating the BS formula.
	NearExpiryThreshold = 1.0 / (365 * 24)

	minTime = 1e-6

	impliedVolSeed      = 0.3
	impliedVolMaxIter   = 100
	impliedVolTolerance = 1e-6
)

// Params is the input to every BS computation, already unwrapped to
// float64 — the package boundary (callers in internal/matching,
// internal/risk, internal/marketdata) converts decimal.Decimal in and
// out of this package.
type Params struct {
	Spot       float64
	Strike     float64
	TimeYears  float64
	Rate       float64
	Vol        float64
	OptionType core.OptionType
}

func clampTime(t float64) float64 {
	if t < minTime {
		return minTime
	}
	return t
}

func clampVol(v float64) float64 {
	if v < MinVol {
		return MinVol
	}
	if v > MaxVol {
		return MaxVol
	}
	return v
}

func intrinsicValue(p Params) float64 {
	if p.OptionType == core.Put {
		return math.Max(p.Strike-p.Spot, 0)
	}
	return math.Max(p.Spot-p.Strike, 0)
}

// normCDF is the standard normal CDF via the Abramowitz-Stegun
// approximation (formula 7.1.26), symmetric around zero.
func normCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	t := 1.0 / (1.0 + p*x/math.Sqrt2)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x/2)
	return 0.5 * (1.0 + sign*y)
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func d1d2(p Params) (d1, d2 float64) {
	t := clampTime(p.TimeYears)
	v := clampVol(p.Vol)
	d1 = (math.Log(p.Spot/p.Strike) + (p.Rate+0.5*v*v)*t) / (v * math.Sqrt(t))
	d2 = d1 - v*math.Sqrt(t)
	return d1, d2
}

// Price returns the Black-Scholes theoretical price for p. Below
// NearExpiryThreshold it returns intrinsic value instead.
func Price(p Params) float64 {
	if p.TimeYears < NearExpiryThreshold {
		return intrinsicValue(p)
	}
	t := clampTime(p.TimeYears)
	d1, d2 := d1d2(p)
	disc := math.Exp(-p.Rate * t)

	if p.OptionType == core.Put {
		return p.Strike*disc*normCDF(-d2) - p.Spot*normCDF(-d1)
	}
	return p.Spot*normCDF(d1) - p.Strike*disc*normCDF(d2)
}

// PriceDecimal is the decimal.Decimal-boundary wrapper around Price.
func PriceDecimal(spot, strike, timeYears, rate, vol decimal.Decimal, optType core.OptionType) decimal.Decimal {
	s, _ := spot.Float64()
	k, _ := strike.Float64()
	t, _ := timeYears.Float64()
	r, _ := rate.Float64()
	v, _ := vol.Float64()
	theo := Price(Params{Spot: s, Strike: k, TimeYears: t, Rate: r, Vol: v, OptionType: optType})
	return decimal.NewFromFloat(theo)
}

// Greeks holds the standard first-order (and gamma) sensitivities.
type Greeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

// ComputeGreeks returns the greeks for p. Near expiry, delta collapses
// to the intrinsic-value step function and the rest vanish.
func ComputeGreeks(p Params) Greeks {
	if p.TimeYears < NearExpiryThreshold {
		delta := 0.0
		switch {
		case p.OptionType == core.Call && p.Spot > p.Strike:
			delta = 1
		case p.OptionType == core.Put && p.Spot < p.Strike:
			delta = -1
		}
		return Greeks{Delta: delta}
	}

	t := clampTime(p.TimeYears)
	v := clampVol(p.Vol)
	d1, d2 := d1d2(p)
	disc := math.Exp(-p.Rate * t)
	sqrtT := math.Sqrt(t)

	gamma := normPDF(d1) / (p.Spot * v * sqrtT)
	vega := p.Spot * normPDF(d1) * sqrtT / 100 // per 1 vol point

	var delta, theta, rho float64
	if p.OptionType == core.Put {
		delta = normCDF(d1) - 1
		theta = (-p.Spot*normPDF(d1)*v/(2*sqrtT) + p.Rate*p.Strike*disc*normCDF(-d2)) / 365
		rho = -p.Strike * t * disc * normCDF(-d2) / 100
	} else {
		delta = normCDF(d1)
		theta = (-p.Spot*normPDF(d1)*v/(2*sqrtT) - p.Rate*p.Strike*disc*normCDF(d2)) / 365
		rho = p.Strike * t * disc * normCDF(d2) / 100
	}

	return Greeks{Delta: delta, Gamma: gamma, Vega: vega, Theta: theta, Rho: rho}
}

// ImpliedVol solves for the volatility that reproduces marketPrice via
// Newton iteration, seeded at 0.3, clamped into [MinVol, MaxVol] at
// every step. Returns (0, false) if vega collapses or it fails to
// converge within the iteration budget.
func ImpliedVol(p Params, marketPrice float64) (float64, bool) {
	if p.TimeYears < NearExpiryThreshold {
		return 0, false
	}

	vol := impliedVolSeed
	for i := 0; i < impliedVolMaxIter; i++ {
		trial := p
		trial.Vol = vol
		theo := Price(trial)
		diff := theo - marketPrice

		if math.Abs(diff) < impliedVolTolerance {
			return clampVol(vol), true
		}

		g := ComputeGreeks(trial)
		vegaFull := g.Vega * 100 // undo the per-vol-point scaling for the Newton step
		if math.Abs(vegaFull) < 1e-8 {
			return 0, false
		}

		vol = clampVol(vol - diff/vegaFull)
	}

	return 0, false
}
