package pricing

import (
	"math"
	"sort"
	"sync"
	"time"
)

// ExpiryBucket and MoneynessBucket key the vol surface table.
type ExpiryBucket int    // days to expiry, bucketed
type MoneynessBucket int // log(S/K), bucketed to the nearest 0.05

// SurfaceKey identifies one cell of the vol surface.
type SurfaceKey struct {
	Expiry    ExpiryBucket
	Moneyness MoneynessBucket
}

// BucketExpiry maps a year-fraction to a day bucket.
func BucketExpiry(timeYears float64) ExpiryBucket {
	days := int(math.Round(timeYears * 365))
	switch {
	case days <= 1:
		return 1
	case days <= 7:
		return 7
	case days <= 30:
		return 30
	case days <= 90:
		return 90
	case days <= 180:
		return 180
	default:
		return 365
	}
}

// BucketMoneyness maps log(S/K) to the nearest 0.05 bucket.
func BucketMoneyness(spot, strike float64) MoneynessBucket {
	logMoneyness := math.Log(spot / strike)
	return MoneynessBucket(math.Round(logMoneyness/0.05) * 5) // in units of 0.01
}

// VolSurface is a per-instrument-underlying table of observed implied
// vols, indexed by (expiry bucket, moneyness bucket). Grounded on the
// teacher's mutex-guarded pure-calculation struct idiom
// (internal/risk/margin/marginsim.go).
type VolSurface struct {
	mu        sync.RWMutex
	cells     map[SurfaceKey][]float64 // not written: UpdateFromBatch groups each batch in a local map
	vols      map[SurfaceKey]float64   // last-committed median IV per cell
	Version   uint64
	UpdatedAt time.Time
}

// NewVolSurface returns an empty surface.
func NewVolSurface() *VolSurface {
	return &VolSurface{
		cells: make(map[SurfaceKey][]float64),
		vols:  make(map[SurfaceKey]float64),
	}
}

// TradeObservation is one implied-vol sample derived from a trade.
type TradeObservation struct {
	TimeYears float64
	Spot      float64
	Strike    float64
	ImpliedIV float64
}

// UpdateFromBatch folds a batch of trade-derived IV observations into
// the surface, committing the median per cell, then bumps Version and
// UpdatedAt.
func (s *VolSurface) UpdateFromBatch(observations []TradeObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[SurfaceKey][]float64)
	for _, o := range observations {
		key := SurfaceKey{
			Expiry:    BucketExpiry(o.TimeYears),
			Moneyness: BucketMoneyness(o.Spot, o.Strike),
		}
		batch[key] = append(batch[key], o.ImpliedIV)
	}

	for key, samples := range batch {
		s.vols[key] = median(samples)
	}

	s.Version++
	s.UpdatedAt = time.Now()
}

// Lookup returns the last-committed IV for a cell, or ok=false if the
// surface has never observed that cell.
func (s *VolSurface) Lookup(key SurfaceKey) (vol float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vols[key]
	return v, ok
}

// Validate reports false if vol²·t is non-monotone in t at any fixed
// moneyness bucket — a calendar-arbitrage violation.
func (s *VolSurface) Validate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMoneyness := make(map[MoneynessBucket][]ExpiryBucket)
	for key := range s.vols {
		byMoneyness[key.Moneyness] = append(byMoneyness[key.Moneyness], key.Expiry)
	}

	for moneyness, expiries := range byMoneyness {
		sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })
		prevTotalVar := -1.0
		for _, exp := range expiries {
			vol := s.vols[SurfaceKey{Expiry: exp, Moneyness: moneyness}]
			totalVar := vol * vol * (float64(exp) / 365.0)
			if totalVar < prevTotalVar {
				return false
			}
			prevTotalVar = totalVar
		}
	}
	return true
}

func median(samples []float64) float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
