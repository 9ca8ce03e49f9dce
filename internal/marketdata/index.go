// Package marketdata aggregates per-asset index prices from multiple
// sources with outlier rejection (spec.md §4.7).
package marketdata

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOutlierThreshold is the z-score beyond which a source price is
// rejected from the index computation.
const DefaultOutlierThreshold = 3.0

// SourcePrice is one exchange's quote for an asset, tagged with when it
// was observed so a caller can apply its own freshness window before
// calling Aggregate.
type SourcePrice struct {
	Source    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// IndexResult is the aggregator's verdict for one asset at one instant.
type IndexResult struct {
	Index      decimal.Decimal
	Confidence decimal.Decimal
	Sources    int // sources that survived outlier filtering
	Rejected   []string
}

// Aggregate computes the index price per spec.md §4.7: median, sample
// stddev, z-score outlier rejection (skipped below 2 sources), then a
// second median over survivors, with a confidence score derived from
// the survivors' spread relative to the index.
func Aggregate(prices []SourcePrice, outlierThreshold float64) IndexResult {
	if outlierThreshold <= 0 {
		outlierThreshold = DefaultOutlierThreshold
	}
	if len(prices) == 0 {
		return IndexResult{}
	}

	values := make([]float64, len(prices))
	for i, p := range prices {
		f, _ := p.Price.Float64()
		values[i] = f
	}

	if len(prices) < 2 {
		idx := decimal.NewFromFloat(medianFloat(values))
		return IndexResult{Index: idx, Confidence: decimal.NewFromInt(1), Sources: len(prices)}
	}

	med := medianFloat(values)
	sigma := sampleStdDev(values, meanFloat(values))

	var survivors []float64
	var survivorSources []string
	var rejected []string
	for i, v := range values {
		if sigma == 0 || absF(v-med)/sigma < outlierThreshold {
			survivors = append(survivors, v)
			survivorSources = append(survivorSources, prices[i].Source)
		} else {
			rejected = append(rejected, prices[i].Source)
		}
	}
	_ = survivorSources

	if len(survivors) == 0 {
		// Every source disagreed violently with the median; fall back to
		// the unfiltered median rather than returning no index at all.
		idx := decimal.NewFromFloat(med)
		return IndexResult{Index: idx, Confidence: decimal.Zero, Sources: 0, Rejected: rejected}
	}

	index := medianFloat(survivors)
	minV, maxV := survivors[0], survivors[0]
	for _, v := range survivors {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	confidence := 1.0
	if index != 0 {
		confidence = 1.0 - (maxV-minV)/index
	}
	if confidence < 0 {
		confidence = 0
	}

	return IndexResult{
		Index:      decimal.NewFromFloat(index),
		Confidence: decimal.NewFromFloat(confidence),
		Sources:    len(survivors),
		Rejected:   rejected,
	}
}

func medianFloat(values []float64) float64 {
	sorted := append([]float64(nil), values...)
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

func meanFloat(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStdDev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	variance := sumSq / float64(n-1)
	return math.Sqrt(variance)
}

func absF(v float64) float64 {
	return math.Abs(v)
}
