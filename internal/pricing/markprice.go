package pricing

import (
	"sync"

	"github.com/shopspring/decimal"
)

// MarkPriceTracker holds the EMA-smoothed mark price per instrument:
// mark := alpha*theo + (1-alpha)*prev_mark, initialized to the first
// theoretical observation. Grounded on the teacher's mutex-guarded
// per-symbol map idiom (internal/risk/margin/marginsim.go's
// prices/haircuts/mmrs maps).
type MarkPriceTracker struct {
	mu    sync.RWMutex
	alpha decimal.Decimal
	marks map[string]decimal.Decimal
}

// NewMarkPriceTracker returns a tracker with the given smoothing factor.
func NewMarkPriceTracker(alpha decimal.Decimal) *MarkPriceTracker {
	return &MarkPriceTracker{
		alpha: alpha,
		marks: make(map[string]decimal.Decimal),
	}
}

// Update folds a new theoretical price into instrumentID's mark,
// returning the resulting mark. Near expiry, callers should pass the
// intrinsic value as theo (Price already collapses to it).
func (t *MarkPriceTracker) Update(instrumentID string, theo decimal.Decimal) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.marks[instrumentID]
	if !ok {
		t.marks[instrumentID] = theo
		return theo
	}

	mark := t.alpha.Mul(theo).Add(decimal.NewFromInt(1).Sub(t.alpha).Mul(prev))
	t.marks[instrumentID] = mark
	return mark
}

// Get returns the current mark for instrumentID, or zero/false if
// never observed.
func (t *MarkPriceTracker) Get(instrumentID string) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.marks[instrumentID]
	return m, ok
}
