package marketdata

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Cache holds the latest Aggregate result per asset, shared between
// the aggregation loop that produces index prices and the consumers
// that need the current one synchronously (the risk engine's margin
// checks, the instrument generator's displacement cycle). A plain
// mutex-guarded map is enough here: reads and writes are both O(1)
// and the aggregation loop runs far less often than risk checks.
type Cache struct {
	mu     sync.RWMutex
	latest map[string]IndexResult
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{latest: make(map[string]IndexResult)}
}

// Update records the latest index result for asset.
func (c *Cache) Update(asset string, result IndexResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[asset] = result
}

// IndexPrice implements risk.IndexPriceSource: the current index
// price for an underlying, or false if none has been aggregated yet.
func (c *Cache) IndexPrice(underlyingSymbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.latest[underlyingSymbol]
	if !ok {
		return decimal.Decimal{}, false
	}
	return result.Index, true
}

// Get returns the full latest result for asset, for callers (the
// instrument generator, market data API) that want confidence and
// survivor-count alongside the index itself.
func (c *Cache) Get(asset string) (IndexResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.latest[asset]
	return result, ok
}
