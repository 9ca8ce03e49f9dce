package marketdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCacheIndexPriceMissingAssetReturnsFalse(t *testing.T) {
	c := NewCache()
	_, ok := c.IndexPrice("BTC")
	assert.False(t, ok)
}

func TestCacheUpdateThenIndexPriceReturnsLatest(t *testing.T) {
	c := NewCache()
	c.Update("BTC", IndexResult{Index: decimal.NewFromInt(65000), Sources: 3, Confidence: decimal.NewFromInt(1)})

	price, ok := c.IndexPrice("BTC")
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(65000)))

	c.Update("BTC", IndexResult{Index: decimal.NewFromInt(66000), Sources: 3, Confidence: decimal.NewFromInt(1)})
	price, ok = c.IndexPrice("BTC")
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(66000)))
}

func TestCacheGetReturnsFullResult(t *testing.T) {
	c := NewCache()
	c.Update("ETH", IndexResult{Index: decimal.NewFromInt(3000), Sources: 2, Confidence: decimal.NewFromFloat(0.9)})

	result, ok := c.Get("ETH")
	assert.True(t, ok)
	assert.Equal(t, 2, result.Sources)
	assert.True(t, result.Confidence.Equal(decimal.NewFromFloat(0.9)))

	_, ok = c.Get("SOL")
	assert.False(t, ok)
}
