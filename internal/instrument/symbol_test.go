package instrument

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSymbolIntegerStrike(t *testing.T) {
	expiry := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	s := Symbol("BTC", expiry, decimal.NewFromInt(50000), true)
	assert.Equal(t, "BTC-20240315-50000-C", s)
}

func TestSymbolFractionalStrikeStripsTrailingZeros(t *testing.T) {
	expiry := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	s := Symbol("ETH", expiry, decimal.NewFromFloat(3200.50), false)
	assert.Equal(t, "ETH-20240315-3200.5-P", s)
}

func TestSymbolWholeFloatStrikeRendersInteger(t *testing.T) {
	expiry := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	s := Symbol("ETH", expiry, decimal.NewFromFloat(3200.00), true)
	assert.Equal(t, "ETH-20240315-3200-C", s)
}
