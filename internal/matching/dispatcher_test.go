package matching

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionscore/internal/config"
	"optionscore/internal/core"
)

func testDispatcherConfig() config.MatchingEngineConfig {
	return config.MatchingEngineConfig{Algorithm: "price_time_priority"}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                     {}
func (noopLogger) Info(string, ...interface{})                      {}
func (noopLogger) Warn(string, ...interface{})                      {}
func (noopLogger) Error(string, ...interface{})                     {}
func (noopLogger) Fatal(string, ...interface{})                     {}
func (l noopLogger) WithField(string, interface{}) core.ILogger     { return l }
func (l noopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

func TestDispatcherMatchesOrdersThroughThePool(t *testing.T) {
	engine := NewEngine(testDispatcherConfig(), nil)
	d := NewDispatcher(engine, 2, 10, noopLogger{})
	defer d.Stop()

	order := &core.Order{
		OrderID:      "order-1",
		InstrumentID: "BTC-30JUN26-65000-C",
		Side:         core.Buy,
		OrderType:    core.OrderTypeLimit,
		TimeInForce:  core.GTC,
		Price:        decimal.NewFromInt(100),
		Quantity:     decimal.NewFromInt(1),
	}

	result, err := d.MatchOrder(context.Background(), order.InstrumentID, order)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeRested, result.Outcome)
	assert.EqualValues(t, 1, d.Sequence(order.InstrumentID))
}

func TestDispatcherUsesDistinctPoolsPerInstrument(t *testing.T) {
	engine := NewEngine(testDispatcherConfig(), nil)
	d := NewDispatcher(engine, 1, 10, noopLogger{})
	defer d.Stop()

	orderA := &core.Order{OrderID: "a", InstrumentID: "BTC-30JUN26-65000-C", Side: core.Buy, OrderType: core.OrderTypeLimit, TimeInForce: core.GTC, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	orderB := &core.Order{OrderID: "b", InstrumentID: "BTC-30JUN26-70000-C", Side: core.Buy, OrderType: core.OrderTypeLimit, TimeInForce: core.GTC, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}

	_, err := d.MatchOrder(context.Background(), orderA.InstrumentID, orderA)
	require.NoError(t, err)
	_, err = d.MatchOrder(context.Background(), orderB.InstrumentID, orderB)
	require.NoError(t, err)

	assert.EqualValues(t, 1, d.Sequence(orderA.InstrumentID))
	assert.EqualValues(t, 1, d.Sequence(orderB.InstrumentID))
}
