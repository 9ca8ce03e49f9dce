package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionscore/internal/apperrors"
	"optionscore/internal/core"
)

func testOrder(orderID, userID, instrumentID string) *core.Order {
	now := time.Now()
	return &core.Order{
		OrderID:        orderID,
		Env:            core.EnvProd,
		UserID:         userID,
		InstrumentID:   instrumentID,
		Side:           core.Buy,
		OrderType:      core.OrderTypeLimit,
		TimeInForce:    core.GTC,
		Price:          decimal.NewFromInt(100),
		Quantity:       decimal.NewFromInt(10),
		FilledQuantity: decimal.Zero,
		Status:         core.OrderOpen,
		ClientOrderID:  "client-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryStoreCreateAndGetOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	o := testOrder("o1", "u1", "i1")
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, o))

	got, err := s.GetOrder(ctx, core.EnvProd, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = s.GetOrder(ctx, core.EnvVirtual, "o1")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestMemoryStoreGetOrderByClientID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, testOrder("o1", "u1", "i1")))

	got, err := s.GetOrderByClientID(ctx, core.EnvProd, "u1", "client-1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)

	_, err = s.GetOrderByClientID(ctx, core.EnvProd, "u1", "missing")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestMemoryStoreUpdateOrderRejectsUnknown(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateOrder(context.Background(), core.EnvProd, testOrder("ghost", "u1", "i1"))
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestMemoryStoreListOrdersFiltersByStatusAndUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	o1 := testOrder("o1", "u1", "i1")
	o2 := testOrder("o2", "u1", "i1")
	o2.Status = core.OrderFilled
	o3 := testOrder("o3", "u2", "i1")
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, o1))
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, o2))
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, o3))

	active, err := s.GetActiveOrders(ctx, core.EnvProd, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "o1", active[0].OrderID)

	filled, err := s.ListOrders(ctx, core.EnvProd, core.OrderFilter{Status: []core.OrderStatus{core.OrderFilled}})
	require.NoError(t, err)
	require.Len(t, filled, 1)
	assert.Equal(t, "o2", filled[0].OrderID)
}

func TestMemoryStoreEnvironmentsArePartitioned(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, testOrder("o1", "u1", "i1")))

	list, err := s.ListOrders(ctx, core.EnvVirtual, core.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStoreCreateFillIsIdempotentByFillID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	fill := &core.Fill{FillID: "f1", OrderID: "o1", Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(100)}
	require.NoError(t, s.CreateFill(ctx, core.EnvProd, fill))
	require.NoError(t, s.CreateFill(ctx, core.EnvProd, fill))

	fills, err := s.GetFills(ctx, core.EnvProd, "o1")
	require.NoError(t, err)
	assert.Len(t, fills, 1)

	exists, err := s.FillExists(ctx, core.EnvProd, "f1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func testInstrument(id, symbol, underlying string, strike decimal.Decimal, expiry time.Time) *core.Instrument {
	return &core.Instrument{
		ID:                 id,
		Env:                core.EnvProd,
		Symbol:             symbol,
		Underlying:         core.Underlying{Symbol: underlying, ContractSize: decimal.NewFromInt(1)},
		OptionType:         core.Call,
		ExerciseStyle:      core.ExerciseEuropean,
		Strike:             core.Strike{Value: strike, Decimals: 0},
		Expiry:             expiry,
		SettlementCurrency: "USDC",
		MinOrderSize:       decimal.NewFromInt(1),
		Status:             core.InstrumentInactive,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func TestMemoryStoreSaveBatchDedupsBySymbol(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	expiry := time.Now().Add(24 * time.Hour)
	i1 := testInstrument("id1", "BTC-20260101-60000-C", "BTC", decimal.NewFromInt(60000), expiry)
	dup := testInstrument("id2", "BTC-20260101-60000-C", "BTC", decimal.NewFromInt(60000), expiry)
	require.NoError(t, s.SaveBatch(ctx, core.EnvProd, []*core.Instrument{i1, dup}))

	all, err := s.ListByUnderlying(ctx, core.EnvProd, "BTC")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStoreUpdateActiveRangeTransitionsStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	future := time.Now().Add(24 * time.Hour)
	inRange := testInstrument("id1", "BTC-20260101-60000-C", "BTC", decimal.NewFromInt(60000), future)
	outOfRange := testInstrument("id2", "BTC-20260101-70000-C", "BTC", decimal.NewFromInt(70000), future)
	require.NoError(t, s.SaveBatch(ctx, core.EnvProd, []*core.Instrument{inRange, outOfRange}))

	require.NoError(t, s.UpdateActiveRange(ctx, core.EnvProd, "BTC", decimal.NewFromInt(55000), decimal.NewFromInt(65000)))

	got, err := s.GetInstrument(ctx, core.EnvProd, "id1")
	require.NoError(t, err)
	assert.Equal(t, core.InstrumentActive, got.Status)

	stillInactive, err := s.GetInstrument(ctx, core.EnvProd, "id2")
	require.NoError(t, err)
	assert.Equal(t, core.InstrumentInactive, stillInactive.Status)
}

func TestMemoryStoreMarkExpiredByTime(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	expired := testInstrument("id1", "BTC-20250101-60000-C", "BTC", decimal.NewFromInt(60000), past)
	expired.Status = core.InstrumentActive
	require.NoError(t, s.SaveBatch(ctx, core.EnvProd, []*core.Instrument{expired}))

	count, err := s.MarkExpiredByTime(ctx, core.EnvProd, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetInstrument(ctx, core.EnvProd, "id1")
	require.NoError(t, err)
	assert.Equal(t, core.InstrumentExpired, got.Status)
}

func TestMemoryStoreGenerationStateRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	empty, err := s.GetGenerationState(ctx, core.EnvProd, "BTC")
	require.NoError(t, err)
	assert.Nil(t, empty)

	state := &core.GenerationState{Env: core.EnvProd, Asset: "BTC", MaxStrike: decimal.NewFromInt(65000)}
	require.NoError(t, s.SaveGenerationState(ctx, core.EnvProd, state))

	got, err := s.GetGenerationState(ctx, core.EnvProd, "BTC")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.MaxStrike.Equal(decimal.NewFromInt(65000)))
}
