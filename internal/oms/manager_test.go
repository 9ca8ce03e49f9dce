package oms

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionscore/internal/config"
	"optionscore/internal/core"
	"optionscore/internal/store"
)

type fakeRisk struct {
	approve        bool
	reason         string
	requiredMargin decimal.Decimal
	lockID         string
	checkErr       error
	releaseErr     error
	consumeErr     error

	released []string
	consumed map[string]decimal.Decimal
	updated  int
}

func newFakeRisk() *fakeRisk {
	return &fakeRisk{approve: true, lockID: "lock-1", consumed: map[string]decimal.Decimal{}}
}

func (f *fakeRisk) CheckOrder(_ context.Context, _ core.Environment, _ string, _ core.Side, _ string, _, _ decimal.Decimal) (core.RiskCheckResult, error) {
	if f.checkErr != nil {
		return core.RiskCheckResult{}, f.checkErr
	}
	return core.RiskCheckResult{Approved: f.approve, Reason: f.reason, RequiredMargin: f.requiredMargin, MarginLockID: f.lockID}, nil
}

func (f *fakeRisk) ReleaseMargin(_ context.Context, _ core.Environment, _, lockID string) error {
	f.released = append(f.released, lockID)
	return f.releaseErr
}

func (f *fakeRisk) ConsumeMargin(_ context.Context, _ core.Environment, _, lockID string, amount decimal.Decimal) error {
	f.consumed[lockID] = f.consumed[lockID].Add(amount)
	return f.consumeErr
}

func (f *fakeRisk) UpdatePosition(_ context.Context, _ core.Environment, _, _ string, _ core.Side, _, _ decimal.Decimal) error {
	f.updated++
	return nil
}

func (f *fakeRisk) CheckLiquidation(_ context.Context, _ core.Environment, _ string) (bool, error) {
	return false, nil
}

type fakeMatching struct {
	sequences map[string]uint64
	result    core.MatchResult
	matchErr  error
	cancelErr error
	cancelled []string
}

func newFakeMatching() *fakeMatching {
	return &fakeMatching{sequences: map[string]uint64{}}
}

func (f *fakeMatching) MatchOrder(_ context.Context, instrumentID string, _ *core.Order) (core.MatchResult, error) {
	if f.matchErr != nil {
		return core.MatchResult{}, f.matchErr
	}
	f.sequences[instrumentID]++
	return f.result, nil
}

func (f *fakeMatching) CancelOrder(_ context.Context, _, orderID string) (bool, error) {
	f.cancelled = append(f.cancelled, orderID)
	return true, f.cancelErr
}

func (f *fakeMatching) Sequence(instrumentID string) uint64 { return f.sequences[instrumentID] }

func (f *fakeMatching) SetSequence(instrumentID string, n uint64) { f.sequences[instrumentID] = n }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func testOMSConfig() config.OMSConfig {
	return config.OMSConfig{
		OrderTypes:  map[string]config.OrderTypeConfig{"limit": {Enabled: true}, "market": {Enabled: true}},
		TimeInForce: map[string]config.TimeInForceConfig{"gtc": {Enabled: true}, "ioc": {Enabled: true}, "fok": {Enabled: true}, "day": {Enabled: true}},
		Limits: config.OMSLimitsConfig{
			MaxOpenOrdersPerUser:     200,
			MaxOrderSizeContracts:    10000,
			MinOrderSizeContracts:    1,
			MaxPriceDeviationPercent: 20,
		},
		ReconcileIntervalSeconds:  30,
		PendingRiskTimeoutSeconds: 10,
		MEConfirmTimeoutSeconds:   15,
	}
}

func testManager() (*Manager, *store.MemoryStore, *fakeRisk, *fakeMatching) {
	s := store.NewMemoryStore()
	risk := newFakeRisk()
	matching := newFakeMatching()
	mgr := NewManager(s, s, risk, matching, testOMSConfig())
	return mgr, s, risk, matching
}

func testLimitOrder(userID string) *core.Order {
	return &core.Order{
		UserID:       userID,
		InstrumentID: "BTC-30JUN26-65000-C",
		Side:         core.Buy,
		OrderType:    core.OrderTypeLimit,
		TimeInForce:  core.GTC,
		Price:        decimal.NewFromInt(100),
		Quantity:     decimal.NewFromInt(5),
	}
}

func TestSubmitOrderApprovedRestsOpen(t *testing.T) {
	mgr, _, risk, matching := testManager()
	risk.requiredMargin = decimal.NewFromInt(500)
	matching.result = core.MatchResult{Outcome: core.OutcomeRested}

	order, err := mgr.SubmitOrder(context.Background(), core.EnvProd, testLimitOrder("user-1"))
	require.NoError(t, err)
	assert.Equal(t, core.OrderOpen, order.Status)
	assert.Equal(t, "lock-1", order.MarginLockID)
	assert.True(t, order.RequiredMargin.Equal(decimal.NewFromInt(500)))
	assert.EqualValues(t, 1, order.Sequence)
}

func TestSubmitOrderRejectedByRisk(t *testing.T) {
	mgr, _, risk, matching := testManager()
	risk.approve = false
	risk.reason = "insufficient margin"

	order, err := mgr.SubmitOrder(context.Background(), core.EnvProd, testLimitOrder("user-1"))
	require.Error(t, err)
	assert.Equal(t, core.OrderRejected, order.Status)
	assert.Equal(t, "insufficient margin", order.RiskRejectionReason)
	assert.Zero(t, matching.sequences[order.InstrumentID], "risk-rejected order must never reach matching")
}

func TestSubmitOrderRiskUnavailableLeavesPendingRisk(t *testing.T) {
	mgr, s, risk, _ := testManager()
	risk.checkErr = assert.AnError

	_, err := mgr.SubmitOrder(context.Background(), core.EnvProd, testLimitOrder("user-1"))
	require.Error(t, err)

	orders, lErr := s.ListOrders(context.Background(), core.EnvProd, core.OrderFilter{Status: []core.OrderStatus{core.OrderPendingRisk}})
	require.NoError(t, lErr)
	require.Len(t, orders, 1)
}

func TestSubmitOrderMatchingUnavailableLeavesOpenUnconfirmed(t *testing.T) {
	mgr, _, _, matching := testManager()
	matching.matchErr = assert.AnError

	order, err := mgr.SubmitOrder(context.Background(), core.EnvProd, testLimitOrder("user-1"))
	require.Error(t, err)
	assert.Equal(t, core.OrderOpen, order.Status)
	assert.EqualValues(t, 0, order.Sequence)
}

func TestSubmitOrderValidatesOrderType(t *testing.T) {
	mgr, _, _, _ := testManager()
	order := testLimitOrder("user-1")
	order.OrderType = "stop"

	_, err := mgr.SubmitOrder(context.Background(), core.EnvProd, order)
	require.Error(t, err)
}

func TestSubmitOrderRejectsInjectionShapedUserID(t *testing.T) {
	mgr, _, _, _ := testManager()
	order := testLimitOrder("user-1; DROP TABLE orders")

	_, err := mgr.SubmitOrder(context.Background(), core.EnvProd, order)
	require.Error(t, err)
}

func TestSubmitOrderRejectsInjectionShapedClientOrderID(t *testing.T) {
	mgr, _, _, _ := testManager()
	order := testLimitOrder("user-1")
	order.ClientOrderID = "../../../etc/passwd"

	_, err := mgr.SubmitOrder(context.Background(), core.EnvProd, order)
	require.Error(t, err)
}

func TestSubmitOrderFillsBothSidesOfATrade(t *testing.T) {
	mgr, s, _, matching := testManager()
	ctx := context.Background()

	maker := testLimitOrder("maker-user")
	maker.OrderID = "maker-1"
	maker.Status = core.OrderOpen
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, maker))

	matching.result = core.MatchResult{
		Outcome: core.OutcomeFullyMatched,
		Trades: []core.Trade{{
			TradeID:          "trade-1",
			InstrumentID:     maker.InstrumentID,
			AggressorOrderID: "taker-1",
			MakerOrderID:     "maker-1",
			Price:            decimal.NewFromInt(100),
			Quantity:         decimal.NewFromInt(5),
			AggressorSide:    core.Sell,
			Timestamp:        time.Now(),
		}},
	}

	taker := testLimitOrder("taker-user")
	taker.OrderID = "taker-1"
	taker.Side = core.Sell

	out, err := mgr.SubmitOrder(ctx, core.EnvProd, taker)
	require.NoError(t, err)
	assert.Equal(t, core.OrderFilled, out.Status)

	makerOut, err := s.GetOrder(ctx, core.EnvProd, "maker-1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderFilled, makerOut.Status)
	assert.True(t, makerOut.FilledQuantity.Equal(decimal.NewFromInt(5)))

	fills, err := s.GetFills(ctx, core.EnvProd, "maker-1")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].IsMaker)

	takerFills, err := s.GetFills(ctx, core.EnvProd, "taker-1")
	require.NoError(t, err)
	require.Len(t, takerFills, 1)
	assert.False(t, takerFills[0].IsMaker)
}

func TestApplyFillIsIdempotentOnFillID(t *testing.T) {
	mgr, s, risk, _ := testManager()
	ctx := context.Background()

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.Status = core.OrderOpen
	order.MarginLockID = "lock-1"
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	fill := &core.Fill{FillID: "fill-1", OrderID: "order-1", TradeID: "trade-1", Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(100), ExecutedAt: time.Now()}

	_, err := mgr.ApplyFill(ctx, core.EnvProd, "order-1", core.Buy, fill)
	require.NoError(t, err)
	_, err = mgr.ApplyFill(ctx, core.EnvProd, "order-1", core.Buy, fill)
	require.NoError(t, err)

	out, err := s.GetOrder(ctx, core.EnvProd, "order-1")
	require.NoError(t, err)
	assert.True(t, out.FilledQuantity.Equal(decimal.NewFromInt(2)), "fill applied twice: %s", out.FilledQuantity)
	assert.Equal(t, 1, risk.updated)
}

func TestCancelOrderReleasesMarginAndMarksCancelled(t *testing.T) {
	mgr, s, risk, matching := testManager()
	ctx := context.Background()

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.Status = core.OrderOpen
	order.MarginLockID = "lock-1"
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	out, err := mgr.CancelOrder(ctx, core.EnvProd, "order-1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderCancelled, out.Status)
	assert.Contains(t, risk.released, "lock-1")
	assert.Contains(t, matching.cancelled, "order-1")
}

func TestCancelOrderRejectsTerminalOrder(t *testing.T) {
	mgr, s, _, _ := testManager()
	ctx := context.Background()

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.Status = core.OrderFilled
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	_, err := mgr.CancelOrder(ctx, core.EnvProd, "order-1")
	require.Error(t, err)
}
