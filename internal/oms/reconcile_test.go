package oms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionscore/internal/core"
)

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{})                     {}
func (discardLogger) Info(string, ...interface{})                      {}
func (discardLogger) Warn(string, ...interface{})                      {}
func (discardLogger) Error(string, ...interface{})                     {}
func (discardLogger) Fatal(string, ...interface{})                     {}
func (l discardLogger) WithField(string, interface{}) core.ILogger     { return l }
func (l discardLogger) WithFields(map[string]interface{}) core.ILogger { return l }

func testReconciler(mgr *Manager) *Reconciler {
	r := NewReconciler(mgr, []core.Environment{core.EnvProd}, discardLogger{}, 30, 10, 15)
	return r
}

func TestSweepPendingRiskRetriesStaleOrders(t *testing.T) {
	mgr, s, risk, matching := testManager()
	ctx := context.Background()
	risk.checkErr = assert.AnError
	matching.result = core.MatchResult{Outcome: core.OutcomeRested}

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.Status = core.OrderPendingRisk
	order.UpdatedAt = time.Now().Add(-time.Hour)
	order.CreatedAt = order.UpdatedAt
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	r := testReconciler(mgr)
	risk.checkErr = nil
	r.Sweep(ctx)

	out, err := s.GetOrder(ctx, core.EnvProd, "order-1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderOpen, out.Status)
}

func TestSweepPendingRiskSkipsFreshOrders(t *testing.T) {
	mgr, s, risk, _ := testManager()
	ctx := context.Background()
	risk.checkErr = assert.AnError

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.Status = core.OrderPendingRisk
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	r := testReconciler(mgr)
	r.Sweep(ctx)

	out, err := s.GetOrder(ctx, core.EnvProd, "order-1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderPendingRisk, out.Status)
}

func TestSweepUnconfirmedOpenCancelsOnPersistentMatchingFailure(t *testing.T) {
	mgr, s, risk, matching := testManager()
	ctx := context.Background()
	matching.matchErr = assert.AnError

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.Status = core.OrderOpen
	order.Sequence = 0
	order.MarginLockID = "lock-1"
	order.UpdatedAt = time.Now().Add(-time.Hour)
	order.CreatedAt = order.UpdatedAt
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	r := testReconciler(mgr)
	r.Sweep(ctx)

	out, err := s.GetOrder(ctx, core.EnvProd, "order-1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderCancelled, out.Status)
	assert.Contains(t, risk.released, "lock-1")
}

func TestSweepExpiresIOCOrdersLeftOpen(t *testing.T) {
	mgr, s, _, matching := testManager()
	ctx := context.Background()

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.TimeInForce = core.IOC
	order.Status = core.OrderOpen
	order.Sequence = 1
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	r := testReconciler(mgr)
	r.Sweep(ctx)

	out, err := s.GetOrder(ctx, core.EnvProd, "order-1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderCancelled, out.Status)
	assert.Contains(t, matching.cancelled, "order-1")
}

func TestSweepDoesNotExpireFreshGTCOrders(t *testing.T) {
	mgr, s, _, _ := testManager()
	ctx := context.Background()

	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.TimeInForce = core.GTC
	order.Status = core.OrderOpen
	order.Sequence = 1
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))

	r := testReconciler(mgr)
	r.Sweep(ctx)

	out, err := s.GetOrder(ctx, core.EnvProd, "order-1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderOpen, out.Status)
}
