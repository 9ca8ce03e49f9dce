// Package oms implements the Order Manager (spec.md §4.2): the submit,
// cancel, and apply-fill pipelines that orchestrate the Risk Engine and
// Matching Engine, plus the order-lifecycle query surface and the
// periodic reconciliation sweep (spec.md §4.8).
package oms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"optionscore/internal/apperrors"
	"optionscore/internal/config"
	"optionscore/internal/core"
	"optionscore/pkg/cli"
)

// Clock abstracts wall-clock time so pipeline tests can control it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager runs the order lifecycle pipelines of spec.md §4.2 against
// injected Store/Risk/Matching collaborators. It holds no durability
// machinery of its own — that is Engine's job (engine.go) — so it can
// be exercised directly in tests without a DBOS runtime, mirroring the
// teacher's split between workflow step bodies and the services they
// call (internal/engine/durable/workflow.go's TradingWorkflows calling
// into core.IPositionManager/IOrderExecutor).
type Manager struct {
	store       core.OrderStore
	instruments core.InstrumentStore
	risk        core.RiskEngine
	matching    core.MatchingEngine
	cfg         config.OMSConfig
	clock       Clock
}

// NewManager wires a Manager from its collaborators.
func NewManager(store core.OrderStore, instruments core.InstrumentStore, risk core.RiskEngine, matching core.MatchingEngine, cfg config.OMSConfig) *Manager {
	return &Manager{store: store, instruments: instruments, risk: risk, matching: matching, cfg: cfg, clock: realClock{}}
}

// WithClock overrides the manager's clock, for deterministic tests.
func (m *Manager) WithClock(c Clock) *Manager {
	m.clock = c
	return m
}

// Validate enforces spec.md §4.2 step 1 plus the oms.* config gates of
// spec.md §6.4. Pure and synchronous.
func (m *Manager) Validate(order *core.Order) error {
	if err := cli.ValidateInput(order.UserID); err != nil {
		return apperrors.Validation("user_id: %v", err)
	}
	if err := cli.ValidateInput(order.ClientOrderID); err != nil {
		return apperrors.Validation("client_order_id: %v", err)
	}
	if order.InstrumentID == "" {
		return apperrors.Validation("instrument_id is required")
	}
	if !order.Quantity.IsPositive() {
		return apperrors.Validation("quantity must be positive")
	}
	if gate, ok := m.cfg.OrderTypes[string(order.OrderType)]; !ok || !gate.Enabled {
		return apperrors.Validation("order_type %q is not accepted", order.OrderType)
	}
	if gate, ok := m.cfg.TimeInForce[string(order.TimeInForce)]; !ok || !gate.Enabled {
		return apperrors.Validation("time_in_force %q is not accepted", order.TimeInForce)
	}
	switch order.OrderType {
	case core.OrderTypeLimit:
		if !order.Price.IsPositive() {
			return apperrors.Validation("limit orders require a positive price")
		}
	case core.OrderTypeMarket:
		if !order.Price.IsZero() {
			return apperrors.Validation("market orders must not carry a price")
		}
	}
	if m.cfg.Limits.MaxOrderSizeContracts > 0 {
		max := decimal.NewFromFloat(m.cfg.Limits.MaxOrderSizeContracts)
		if order.Quantity.GreaterThan(max) {
			return apperrors.Validation("quantity exceeds max_order_size_contracts")
		}
	}
	min := decimal.NewFromFloat(m.cfg.Limits.MinOrderSizeContracts)
	if order.Quantity.LessThan(min) {
		return apperrors.Validation("quantity below min_order_size_contracts")
	}
	return nil
}

// SubmitOrder runs spec.md §4.2's submit pipeline to completion (or to
// the point a failure policy takes over). The returned order always
// reflects the latest persisted state, even when err is non-nil.
func (m *Manager) SubmitOrder(ctx context.Context, env core.Environment, order *core.Order) (*core.Order, error) {
	if err := m.Validate(order); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	order.Env = env
	order.Status = core.OrderPendingRisk
	order.FilledQuantity = decimal.Zero
	order.AvgFillPrice = decimal.Zero
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := m.store.CreateOrder(ctx, env, order); err != nil {
		return nil, apperrors.Storage(err)
	}

	return m.advanceFromPendingRisk(ctx, env, order)
}

// advanceFromPendingRisk runs the risk check and, on approval, the
// matching submission. Split out so the reconciliation sweep can
// re-drive a stale PendingRisk order through the same logic.
func (m *Manager) advanceFromPendingRisk(ctx context.Context, env core.Environment, order *core.Order) (*core.Order, error) {
	result, err := m.risk.CheckOrder(ctx, env, order.UserID, order.Side, order.InstrumentID, order.Quantity, order.Price)
	if err != nil {
		return order, apperrors.RiskUnavailable(err)
	}
	if !result.Approved {
		order.Status = core.OrderRejected
		order.RiskRejectionReason = result.Reason
		order.UpdatedAt = m.clock.Now()
		if uErr := m.store.UpdateOrder(ctx, env, order); uErr != nil {
			return order, apperrors.Storage(uErr)
		}
		return order, apperrors.RiskRejected(result.Reason)
	}

	approvedAt := m.clock.Now()
	order.Status = core.OrderOpen
	order.RiskApprovedAt = &approvedAt
	order.RequiredMargin = result.RequiredMargin
	order.MarginLockID = result.MarginLockID
	order.UpdatedAt = approvedAt
	if err := m.store.UpdateOrder(ctx, env, order); err != nil {
		return order, apperrors.Storage(err)
	}

	return m.submitToMatching(ctx, env, order)
}

// submitToMatching calls the Matching Engine and, on success, applies
// every resulting trade to both sides (spec.md §4.2 step 4). A
// matching-unavailable error leaves the order Open with margin locked,
// for the reconciliation sweep to retry.
func (m *Manager) submitToMatching(ctx context.Context, env core.Environment, order *core.Order) (*core.Order, error) {
	result, err := m.matching.MatchOrder(ctx, order.InstrumentID, order)
	if err != nil {
		return order, apperrors.MatchingUnavailable(err)
	}

	for _, trade := range result.Trades {
		if fErr := m.applyTrade(ctx, env, trade); fErr != nil {
			return order, fErr
		}
	}

	// Re-fetch: applyTrade may have advanced this order's own fill state
	// (when it was itself a matched side), and stamping the sequence
	// must not stomp that with the pre-match snapshot still held here.
	current, err := m.store.GetOrder(ctx, env, order.OrderID)
	if err != nil {
		return order, err
	}
	current.Sequence = m.matching.Sequence(order.InstrumentID)
	current.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateOrder(ctx, env, current); err != nil {
		return current, apperrors.Storage(err)
	}

	return current, nil
}

// applyTrade turns one matching-engine trade into the two fill
// applications it implies: one for the aggressor's order, one for the
// resting maker's order. Deterministic fill IDs (trade_id plus a fixed
// suffix) keep apply_fill idempotent under redelivery.
func (m *Manager) applyTrade(ctx context.Context, env core.Environment, trade core.Trade) error {
	takerSide := trade.AggressorSide
	makerSide := takerSide.Opposite()

	takerFill := &core.Fill{
		FillID:              trade.TradeID + "-taker",
		Env:                 env,
		OrderID:             trade.AggressorOrderID,
		TradeID:             trade.TradeID,
		Quantity:            trade.Quantity,
		Price:               trade.Price,
		CounterpartyOrderID: trade.MakerOrderID,
		IsMaker:             false,
		ExecutedAt:          trade.Timestamp,
	}
	if _, err := m.applyFillToOrder(ctx, env, trade.AggressorOrderID, takerSide, takerFill); err != nil {
		return err
	}

	makerFill := &core.Fill{
		FillID:              trade.TradeID + "-maker",
		Env:                 env,
		OrderID:             trade.MakerOrderID,
		TradeID:             trade.TradeID,
		Quantity:            trade.Quantity,
		Price:               trade.Price,
		CounterpartyOrderID: trade.AggressorOrderID,
		IsMaker:             true,
		ExecutedAt:          trade.Timestamp,
	}
	_, err := m.applyFillToOrder(ctx, env, trade.MakerOrderID, makerSide, makerFill)
	return err
}

// ApplyFill is the public entry point for applying a single fill to
// its order (spec.md §4.2 "Fill application"). The matching engine
// itself never calls this directly for resting orders it doesn't own
// an OMS record for by order_id alone — callers that only have a
// trade use applyTrade via SubmitOrder instead.
func (m *Manager) ApplyFill(ctx context.Context, env core.Environment, orderID string, side core.Side, fill *core.Fill) (*core.Order, error) {
	return m.applyFillToOrder(ctx, env, orderID, side, fill)
}

func (m *Manager) applyFillToOrder(ctx context.Context, env core.Environment, orderID string, side core.Side, fill *core.Fill) (*core.Order, error) {
	exists, err := m.store.FillExists(ctx, env, fill.FillID)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if exists {
		return m.store.GetOrder(ctx, env, orderID)
	}

	order, err := m.store.GetOrder(ctx, env, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == core.OrderOpen || order.Status == core.OrderPartiallyFilled {
		priorNotional := order.AvgFillPrice.Mul(order.FilledQuantity)
		fillNotional := fill.Price.Mul(fill.Quantity)
		order.FilledQuantity = order.FilledQuantity.Add(fill.Quantity)
		if order.FilledQuantity.IsPositive() {
			order.AvgFillPrice = priorNotional.Add(fillNotional).Div(order.FilledQuantity)
		}
		if order.FilledQuantity.GreaterThanOrEqual(order.Quantity) {
			order.Status = core.OrderFilled
		} else {
			order.Status = core.OrderPartiallyFilled
		}
		order.UpdatedAt = m.clock.Now()
		if err := m.store.UpdateOrder(ctx, env, order); err != nil {
			return nil, apperrors.Storage(err)
		}
	}

	if err := m.store.CreateFill(ctx, env, fill); err != nil {
		return nil, apperrors.Storage(err)
	}

	contractSize := decimal.NewFromInt(1)
	if inst, iErr := m.instruments.GetInstrument(ctx, env, order.InstrumentID); iErr == nil {
		contractSize = inst.Underlying.ContractSize
	}
	consumed := fill.Quantity.Mul(fill.Price).Mul(contractSize)
	if order.MarginLockID != "" {
		if err := m.risk.ConsumeMargin(ctx, env, order.UserID, order.MarginLockID, consumed); err != nil {
			return nil, apperrors.RiskUnavailable(err)
		}
	}
	if err := m.risk.UpdatePosition(ctx, env, order.UserID, order.InstrumentID, side, fill.Quantity, fill.Price); err != nil {
		return nil, apperrors.RiskUnavailable(err)
	}

	return order, nil
}

// CancelOrder runs spec.md §4.2's cancel pipeline.
func (m *Manager) CancelOrder(ctx context.Context, env core.Environment, orderID string) (*core.Order, error) {
	order, err := m.store.GetOrder(ctx, env, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.Cancellable() {
		return order, apperrors.InvalidState("order %s is not cancellable from status %s", orderID, order.Status)
	}

	if _, err := m.matching.CancelOrder(ctx, order.InstrumentID, orderID); err != nil {
		return order, apperrors.MatchingUnavailable(err)
	}

	if order.MarginLockID != "" {
		if err := m.risk.ReleaseMargin(ctx, env, order.UserID, order.MarginLockID); err != nil {
			return order, apperrors.RiskUnavailable(err)
		}
	}

	current, err := m.store.GetOrder(ctx, env, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status.Cancellable() {
		current.Status = core.OrderCancelled
		current.UpdatedAt = m.clock.Now()
		if err := m.store.UpdateOrder(ctx, env, current); err != nil {
			return current, apperrors.Storage(err)
		}
	}
	return current, nil
}

// GetOrder, ListOrders, GetActiveOrders, and GetFills are pure query
// passthroughs to the store (spec.md §4.2's query operations).
func (m *Manager) GetOrder(ctx context.Context, env core.Environment, orderID string) (*core.Order, error) {
	return m.store.GetOrder(ctx, env, orderID)
}

func (m *Manager) ListOrders(ctx context.Context, env core.Environment, filter core.OrderFilter) ([]*core.Order, error) {
	return m.store.ListOrders(ctx, env, filter)
}

func (m *Manager) GetActiveOrders(ctx context.Context, env core.Environment, userID string) ([]*core.Order, error) {
	return m.store.GetActiveOrders(ctx, env, userID)
}

func (m *Manager) GetFills(ctx context.Context, env core.Environment, orderID string) ([]*core.Fill, error) {
	return m.store.GetFills(ctx, env, orderID)
}
