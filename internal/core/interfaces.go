// Package core defines the core interfaces shared by the matching
// engine, OMS, risk engine, instrument generator, and their storage
// adapters.
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for structured logging.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// OrderFilter narrows List queries against the order store.
type OrderFilter struct {
	UserID       string
	InstrumentID string
	Status       []OrderStatus
	Limit        int
}

// OrderStore is the persistence contract for orders and fills,
// partitioned by Environment (spec.md §6.5).
type OrderStore interface {
	CreateOrder(ctx context.Context, env Environment, order *Order) error
	GetOrder(ctx context.Context, env Environment, orderID string) (*Order, error)
	UpdateOrder(ctx context.Context, env Environment, order *Order) error
	GetOrderByClientID(ctx context.Context, env Environment, userID, clientOrderID string) (*Order, error)
	ListOrders(ctx context.Context, env Environment, filter OrderFilter) ([]*Order, error)
	GetActiveOrders(ctx context.Context, env Environment, userID string) ([]*Order, error)

	CreateFill(ctx context.Context, env Environment, fill *Fill) error
	GetFills(ctx context.Context, env Environment, orderID string) ([]*Fill, error)
	FillExists(ctx context.Context, env Environment, fillID string) (bool, error)
}

// InstrumentStore is the persistence contract for the tradable universe.
type InstrumentStore interface {
	SaveBatch(ctx context.Context, env Environment, instruments []*Instrument) error
	GetInstrument(ctx context.Context, env Environment, id string) (*Instrument, error)
	GetBySymbol(ctx context.Context, env Environment, symbol string) (*Instrument, error)
	ListByUnderlying(ctx context.Context, env Environment, underlying string) ([]*Instrument, error)
	UpdateActiveRange(ctx context.Context, env Environment, underlying string, min, max decimal.Decimal) error
	MarkExpiredByTime(ctx context.Context, env Environment, asOf time.Time) (int, error)
	UpdateStatus(ctx context.Context, env Environment, id string, status InstrumentStatus) error
}

// GenerationStateStore persists the Instrument Generator's displacement state.
type GenerationStateStore interface {
	GetGenerationState(ctx context.Context, env Environment, asset string) (*GenerationState, error)
	SaveGenerationState(ctx context.Context, env Environment, state *GenerationState) error
}

// RiskCheckResult is the Risk Engine's verdict on an incoming order.
type RiskCheckResult struct {
	Approved            bool
	Reason              string
	RequiredMargin      decimal.Decimal
	FreeMargin          decimal.Decimal
	ProjectedFreeMargin decimal.Decimal
	MarginLockID        string
}

// RiskEngine gates orders and owns per-user margin state (spec.md §4.3).
type RiskEngine interface {
	CheckOrder(ctx context.Context, env Environment, userID string, side Side, instrumentID string, qty, price decimal.Decimal) (RiskCheckResult, error)
	ReleaseMargin(ctx context.Context, env Environment, userID, lockID string) error
	ConsumeMargin(ctx context.Context, env Environment, userID, lockID string, amount decimal.Decimal) error
	UpdatePosition(ctx context.Context, env Environment, userID, instrumentID string, side Side, qty, price decimal.Decimal) error
	CheckLiquidation(ctx context.Context, env Environment, userID string) (bool, error)
}

// MatchOutcome classifies the terminal disposition of match_order.
type MatchOutcome string

const (
	OutcomeFullyMatched         MatchOutcome = "fully_matched"
	OutcomePartiallyRested      MatchOutcome = "partially_rested"
	OutcomeRested               MatchOutcome = "rested"
	OutcomeCancelledRemainder   MatchOutcome = "cancelled_remainder"
	OutcomeRejectedHalted       MatchOutcome = "rejected_halted"
	OutcomeRejectedInsufficient MatchOutcome = "rejected_insufficient_liquidity"
	OutcomeRejectedOverloaded   MatchOutcome = "rejected_overloaded"
)

// Trade is an immutable execution record emitted by the matching loop.
type Trade struct {
	TradeID          string
	InstrumentID     string
	AggressorOrderID string
	MakerOrderID     string
	BuyerUserID      string
	SellerUserID     string
	Price            decimal.Decimal
	Quantity         decimal.Decimal
	AggressorSide    Side
	Sequence         uint64
	Timestamp        time.Time
}

// BookOrderRef identifies a resting order's owner, for margin/position
// bookkeeping the matching engine itself does not perform.
type BookOrderRef struct {
	OrderID string
	UserID  string
}

// MatchResult is the outcome of submitting one order to the engine.
type MatchResult struct {
	Trades    []Trade
	Remaining *BookOrderRef // non-nil if something of the order still rests
	Inserted  bool
	Outcome   MatchOutcome
}

// MatchingEngine is the deterministic, single-owner-per-instrument
// matching core (spec.md §4.1).
type MatchingEngine interface {
	MatchOrder(ctx context.Context, instrumentID string, order *Order) (MatchResult, error)
	CancelOrder(ctx context.Context, instrumentID, orderID string) (bool, error)
	Sequence(instrumentID string) uint64
	SetSequence(instrumentID string, n uint64)
}
