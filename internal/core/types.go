// Package core defines the shared domain types for the exchange core:
// environments, instruments, orders, fills, positions, and the margin
// locks and generation state the Risk Engine and Instrument Generator
// own. Every monetary and price-bearing field uses decimal.Decimal.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Environment partitions every persisted entity. No cross-environment
// references exist; queries are always statically parameterized by it.
type Environment string

const (
	EnvProd    Environment = "prod"
	EnvVirtual Environment = "virtual"
	EnvStatic  Environment = "static"
)

func (e Environment) Valid() bool {
	switch e {
	case EnvProd, EnvVirtual, EnvStatic:
		return true
	}
	return false
}

// Side is the direction of an order or position.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ExerciseStyle is fixed to European for this design.
type ExerciseStyle string

const ExerciseEuropean ExerciseStyle = "european"

// InstrumentStatus is the lifecycle state of a tradable instrument.
type InstrumentStatus string

const (
	InstrumentPending   InstrumentStatus = "pending"
	InstrumentActive    InstrumentStatus = "active"
	InstrumentInactive  InstrumentStatus = "inactive"
	InstrumentSuspended InstrumentStatus = "suspended"
	InstrumentExpired   InstrumentStatus = "expired"
	InstrumentSettled   InstrumentStatus = "settled"
)

// Underlying describes the asset an instrument derives from.
type Underlying struct {
	Symbol        string
	ContractSize  decimal.Decimal
	TickSize      decimal.Decimal
	PriceDecimals int32
}

// Strike is a fixed-point strike price: Value carries Decimals digits
// of precision (kept distinct from the decimal's own internal scale so
// symbol formatting can strip trailing zeros deterministically).
type Strike struct {
	Value    decimal.Decimal
	Decimals int32
}

// Instrument is immutable once created except for Status.
type Instrument struct {
	ID                 string
	Env                Environment
	Symbol             string // canonical ASSET-YYYYMMDD-STRIKE-{C|P}
	Underlying         Underlying
	OptionType         OptionType
	ExerciseStyle      ExerciseStyle
	Strike             Strike
	Expiry             time.Time
	SettlementCurrency string
	MinOrderSize       decimal.Decimal
	Status             InstrumentStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderType is limit or market.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// TimeInForce governs remainder handling after a match attempt.
type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	IOC TimeInForce = "ioc"
	FOK TimeInForce = "fok"
	DAY TimeInForce = "day"
)

// OrderStatus is the OMS lifecycle state.
type OrderStatus string

const (
	OrderPendingRisk     OrderStatus = "pending_risk"
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderRejected        OrderStatus = "rejected"
	OrderCancelled       OrderStatus = "cancelled"
	OrderExpired         OrderStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderRejected, OrderCancelled, OrderFilled, OrderExpired:
		return true
	}
	return false
}

// Cancellable reports whether an order in this status may be cancelled.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderPendingRisk, OrderOpen, OrderPartiallyFilled:
		return true
	}
	return false
}

// Order is the durable record the OMS owns end to end.
type Order struct {
	OrderID             string
	Env                 Environment
	UserID              string
	InstrumentID        string
	Side                Side
	OrderType           OrderType
	TimeInForce         TimeInForce
	Price               decimal.Decimal // required iff Limit
	Quantity            decimal.Decimal
	FilledQuantity      decimal.Decimal
	AvgFillPrice        decimal.Decimal
	Status              OrderStatus
	ClientOrderID       string // optional, unique per (user, env) when present
	RiskApprovedAt      *time.Time
	RiskRejectionReason string
	RequiredMargin      decimal.Decimal
	MarginLockID        string
	Sequence            uint64 // engine-assigned once accepted by matching
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Remaining is the quantity still unfilled.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Clone returns a deep-enough copy safe for a caller to mutate.
func (o *Order) Clone() *Order {
	c := *o
	if o.RiskApprovedAt != nil {
		t := *o.RiskApprovedAt
		c.RiskApprovedAt = &t
	}
	return &c
}

// Fill is an append-only execution record.
type Fill struct {
	FillID              string
	Env                 Environment
	OrderID             string
	TradeID             string
	Quantity            decimal.Decimal
	Price               decimal.Decimal // maker's resting price
	CounterpartyOrderID string
	Fee                 decimal.Decimal
	FeeCurrency         string
	IsMaker             bool
	ExecutedAt          time.Time
}

// PositionSide is long or short.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Position is the per (user, instrument) holding.
type Position struct {
	UserID       string
	InstrumentID string
	Side         PositionSide
	Quantity     decimal.Decimal
	AvgPrice     decimal.Decimal
	OpenedAt     time.Time
	UpdatedAt    time.Time
}

// MarginLockStatus tracks the lifecycle of a reservation.
type MarginLockStatus string

const (
	LockActive   MarginLockStatus = "active"
	LockReleased MarginLockStatus = "released"
	LockConsumed MarginLockStatus = "consumed"
)

// MarginLock reserves free margin against an open order.
type MarginLock struct {
	LockID    string
	UserID    string
	OrderID   string
	Amount    decimal.Decimal
	Consumed  decimal.Decimal // sum consumed by fills so far
	Status    MarginLockStatus
	CreatedAt time.Time
}

// Remaining returns the unreleased, unconsumed amount of the lock.
func (m *MarginLock) Remaining() decimal.Decimal {
	return m.Amount.Sub(m.Consumed)
}

// UserRiskState is a user's margin account snapshot.
type UserRiskState struct {
	UserID                 string
	WalletBalance          decimal.Decimal
	Positions              map[string]*Position // by instrument ID
	Locks                  map[string]*MarginLock
	ReservedMargin         decimal.Decimal
	TotalInitialMargin     decimal.Decimal
	TotalMaintenanceMargin decimal.Decimal
	UnrealizedPnL          decimal.Decimal
}

// Equity is wallet balance plus unrealized PnL.
func (u *UserRiskState) Equity() decimal.Decimal {
	return u.WalletBalance.Add(u.UnrealizedPnL)
}

// FreeMargin is equity minus initial margin minus reserved margin.
func (u *UserRiskState) FreeMargin() decimal.Decimal {
	return u.Equity().Sub(u.TotalInitialMargin).Sub(u.ReservedMargin)
}

// Liquidatable reports whether equity has fallen below maintenance margin.
func (u *UserRiskState) Liquidatable() bool {
	return u.Equity().LessThan(u.TotalMaintenanceMargin)
}

// GenerationState is the Instrument Generator's per (env, asset) displacement state.
type GenerationState struct {
	Env            Environment
	Asset          string
	UpperReference decimal.Decimal
	LowerReference decimal.Decimal
	UpperTrigger   decimal.Decimal
	LowerTrigger   decimal.Decimal
	MaxStrike      decimal.Decimal
	MinStrike      decimal.Decimal
	LastSpotPrice  decimal.Decimal
}
