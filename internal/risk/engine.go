package risk

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"optionscore/internal/apperrors"
	"optionscore/internal/config"
	"optionscore/internal/core"
)

// InstrumentInfo is the subset of instrument metadata the margin model
// needs, resolved by instrument_id.
type InstrumentInfo struct {
	UnderlyingSymbol string
	ContractSize     decimal.Decimal
	OptionType       core.OptionType
	Strike           decimal.Decimal
}

// InstrumentResolver looks up instrument metadata for margin
// calculation. Satisfied by an adapter over internal/store's
// InstrumentStore.
type InstrumentResolver interface {
	Resolve(ctx context.Context, env core.Environment, instrumentID string) (InstrumentInfo, bool)
}

// IndexPriceSource supplies the current index price for an underlying,
// used as S in the short-call stress formula.
type IndexPriceSource interface {
	IndexPrice(underlyingSymbol string) (decimal.Decimal, bool)
}

// Engine is the concrete core.RiskEngine: per-user margin state kept
// in memory, gated synchronously with no external calls (spec.md
// §4.3's failure policy — all mutations are local and synchronous).
type Engine struct {
	mu     sync.RWMutex
	users  map[string]*core.UserRiskState
	tiers  *Tiers
	limits config.PositionLimitsConfig

	instruments InstrumentResolver
	prices      IndexPriceSource
}

// NewEngine builds a risk engine from config and the two lookups it
// needs to price short positions.
func NewEngine(cfg config.RiskEngineConfig, instruments InstrumentResolver, prices IndexPriceSource) *Engine {
	return &Engine{
		users:       make(map[string]*core.UserRiskState),
		tiers:       NewTiers(cfg.InitialMargin, cfg.MaintenanceMargin),
		limits:      cfg.PositionLimits,
		instruments: instruments,
		prices:      prices,
	}
}

func (e *Engine) userLocked(userID string) *core.UserRiskState {
	u, ok := e.users[userID]
	if !ok {
		u = &core.UserRiskState{
			UserID:    userID,
			Positions: make(map[string]*core.Position),
			Locks:     make(map[string]*core.MarginLock),
		}
		e.users[userID] = u
	}
	return u
}

// SetWalletBalance seeds or adjusts a user's wallet balance. Custody
// and deposits are out of scope (spec.md's Non-goals); this exists so
// callers (bootstrap, tests) can establish the starting equity the
// margin model checks against.
func (e *Engine) SetWalletBalance(userID string, balance decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userLocked(userID).WalletBalance = balance
}

func (e *Engine) signedPosition(u *core.UserRiskState, instrumentID string) decimal.Decimal {
	pos, ok := u.Positions[instrumentID]
	if !ok {
		return decimal.Zero
	}
	if pos.Side == core.PositionShort {
		return pos.Quantity.Neg()
	}
	return pos.Quantity
}

// CheckOrder gates an incoming order against free margin and position
// limits (spec.md §4.3). On approval it creates a MarginLock for the
// computed required_margin and adds it to reserved_margin.
func (e *Engine) CheckOrder(_ context.Context, env core.Environment, userID string, side core.Side, instrumentID string, qty, price decimal.Decimal) (core.RiskCheckResult, error) {
	instrument, ok := e.instruments.Resolve(context.Background(), env, instrumentID)
	if !ok {
		return core.RiskCheckResult{}, apperrors.NotFound("instrument %s not found", instrumentID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.userLocked(userID)

	existing := e.signedPosition(u, instrumentID)
	var delta decimal.Decimal
	if side == core.Buy {
		delta = qty
	} else {
		delta = qty.Neg()
	}
	resulting := existing.Add(delta)

	requiredMargin := decimal.Zero
	switch {
	case side == core.Buy && existing.GreaterThanOrEqual(decimal.Zero):
		// Opening or adding to a long: premium on this order's quantity.
		requiredMargin = price.Mul(qty)
	case side == core.Sell && existing.LessThanOrEqual(decimal.Zero):
		// Opening or adding to a short: margin on the resulting short
		// quantity, per spec.
		indexPrice, ok := e.prices.IndexPrice(instrument.UnderlyingSymbol)
		if !ok {
			return core.RiskCheckResult{}, apperrors.New(apperrors.KindRiskUnavailable, "no index price for "+instrument.UnderlyingSymbol)
		}
		requiredMargin = e.tiers.ShortInitialMargin(PositionInputs{
			UnderlyingSymbol: instrument.UnderlyingSymbol,
			OptionType:       instrument.OptionType,
			Strike:           instrument.Strike,
			ContractSize:     instrument.ContractSize,
			Quantity:         resulting.Abs(),
			IndexPrice:       indexPrice,
		})
	default:
		// Buy closing Short or Sell closing Long: no new margin required.
		requiredMargin = decimal.Zero
	}

	if limitReason := e.checkLimitsLocked(u, instrumentID, resulting, qty, price); limitReason != "" {
		return core.RiskCheckResult{
			Approved:   false,
			Reason:     limitReason,
			FreeMargin: u.FreeMargin(),
		}, nil
	}

	freeMargin := u.FreeMargin()
	if requiredMargin.GreaterThan(freeMargin) {
		return core.RiskCheckResult{
			Approved:       false,
			Reason:         "insufficient free margin",
			RequiredMargin: requiredMargin,
			FreeMargin:     freeMargin,
		}, nil
	}

	lockID := uuid.NewString()
	u.Locks[lockID] = &core.MarginLock{
		LockID: lockID,
		UserID: userID,
		Amount: requiredMargin,
		Status: core.LockActive,
	}
	u.ReservedMargin = u.ReservedMargin.Add(requiredMargin)

	return core.RiskCheckResult{
		Approved:            true,
		RequiredMargin:      requiredMargin,
		FreeMargin:          freeMargin,
		ProjectedFreeMargin: freeMargin.Sub(requiredMargin),
		MarginLockID:        lockID,
	}, nil
}

// checkLimitsLocked enforces position/notional limits (spec.md §4.3).
// Returns a non-empty rejection reason, or "" if within limits.
func (e *Engine) checkLimitsLocked(u *core.UserRiskState, instrumentID string, resulting, qty, price decimal.Decimal) string {
	if e.limits.MaxContractsPerOrder > 0 && qty.GreaterThan(decimal.NewFromFloat(e.limits.MaxContractsPerOrder)) {
		return "order quantity exceeds max_contracts_per_order"
	}
	if e.limits.MaxContractsPerUser > 0 && resulting.Abs().GreaterThan(decimal.NewFromFloat(e.limits.MaxContractsPerUser)) {
		return "resulting position exceeds max_contracts_per_user"
	}
	if e.limits.MaxNotionalPerUser > 0 {
		notional := decimal.Zero
		for id, pos := range u.Positions {
			if id == instrumentID {
				continue
			}
			notional = notional.Add(pos.Quantity.Mul(pos.AvgPrice))
		}
		notional = notional.Add(resulting.Abs().Mul(price))
		if notional.GreaterThan(decimal.NewFromFloat(e.limits.MaxNotionalPerUser)) {
			return "resulting notional exceeds max_notional_per_user"
		}
	}
	return ""
}

// ReleaseMargin releases an active lock back to free margin. Idempotent:
// releasing an already-released or unknown lock is not an error.
func (e *Engine) ReleaseMargin(_ context.Context, _ core.Environment, userID, lockID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.userLocked(userID)
	lock, ok := u.Locks[lockID]
	if !ok || lock.Status != core.LockActive {
		return nil
	}
	u.ReservedMargin = u.ReservedMargin.Sub(lock.Remaining())
	if u.ReservedMargin.IsNegative() {
		u.ReservedMargin = decimal.Zero
	}
	lock.Status = core.LockReleased
	return nil
}

// ConsumeMargin records that amount of lockID's reservation has been
// consumed by a fill, moving it out of reserved_margin. Idempotent on
// an already-consumed or unknown lock.
func (e *Engine) ConsumeMargin(_ context.Context, _ core.Environment, userID, lockID string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.userLocked(userID)
	lock, ok := u.Locks[lockID]
	if !ok || lock.Status == core.LockReleased {
		return nil
	}
	consumable := decimal.Min(amount, lock.Remaining())
	lock.Consumed = lock.Consumed.Add(consumable)
	u.ReservedMargin = u.ReservedMargin.Sub(consumable)
	if u.ReservedMargin.IsNegative() {
		u.ReservedMargin = decimal.Zero
	}
	if lock.Remaining().IsZero() {
		lock.Status = core.LockConsumed
	}
	return nil
}

// UpdatePosition applies a fill to the user's position in instrumentID,
// recomputing weighted average price and the position's initial and
// maintenance margin contribution.
func (e *Engine) UpdatePosition(ctx context.Context, env core.Environment, userID, instrumentID string, side core.Side, qty, price decimal.Decimal) error {
	instrument, ok := e.instruments.Resolve(ctx, env, instrumentID)
	if !ok {
		return apperrors.NotFound("instrument %s not found", instrumentID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.userLocked(userID)

	pos, ok := u.Positions[instrumentID]
	if !ok {
		pos = &core.Position{UserID: userID, InstrumentID: instrumentID}
		u.Positions[instrumentID] = pos
	}
	e.applyFillLocked(pos, side, qty, price)
	e.recomputePortfolioMarginLocked(ctx, env, u, instrument)
	return nil
}

func (e *Engine) applyFillLocked(pos *core.Position, side core.Side, qty, price decimal.Decimal) {
	newSigned := e.directedQty(pos).Add(directed(qty, side))

	switch {
	case newSigned.IsZero():
		pos.Quantity = decimal.Zero
		pos.AvgPrice = decimal.Zero
	case newSigned.IsPositive():
		if pos.Side != core.PositionLong || pos.Quantity.IsZero() {
			pos.Side = core.PositionLong
			pos.Quantity = newSigned
			pos.AvgPrice = price
		} else if side == core.Buy {
			totalCost := pos.AvgPrice.Mul(pos.Quantity).Add(price.Mul(qty))
			pos.Quantity = newSigned
			pos.AvgPrice = totalCost.Div(pos.Quantity)
		} else {
			pos.Quantity = newSigned
		}
	default:
		shortQty := newSigned.Abs()
		if pos.Side != core.PositionShort || pos.Quantity.IsZero() {
			pos.Side = core.PositionShort
			pos.Quantity = shortQty
			pos.AvgPrice = price
		} else if side == core.Sell {
			totalCost := pos.AvgPrice.Mul(pos.Quantity).Add(price.Mul(qty))
			pos.Quantity = shortQty
			pos.AvgPrice = totalCost.Div(pos.Quantity)
		} else {
			pos.Quantity = shortQty
		}
	}
}

func (e *Engine) directedQty(pos *core.Position) decimal.Decimal {
	if pos.Side == core.PositionShort {
		return pos.Quantity.Neg()
	}
	return pos.Quantity
}

func directed(qty decimal.Decimal, side core.Side) decimal.Decimal {
	if side == core.Buy {
		return qty.Abs()
	}
	return qty.Abs().Neg()
}

// recomputePortfolioMarginLocked recomputes total initial/maintenance
// margin across every one of the user's positions (simplified SPAN:
// the sum across positions, spec.md §4.3).
func (e *Engine) recomputePortfolioMarginLocked(ctx context.Context, env core.Environment, u *core.UserRiskState, _ InstrumentInfo) {
	totalInitial := decimal.Zero
	totalMaint := decimal.Zero
	for id, pos := range u.Positions {
		if pos.Quantity.IsZero() {
			continue
		}
		info, ok := e.instruments.Resolve(ctx, env, id)
		if !ok {
			continue
		}
		var initial decimal.Decimal
		if pos.Side == core.PositionShort {
			indexPrice, ok := e.prices.IndexPrice(info.UnderlyingSymbol)
			if !ok {
				indexPrice = pos.AvgPrice
			}
			initial = e.tiers.ShortInitialMargin(PositionInputs{
				UnderlyingSymbol: info.UnderlyingSymbol,
				OptionType:       info.OptionType,
				Strike:           info.Strike,
				ContractSize:     info.ContractSize,
				Quantity:         pos.Quantity,
				IndexPrice:       indexPrice,
			})
			totalMaint = totalMaint.Add(e.tiers.MaintenanceMargin(info.UnderlyingSymbol, initial))
		} else {
			initial = pos.Quantity.Mul(pos.AvgPrice)
		}
		totalInitial = totalInitial.Add(initial)
	}
	u.TotalInitialMargin = totalInitial
	u.TotalMaintenanceMargin = totalMaint
}

// CheckLiquidation reports whether the user is liquidatable: equity
// has fallen below total maintenance margin. Pure predicate; it never
// initiates liquidation (spec.md §4.3).
func (e *Engine) CheckLiquidation(_ context.Context, _ core.Environment, userID string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	u, ok := e.users[userID]
	if !ok {
		return false, nil
	}
	return u.Liquidatable(), nil
}

var _ core.RiskEngine = (*Engine)(nil)
