// Package matching implements the deterministic matching core
// (spec.md §4.1): a per-instrument order book, an engine-stamped
// sequence counter, and two circuit-breaker predicates, with no
// wall-clock dependence in the matching decision itself beyond the
// clock fed in by the caller for circuit-breaker bookkeeping.
package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"optionscore/internal/apperrors"
	"optionscore/internal/book"
	"optionscore/internal/config"
	"optionscore/internal/core"
)

// Clock abstracts wall-clock access so circuit-breaker windows stay
// testable without sleeping; the match decision itself never consults
// it except to stamp circuit-breaker observations.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// instrumentState is everything the engine owns for one instrument.
// Not safe for concurrent use on its own — the engine serializes
// access per instrument (spec.md §5's single-owner model).
type instrumentState struct {
	mu       sync.Mutex
	book     *book.OrderBook
	breaker  *CircuitBreaker
	sequence uint64
}

// Engine is the concrete deterministic matching core, implementing
// core.MatchingEngine.
type Engine struct {
	mu          sync.RWMutex
	instruments map[string]*instrumentState
	cfg         config.MatchingEngineConfig
	clock       Clock
	eventLog    *EventLog
}

// NewEngine builds an engine whose circuit breakers are parameterized
// by cfg. A nil clock defaults to the wall clock.
func NewEngine(cfg config.MatchingEngineConfig, clock Clock) *Engine {
	if clock == nil {
		clock = realClock{}
	}
	return &Engine{
		instruments: make(map[string]*instrumentState),
		cfg:         cfg,
		clock:       clock,
		eventLog:    NewEventLog(),
	}
}

// Events returns instrumentID's recorded matching-event history
// (spec.md §9's determinism-replay event stream).
func (e *Engine) Events(instrumentID string) []Event {
	return e.eventLog.Events(instrumentID)
}

// BookSnapshot returns a depth-limited aggregated view of
// instrumentID's book (spec.md §2's Market Data Aggregator "book
// snapshot" responsibility). depth <= 0 returns every level.
func (e *Engine) BookSnapshot(instrumentID string, depth int) book.Snapshot {
	st := e.stateFor(instrumentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.Snapshot(st.sequence, depth)
}

func (e *Engine) stateFor(instrumentID string) *instrumentState {
	e.mu.RLock()
	st, ok := e.instruments[instrumentID]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.instruments[instrumentID]; ok {
		return st
	}
	st = &instrumentState{
		book:    book.NewOrderBook(instrumentID),
		breaker: NewCircuitBreaker(e.cfg.CircuitBreakers.PriceMovement, e.cfg.CircuitBreakers.Liquidity),
	}
	e.instruments[instrumentID] = st
	return st
}

// Sequence returns the current engine sequence counter for instrumentID.
func (e *Engine) Sequence(instrumentID string) uint64 {
	st := e.stateFor(instrumentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sequence
}

// SetSequence forces the sequence counter, for deterministic replay
// from a snapshot.
func (e *Engine) SetSequence(instrumentID string, n uint64) {
	st := e.stateFor(instrumentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sequence = n
}

// CancelOrder removes orderID from instrumentID's book. Returns
// ok=false if the order is not resting — not an error, since the
// order may have already fully filled (spec.md §4.2's cancel-race
// idempotence).
func (e *Engine) CancelOrder(_ context.Context, instrumentID, orderID string) (bool, error) {
	st := e.stateFor(instrumentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.book.Cancel(orderID)
	if ok {
		e.eventLog.append(instrumentID, Event{
			Sequence:  st.sequence,
			Kind:      EventOrderCancelled,
			Cancelled: &OrderCancelledPayload{OrderID: orderID},
		})
	}
	return ok, nil
}

// MatchOrder runs the canonical six-step algorithm (spec.md §4.1) for
// one incoming order against instrumentID's book.
func (e *Engine) MatchOrder(_ context.Context, instrumentID string, order *core.Order) (core.MatchResult, error) {
	st := e.stateFor(instrumentID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := e.clock.Now()

	// Step 1: halt check.
	if halted, _ := st.breaker.IsHalted(now); halted {
		return core.MatchResult{Outcome: core.OutcomeRejectedHalted}, nil
	}

	side := order.Side
	opposite := side.Opposite()
	qty := order.Remaining()
	limit := order.Price
	isMarket := order.OrderType == core.OrderTypeMarket

	// Step 2: FOK precheck. A market FOK has no limit to bound
	// liquidity sums against, so it is treated as unbounded (any
	// available opposite-side liquidity, capped only by qty).
	if order.TimeInForce == core.FOK {
		var available decimal.Decimal
		if isMarket {
			available = sumAllLiquidity(st.book, opposite)
		} else if side == core.Buy {
			available = st.book.AvailableQtyAtOrBelow(limit)
		} else {
			available = st.book.AvailableQtyAtOrAbove(limit)
		}
		if available.LessThan(qty) {
			return core.MatchResult{Outcome: core.OutcomeRejectedInsufficient}, nil
		}
	}

	// Step 3: assign the sequence.
	st.sequence++
	sequence := st.sequence

	// Step 4: match loop.
	var trades []core.Trade
	for qty.Sign() > 0 {
		bestPrice, ok := st.book.BestPrice(opposite)
		if !ok {
			break
		}
		if !isMarket {
			if side == core.Buy && bestPrice.GreaterThan(limit) {
				break
			}
			if side == core.Sell && bestPrice.LessThan(limit) {
				break
			}
		}

		front, ok := st.book.FrontOrder(opposite)
		if !ok {
			// Invariant violation: best price level exists with no
			// front order. The book and its index have diverged.
			panic(fmt.Sprintf("matching: instrument %s has a best price with no front order", instrumentID))
		}

		fill := decimal.Min(qty, front.Quantity)
		trade := makeTrade(instrumentID, order, front, side, fill, sequence, len(trades), now)
		trades = append(trades, trade)

		st.book.Fill(opposite, fill)
		qty = qty.Sub(fill)
		st.breaker.RecordTrade(trade.Price, now)
		e.eventLog.append(instrumentID, Event{Sequence: sequence, Kind: EventTradeExecuted, Trade: &trade})
	}

	result := core.MatchResult{Trades: trades}

	// Step 5: remainder.
	switch {
	case qty.Sign() == 0:
		result.Outcome = core.OutcomeFullyMatched
	case order.TimeInForce == core.GTC || order.TimeInForce == core.DAY:
		if isMarket {
			// A market order with a resting remainder has nothing to
			// rest at — markets always behave like IOC once the book
			// is exhausted.
			result.Outcome = core.OutcomeCancelledRemainder
			break
		}
		st.book.Insert(side, &book.RestingOrder{
			OrderID:  order.OrderID,
			UserID:   order.UserID,
			Price:    limit,
			Quantity: qty,
			Sequence: sequence,
		})
		e.eventLog.append(instrumentID, Event{
			Sequence: sequence,
			Kind:     EventOrderAccepted,
			Accepted: &OrderAcceptedPayload{
				OrderID:  order.OrderID,
				UserID:   order.UserID,
				Side:     side,
				Price:    limit,
				Quantity: qty,
			},
		})
		result.Remaining = &core.BookOrderRef{OrderID: order.OrderID, UserID: order.UserID}
		result.Inserted = true
		if len(trades) > 0 {
			result.Outcome = core.OutcomePartiallyRested
		} else {
			result.Outcome = core.OutcomeRested
		}
	case order.TimeInForce == core.IOC:
		result.Outcome = core.OutcomeCancelledRemainder
	case order.TimeInForce == core.FOK:
		// Unreachable: the precheck guarantees a full fill. Surfacing
		// this as a rejection rather than silently dropping quantity
		// keeps the fail-fast contract for a book invariant violation.
		return core.MatchResult{}, apperrors.New(apperrors.KindInternal, "FOK order left a remainder after precheck passed")
	default:
		return core.MatchResult{}, apperrors.Validation("unknown time_in_force %q", order.TimeInForce)
	}

	// Step 6: post-trade circuit-breaker liquidity snapshot.
	bestBid, _ := st.book.BestPrice(core.Buy)
	bestAsk, _ := st.book.BestPrice(core.Sell)
	st.breaker.CheckLiquidity(now, st.book.OrderCount(core.Buy), st.book.OrderCount(core.Sell), bestBid, bestAsk)

	return result, nil
}

// sumAllLiquidity sums every resting order on restingSide, for a
// market FOK precheck where there is no limit price to bound the sum.
func sumAllLiquidity(b *book.OrderBook, restingSide core.Side) decimal.Decimal {
	if restingSide == core.Sell {
		return b.AvailableQtyAtOrBelow(decimal.NewFromInt(1 << 62))
	}
	return b.AvailableQtyAtOrAbove(decimal.Zero)
}

// makeTrade builds the immutable trade record for one match,
// assigning buyer/seller by aggressor side and deriving trade_id from
// the engine sequence rather than any random source.
func makeTrade(instrumentID string, aggressor *core.Order, maker *book.RestingOrder, aggressorSide core.Side, qty decimal.Decimal, sequence uint64, fillIndex int, now time.Time) core.Trade {
	trade := core.Trade{
		TradeID:          fmt.Sprintf("%s-%d-%d", instrumentID, sequence, fillIndex),
		InstrumentID:     instrumentID,
		AggressorOrderID: aggressor.OrderID,
		MakerOrderID:     maker.OrderID,
		Price:            maker.Price,
		Quantity:         qty,
		AggressorSide:    aggressorSide,
		Sequence:         sequence,
		Timestamp:        now,
	}
	if aggressorSide == core.Buy {
		trade.BuyerUserID = aggressor.UserID
		trade.SellerUserID = maker.UserID
	} else {
		trade.BuyerUserID = maker.UserID
		trade.SellerUserID = aggressor.UserID
	}
	return trade
}

var _ core.MatchingEngine = (*Engine)(nil)
