package matching

import (
	"sync"

	"github.com/shopspring/decimal"

	"optionscore/internal/book"
	"optionscore/internal/core"
)

// EventKind tags which payload field of an Event is populated.
type EventKind string

const (
	EventOrderAccepted  EventKind = "order_accepted"
	EventOrderCancelled EventKind = "order_cancelled"
	EventTradeExecuted  EventKind = "trade_executed"
)

// OrderAcceptedPayload records a resting-order insertion.
type OrderAcceptedPayload struct {
	OrderID  string
	UserID   string
	Side     core.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderCancelledPayload records a resting-order removal.
type OrderCancelledPayload struct {
	OrderID string
}

// Event is one append-only log entry for a single instrument's
// matching history (spec.md §9: "Persist an append-only event stream
// of (sequence, event) pairs where event ∈ {OrderAccepted,
// OrderCancelled, TradeExecuted}; recovery replays against an
// initially empty book to reconstruct state."). Exactly one payload
// field is populated, selected by Kind.
type Event struct {
	Sequence  uint64
	Kind      EventKind
	Accepted  *OrderAcceptedPayload
	Cancelled *OrderCancelledPayload
	Trade     *core.Trade
}

// EventLog is an in-memory append-only per-instrument event stream.
// Grounded on the teacher's durable-workflow event sourcing shape
// (internal/engine/durable/workflow.go persisted a similar ordered
// step history) but scoped down to exactly the three event kinds
// spec.md §9 names, with ReplayEvents as the single reconstruction
// entry point instead of a workflow replay engine.
type EventLog struct {
	mu     sync.Mutex
	events map[string][]Event
}

// NewEventLog returns an empty EventLog.
func NewEventLog() *EventLog {
	return &EventLog{events: make(map[string][]Event)}
}

func (l *EventLog) append(instrumentID string, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[instrumentID] = append(l.events[instrumentID], e)
}

// Events returns a copy of instrumentID's recorded event history, in
// the order it was appended.
func (l *EventLog) Events(instrumentID string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events[instrumentID]))
	copy(out, l.events[instrumentID])
	return out
}

// ReplayEvents reconstructs instrumentID's order book and sequence
// counter from a recorded event history, starting from an empty book —
// the recovery path spec.md §9 describes. Events must be in the order
// they were originally appended; replay applies exactly the same book
// mutation each event caused live (insert/cancel/fill), so the result
// is identical to the book's live end state.
func ReplayEvents(instrumentID string, events []Event) (*book.OrderBook, uint64) {
	b := book.NewOrderBook(instrumentID)
	var sequence uint64
	for _, e := range events {
		if e.Sequence > sequence {
			sequence = e.Sequence
		}
		switch e.Kind {
		case EventOrderAccepted:
			a := e.Accepted
			b.Insert(a.Side, &book.RestingOrder{
				OrderID:  a.OrderID,
				UserID:   a.UserID,
				Price:    a.Price,
				Quantity: a.Quantity,
				Sequence: e.Sequence,
			})
		case EventOrderCancelled:
			b.Cancel(e.Cancelled.OrderID)
		case EventTradeExecuted:
			makerSide := e.Trade.AggressorSide.Opposite()
			b.Fill(makerSide, e.Trade.Quantity)
		}
	}
	return b, sequence
}
