// Package book implements the per-instrument order book: two
// btree-indexed price ladders (bids descending, asks ascending), each
// holding a FIFO queue of resting orders per price level (spec.md
// §4.1/§6.1). Grounded on saiputravu-Exchange's
// internal/engine/orderbook.go (same btree.BTreeG[*level] shape, FIFO
// order slice per level, level deletion on full consumption),
// generalized from float64 prices to decimal.Decimal and given an
// O(1) order_id -> level secondary index for cancel.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"optionscore/internal/core"
)

// RestingOrder is one resting order's book-relevant state. Quantity is
// the remaining (unfilled) quantity.
type RestingOrder struct {
	OrderID  string
	UserID   string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Sequence uint64
}

type level struct {
	price  decimal.Decimal
	orders []*RestingOrder // FIFO: index 0 is the oldest, i.e. next to trade
}

type levels = btree.BTreeG[*level]

// OrderBook holds the bid and ask ladders for a single instrument.
// Not safe for concurrent use — callers serialize access per
// instrument (spec.md §5's single-owner-per-instrument model).
type OrderBook struct {
	instrumentID string
	bids         *levels // sorted descending by price
	asks         *levels // sorted ascending by price

	// index maps order_id -> (side, price) so Cancel and lookups avoid
	// scanning every level. An order_id appears at most once across
	// both ladders (spec.md §4.1 invariant).
	index map[string]location
}

type location struct {
	side  core.Side
	price decimal.Decimal
}

// NewOrderBook returns an empty book for instrumentID.
func NewOrderBook(instrumentID string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *level) bool {
		return a.price.GreaterThan(b.price)
	})
	asks := btree.NewBTreeG(func(a, b *level) bool {
		return a.price.LessThan(b.price)
	})
	return &OrderBook{
		instrumentID: instrumentID,
		bids:         bids,
		asks:         asks,
		index:        make(map[string]location),
	}
}

func (b *OrderBook) ladder(side core.Side) *levels {
	if side == core.Buy {
		return b.bids
	}
	return b.asks
}

// Insert rests order on its side's ladder, appending to its price
// level's FIFO queue (or creating the level if none exists yet at
// that price).
func (b *OrderBook) Insert(side core.Side, order *RestingOrder) {
	ladder := b.ladder(side)
	if lvl, ok := ladder.GetMut(&level{price: order.Price}); ok {
		lvl.orders = append(lvl.orders, order)
	} else {
		ladder.Set(&level{price: order.Price, orders: []*RestingOrder{order}})
	}
	b.index[order.OrderID] = location{side: side, price: order.Price}
}

// Cancel removes orderID from wherever it rests, in O(1) via the
// secondary index plus an O(level size) scan to splice it out of the
// FIFO queue. Returns ok=false if the order is not resting.
func (b *OrderBook) Cancel(orderID string) (*RestingOrder, bool) {
	loc, ok := b.index[orderID]
	if !ok {
		return nil, false
	}
	ladder := b.ladder(loc.side)
	lvl, ok := ladder.GetMut(&level{price: loc.price})
	if !ok {
		delete(b.index, orderID)
		return nil, false
	}

	var removed *RestingOrder
	for i, o := range lvl.orders {
		if o.OrderID == orderID {
			removed = o
			lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
			break
		}
	}
	delete(b.index, orderID)

	if len(lvl.orders) == 0 {
		ladder.Delete(lvl)
	}
	return removed, removed != nil
}

// BestPrice returns the best (highest bid / lowest ask) price on side,
// or ok=false if that side is empty.
func (b *OrderBook) BestPrice(side core.Side) (decimal.Decimal, bool) {
	lvl, ok := b.ladder(side).Min()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.price, true
}

// FrontOrder returns the oldest resting order at side's best price
// level without removing it, or ok=false if side is empty.
func (b *OrderBook) FrontOrder(side core.Side) (*RestingOrder, bool) {
	lvl, ok := b.ladder(side).Min()
	if !ok || len(lvl.orders) == 0 {
		return nil, false
	}
	return lvl.orders[0], true
}

// Fill reduces the front order at side's best level by qty. If the
// front order is fully consumed, it is popped from the FIFO queue (and
// the level deleted if now empty) and removed from the index.
func (b *OrderBook) Fill(side core.Side, qty decimal.Decimal) {
	ladder := b.ladder(side)
	lvl, ok := ladder.Min()
	if !ok || len(lvl.orders) == 0 {
		return
	}
	front := lvl.orders[0]
	front.Quantity = front.Quantity.Sub(qty)

	if front.Quantity.Sign() <= 0 {
		delete(b.index, front.OrderID)
		if lvlMut, ok := ladder.GetMut(&level{price: lvl.price}); ok {
			lvlMut.orders = lvlMut.orders[1:]
			if len(lvlMut.orders) == 0 {
				ladder.Delete(lvlMut)
			}
		}
	}
}

// Spread returns best_ask - best_bid, or ok=false unless both sides
// are non-empty.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, bidOk := b.BestPrice(core.Buy)
	ask, askOk := b.BestPrice(core.Sell)
	if !bidOk || !askOk {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// Mid returns (best_bid + best_ask) / 2, or ok=false unless both sides
// are non-empty.
func (b *OrderBook) Mid() (decimal.Decimal, bool) {
	bid, bidOk := b.BestPrice(core.Buy)
	ask, askOk := b.BestPrice(core.Sell)
	if !bidOk || !askOk {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// AvailableQtyAtOrBelow sums resting ask quantity at prices <= limit —
// the liquidity a buy order could sweep up to limit.
func (b *OrderBook) AvailableQtyAtOrBelow(limit decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	b.asks.Ascend(nil, func(lvl *level) bool {
		if lvl.price.GreaterThan(limit) {
			return false
		}
		for _, o := range lvl.orders {
			total = total.Add(o.Quantity)
		}
		return true
	})
	return total
}

// AvailableQtyAtOrAbove sums resting bid quantity at prices >= limit —
// the liquidity a sell order could sweep down to limit.
func (b *OrderBook) AvailableQtyAtOrAbove(limit decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	b.bids.Ascend(nil, func(lvl *level) bool {
		if lvl.price.LessThan(limit) {
			return false
		}
		for _, o := range lvl.orders {
			total = total.Add(o.Quantity)
		}
		return true
	})
	return total
}

// OrderCount returns the number of resting orders on side, for
// liquidity circuit-breaker checks (spec.md §6.4's min_bid_ask_orders).
func (b *OrderBook) OrderCount(side core.Side) int {
	count := 0
	b.ladder(side).Scan(func(lvl *level) bool {
		count += len(lvl.orders)
		return true
	})
	return count
}

// Depth returns the total resting order count across both sides.
func (b *OrderBook) Depth() int {
	return b.OrderCount(core.Buy) + b.OrderCount(core.Sell)
}

// PriceLevel is one aggregated price level in a book Snapshot: total
// resting quantity and order count at that price, grouped from every
// individual resting order queued there.
type PriceLevel struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	OrderCount int
}

// Snapshot is a point-in-time depth view of one instrument's book,
// bids and asks each ordered best-first, for external publication
// (spec.md §2's Market Data Aggregator "book snapshot" responsibility).
// Grounded on the original Rust implementation's
// market-data/order_book.rs OrderBookBuilder::build_snapshot, adapted
// from a separately-mirrored builder to a direct read of the
// matching engine's own book, since this Go port keeps one canonical
// OrderBook per instrument rather than replaying a mirrored copy.
type Snapshot struct {
	InstrumentID string
	Sequence     uint64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// Snapshot aggregates up to depth price levels per side (depth <= 0
// means every level) into a Snapshot stamped with sequence.
func (b *OrderBook) Snapshot(sequence uint64, depth int) Snapshot {
	return Snapshot{
		InstrumentID: b.instrumentID,
		Sequence:     sequence,
		Bids:         aggregateLevels(b.bids, depth),
		Asks:         aggregateLevels(b.asks, depth),
	}
}

func aggregateLevels(ladder *levels, depth int) []PriceLevel {
	var out []PriceLevel
	ladder.Scan(func(lvl *level) bool {
		if depth > 0 && len(out) >= depth {
			return false
		}
		qty := decimal.Zero
		for _, o := range lvl.orders {
			qty = qty.Add(o.Quantity)
		}
		out = append(out, PriceLevel{Price: lvl.price, Quantity: qty, OrderCount: len(lvl.orders)})
		return true
	})
	return out
}

// Crosses reports whether the book is currently crossed or locked:
// best_bid >= best_ask. A well-formed book never observes this true
// after a matching pass has run to exhaustion.
func (b *OrderBook) Crosses() bool {
	bid, bidOk := b.BestPrice(core.Buy)
	ask, askOk := b.BestPrice(core.Sell)
	if !bidOk || !askOk {
		return false
	}
	return !bid.LessThan(ask)
}
