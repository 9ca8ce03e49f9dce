// Package store provides the persistence adapters for orders, fills,
// instruments, and generation state (spec.md §6.5), each partitioned
// by core.Environment (spec.md §6.6). Grounded on the teacher's
// internal/engine/simple/store_memory.go and store_sqlite.go
// (MemoryStore/SQLiteStore pair behind the same interface), expanded
// from a single opaque state blob to the exchange's relational-ish
// order/fill/instrument surface.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"optionscore/internal/apperrors"
	"optionscore/internal/core"
)

type envPartition struct {
	orders           map[string]*core.Order
	ordersByClientID map[string]string // "userID|clientOrderID" -> orderID
	fills            map[string][]*core.Fill
	fillIDs          map[string]bool
	instruments      map[string]*core.Instrument
	bySymbol         map[string]string // symbol -> instrument id
	generationState  map[string]*core.GenerationState
}

func newEnvPartition() *envPartition {
	return &envPartition{
		orders:           make(map[string]*core.Order),
		ordersByClientID: make(map[string]string),
		fills:            make(map[string][]*core.Fill),
		fillIDs:          make(map[string]bool),
		instruments:      make(map[string]*core.Instrument),
		bySymbol:         make(map[string]string),
		generationState:  make(map[string]*core.GenerationState),
	}
}

// MemoryStore implements OrderStore, InstrumentStore, and
// GenerationStateStore in memory, one partition per environment.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[core.Environment]*envPartition
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[core.Environment]*envPartition)}
}

func (s *MemoryStore) partition(env core.Environment) *envPartition {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[env]
	if !ok {
		p = newEnvPartition()
		s.partitions[env] = p
	}
	return p
}

func clientKey(userID, clientOrderID string) string { return userID + "|" + clientOrderID }

// CreateOrder inserts order into env's partition.
func (s *MemoryStore) CreateOrder(_ context.Context, env core.Environment, order *core.Order) error {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	p.orders[order.OrderID] = order.Clone()
	if order.ClientOrderID != "" {
		p.ordersByClientID[clientKey(order.UserID, order.ClientOrderID)] = order.OrderID
	}
	return nil
}

// GetOrder returns order_id's record, or NotFound.
func (s *MemoryStore) GetOrder(_ context.Context, env core.Environment, orderID string) (*core.Order, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, apperrors.NotFound("order %s not found", orderID)
	}
	return o.Clone(), nil
}

// UpdateOrder overwrites an existing order record.
func (s *MemoryStore) UpdateOrder(_ context.Context, env core.Environment, order *core.Order) error {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := p.orders[order.OrderID]; !ok {
		return apperrors.NotFound("order %s not found", order.OrderID)
	}
	p.orders[order.OrderID] = order.Clone()
	return nil
}

// GetOrderByClientID resolves a user's client_order_id to its order.
func (s *MemoryStore) GetOrderByClientID(_ context.Context, env core.Environment, userID, clientOrderID string) (*core.Order, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	orderID, ok := p.ordersByClientID[clientKey(userID, clientOrderID)]
	if !ok {
		return nil, apperrors.NotFound("client_order_id %s not found for user %s", clientOrderID, userID)
	}
	return p.orders[orderID].Clone(), nil
}

// ListOrders applies filter over env's partition. Iteration order is
// not meaningful (map iteration) — callers that need determinism sort
// the result.
func (s *MemoryStore) ListOrders(_ context.Context, env core.Environment, filter core.OrderFilter) ([]*core.Order, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()

	statusSet := make(map[core.OrderStatus]bool, len(filter.Status))
	for _, st := range filter.Status {
		statusSet[st] = true
	}

	var out []*core.Order
	for _, o := range p.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.InstrumentID != "" && o.InstrumentID != filter.InstrumentID {
			continue
		}
		if len(statusSet) > 0 && !statusSet[o.Status] {
			continue
		}
		out = append(out, o.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// GetActiveOrders lists userID's non-terminal orders.
func (s *MemoryStore) GetActiveOrders(ctx context.Context, env core.Environment, userID string) ([]*core.Order, error) {
	return s.ListOrders(ctx, env, core.OrderFilter{
		UserID: userID,
		Status: []core.OrderStatus{core.OrderPendingRisk, core.OrderOpen, core.OrderPartiallyFilled},
	})
}

// CreateFill appends an execution record, silently ignoring a duplicate
// fill_id (apply_fill's at-least-once delivery guard, spec.md §4.2).
func (s *MemoryStore) CreateFill(_ context.Context, env core.Environment, fill *core.Fill) error {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.fillIDs[fill.FillID] {
		return nil
	}
	p.fillIDs[fill.FillID] = true
	p.fills[fill.OrderID] = append(p.fills[fill.OrderID], fill)
	return nil
}

// GetFills returns every fill recorded against orderID.
func (s *MemoryStore) GetFills(_ context.Context, env core.Environment, orderID string) ([]*core.Fill, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*core.Fill(nil), p.fills[orderID]...), nil
}

// FillExists reports whether fillID has already been recorded.
func (s *MemoryStore) FillExists(_ context.Context, env core.Environment, fillID string) (bool, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return p.fillIDs[fillID], nil
}

// SaveBatch inserts instruments whose symbol is not already present;
// duplicates are silently dropped (spec.md §4.5).
func (s *MemoryStore) SaveBatch(_ context.Context, env core.Environment, instruments []*core.Instrument) error {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range instruments {
		if _, exists := p.bySymbol[inst.Symbol]; exists {
			continue
		}
		p.instruments[inst.ID] = inst
		p.bySymbol[inst.Symbol] = inst.ID
	}
	return nil
}

// GetInstrument returns instrument id's record.
func (s *MemoryStore) GetInstrument(_ context.Context, env core.Environment, id string) (*core.Instrument, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := p.instruments[id]
	if !ok {
		return nil, apperrors.NotFound("instrument %s not found", id)
	}
	return inst, nil
}

// GetBySymbol returns the instrument with the given canonical symbol.
func (s *MemoryStore) GetBySymbol(_ context.Context, env core.Environment, symbol string) (*core.Instrument, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := p.bySymbol[symbol]
	if !ok {
		return nil, apperrors.NotFound("instrument %s not found", symbol)
	}
	return p.instruments[id], nil
}

// ListByUnderlying returns every instrument for underlying.
func (s *MemoryStore) ListByUnderlying(_ context.Context, env core.Environment, underlying string) ([]*core.Instrument, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Instrument
	for _, inst := range p.instruments {
		if inst.Underlying.Symbol == underlying {
			out = append(out, inst)
		}
	}
	return out, nil
}

// UpdateActiveRange transitions instruments into/out of Active status
// per spec.md §4.5: in [min,max] with future expiry and Inactive ->
// Active; outside [min,max] and Active -> Inactive.
func (s *MemoryStore) UpdateActiveRange(_ context.Context, env core.Environment, underlying string, min, max decimal.Decimal) error {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, inst := range p.instruments {
		if inst.Underlying.Symbol != underlying {
			continue
		}
		inRange := !inst.Strike.Value.LessThan(min) && !inst.Strike.Value.GreaterThan(max)
		switch {
		case inRange && inst.Status == core.InstrumentInactive && inst.Expiry.After(now):
			inst.Status = core.InstrumentActive
			inst.UpdatedAt = now
		case !inRange && inst.Status == core.InstrumentActive:
			inst.Status = core.InstrumentInactive
			inst.UpdatedAt = now
		}
	}
	return nil
}

// MarkExpiredByTime transitions every instrument whose expiry has
// passed asOf to Expired, returning the count transitioned.
func (s *MemoryStore) MarkExpiredByTime(_ context.Context, env core.Environment, asOf time.Time) (int, error) {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, inst := range p.instruments {
		if inst.Status != core.InstrumentExpired && !inst.Expiry.After(asOf) {
			inst.Status = core.InstrumentExpired
			inst.UpdatedAt = asOf
			count++
		}
	}
	return count, nil
}

// UpdateStatus forces an instrument's status, bypassing the active-range
// state machine (used for manual suspension/settlement).
func (s *MemoryStore) UpdateStatus(_ context.Context, env core.Environment, id string, status core.InstrumentStatus) error {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := p.instruments[id]
	if !ok {
		return apperrors.NotFound("instrument %s not found", id)
	}
	inst.Status = status
	inst.UpdatedAt = time.Now()
	return nil
}

// GetGenerationState returns asset's displacement state, or nil if no
// cycle has run yet.
func (s *MemoryStore) GetGenerationState(_ context.Context, env core.Environment, asset string) (*core.GenerationState, error) {
	p := s.partition(env)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return p.generationState[asset], nil
}

// SaveGenerationState persists asset's displacement state.
func (s *MemoryStore) SaveGenerationState(_ context.Context, env core.Environment, state *core.GenerationState) error {
	p := s.partition(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *state
	p.generationState[state.Asset] = &saved
	return nil
}

var (
	_ core.OrderStore           = (*MemoryStore)(nil)
	_ core.InstrumentStore      = (*MemoryStore)(nil)
	_ core.GenerationStateStore = (*MemoryStore)(nil)
)
