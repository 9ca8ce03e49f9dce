package matching

import (
	"context"
	"sync"

	"optionscore/internal/apperrors"
	"optionscore/internal/book"
	"optionscore/internal/core"
	"optionscore/pkg/concurrency"
)

// Dispatcher wraps an Engine with one bounded worker pool per
// instrument, implementing spec.md §5's concurrency model: up to
// maxWorkers goroutines per instrument drawn from a capped pool, rather
// than one goroutine per inbound order. The Engine's own per-instrument
// mutex already guarantees correctness under concurrent access; the
// pool adds the resource bound spec.md §5 actually asks for —
// submission past matching_pool_buffer fails fast with
// apperrors.KindOverloaded (core.OutcomeRejectedOverloaded) instead of
// queuing unboundedly. Grounded on pkg/concurrency.WorkerPool
// (`github.com/alitto/pond`), matching the teacher's own per-symbol
// pool-per-unit dispatch in internal/engine/gridengine.
type Dispatcher struct {
	engine *Engine
	logger core.ILogger

	maxWorkers int
	buffer     int

	mu    sync.Mutex
	pools map[string]*concurrency.WorkerPool
}

// NewDispatcher wraps engine with per-instrument pools sized by
// maxWorkers/buffer (config.ConcurrencyConfig's matching_pool_size /
// matching_pool_buffer).
func NewDispatcher(engine *Engine, maxWorkers, buffer int, logger core.ILogger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Dispatcher{
		engine:     engine,
		logger:     logger,
		maxWorkers: maxWorkers,
		buffer:     buffer,
		pools:      make(map[string]*concurrency.WorkerPool),
	}
}

func (d *Dispatcher) poolFor(instrumentID string) *concurrency.WorkerPool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pools[instrumentID]; ok {
		return p
	}
	p := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "matching-" + instrumentID,
		MaxWorkers:  d.maxWorkers,
		MaxCapacity: d.buffer,
		NonBlocking: true,
	}, d.logger)
	d.pools[instrumentID] = p
	return p
}

// MatchOrder submits order to instrumentID's pool and blocks for its
// result, failing fast with apperrors.Overloaded if the pool's queue
// is already full.
func (d *Dispatcher) MatchOrder(ctx context.Context, instrumentID string, order *core.Order) (core.MatchResult, error) {
	type outcome struct {
		result core.MatchResult
		err    error
	}
	done := make(chan outcome, 1)
	err := d.poolFor(instrumentID).Submit(func() {
		result, err := d.engine.MatchOrder(ctx, instrumentID, order)
		done <- outcome{result, err}
	})
	if err != nil {
		return core.MatchResult{}, apperrors.Overloaded(instrumentID)
	}
	out := <-done
	return out.result, out.err
}

// CancelOrder submits a cancellation to instrumentID's pool.
func (d *Dispatcher) CancelOrder(ctx context.Context, instrumentID, orderID string) (bool, error) {
	type outcome struct {
		found bool
		err   error
	}
	done := make(chan outcome, 1)
	err := d.poolFor(instrumentID).Submit(func() {
		found, err := d.engine.CancelOrder(ctx, instrumentID, orderID)
		done <- outcome{found, err}
	})
	if err != nil {
		return false, apperrors.Overloaded(instrumentID)
	}
	out := <-done
	return out.found, out.err
}

// Sequence and SetSequence pass straight through — they're cheap reads
// of engine-owned state, not worth pool dispatch.
func (d *Dispatcher) Sequence(instrumentID string) uint64 { return d.engine.Sequence(instrumentID) }

func (d *Dispatcher) SetSequence(instrumentID string, n uint64) {
	d.engine.SetSequence(instrumentID, n)
}

// BookSnapshot passes straight through — a read of engine-owned
// state, not worth pool dispatch.
func (d *Dispatcher) BookSnapshot(instrumentID string, depth int) book.Snapshot {
	return d.engine.BookSnapshot(instrumentID, depth)
}

// Stop drains every instrument's pool.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pools {
		p.Stop()
	}
}

var _ core.MatchingEngine = (*Dispatcher)(nil)
