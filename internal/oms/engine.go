package oms

import (
	"context"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"optionscore/internal/core"
)

// Engine owns the DBOS runtime and exposes the OMS's durable public
// API, grounded on internal/engine/durable/engine.go's DBOSEngine: a
// thin wrapper that launches/shuts down a dbos.DBOSContext and drives
// every mutating call through RunWorkflow+GetResult so it survives a
// process restart mid-pipeline. Query methods bypass DBOS entirely —
// they're pure reads with nothing to replay.
type Engine struct {
	dbosCtx   dbos.DBOSContext
	workflows *Workflows
	mgr       *Manager
	logger    core.ILogger
}

// NewEngine wires an Engine around an already-constructed DBOSContext
// and the Workflows instance that was registered against it.
// Constructing dbosCtx itself (registering workflows, pointing it at
// the system database) is a bootstrap-layer concern left to the
// caller, exactly as NewDBOSEngine takes a pre-built dbosCtx rather
// than building one itself — workflows is taken as a parameter rather
// than built fresh here so the registered function values and the
// ones RunWorkflow dispatches through are the same instance.
func NewEngine(dbosCtx dbos.DBOSContext, workflows *Workflows, mgr *Manager, logger core.ILogger) *Engine {
	return &Engine{
		dbosCtx:   dbosCtx,
		workflows: workflows,
		mgr:       mgr,
		logger:    logger.WithField("component", "oms_engine"),
	}
}

// Start launches the DBOS runtime so queued/in-flight workflows resume.
func (e *Engine) Start(_ context.Context) error {
	return e.dbosCtx.Launch()
}

// Stop drains the DBOS runtime, giving in-flight steps time to finish.
func (e *Engine) Stop(_ context.Context) error {
	return e.dbosCtx.Shutdown(30 * time.Second)
}

// SubmitOrder durably runs the submit pipeline (spec.md §4.2).
func (e *Engine) SubmitOrder(ctx context.Context, env core.Environment, order *core.Order) (*core.Order, error) {
	handle, err := e.dbosCtx.RunWorkflow(e.dbosCtx, e.workflows.SubmitOrder, submitOrderInput{Env: env, Order: order})
	if err != nil {
		return nil, err
	}
	out, err := handle.GetResult()
	if err != nil {
		return nil, err
	}
	return out.Order, nil
}

// CancelOrder durably runs the cancel pipeline (spec.md §4.2).
func (e *Engine) CancelOrder(ctx context.Context, env core.Environment, orderID string) (*core.Order, error) {
	handle, err := e.dbosCtx.RunWorkflow(e.dbosCtx, e.workflows.CancelOrder, cancelOrderInput{Env: env, OrderID: orderID})
	if err != nil {
		return nil, err
	}
	out, err := handle.GetResult()
	if err != nil {
		return nil, err
	}
	return out.Order, nil
}

// GetOrder, ListOrders, GetActiveOrders, and GetFills pass straight
// through to the Manager: pure reads need no workflow wrapper.
func (e *Engine) GetOrder(ctx context.Context, env core.Environment, orderID string) (*core.Order, error) {
	return e.mgr.GetOrder(ctx, env, orderID)
}

func (e *Engine) ListOrders(ctx context.Context, env core.Environment, filter core.OrderFilter) ([]*core.Order, error) {
	return e.mgr.ListOrders(ctx, env, filter)
}

func (e *Engine) GetActiveOrders(ctx context.Context, env core.Environment, userID string) ([]*core.Order, error) {
	return e.mgr.GetActiveOrders(ctx, env, userID)
}

func (e *Engine) GetFills(ctx context.Context, env core.Environment, orderID string) ([]*core.Fill, error) {
	return e.mgr.GetFills(ctx, env, orderID)
}

// OrderService is the OMS's public surface, satisfied by both the
// plain Manager (engine_type memory/sqlite) and the durable Engine
// (engine_type dbos) so the composition root can swap implementations
// without the rest of the process caring which is underneath.
type OrderService interface {
	SubmitOrder(ctx context.Context, env core.Environment, order *core.Order) (*core.Order, error)
	CancelOrder(ctx context.Context, env core.Environment, orderID string) (*core.Order, error)
	GetOrder(ctx context.Context, env core.Environment, orderID string) (*core.Order, error)
	ListOrders(ctx context.Context, env core.Environment, filter core.OrderFilter) ([]*core.Order, error)
	GetActiveOrders(ctx context.Context, env core.Environment, userID string) ([]*core.Order, error)
	GetFills(ctx context.Context, env core.Environment, orderID string) ([]*core.Fill, error)
}

var _ OrderService = (*Engine)(nil)
var _ OrderService = (*Manager)(nil)
