package oms

import (
	"context"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"optionscore/internal/core"
)

// submitOrderInput/cancelOrderInput/applyFillInput are the payloads
// carried through dbos.RunWorkflow — plain structs so the durability
// layer can serialize and replay them across a restart.
type submitOrderInput struct {
	Env   core.Environment
	Order *core.Order
}

type submitOrderOutput struct {
	Order *core.Order
}

type cancelOrderInput struct {
	Env     core.Environment
	OrderID string
}

type cancelOrderOutput struct {
	Order *core.Order
}

// Workflows wraps Manager's pipeline methods as DBOS steps, grounded
// on internal/engine/durable/workflow.go's TradingWorkflows: each
// workflow method runs the same plain logic inside a single
// ctx.RunAsStep, so a workflow whose step has completed returns the
// recorded result after a restart instead of running the pipeline again.
type Workflows struct {
	mgr *Manager
}

// NewWorkflows wraps mgr for DBOS registration.
func NewWorkflows(mgr *Manager) *Workflows {
	return &Workflows{mgr: mgr}
}

// SubmitOrder is the dbos.Workflow registered for order submission.
// The whole pipeline (validate, persist, risk check, matching
// submission) is one step: a restart before that step completes runs
// Manager.SubmitOrder again from the start.
func (w *Workflows) SubmitOrder(ctx dbos.DBOSContext, input submitOrderInput) (submitOrderOutput, error) {
	result, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return w.mgr.SubmitOrder(stepCtx, input.Env, input.Order)
	})
	if err != nil {
		return submitOrderOutput{}, err
	}
	order, _ := result.(*core.Order)
	return submitOrderOutput{Order: order}, nil
}

// CancelOrder is the dbos.Workflow registered for order cancellation.
func (w *Workflows) CancelOrder(ctx dbos.DBOSContext, input cancelOrderInput) (cancelOrderOutput, error) {
	result, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return w.mgr.CancelOrder(stepCtx, input.Env, input.OrderID)
	})
	if err != nil {
		return cancelOrderOutput{}, err
	}
	order, _ := result.(*core.Order)
	return cancelOrderOutput{Order: order}, nil
}
