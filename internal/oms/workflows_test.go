package oms

import (
	"context"
	"testing"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionscore/internal/core"
)

// fakeDBOSContext runs the step function directly and returns its
// result, grounded on the teacher's MockDBOSContext embedding trick
// (internal/engine/durable/workflow_test.go) but simplified: our
// workflows have a single step per call, so there is no canned
// per-step result/error script to drive, just pass-through execution.
type fakeDBOSContext struct {
	dbos.DBOSContext
}

func (f *fakeDBOSContext) RunAsStep(_ dbos.DBOSContext, fn dbos.StepFunc, _ ...dbos.StepOption) (any, error) {
	return fn(context.Background())
}

func TestWorkflowsSubmitOrderRunsPipelineAsStep(t *testing.T) {
	mgr, _, _, matching := testManager()
	matching.result = core.MatchResult{Outcome: core.OutcomeRested}
	w := NewWorkflows(mgr)

	out, err := w.SubmitOrder(&fakeDBOSContext{}, submitOrderInput{Env: core.EnvProd, Order: testLimitOrder("user-1")})
	require.NoError(t, err)
	require.NotNil(t, out.Order)
	assert.Equal(t, core.OrderOpen, out.Order.Status)
}

func TestWorkflowsCancelOrderRunsPipelineAsStep(t *testing.T) {
	mgr, s, _, matching := testManager()
	ctx := context.Background()
	order := testLimitOrder("user-1")
	order.OrderID = "order-1"
	order.Status = core.OrderOpen
	require.NoError(t, s.CreateOrder(ctx, core.EnvProd, order))
	w := NewWorkflows(mgr)

	out, err := w.CancelOrder(&fakeDBOSContext{}, cancelOrderInput{Env: core.EnvProd, OrderID: "order-1"})
	require.NoError(t, err)
	require.NotNil(t, out.Order)
	assert.Equal(t, core.OrderCancelled, out.Order.Status)
	assert.Contains(t, matching.cancelled, "order-1")
}
