package oms

import (
	"context"
	"sync"
	"time"

	"optionscore/internal/apperrors"
	"optionscore/internal/core"
	"optionscore/pkg/retry"
)

// unconfirmedOpenRetryPolicy bounds the in-sweep retries of a single
// stale order's matching submission; once they are exhausted the sweep
// cancels the order and releases its margin.
var unconfirmedOpenRetryPolicy = retry.RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     1 * time.Second,
}

// dayOrderMaxAge bounds how long a DAY order may sit Open before
// the reconciliation sweep treats it as past its trading session's
// close. Nothing in the config surface models an exchange calendar or
// session-boundary clock, so a fixed 24h age is used as the practical
// stand-in for "past session close" — documented as an Open Question
// decision in DESIGN.md.
const dayOrderMaxAge = 24 * time.Hour

// Reconciler runs the background sweep of spec.md §4.8 across every
// environment it's told to watch, grounded on
// internal/risk/reconciler.go's start/stop/run-loop shape: a
// cancellable goroutine ticking on a fixed interval, with Start/Stop
// safe to call once each.
type Reconciler struct {
	mgr    *Manager
	envs   []core.Environment
	logger core.ILogger

	pendingRiskTimeout time.Duration
	meConfirmTimeout   time.Duration
	interval           time.Duration

	clock Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciler builds a Reconciler from the OMS config's reconcile
// and timeout fields (spec.md §6.4/§4.8).
func NewReconciler(mgr *Manager, envs []core.Environment, logger core.ILogger, reconcileIntervalSeconds, pendingRiskTimeoutSeconds, meConfirmTimeoutSeconds int) *Reconciler {
	return &Reconciler{
		mgr:                mgr,
		envs:               envs,
		logger:             logger.WithField("component", "oms_reconciler"),
		interval:           time.Duration(reconcileIntervalSeconds) * time.Second,
		pendingRiskTimeout: time.Duration(pendingRiskTimeoutSeconds) * time.Second,
		meConfirmTimeout:   time.Duration(meConfirmTimeoutSeconds) * time.Second,
		clock:              realClock{},
	}
}

// Start spawns the sweep loop. Calling Start twice without an
// intervening Stop is a caller error.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.runLoop(loopCtx)
	return nil
}

// Stop cancels the sweep loop and waits for the current pass to finish.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs all three sub-sweeps of spec.md §4.8 once, across every
// configured environment. Failures on one order never abort the rest
// of the sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	now := r.clock.Now()
	for _, env := range r.envs {
		r.sweepPendingRisk(ctx, env, now)
		r.sweepUnconfirmedOpen(ctx, env, now)
		r.sweepExpiredTimeInForce(ctx, env, now)
	}
	return nil
}

// sweepPendingRisk retries the risk check for orders stuck in
// PendingRisk older than pending_risk_timeout (spec.md §4.8 bullet 1:
// "PendingRisk older than pending_risk_timeout: retry Risk.").
func (r *Reconciler) sweepPendingRisk(ctx context.Context, env core.Environment, now time.Time) {
	orders, err := r.mgr.ListOrders(ctx, env, core.OrderFilter{Status: []core.OrderStatus{core.OrderPendingRisk}})
	if err != nil {
		r.logger.Error("list pending-risk orders failed", "env", env, "error", err)
		return
	}
	for _, order := range orders {
		if now.Sub(order.UpdatedAt) < r.pendingRiskTimeout {
			continue
		}
		if _, err := r.mgr.advanceFromPendingRisk(ctx, env, order); err != nil {
			r.logger.Warn("retry risk check failed", "order_id", order.OrderID, "error", err)
		}
	}
}

// sweepUnconfirmedOpen retries (or gives up on) orders that reached
// Open but were never stamped with a matching-engine sequence number
// (spec.md §4.8 bullet 2: "Open with no matching-engine confirmation
// older than me_confirm_timeout: retry submit; on repeated failure,
// cancel and release margin."). Sequence == 0 is the concrete signal
// that submitToMatching never completed for this order.
func (r *Reconciler) sweepUnconfirmedOpen(ctx context.Context, env core.Environment, now time.Time) {
	orders, err := r.mgr.ListOrders(ctx, env, core.OrderFilter{Status: []core.OrderStatus{core.OrderOpen}})
	if err != nil {
		r.logger.Error("list open orders failed", "env", env, "error", err)
		return
	}
	for _, order := range orders {
		if order.Sequence != 0 {
			continue
		}
		if now.Sub(order.UpdatedAt) < r.meConfirmTimeout {
			continue
		}
		retryErr := retry.Do(ctx, unconfirmedOpenRetryPolicy, apperrors.Retryable, func() error {
			_, err := r.mgr.submitToMatching(ctx, env, order)
			return err
		})
		if retryErr != nil {
			r.logger.Warn("retry matching submission failed, cancelling", "order_id", order.OrderID, "error", retryErr)
			if _, cErr := r.mgr.CancelOrder(ctx, env, order.OrderID); cErr != nil {
				r.logger.Error("cancel-and-release after persistent matching failure failed", "order_id", order.OrderID, "error", cErr)
			}
		}
	}
}

// sweepExpiredTimeInForce cancels and releases margin for DAY orders
// past session close, and defensively for any IOC/FOK order that
// somehow still shows Open (spec.md §4.8 bullet 3) — the synchronous
// design means IOC/FOK should never actually reach this state, but
// the sweep covers it in case a future asynchronous matching path
// leaves one behind.
func (r *Reconciler) sweepExpiredTimeInForce(ctx context.Context, env core.Environment, now time.Time) {
	statuses := []core.OrderStatus{core.OrderOpen, core.OrderPartiallyFilled}
	orders, err := r.mgr.ListOrders(ctx, env, core.OrderFilter{Status: statuses})
	if err != nil {
		r.logger.Error("list resting orders failed", "env", env, "error", err)
		return
	}
	for _, order := range orders {
		expired := false
		switch order.TimeInForce {
		case core.DAY:
			expired = now.Sub(order.CreatedAt) > dayOrderMaxAge
		case core.IOC, core.FOK:
			expired = true
		}
		if !expired {
			continue
		}
		if _, err := r.mgr.CancelOrder(ctx, env, order.OrderID); err != nil {
			r.logger.Warn("expire-and-cancel failed", "order_id", order.OrderID, "error", err)
		}
	}
}
