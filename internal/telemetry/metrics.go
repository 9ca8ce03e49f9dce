package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricOrdersSubmittedTotal = "exchange_orders_submitted_total"
	MetricOrdersRejectedTotal  = "exchange_orders_rejected_total"
	MetricOrdersCancelledTotal = "exchange_orders_cancelled_total"
	MetricFillsTotal           = "exchange_fills_total"
	MetricTradeVolumeTotal     = "exchange_trade_volume_total"
	MetricMatchLatency         = "exchange_match_latency_ms"
	MetricReconcileDuration    = "exchange_reconciliation_duration_ms"
	MetricRiskRejectedTotal    = "exchange_risk_rejected_total"
	MetricLiquidationsTotal    = "exchange_liquidations_triggered_total"
	MetricCircuitBreakerOpen   = "exchange_circuit_breaker_open"
	MetricOrderBookDepth       = "exchange_order_book_depth"
	MetricWorkerQueueDepth     = "exchange_worker_queue_depth"
	MetricInstrumentsGenerated = "exchange_instruments_generated_total"
	MetricFreeMarginRatio      = "exchange_free_margin_ratio"
)

// MetricsHolder holds initialized instruments for the exchange core.
type MetricsHolder struct {
	OrdersSubmittedTotal metric.Int64Counter
	OrdersRejectedTotal  metric.Int64Counter
	OrdersCancelledTotal metric.Int64Counter
	FillsTotal           metric.Int64Counter
	TradeVolumeTotal     metric.Float64Counter
	MatchLatency         metric.Float64Histogram
	ReconcileDuration    metric.Float64Histogram
	RiskRejectedTotal    metric.Int64Counter
	LiquidationsTotal    metric.Int64Counter
	InstrumentsGenerated metric.Int64Counter

	CircuitBreakerOpen metric.Int64ObservableGauge
	OrderBookDepth     metric.Int64ObservableGauge
	WorkerQueueDepth   metric.Int64ObservableGauge
	FreeMarginRatio    metric.Float64ObservableGauge

	mu             sync.RWMutex
	cbOpenMap      map[string]int64
	bookDepthMap   map[string]int64
	workerQueueMap map[string]int64
	freeMarginMap  map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the process-wide metrics singleton.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			cbOpenMap:      make(map[string]int64),
			bookDepthMap:   make(map[string]int64),
			workerQueueMap: make(map[string]int64),
			freeMarginMap:  make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics creates every instrument against the given meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.OrdersSubmittedTotal, err = meter.Int64Counter(MetricOrdersSubmittedTotal,
		metric.WithDescription("Total orders accepted for submission")); err != nil {
		return err
	}
	if m.OrdersRejectedTotal, err = meter.Int64Counter(MetricOrdersRejectedTotal,
		metric.WithDescription("Total orders rejected before reaching the book")); err != nil {
		return err
	}
	if m.OrdersCancelledTotal, err = meter.Int64Counter(MetricOrdersCancelledTotal,
		metric.WithDescription("Total orders cancelled")); err != nil {
		return err
	}
	if m.FillsTotal, err = meter.Int64Counter(MetricFillsTotal,
		metric.WithDescription("Total fills generated by the matching engine")); err != nil {
		return err
	}
	if m.TradeVolumeTotal, err = meter.Float64Counter(MetricTradeVolumeTotal,
		metric.WithDescription("Total traded notional")); err != nil {
		return err
	}
	if m.MatchLatency, err = meter.Float64Histogram(MetricMatchLatency,
		metric.WithDescription("Time spent inside MatchOrder"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if m.ReconcileDuration, err = meter.Float64Histogram(MetricReconcileDuration,
		metric.WithDescription("Duration of a reconciliation sweep pass"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if m.RiskRejectedTotal, err = meter.Int64Counter(MetricRiskRejectedTotal,
		metric.WithDescription("Total orders rejected by the risk engine")); err != nil {
		return err
	}
	if m.LiquidationsTotal, err = meter.Int64Counter(MetricLiquidationsTotal,
		metric.WithDescription("Total liquidation triggers raised")); err != nil {
		return err
	}
	if m.InstrumentsGenerated, err = meter.Int64Counter(MetricInstrumentsGenerated,
		metric.WithDescription("Total instruments created by a generation cycle")); err != nil {
		return err
	}

	m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen,
		metric.WithDescription("Circuit breaker state per instrument (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for id, val := range m.cbOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("instrument_id", id)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.OrderBookDepth, err = meter.Int64ObservableGauge(MetricOrderBookDepth,
		metric.WithDescription("Number of resting orders per instrument"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for id, val := range m.bookDepthMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("instrument_id", id)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.WorkerQueueDepth, err = meter.Int64ObservableGauge(MetricWorkerQueueDepth,
		metric.WithDescription("Queued tasks per instrument worker"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for id, val := range m.workerQueueMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("instrument_id", id)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.FreeMarginRatio, err = meter.Float64ObservableGauge(MetricFreeMarginRatio,
		metric.WithDescription("free_margin / equity per user, last observed"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for userID, val := range m.freeMarginMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("user_id", userID)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

func (m *MetricsHolder) SetCircuitBreakerOpen(instrumentID string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbOpenMap[instrumentID] = val
}

func (m *MetricsHolder) SetOrderBookDepth(instrumentID string, depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookDepthMap[instrumentID] = depth
}

func (m *MetricsHolder) SetWorkerQueueDepth(instrumentID string, depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workerQueueMap[instrumentID] = depth
}

func (m *MetricsHolder) SetFreeMarginRatio(userID string, ratio float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeMarginMap[userID] = ratio
}
