// Package metrics exposes the engine's Prometheus instrumentation and the
// HTTP server that serves it
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine holds Prometheus metrics for the trading engine
type Engine struct {
	DecisionTicks     prometheus.Counter
	ExitScans         prometheus.Counter
	Decisions         *prometheus.CounterVec // by signal
	PositionsOpened   *prometheus.CounterVec // by side
	PositionsClosed   *prometheus.CounterVec // by reason
	Rejections        *prometheus.CounterVec // by kind
	OpenPositions     prometheus.Gauge
	AvailableBalance  prometheus.Gauge
	TotalPnL          prometheus.Gauge
	DayPnL            prometheus.Gauge
	Halted            prometheus.Gauge
	IndicatorDuration prometheus.Histogram
	CommandQueueDepth prometheus.Gauge
}

// Singleton to avoid Prometheus duplicate registration across engine
// instances in one process (tests build several engines)
var (
	engineInstance *Engine
	engineOnce     sync.Once
)

// ForEngine returns the process-wide engine metrics
func ForEngine() *Engine {
	engineOnce.Do(func() {
		engineInstance = &Engine{
			DecisionTicks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scalpd_decision_ticks_total",
				Help: "Total decision loop ticks",
			}),
			ExitScans: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scalpd_exit_scans_total",
				Help: "Total exit monitor scans",
			}),
			Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scalpd_decisions_total",
				Help: "Signals synthesized by outcome",
			}, []string{"signal"}),
			PositionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scalpd_positions_opened_total",
				Help: "Positions opened by side",
			}, []string{"side"}),
			PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scalpd_positions_closed_total",
				Help: "Positions closed by reason",
			}, []string{"reason"}),
			Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scalpd_risk_rejections_total",
				Help: "Entries refused by the risk gate, by kind",
			}, []string{"kind"}),
			OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scalpd_open_positions",
				Help: "Currently open positions",
			}),
			AvailableBalance: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scalpd_available_balance",
				Help: "Available paper balance",
			}),
			TotalPnL: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scalpd_total_pnl",
				Help: "Cumulative realized PnL",
			}),
			DayPnL: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scalpd_day_pnl",
				Help: "Realized PnL for the current UTC day",
			}),
			Halted: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scalpd_engine_halted",
				Help: "1 when the engine has halted on an invariant violation",
			}),
			IndicatorDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "scalpd_indicator_compute_seconds",
				Help:    "Duration of per-symbol indicator recomputes",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			}),
			CommandQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scalpd_command_queue_depth",
				Help: "Commands waiting for the engine writer loop",
			}),
		}
	})
	return engineInstance
}
