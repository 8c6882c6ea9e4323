package market

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MarketMetrics holds Prometheus metrics for the market data pipeline
type MarketMetrics struct {
	IngestCycles       prometheus.Counter
	QuotesIngested     prometheus.Counter
	FetchErrors        *prometheus.CounterVec
	FetchDuration      prometheus.Histogram
	WatchedSymbols     prometheus.Gauge
	QuarantinedSymbols prometheus.Gauge
	BreakerState       prometheus.Gauge
	SourceRequests     *prometheus.CounterVec
}

// Global metrics instance (singleton pattern to avoid Prometheus registration conflicts)
var (
	marketMetricsInstance *MarketMetrics
	marketMetricsOnce     sync.Once
)

// getOrCreateMarketMetrics returns the singleton metrics instance
// Uses sync.Once to ensure metrics are registered only once globally
func getOrCreateMarketMetrics() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketMetricsInstance = &MarketMetrics{
			IngestCycles: promauto.NewCounter(prometheus.CounterOpts{
				Name: "market_ingest_cycles_total",
				Help: "Total number of completed ingest cycles",
			}),
			QuotesIngested: promauto.NewCounter(prometheus.CounterOpts{
				Name: "market_quotes_ingested_total",
				Help: "Total number of quotes ingested into candle buffers",
			}),
			FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "market_fetch_errors_total",
				Help: "Total number of market data fetch errors by kind",
			}, []string{"kind"}),
			FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "market_fetch_duration_seconds",
				Help:    "Duration of batched quote fetches",
				Buckets: prometheus.DefBuckets,
			}),
			WatchedSymbols: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "market_watched_symbols",
				Help: "Number of symbols currently polled for quotes",
			}),
			QuarantinedSymbols: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "market_quarantined_symbols",
				Help: "Number of symbols excluded from polling after permanent errors",
			}),
			BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "market_breaker_state",
				Help: "Market data circuit breaker state (0=closed, 1=open, 2=half_open)",
			}),
			SourceRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "market_source_requests_total",
				Help: "Total number of requests through the market data breaker",
			}, []string{"result"}),
		}
	})
	return marketMetricsInstance
}
