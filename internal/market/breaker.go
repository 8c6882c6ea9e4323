package market

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Circuit breaker thresholds for the upstream market data venue
const (
	SourceMinRequests     = 5                // Minimum requests before tripping
	SourceFailureRatio    = 0.6              // Failure ratio threshold (60%)
	SourceOpenTimeout     = 30 * time.Second // How long circuit stays open
	SourceHalfOpenMaxReqs = 3                // Max requests in half-open state
	SourceCountInterval   = 10 * time.Second // Window for counting failures
)

// BreakerSettings holds circuit breaker configuration for the data source
type BreakerSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultBreakerSettings returns the default venue breaker thresholds
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     SourceMinRequests,
		FailureRatio:    SourceFailureRatio,
		OpenTimeout:     SourceOpenTimeout,
		HalfOpenMaxReqs: SourceHalfOpenMaxReqs,
		CountInterval:   SourceCountInterval,
	}
}

// BreakerSource wraps a MarketDataSource with a circuit breaker so a failing
// venue is given time to recover instead of being hammered. Permanent
// per-symbol errors (unknown symbol, bad credentials) do not count against
// venue health; only transient and rate-limit failures trip the breaker.
type BreakerSource struct {
	upstream MarketDataSource
	cb       *gobreaker.CircuitBreaker
	metrics  *MarketMetrics
	logger   zerolog.Logger
}

// NewBreakerSource wraps upstream with a circuit breaker
func NewBreakerSource(upstream MarketDataSource, settings BreakerSettings) *BreakerSource {
	if settings.MinRequests == 0 {
		settings = DefaultBreakerSettings()
	}

	logger := log.With().Str("component", "market_breaker").Logger()
	metrics := getOrCreateMarketMetrics()

	s := &BreakerSource{
		upstream: upstream,
		metrics:  metrics,
		logger:   logger,
	}

	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market_source",
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Symbol-level errors say nothing about venue health
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.updateStateMetric(to)
			evt := logger.Info()
			if to == gobreaker.StateOpen {
				evt = logger.Warn()
			}
			evt.
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Market data circuit breaker state changed")
		},
	})

	s.updateStateMetric(s.cb.State())

	return s
}

// NewPassthroughBreakerSource wraps upstream with a breaker that never trips.
// Useful in tests that exercise other failure handling without the breaker
// interfering.
func NewPassthroughBreakerSource(upstream MarketDataSource) *BreakerSource {
	s := &BreakerSource{
		upstream: upstream,
		metrics:  getOrCreateMarketMetrics(),
		logger:   log.With().Str("component", "market_breaker").Logger(),
	}

	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market_source_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return false // Never trip
		},
	})

	return s
}

// Latest fetches quotes through the circuit breaker
func (s *BreakerSource) Latest(ctx context.Context, symbols []string) (map[string]Quote, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.upstream.Latest(ctx, symbols)
	})
	s.recordResult(err)
	if err != nil {
		return nil, s.wrapBreakerErr(err)
	}
	return result.(map[string]Quote), nil
}

// History fetches candles through the circuit breaker
func (s *BreakerSource) History(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.upstream.History(ctx, symbol, limit)
	})
	s.recordResult(err)
	if err != nil {
		return nil, s.wrapBreakerErr(err)
	}
	return result.([]Candle), nil
}

// Close closes the upstream source
func (s *BreakerSource) Close() error {
	return s.upstream.Close()
}

// State returns the current breaker state
func (s *BreakerSource) State() gobreaker.State {
	return s.cb.State()
}

// wrapBreakerErr converts breaker rejections into transient source errors so
// callers back off the same way they do for any upstream outage
func (s *BreakerSource) wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &SourceError{Kind: KindTransient, Err: err}
	}
	return err
}

func (s *BreakerSource) recordResult(err error) {
	result := "success"
	if err != nil && !IsPermanent(err) {
		result = "failure"
	}
	s.metrics.SourceRequests.WithLabelValues(result).Inc()
}

func (s *BreakerSource) updateStateMetric(state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	s.metrics.BreakerState.Set(stateValue)
}
