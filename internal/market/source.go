package market

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies upstream market data failures so the ingestor can
// decide between retrying and quarantining a symbol
type ErrorKind string

const (
	// KindNotFound means the symbol does not exist upstream (permanent)
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindUnauthorized means the upstream rejected our access (permanent)
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	// KindRateLimited means the upstream throttled us (retryable)
	KindRateLimited ErrorKind = "RATE_LIMITED"
	// KindTransient covers network and upstream hiccups (retryable)
	KindTransient ErrorKind = "TRANSIENT"
)

// SourceError is a classified market data failure
type SourceError struct {
	Kind   ErrorKind
	Symbol string // empty for whole-batch failures
	Err    error
}

func (e *SourceError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("market source %s for %s: %v", e.Kind, e.Symbol, e.Err)
	}
	return fmt.Sprintf("market source %s: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError wraps err with a classification
func NewSourceError(kind ErrorKind, symbol string, err error) *SourceError {
	return &SourceError{Kind: kind, Symbol: symbol, Err: err}
}

// IsPermanent reports whether err is a source failure that retrying cannot
// fix, meaning the symbol should be quarantined
func IsPermanent(err error) bool {
	var se *SourceError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindNotFound || se.Kind == KindUnauthorized
}

// IsRateLimited reports whether err is an upstream throttle
func IsRateLimited(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == KindRateLimited
}

// MarketDataSource supplies quotes and historical candles. Implementations
// must be safe for concurrent use. Latest is batched: one call covers the
// whole watchlist; symbols missing from the result simply had no data this
// cycle and must not fail the batch.
type MarketDataSource interface {
	// Latest returns the most recent quote for each requested symbol
	Latest(ctx context.Context, symbols []string) (map[string]Quote, error)
	// History returns up to limit recent candles, oldest first
	History(ctx context.Context, symbol string, limit int) ([]Candle, error)
	// Close releases underlying connections
	Close() error
}
