package market

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Ingest loop timing
const (
	DefaultPollInterval    = 10 * time.Second
	DefaultSeedLimit       = 200
	backoffBase            = 1 * time.Second
	backoffCap             = 30 * time.Second
	isolationAfter         = 3 // consecutive batch failures before per-symbol probing
	defaultSeedConcurrency = 4
)

// IngestorOptions configures the market data ingest loop
type IngestorOptions struct {
	// PollInterval is the base delay between quote batches. Divided by
	// Scaling, so tests can run the loop at millisecond speed.
	PollInterval time.Duration
	// Scaling divides every interval in the loop. 1.0 means real time.
	Scaling float64
	// SeedLimit is how many historical candles to request when a symbol
	// first joins the watchlist.
	SeedLimit int
	// CandleBucket is the synthetic candle bucket width.
	CandleBucket time.Duration
	// SeedConcurrency bounds parallel history fetches during seeding.
	SeedConcurrency int
	// OnIngest, when set, is invoked after each candle lands in a buffer.
	OnIngest func(symbol string, candle Candle)
}

func (o *IngestorOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Scaling <= 0 {
		o.Scaling = 1.0
	}
	if o.SeedLimit <= 0 {
		o.SeedLimit = DefaultSeedLimit
	}
	if o.CandleBucket <= 0 {
		o.CandleBucket = time.Minute
	}
	if o.SeedConcurrency <= 0 {
		o.SeedConcurrency = defaultSeedConcurrency
	}
}

type symbolState struct {
	seeded     bool
	quarantine string // non-empty means excluded from polling, value is the reason
}

// Ingestor polls a MarketDataSource for the watchlist, buckets quotes into
// synthetic candles, and maintains the per-symbol candle buffers. Symbols
// that fail with permanent errors are quarantined rather than retried, so
// one bad symbol cannot poison the shared batch request.
type Ingestor struct {
	source  MarketDataSource
	buffers *Buffers
	opts    IngestorOptions
	logger  zerolog.Logger
	metrics *MarketMetrics

	mu       sync.Mutex
	watch    map[string]*symbolState
	failures int // consecutive batch failures
}

// NewIngestor creates an ingestor over the given source and buffer registry.
// Initial symbols are seeded lazily on the first cycles so a venue outage at
// startup delays data, not the process.
func NewIngestor(source MarketDataSource, buffers *Buffers, symbols []string, opts IngestorOptions) *Ingestor {
	opts.setDefaults()

	watch := make(map[string]*symbolState, len(symbols))
	for _, sym := range symbols {
		watch[normalizeSymbol(sym)] = &symbolState{}
	}

	ing := &Ingestor{
		source:  source,
		buffers: buffers,
		opts:    opts,
		logger:  log.With().Str("component", "ingestor").Logger(),
		metrics: getOrCreateMarketMetrics(),
		watch:   watch,
	}
	ing.updateSymbolGauges()

	return ing
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// scaled divides an interval by the configured time scaling
func (ing *Ingestor) scaled(d time.Duration) time.Duration {
	s := time.Duration(float64(d) / ing.opts.Scaling)
	if s < time.Millisecond {
		s = time.Millisecond
	}
	return s
}

// Run drives the ingest loop until the context is cancelled. Batch failures
// back off exponentially up to a cap; after several consecutive failures the
// loop probes symbols one at a time to quarantine whichever is poisoning the
// batch.
func (ing *Ingestor) Run(ctx context.Context) error {
	ing.logger.Info().
		Int("symbols", len(ing.ActiveSymbols())).
		Dur("interval", ing.scaled(ing.opts.PollInterval)).
		Msg("Starting market data ingestor")

	for {
		err := ing.cycle(ctx)

		next := ing.opts.PollInterval
		if err != nil {
			ing.mu.Lock()
			ing.failures++
			failures := ing.failures
			ing.mu.Unlock()

			backoff := backoffCap
			if failures <= 5 {
				backoff = backoffBase << (failures - 1)
				if backoff > backoffCap {
					backoff = backoffCap
				}
			}
			next = backoff

			ing.logger.Warn().
				Err(err).
				Int("consecutive_failures", failures).
				Dur("backoff", ing.scaled(backoff)).
				Msg("Ingest cycle failed, backing off")

			if failures >= isolationAfter {
				ing.isolate(ctx)
			}
		} else {
			ing.mu.Lock()
			ing.failures = 0
			ing.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			ing.logger.Info().Msg("Market data ingestor stopped")
			return ctx.Err()
		case <-time.After(ing.scaled(next)):
		}
	}
}

// cycle runs one seed-then-poll pass over the active watchlist
func (ing *Ingestor) cycle(ctx context.Context) error {
	ing.seedPending(ctx)

	polled := ing.pollableSymbols()
	if len(polled) == 0 {
		return nil
	}

	start := time.Now()
	quotes, err := ing.source.Latest(ctx, polled)
	ing.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		ing.metrics.FetchErrors.WithLabelValues(errorKindLabel(err)).Inc()
		return err
	}

	for _, sym := range polled {
		q, ok := quotes[sym]
		if !ok {
			ing.logger.Debug().Str("symbol", sym).Msg("Venue returned no quote for symbol")
			continue
		}
		ing.ingestQuote(sym, q)
	}

	ing.metrics.IngestCycles.Inc()
	return nil
}

// ingestQuote buckets a quote into its symbol buffer and fires the hook
func (ing *Ingestor) ingestQuote(symbol string, q Quote) {
	ing.mu.Lock()
	st, watched := ing.watch[symbol]
	active := watched && st.quarantine == ""
	ing.mu.Unlock()
	if !active {
		// Removed or quarantined while the fetch was in flight
		return
	}

	candle := SyntheticCandle(q, ing.opts.CandleBucket)
	ing.buffers.Ensure(symbol).Append(candle)
	ing.metrics.QuotesIngested.Inc()

	if ing.opts.OnIngest != nil {
		ing.opts.OnIngest(symbol, candle)
	}
}

// seedPending backfills history for watched symbols that have none yet.
// Permanent errors quarantine the symbol; transient errors leave it
// unseeded for the next cycle.
func (ing *Ingestor) seedPending(ctx context.Context) {
	pending := make([]string, 0)
	ing.mu.Lock()
	for sym, st := range ing.watch {
		if !st.seeded && st.quarantine == "" {
			pending = append(pending, sym)
		}
	}
	ing.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	sort.Strings(pending)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.opts.SeedConcurrency)
	for _, sym := range pending {
		g.Go(func() error {
			ing.seedSymbol(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()
}

func (ing *Ingestor) seedSymbol(ctx context.Context, symbol string) {
	candles, err := ing.source.History(ctx, symbol, ing.opts.SeedLimit)
	if err != nil {
		ing.metrics.FetchErrors.WithLabelValues(errorKindLabel(err)).Inc()
		if IsPermanent(err) {
			ing.Quarantine(symbol, err.Error())
			return
		}
		ing.logger.Warn().Err(err).Str("symbol", symbol).Msg("History seed failed, will retry")
		return
	}

	// Live polling may have filled the buffer while history was down;
	// backfilling older candles behind them would break the ring's ordering,
	// so the symbol just keeps warming from quotes.
	seeded := 0
	buf := ing.buffers.Ensure(symbol)
	if buf.Len() == 0 {
		for _, c := range candles {
			buf.Append(c)
		}
		seeded = len(candles)
	}

	ing.mu.Lock()
	if st, ok := ing.watch[symbol]; ok {
		st.seeded = true
	}
	ing.mu.Unlock()

	ing.logger.Info().
		Str("symbol", symbol).
		Int("candles", seeded).
		Msg("Seeded symbol history")
}

// isolate probes watched symbols one at a time after repeated batch
// failures, quarantining the ones the venue rejects outright
func (ing *Ingestor) isolate(ctx context.Context) {
	symbols := ing.pollableSymbols()
	if len(symbols) <= 1 {
		return
	}

	ing.logger.Warn().
		Int("symbols", len(symbols)).
		Msg("Probing symbols individually to isolate batch failure")

	for _, sym := range symbols {
		if _, err := ing.source.Latest(ctx, []string{sym}); err != nil && IsPermanent(err) {
			ing.Quarantine(sym, err.Error())
		}
	}
}

// AddSymbol validates a symbol against the venue, seeds its history, and
// adds it to the watchlist. Unknown symbols fail fast instead of entering
// the poll batch.
func (ing *Ingestor) AddSymbol(ctx context.Context, symbol string) error {
	symbol = normalizeSymbol(symbol)

	ing.mu.Lock()
	if st, ok := ing.watch[symbol]; ok && st.quarantine == "" {
		ing.mu.Unlock()
		return nil
	}
	ing.mu.Unlock()

	candles, err := ing.source.History(ctx, symbol, ing.opts.SeedLimit)
	if err != nil {
		ing.metrics.FetchErrors.WithLabelValues(errorKindLabel(err)).Inc()
		return err
	}

	buf := ing.buffers.Ensure(symbol)
	for _, c := range candles {
		buf.Append(c)
	}

	ing.mu.Lock()
	ing.watch[symbol] = &symbolState{seeded: true}
	ing.mu.Unlock()
	ing.updateSymbolGauges()

	ing.logger.Info().
		Str("symbol", symbol).
		Int("candles", len(candles)).
		Msg("Symbol added to watchlist")

	return nil
}

// RemoveSymbol drops a symbol from the watchlist and discards its buffer
// and any cached data
func (ing *Ingestor) RemoveSymbol(ctx context.Context, symbol string) {
	symbol = normalizeSymbol(symbol)

	ing.mu.Lock()
	delete(ing.watch, symbol)
	ing.mu.Unlock()
	ing.buffers.Remove(symbol)
	ing.updateSymbolGauges()

	if inv, ok := ing.source.(interface {
		Invalidate(ctx context.Context, symbol string) error
	}); ok {
		if err := inv.Invalidate(ctx, symbol); err != nil {
			ing.logger.Warn().Err(err).Str("symbol", symbol).Msg("Cache invalidation failed")
		}
	}

	ing.logger.Info().Str("symbol", symbol).Msg("Symbol removed from watchlist")
}

// Quarantine excludes a symbol from polling without removing it from the
// watchlist, so operators can see why it went dark
func (ing *Ingestor) Quarantine(symbol, reason string) {
	symbol = normalizeSymbol(symbol)

	ing.mu.Lock()
	st, ok := ing.watch[symbol]
	if !ok {
		st = &symbolState{}
		ing.watch[symbol] = st
	}
	st.quarantine = reason
	ing.mu.Unlock()
	ing.updateSymbolGauges()

	ing.logger.Warn().
		Str("symbol", symbol).
		Str("reason", reason).
		Msg("Symbol quarantined")
}

// pollableSymbols returns the sorted symbols currently eligible for quote
// polling: watched and not quarantined. Unseeded symbols poll too — when
// the history endpoint is down the symbol starts empty and warms from live
// quotes alone.
func (ing *Ingestor) pollableSymbols() []string {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	symbols := make([]string, 0, len(ing.watch))
	for sym, st := range ing.watch {
		if st.quarantine == "" {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// ActiveSymbols returns the sorted watchlist minus quarantined symbols
func (ing *Ingestor) ActiveSymbols() []string {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	symbols := make([]string, 0, len(ing.watch))
	for sym, st := range ing.watch {
		if st.quarantine == "" {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// QuarantinedSymbols returns quarantined symbols and their reasons
func (ing *Ingestor) QuarantinedSymbols() map[string]string {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	out := make(map[string]string)
	for sym, st := range ing.watch {
		if st.quarantine != "" {
			out[sym] = st.quarantine
		}
	}
	return out
}

func (ing *Ingestor) updateSymbolGauges() {
	ing.mu.Lock()
	watched, quarantined := 0, 0
	for _, st := range ing.watch {
		if st.quarantine == "" {
			watched++
		} else {
			quarantined++
		}
	}
	ing.mu.Unlock()

	ing.metrics.WatchedSymbols.Set(float64(watched))
	ing.metrics.QuarantinedSymbols.Set(float64(quarantined))
}

// errorKindLabel extracts the source error kind for metric labels
func errorKindLabel(err error) string {
	var se *SourceError
	if errors.As(err, &se) {
		return string(se.Kind)
	}
	return "unknown"
}
