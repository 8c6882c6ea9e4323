package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/scalpd/internal/alerts"
	"github.com/ajitpratap0/scalpd/internal/events"
	"github.com/ajitpratap0/scalpd/internal/indicators"
	"github.com/ajitpratap0/scalpd/internal/journal"
	"github.com/ajitpratap0/scalpd/internal/market"
	"github.com/ajitpratap0/scalpd/internal/metrics"
	"github.com/ajitpratap0/scalpd/internal/signal"
	"github.com/ajitpratap0/scalpd/internal/venue"
)

// ErrNotOpen is returned when a close targets a symbol with no open position
var ErrNotOpen = errors.New("no open position")

// zeroClampRatio: exits within this fraction of the entry price realize
// exactly zero, so bucketing noise around a flat fill never books phantom
// PnL
const zeroClampRatio = 1e-3

const (
	defaultDecisionInterval = 1500 * time.Millisecond
	defaultExitInterval     = time.Second
	shutdownTimeout         = 10 * time.Second
)

// Deps are the engine's collaborators. Venue is required; the rest default
// to inert implementations so tests can wire only what they exercise.
type Deps struct {
	Buffers   *market.Buffers
	Cache     *indicators.Cache
	Ingestor  *market.Ingestor
	Venue     venue.ExecutionVenue
	Publisher events.Publisher
	Alerts    *alerts.Manager
	Journal   journal.Journal
}

// Options tune the engine loops and store
type Options struct {
	QuantityStep     float64
	ClosedHistory    int
	CrashFile        string
	DecisionInterval time.Duration // base cadence, divided by the scaling factor
	ExitInterval     time.Duration
	Clock            func() time.Time
	Logger           zerolog.Logger
}

// Engine owns the trading core: one writer loop over the position store, a
// decision loop driving entries, and an exit monitor driving closes. All
// external views go through the projection API.
type Engine struct {
	opts      Options
	store     *Store
	buffers   *market.Buffers
	cache     *indicators.Cache
	ingestor  *market.Ingestor
	venue     venue.ExecutionVenue
	publisher events.Publisher
	alerts    *alerts.Manager
	metrics   *metrics.Engine
	clock     func() time.Time
	log       zerolog.Logger
	startedAt time.Time

	adviceMu sync.RWMutex
	advice   map[string]signal.Advice // latest synthesized advice per symbol
}

// New assembles an engine around the boot state
func New(initial *State, deps Deps, opts Options) *Engine {
	if deps.Buffers == nil {
		deps.Buffers = market.NewBuffers()
	}
	if deps.Cache == nil {
		deps.Cache = indicators.NewCache()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Alerts == nil {
		deps.Alerts = alerts.NewManager()
	}
	if opts.DecisionInterval <= 0 {
		opts.DecisionInterval = defaultDecisionInterval
	}
	if opts.ExitInterval <= 0 {
		opts.ExitInterval = defaultExitInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	e := &Engine{
		opts:      opts,
		buffers:   deps.Buffers,
		cache:     deps.Cache,
		ingestor:  deps.Ingestor,
		venue:     deps.Venue,
		publisher: deps.Publisher,
		alerts:    deps.Alerts,
		metrics:   metrics.ForEngine(),
		clock:     opts.Clock,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
		startedAt: opts.Clock(),
		advice:    make(map[string]signal.Advice),
	}

	e.store = NewStore(initial, StoreOptions{
		Journal:   deps.Journal,
		CrashFile: opts.CrashFile,
		ClosedCap: opts.ClosedHistory,
		Clock:     opts.Clock,
		Logger:    opts.Logger,
		OnHalt: func(reason string) {
			e.publisher.EngineHalted(reason)
			e.alerts.EngineHalted(context.Background(), reason)
		},
	})

	return e
}

// Store exposes the underlying store, mainly for tests and the projection
func (e *Engine) Store() *Store {
	return e.store
}

// Run drives the engine until ctx is cancelled, then closes every open
// position and journals the shutdown before returning. The store writer
// outlives the loops so the shutdown closes can still commit.
func (e *Engine) Run(ctx context.Context) error {
	storeCtx, stopStore := context.WithCancel(context.Background())
	storeDone := make(chan error, 1)
	go func() {
		storeDone <- e.store.Run(storeCtx)
	}()

	g, loopCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.decisionLoop(loopCtx) })
	g.Go(func() error { return e.exitLoop(loopCtx) })
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	e.shutdown(shutdownCtx)
	cancel()

	stopStore()
	<-storeDone

	if cerr := e.venue.Close(); cerr != nil {
		e.log.Warn().Err(cerr).Msg("Venue close failed")
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// shutdown flattens the book: every open position closes at the current
// mark with reason SHUTDOWN, then a shutdown record is journaled
func (e *Engine) shutdown(ctx context.Context) {
	snap := e.store.Snapshot()

	for symbol := range snap.Positions {
		if _, err := e.closePosition(ctx, symbol, ReasonShutdown); err != nil {
			e.log.Error().Err(err).Str("symbol", symbol).Msg("Shutdown close failed")
		}
	}

	err := e.store.Mutate(ctx, func(st *State, tx *Tx) error {
		tx.Journal(journal.KindShutdown, "", map[string]any{
			"total_pnl":         st.TotalPnL,
			"day_pnl":           st.DayPnL,
			"available_balance": st.AvailableBalance,
			"open_positions":    len(st.Positions),
		})
		return nil
	})
	if err != nil && !errors.Is(err, ErrHalted) {
		e.log.Error().Err(err).Msg("Shutdown journal entry failed")
	}

	e.log.Info().Msg("Engine shut down")
}

// closePosition is the single close path shared by the exit monitor, the
// opposite-signal flip, manual closes, and shutdown. The venue fill happens
// before the mutation so the writer loop never waits on external calls.
func (e *Engine) closePosition(ctx context.Context, symbol string, reason CloseReason) (*Position, error) {
	snap := e.store.Snapshot()
	pos, ok := snap.Positions[symbol]
	if !ok {
		return nil, ErrNotOpen
	}

	fill, err := e.venue.ClosePosition(ctx, symbol, pos.Side, pos.Quantity)
	if err != nil {
		e.alerts.VenueFailure(ctx, symbol, "close", err)
		return nil, fmt.Errorf("close %s: %w", symbol, err)
	}

	var (
		closed      *Position
		lossCrossed bool
		dayPnL      float64
		lossLimit   float64
	)
	err = e.store.Mutate(ctx, func(st *State, tx *Tx) error {
		p, ok := st.Positions[symbol]
		if !ok {
			return ErrNotOpen
		}

		realized := realizedPnL(p, fill.Price)
		p.ExitPrice = fill.Price
		p.ExitTime = fill.FillTime
		p.CloseReason = reason
		p.RealizedPnL = realized

		delete(st.Positions, symbol)
		st.AvailableBalance += p.Commitment + realized

		before := math.Abs(st.DayPnL)
		st.TotalPnL += realized
		st.DayPnL += realized

		lossLimit = st.Settings.MaxDailyLoss
		dayPnL = st.DayPnL
		lossCrossed = before < lossLimit && math.Abs(st.DayPnL) >= lossLimit && st.DayPnL < 0

		pushClosed(st, p, e.store.closedCap)

		tx.Journal(journal.KindTradeClose, symbol, map[string]any{
			"position_id":  p.ID,
			"side":         string(p.Side),
			"quantity":     p.Quantity,
			"entry_price":  p.EntryPrice,
			"exit_price":   fill.Price,
			"realized_pnl": realized,
			"reason":       string(reason),
			"hold_seconds": p.HoldSeconds(fill.FillTime),
		})

		closed = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.PositionsClosed.WithLabelValues(string(reason)).Inc()
	e.publisher.TradeClosed(events.TradeEvent{
		PositionID:  closed.ID,
		Symbol:      symbol,
		Side:        string(closed.Side),
		Quantity:    closed.Quantity,
		Price:       closed.EntryPrice,
		ExitPrice:   closed.ExitPrice,
		RealizedPnL: closed.RealizedPnL,
		Reason:      string(reason),
		At:          closed.ExitTime,
	})

	e.log.Info().
		Str("symbol", symbol).
		Str("side", string(closed.Side)).
		Str("reason", string(reason)).
		Float64("exit", closed.ExitPrice).
		Float64("realized_pnl", closed.RealizedPnL).
		Msg("Position closed")

	if lossCrossed {
		e.alerts.DailyLossHalt(ctx, dayPnL, lossLimit)
	}

	return closed, nil
}

// realizedPnL books the close, clamping near-flat exits to exactly zero
func realizedPnL(p *Position, exit float64) float64 {
	if math.Abs(exit-p.EntryPrice) < zeroClampRatio*p.EntryPrice {
		return 0
	}
	if p.Side == venue.SideLong {
		return (exit - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - exit) * p.Quantity
}
