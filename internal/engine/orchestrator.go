package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/scalpd/internal/events"
	"github.com/ajitpratap0/scalpd/internal/journal"
	"github.com/ajitpratap0/scalpd/internal/risk"
	"github.com/ajitpratap0/scalpd/internal/signal"
	"github.com/ajitpratap0/scalpd/internal/venue"
)

// errStaleEntry marks an entry whose snapshot-based decision no longer holds
// against the authoritative state by the time the writer sees it
var errStaleEntry = errors.New("entry stale against authoritative state")

// decisionLoop re-reads the scaling factor every cycle, so a settings update
// changes the cadence from the next tick on
func (e *Engine) decisionLoop(ctx context.Context) error {
	for {
		interval := scaledInterval(e.opts.DecisionInterval, e.store.Snapshot().Settings.ScalingFactor)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		e.decide(ctx)
	}
}

func scaledInterval(base time.Duration, scaling float64) time.Duration {
	if scaling <= 0 {
		return base
	}
	return time.Duration(float64(base) / scaling)
}

// decide runs one decision pass over the watchlist
func (e *Engine) decide(ctx context.Context) {
	e.metrics.DecisionTicks.Inc()

	snap := e.store.Snapshot()
	if snap.Halted || !snap.Settings.Enabled {
		return
	}

	quarantined := map[string]string{}
	if e.ingestor != nil {
		quarantined = e.ingestor.QuarantinedSymbols()
	}

	params := snap.Settings.SignalParams()

	for _, symbol := range snap.Watchlist {
		if _, bad := quarantined[symbol]; bad {
			continue
		}

		buf, ok := e.buffers.Get(symbol)
		if !ok {
			continue
		}

		start := time.Now()
		set := e.cache.Compute(symbol, buf.Slice())
		e.metrics.IndicatorDuration.Observe(time.Since(start).Seconds())

		if !set.Warm() {
			continue
		}

		advice := signal.Synthesize(set, params)
		e.recordAdvice(advice)
		e.metrics.Decisions.WithLabelValues(string(advice.Signal)).Inc()
		e.publisher.SignalGenerated(advice)

		if !advice.Signal.Actionable() {
			continue
		}

		e.act(ctx, snap, advice)
	}
}

// act routes an actionable signal: same-side positions are left alone,
// opposite-side positions flip closed when the signal clears the confidence
// bar, and flat symbols go through the risk gate
func (e *Engine) act(ctx context.Context, snap *State, advice signal.Advice) {
	side := venue.SideShort
	if advice.Signal.IsBuy() {
		side = venue.SideLong
	}

	pos := snap.Positions[advice.Symbol]
	switch {
	case pos != nil && pos.Side == side:
		return

	case pos != nil:
		if advice.Confidence < snap.Settings.MinConfidence {
			return
		}
		if _, err := e.closePosition(ctx, advice.Symbol, ReasonOppositeSignal); err != nil && !errors.Is(err, ErrNotOpen) {
			e.log.Error().Err(err).Str("symbol", advice.Symbol).Msg("Opposite-signal close failed")
		}

	default:
		e.openPosition(ctx, snap, advice, side)
	}
}

// openPosition runs the risk gate against the snapshot, fills at the venue,
// then installs the position through the writer. The gate re-runs inside the
// mutation because the snapshot may have aged by the time the writer commits.
func (e *Engine) openPosition(ctx context.Context, snap *State, advice signal.Advice, side venue.Side) {
	limits := snap.Settings.Limits(e.opts.QuantityStep)
	proposal := risk.Proposal{
		Symbol:     advice.Symbol,
		Side:       side,
		Price:      advice.Entry,
		Confidence: advice.Confidence,
		Now:        e.clock(),
	}

	sizing, rejection := risk.Admit(proposal, entryView(snap, advice.Symbol), limits)
	if rejection != nil {
		e.metrics.Rejections.WithLabelValues(string(rejection.Kind)).Inc()
		e.log.Debug().
			Str("symbol", advice.Symbol).
			Str("kind", string(rejection.Kind)).
			Str("detail", rejection.Detail).
			Msg("Entry rejected")
		return
	}

	fill, err := e.venue.PlaceMarketOrder(ctx, venue.Order{
		Symbol:   advice.Symbol,
		Side:     side,
		Quantity: sizing.Quantity,
	})
	if err != nil {
		e.alerts.VenueFailure(ctx, advice.Symbol, "open", err)
		e.log.Error().Err(err).Str("symbol", advice.Symbol).Msg("Venue order failed")
		return
	}

	// The mark can move through the advised stop or target between the
	// decision and the fill. Installing that position would corrupt the
	// book, so the entry is dropped like any other stale one.
	if !entryLevelsHold(side, fill.Price, advice.StopLoss, advice.TakeProfit) {
		e.log.Warn().
			Str("symbol", advice.Symbol).
			Float64("fill", fill.Price).
			Float64("stop", advice.StopLoss).
			Float64("target", advice.TakeProfit).
			Msg("Entry dropped, fill crossed advised levels")
		return
	}

	pos := &Position{
		ID:          uuid.NewString(),
		Symbol:      advice.Symbol,
		Side:        side,
		Quantity:    fill.Quantity,
		EntryPrice:  fill.Price,
		Notional:    sizing.Notional,
		Commitment:  sizing.Commitment,
		StopLoss:    advice.StopLoss,
		TakeProfit:  advice.TakeProfit,
		EntryTime:   fill.FillTime,
		Confidence:  advice.Confidence,
		Reasons:     advice.Reasons,
		OpenOrderID: fill.OrderID,
	}

	err = e.store.Mutate(ctx, func(st *State, tx *Tx) error {
		if _, exists := st.Positions[advice.Symbol]; exists {
			return errStaleEntry
		}
		if _, rej := risk.Admit(proposal, entryView(st, advice.Symbol), st.Settings.Limits(e.opts.QuantityStep)); rej != nil {
			return errStaleEntry
		}

		st.Positions[advice.Symbol] = pos
		st.AvailableBalance -= sizing.Commitment
		st.LastTradeAt[advice.Symbol] = fill.FillTime

		tx.Journal(journal.KindTradeOpen, advice.Symbol, map[string]any{
			"position_id": pos.ID,
			"side":        string(side),
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"notional":    pos.Notional,
			"commitment":  pos.Commitment,
			"stop_loss":   pos.StopLoss,
			"take_profit": pos.TakeProfit,
			"signal":      string(advice.Signal),
			"confidence":  advice.Confidence,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, errStaleEntry) {
			e.log.Warn().Str("symbol", advice.Symbol).Msg("Entry dropped, snapshot went stale")
		} else {
			e.log.Error().Err(err).Str("symbol", advice.Symbol).Msg("Entry commit failed")
		}
		return
	}

	e.metrics.PositionsOpened.WithLabelValues(string(side)).Inc()
	e.publisher.TradeOpened(events.TradeEvent{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       string(side),
		Quantity:   pos.Quantity,
		Price:      pos.EntryPrice,
		Confidence: pos.Confidence,
		At:         pos.EntryTime,
	})

	e.log.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(side)).
		Float64("quantity", pos.Quantity).
		Float64("entry", pos.EntryPrice).
		Float64("confidence", pos.Confidence).
		Msg("Position opened")
}

// entryLevelsHold reports whether the advised stop and target still sit on
// the correct side of the actual fill price
func entryLevelsHold(side venue.Side, fill, stop, target float64) bool {
	if side == venue.SideLong {
		return stop < fill && target > fill
	}
	return stop > fill && target < fill
}

// entryView extracts the slice of state the risk gate evaluates
func entryView(st *State, symbol string) risk.View {
	v := risk.View{
		AvailableBalance: st.AvailableBalance,
		DayPnL:           st.DayPnL,
		OpenCount:        len(st.Positions),
		LastTradeAt:      st.LastTradeAt[symbol],
	}
	if p, ok := st.Positions[symbol]; ok {
		side := p.Side
		v.OpenSide = &side
	}
	return v
}

func (e *Engine) recordAdvice(advice signal.Advice) {
	e.adviceMu.Lock()
	e.advice[advice.Symbol] = advice
	e.adviceMu.Unlock()
}

func (e *Engine) latestAdvice(symbol string) (signal.Advice, bool) {
	e.adviceMu.RLock()
	defer e.adviceMu.RUnlock()
	a, ok := e.advice[symbol]
	return a, ok
}

func (e *Engine) forgetAdvice(symbol string) {
	e.adviceMu.Lock()
	delete(e.advice, symbol)
	e.adviceMu.Unlock()
}
