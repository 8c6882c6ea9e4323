package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/scalpd/internal/venue"
)

// exitLoop scans open positions on a fixed cadence. Exits keep running when
// trading is disabled: disable stops new entries, never risk management.
func (e *Engine) exitLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.ExitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.scanExits(ctx)
		}
	}
}

// scanExits closes every open position whose exit condition holds at the
// current mark
func (e *Engine) scanExits(ctx context.Context) {
	e.metrics.ExitScans.Inc()

	snap := e.store.Snapshot()
	if snap.Halted {
		return
	}

	now := e.clock()
	for symbol, pos := range snap.Positions {
		mark, ok := e.buffers.LastClose(symbol)
		if !ok {
			// No mark means the feed never produced a candle, which cannot
			// happen for a filled position; skip rather than guess a price
			continue
		}

		reason, hit := exitReason(pos, mark, now, snap.Settings)
		if !hit {
			continue
		}

		if _, err := e.closePosition(ctx, symbol, reason); err != nil && !errors.Is(err, ErrNotOpen) {
			e.log.Error().Err(err).Str("symbol", symbol).Str("reason", string(reason)).Msg("Exit close failed")
		}
	}
}

// exitReason evaluates the exit ladder for one position at the given mark.
// Take-profit wins over stop-loss wins over timeout when several hold at
// once.
func exitReason(p *Position, mark float64, now time.Time, s Settings) (CloseReason, bool) {
	var movePct float64
	if p.Side == venue.SideLong {
		movePct = (mark - p.EntryPrice) / p.EntryPrice * 100
	} else {
		movePct = (p.EntryPrice - mark) / p.EntryPrice * 100
	}

	switch {
	case movePct >= s.TakeProfitPercent || hitTarget(p, mark):
		return ReasonTakeProfit, true
	case movePct <= -s.StopLossPercent || hitStop(p, mark):
		return ReasonStopLoss, true
	case now.Sub(p.EntryTime) >= time.Duration(s.MaxHoldSeconds)*time.Second:
		return ReasonTimeout, true
	}
	return "", false
}

// hitTarget checks the absolute take-profit level carried on the position
func hitTarget(p *Position, mark float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Side == venue.SideLong {
		return mark >= p.TakeProfit
	}
	return mark <= p.TakeProfit
}

// hitStop checks the absolute stop-loss level carried on the position
func hitStop(p *Position, mark float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == venue.SideLong {
		return mark <= p.StopLoss
	}
	return mark >= p.StopLoss
}
