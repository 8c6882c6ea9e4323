package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ajitpratap0/scalpd/internal/indicators"
	"github.com/ajitpratap0/scalpd/internal/journal"
	"github.com/ajitpratap0/scalpd/internal/signal"
)

// PositionView is an open position enriched with the current mark
type PositionView struct {
	Position
	Mark          float64 `json:"mark"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	HoldSeconds   float64 `json:"hold_seconds"`
}

// SymbolView is one watchlist entry's market status
type SymbolView struct {
	Symbol           string          `json:"symbol"`
	Candles          int             `json:"candles"`
	Warming          bool            `json:"warming"`
	Quarantined      bool            `json:"quarantined"`
	QuarantineReason string          `json:"quarantine_reason,omitempty"`
	Price            float64         `json:"price,omitempty"`
	Indicators       *indicators.Set `json:"indicators,omitempty"`
	Signal           *signal.Advice  `json:"signal,omitempty"`
}

// Snapshot is the full read model handed to API consumers. It is built from
// a deep-copied state, so callers can hold or mutate it freely.
type Snapshot struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	UptimeSeconds    float64        `json:"uptime_seconds"`
	Settings         Settings       `json:"settings"`
	TradingBalance   float64        `json:"trading_balance"`
	AvailableBalance float64        `json:"available_balance"`
	TotalPnL         float64        `json:"total_pnl"`
	DayPnL           float64        `json:"day_pnl"`
	UnrealizedPnL    float64        `json:"unrealized_pnl"`
	Halted           bool           `json:"halted"`
	HaltReason       string         `json:"halt_reason,omitempty"`
	Watchlist        []SymbolView   `json:"watchlist"`
	Positions        []PositionView `json:"positions"`
	RecentTrades     []*Position    `json:"recent_trades"`
}

// Project assembles the current read model
func (e *Engine) Project() Snapshot {
	st := e.store.Snapshot()
	now := e.clock()

	quarantined := map[string]string{}
	if e.ingestor != nil {
		quarantined = e.ingestor.QuarantinedSymbols()
	}

	out := Snapshot{
		GeneratedAt:      now,
		UptimeSeconds:    now.Sub(e.startedAt).Seconds(),
		Settings:         st.Settings,
		TradingBalance:   st.TradingBalance,
		AvailableBalance: st.AvailableBalance,
		TotalPnL:         st.TotalPnL,
		DayPnL:           st.DayPnL,
		Halted:           st.Halted,
		HaltReason:       st.HaltReason,
		Watchlist:        make([]SymbolView, 0, len(st.Watchlist)),
		Positions:        make([]PositionView, 0, len(st.Positions)),
		RecentTrades:     st.Closed,
	}

	for _, symbol := range st.Watchlist {
		view := SymbolView{Symbol: symbol}
		if reason, bad := quarantined[symbol]; bad {
			view.Quarantined = true
			view.QuarantineReason = reason
		}

		if buf, ok := e.buffers.Get(symbol); ok {
			candles := buf.Slice()
			view.Candles = len(candles)
			if len(candles) > 0 {
				view.Price = candles[len(candles)-1].Close
			}
			set := e.cache.Compute(symbol, candles)
			view.Warming = !set.Warm()
			if set.Warm() {
				view.Indicators = &set
			}
		} else {
			view.Warming = true
		}

		if advice, ok := e.latestAdvice(symbol); ok {
			view.Signal = &advice
		}

		out.Watchlist = append(out.Watchlist, view)
	}

	for _, pos := range st.Positions {
		pv := PositionView{Position: *pos, HoldSeconds: pos.HoldSeconds(now)}
		if mark, ok := e.buffers.LastClose(pos.Symbol); ok {
			pv.Mark = mark
			pv.UnrealizedPnL = pos.UnrealizedPnL(mark)
			out.UnrealizedPnL += pv.UnrealizedPnL
		}
		out.Positions = append(out.Positions, pv)
	}
	sort.Slice(out.Positions, func(i, j int) bool {
		return out.Positions[i].Symbol < out.Positions[j].Symbol
	})

	return out
}

// SetEnabled toggles trading. Disabling stops new entries only; the exit
// monitor keeps managing open positions. Idempotent, journals nothing.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	return e.store.Mutate(ctx, func(st *State, tx *Tx) error {
		st.Settings.Enabled = enabled
		return nil
	})
}

// Enable turns trading on
func (e *Engine) Enable(ctx context.Context) error {
	return e.SetEnabled(ctx, true)
}

// Disable turns trading off
func (e *Engine) Disable(ctx context.Context) error {
	return e.SetEnabled(ctx, false)
}

// UpdateSettings replaces the runtime settings atomically. Any invalid
// field rejects the whole update with the full error list; nothing changes.
func (e *Engine) UpdateSettings(ctx context.Context, next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	return e.store.Mutate(ctx, func(st *State, tx *Tx) error {
		old := st.Settings
		st.Settings = next
		tx.Journal(journal.KindSettingsUpdate, "", map[string]any{
			"old": old,
			"new": next,
		})
		return nil
	})
}

// ClosePosition closes an open position at the current mark with reason
// MANUAL. Returns ErrNotOpen when the symbol is flat.
func (e *Engine) ClosePosition(ctx context.Context, symbol string) (*Position, error) {
	return e.closePosition(ctx, symbol, ReasonManual)
}

// AddSymbol validates and seeds the symbol, then puts it on the watchlist.
// Adding a symbol already watched is a no-op.
func (e *Engine) AddSymbol(ctx context.Context, symbol string) error {
	if e.ingestor != nil {
		if err := e.ingestor.AddSymbol(ctx, symbol); err != nil {
			return err
		}
	}

	return e.store.Mutate(ctx, func(st *State, tx *Tx) error {
		if st.HasWatch(symbol) {
			return nil
		}
		st.Watchlist = append(st.Watchlist, symbol)
		return nil
	})
}

// RemoveSymbol drops the symbol from the watchlist, closing any open
// position on it first and discarding its buffers and caches
func (e *Engine) RemoveSymbol(ctx context.Context, symbol string) error {
	if _, err := e.closePosition(ctx, symbol, ReasonManual); err != nil && !errors.Is(err, ErrNotOpen) {
		return err
	}

	err := e.store.Mutate(ctx, func(st *State, tx *Tx) error {
		kept := st.Watchlist[:0]
		for _, w := range st.Watchlist {
			if w != symbol {
				kept = append(kept, w)
			}
		}
		st.Watchlist = kept
		return nil
	})
	if err != nil {
		return err
	}

	if e.ingestor != nil {
		e.ingestor.RemoveSymbol(ctx, symbol)
	} else {
		e.buffers.Remove(symbol)
	}
	e.cache.Forget(symbol)
	e.forgetAdvice(symbol)

	return nil
}
