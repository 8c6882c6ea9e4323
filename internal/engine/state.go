package engine

import (
	"time"

	"github.com/ajitpratap0/scalpd/internal/venue"
)

// CloseReason records why a position was closed
type CloseReason string

const (
	ReasonTakeProfit     CloseReason = "TAKE_PROFIT"
	ReasonStopLoss       CloseReason = "STOP_LOSS"
	ReasonTimeout        CloseReason = "TIMEOUT"
	ReasonOppositeSignal CloseReason = "OPPOSITE_SIGNAL"
	ReasonManual         CloseReason = "MANUAL"
	ReasonShutdown       CloseReason = "SHUTDOWN"
)

// Position is one open or closed paper position. Commitment is the balance
// deducted at open: full notional for longs, margin for shorts. The exit
// fields stay zero until the position closes.
type Position struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        venue.Side  `json:"side"`
	Quantity    float64     `json:"quantity"`
	EntryPrice  float64     `json:"entry_price"`
	Notional    float64     `json:"notional"`
	Commitment  float64     `json:"commitment"`
	StopLoss    float64     `json:"stop_loss"`
	TakeProfit  float64     `json:"take_profit"`
	EntryTime   time.Time   `json:"entry_time"`
	Confidence  float64     `json:"confidence"`
	Reasons     []string    `json:"reasons,omitempty"`
	OpenOrderID string      `json:"open_order_id"`
	ExitPrice   float64     `json:"exit_price,omitempty"`
	ExitTime    time.Time   `json:"exit_time,omitempty"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
	RealizedPnL float64     `json:"realized_pnl,omitempty"`
}

// UnrealizedPnL returns the paper gain at the given mark
func (p *Position) UnrealizedPnL(mark float64) float64 {
	if p.Side == venue.SideLong {
		return (mark - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - mark) * p.Quantity
}

// HoldSeconds returns how long the position has been (or was) held
func (p *Position) HoldSeconds(now time.Time) float64 {
	end := now
	if !p.ExitTime.IsZero() {
		end = p.ExitTime
	}
	return end.Sub(p.EntryTime).Seconds()
}

// Clone returns a deep copy
func (p *Position) Clone() *Position {
	cp := *p
	if p.Reasons != nil {
		cp.Reasons = append([]string(nil), p.Reasons...)
	}
	return &cp
}

// State is the authoritative engine state. It is owned by the store's
// writer loop; everything else sees deep-copied snapshots.
type State struct {
	TradingBalance   float64                  `json:"trading_balance"`
	AvailableBalance float64                  `json:"available_balance"`
	TotalPnL         float64                  `json:"total_pnl"`
	DayPnL           float64                  `json:"day_pnl"`
	Day              string                   `json:"day"` // UTC date of the current trading day
	Positions        map[string]*Position     `json:"positions"`
	Closed           []*Position              `json:"closed"`
	LastTradeAt      map[string]time.Time     `json:"last_trade_at"`
	Settings         Settings                 `json:"settings"`
	Watchlist        []string                 `json:"watchlist"`
	Halted           bool                     `json:"halted"`
	HaltReason       string                   `json:"halt_reason,omitempty"`
}

// NewState builds the boot state
func NewState(initialBalance float64, settings Settings, watchlist []string, now time.Time) *State {
	return &State{
		TradingBalance:   initialBalance,
		AvailableBalance: initialBalance,
		Day:              now.UTC().Format("2006-01-02"),
		Positions:        make(map[string]*Position),
		LastTradeAt:      make(map[string]time.Time),
		Settings:         settings,
		Watchlist:        append([]string(nil), watchlist...),
	}
}

// Clone returns a deep copy safe to hand to readers
func (s *State) Clone() *State {
	cp := *s

	cp.Positions = make(map[string]*Position, len(s.Positions))
	for sym, p := range s.Positions {
		cp.Positions[sym] = p.Clone()
	}

	cp.Closed = make([]*Position, len(s.Closed))
	for i, p := range s.Closed {
		cp.Closed[i] = p.Clone()
	}

	cp.LastTradeAt = make(map[string]time.Time, len(s.LastTradeAt))
	for sym, ts := range s.LastTradeAt {
		cp.LastTradeAt[sym] = ts
	}

	cp.Watchlist = append([]string(nil), s.Watchlist...)
	return &cp
}

// OpenCommitments sums the balance currently locked in open positions
func (s *State) OpenCommitments() float64 {
	total := 0.0
	for _, p := range s.Positions {
		total += p.Commitment
	}
	return total
}

// HasWatch reports whether the symbol is on the watchlist
func (s *State) HasWatch(symbol string) bool {
	for _, w := range s.Watchlist {
		if w == symbol {
			return true
		}
	}
	return false
}
