package signal

import (
	"time"
)

// Signal is a trading recommendation direction
type Signal string

const (
	StrongBuy  Signal = "STRONG_BUY"
	Buy        Signal = "BUY"
	Hold       Signal = "HOLD"
	Sell       Signal = "SELL"
	StrongSell Signal = "STRONG_SELL"
)

// IsBuy reports whether the signal recommends opening or holding long
// exposure
func (s Signal) IsBuy() bool {
	return s == Buy || s == StrongBuy
}

// IsSell reports whether the signal recommends opening or holding short
// exposure
func (s Signal) IsSell() bool {
	return s == Sell || s == StrongSell
}

// Actionable reports whether the signal asks for a position at all
func (s Signal) Actionable() bool {
	return s.IsBuy() || s.IsSell()
}

// Strong reports whether the signal carries the high-conviction variant
func (s Signal) Strong() bool {
	return s == StrongBuy || s == StrongSell
}

// Opposes reports whether two actionable signals point in opposite
// directions
func (s Signal) Opposes(other Signal) bool {
	return (s.IsBuy() && other.IsSell()) || (s.IsSell() && other.IsBuy())
}

// Advice is the full output of the synthesizer for one symbol: direction,
// conviction, the reasons behind it, and the price levels to trade it at.
// Entry/stop/target are zero for HOLD.
type Advice struct {
	Symbol      string    `json:"symbol"`
	Signal      Signal    `json:"signal"`
	Confidence  float64   `json:"confidence"`
	Reasons     []string  `json:"reasons"`
	Entry       float64   `json:"entry,omitempty"`
	StopLoss    float64   `json:"stop_loss,omitempty"`
	TakeProfit  float64   `json:"take_profit,omitempty"`
	RiskReward  float64   `json:"risk_reward,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Params carries the runtime settings the synthesizer needs. The engine
// maps its settings onto this to keep the package free of engine imports.
type Params struct {
	StopLossPercent   float64
	TakeProfitPercent float64
}
