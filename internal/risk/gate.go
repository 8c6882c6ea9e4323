package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/scalpd/internal/venue"
)

// RejectionKind classifies why the gate refused an entry
type RejectionKind string

const (
	RejectBelowConfidence     RejectionKind = "BELOW_CONFIDENCE"
	RejectDailyLossExceeded   RejectionKind = "DAILY_LOSS_EXCEEDED"
	RejectTooManyPositions    RejectionKind = "TOO_MANY_POSITIONS"
	RejectInsufficientBalance RejectionKind = "INSUFFICIENT_BALANCE"
	RejectSymbolCoolingDown   RejectionKind = "SYMBOL_COOLING_DOWN"
	RejectAlreadyOpen         RejectionKind = "ALREADY_OPEN"
	RejectZeroQuantity        RejectionKind = "ZERO_QUANTITY"
)

// Rejection records a refused entry. A rejection is a trading decision,
// not an error: it is logged and counted but never propagated as a failure.
type Rejection struct {
	Kind   RejectionKind `json:"kind"`
	Detail string        `json:"detail"`
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
}

func reject(kind RejectionKind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Limits are the risk settings the gate enforces, mapped from the engine's
// runtime settings
type Limits struct {
	MinConfidence   float64
	MaxPositionSize float64
	MaxDailyLoss    float64
	MaxPositions    int
	CooldownSeconds int
	MarginRatio     float64 // short margin as a fraction of notional
	QuantityStep    float64 // order quantity floored to a multiple of this
}

// Proposal is an entry the orchestrator wants to make
type Proposal struct {
	Symbol     string
	Side       venue.Side
	Price      float64
	Confidence float64
	Now        time.Time
}

// View is the slice of engine state the gate needs, extracted by the
// orchestrator from its snapshot
type View struct {
	AvailableBalance float64
	DayPnL           float64
	OpenCount        int
	// OpenSide is the side of an existing open position on the proposal's
	// symbol, nil when the symbol is flat
	OpenSide *venue.Side
	// LastTradeAt is when the symbol last opened a position; zero when it
	// never has
	LastTradeAt time.Time
}

// Sizing is the admitted order size and the balance it commits
type Sizing struct {
	Quantity   float64
	Notional   float64
	Commitment float64
}

// Admit validates a proposed entry against the engine state and returns the
// sizing to trade with, or the first rejection in the fixed evaluation
// order. Pure: no side effects, deterministic for a given input.
func Admit(p Proposal, v View, lim Limits) (Sizing, *Rejection) {
	if p.Confidence < lim.MinConfidence {
		return Sizing{}, reject(RejectBelowConfidence,
			"confidence %.1f below minimum %.1f", p.Confidence, lim.MinConfidence)
	}

	if math.Abs(v.DayPnL) >= lim.MaxDailyLoss {
		return Sizing{}, reject(RejectDailyLossExceeded,
			"day pnl %.2f breaches daily loss limit %.2f", v.DayPnL, lim.MaxDailyLoss)
	}

	// An opposite-side position on the same symbol would be closed by this
	// entry, so it does not add to the open count
	wouldClose := v.OpenSide != nil && *v.OpenSide != p.Side
	if v.OpenCount >= lim.MaxPositions && !wouldClose {
		return Sizing{}, reject(RejectTooManyPositions,
			"%d positions open, limit %d", v.OpenCount, lim.MaxPositions)
	}

	sizing := Size(p.Side, p.Price, v.AvailableBalance, lim)

	if sizing.Commitment > v.AvailableBalance {
		return Sizing{}, reject(RejectInsufficientBalance,
			"commitment %.2f exceeds available %.2f", sizing.Commitment, v.AvailableBalance)
	}

	if lim.CooldownSeconds > 0 && !v.LastTradeAt.IsZero() {
		elapsed := p.Now.Sub(v.LastTradeAt)
		if elapsed < time.Duration(lim.CooldownSeconds)*time.Second {
			return Sizing{}, reject(RejectSymbolCoolingDown,
				"%s traded %.1fs ago, cooldown %ds", p.Symbol, elapsed.Seconds(), lim.CooldownSeconds)
		}
	}

	if v.OpenSide != nil && *v.OpenSide == p.Side {
		return Sizing{}, reject(RejectAlreadyOpen,
			"%s position already open on %s", *v.OpenSide, p.Symbol)
	}

	if sizing.Quantity <= 0 {
		return Sizing{}, reject(RejectZeroQuantity,
			"sized quantity is zero at price %.4f", p.Price)
	}

	return sizing, nil
}

// Size computes the order quantity for an entry: notional capped by the
// position size limit and 90% of available balance, quantity floored to the
// configured step. Shorts commit only the margin fraction of notional.
func Size(side venue.Side, price, available float64, lim Limits) Sizing {
	if price <= 0 {
		return Sizing{}
	}

	step := lim.QuantityStep
	if step <= 0 {
		step = 1
	}

	notional := math.Min(lim.MaxPositionSize, available*0.9)
	// The epsilon keeps an exact multiple of step from flooring one step
	// down on binary rounding
	quantity := math.Floor(notional/price/step+1e-9) * step
	if quantity <= 0 {
		return Sizing{}
	}

	notional = quantity * price
	commitment := notional
	if side == venue.SideShort {
		commitment = notional * lim.MarginRatio
	}

	return Sizing{Quantity: quantity, Notional: notional, Commitment: commitment}
}
