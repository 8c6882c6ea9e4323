package venue

import (
	"context"
	"errors"
	"time"
)

// Side represents the direction of a position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the reverse side
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Order is a request to open exposure at the current market price
type Order struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`
}

// Fill is the venue's confirmation of an executed order
type Fill struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	FillTime time.Time `json:"fill_time"`
}

// ErrNoMark means the venue has no price to fill against, typically because
// the symbol's candle buffer is still empty
var ErrNoMark = errors.New("venue: no mark price for symbol")

// ExecutionVenue routes orders. The default implementation is the in-memory
// paper venue; a live broker adapter would implement the same contract.
// Implementations must be safe for concurrent use.
type ExecutionVenue interface {
	// PlaceMarketOrder fills an opening order at the current mark
	PlaceMarketOrder(ctx context.Context, order Order) (Fill, error)
	// ClosePosition fills the closing side of an open position at the
	// current mark
	ClosePosition(ctx context.Context, symbol string, side Side, quantity float64) (Fill, error)
	// Close releases venue resources
	Close() error
}
