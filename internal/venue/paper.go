package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MarkSource supplies the current mark price for a symbol. The market
// package's buffer registry satisfies this.
type MarkSource interface {
	LastClose(symbol string) (float64, bool)
}

// PaperVenue simulates order execution by filling synchronously at the
// latest known mark with no slippage and no partial fills. Fills carry a
// fresh order id so the journal can reference them.
type PaperVenue struct {
	marks  MarkSource
	logger zerolog.Logger

	mu     sync.Mutex
	orders int
}

// NewPaperVenue creates a paper venue filling against the given marks
func NewPaperVenue(marks MarkSource) *PaperVenue {
	return &PaperVenue{
		marks:  marks,
		logger: log.With().Str("component", "paper_venue").Logger(),
	}
}

// PlaceMarketOrder fills the order at the symbol's latest close
func (v *PaperVenue) PlaceMarketOrder(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if order.Quantity <= 0 {
		return Fill{}, fmt.Errorf("venue: non-positive quantity %f for %s", order.Quantity, order.Symbol)
	}

	price, ok := v.marks.LastClose(order.Symbol)
	if !ok {
		return Fill{}, fmt.Errorf("%w: %s", ErrNoMark, order.Symbol)
	}

	fill := Fill{
		OrderID:  uuid.New().String(),
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
		FillTime: time.Now().UTC(),
	}

	v.mu.Lock()
	v.orders++
	v.mu.Unlock()

	v.logger.Debug().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Float64("price", price).
		Str("order_id", fill.OrderID).
		Msg("Paper order filled")

	return fill, nil
}

// ClosePosition fills the closing trade at the symbol's latest close
func (v *PaperVenue) ClosePosition(ctx context.Context, symbol string, side Side, quantity float64) (Fill, error) {
	return v.PlaceMarketOrder(ctx, Order{
		Symbol:   symbol,
		Side:     side.Opposite(),
		Quantity: quantity,
	})
}

// OrderCount returns how many fills the venue has produced
func (v *PaperVenue) OrderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.orders
}

// Close is a no-op for the paper venue
func (v *PaperVenue) Close() error {
	return nil
}
