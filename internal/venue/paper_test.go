package venue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticMarks map[string]float64

func (m staticMarks) LastClose(symbol string) (float64, bool) {
	p, ok := m[symbol]
	return p, ok
}

func TestPaperVenueFillsAtMark(t *testing.T) {
	v := NewPaperVenue(staticMarks{"BTCUSDT": 50000.0})

	fill, err := v.PlaceMarketOrder(context.Background(), Order{
		Symbol:   "BTCUSDT",
		Side:     SideLong,
		Quantity: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, 50000.0, fill.Price)
	assert.Equal(t, SideLong, fill.Side)
	assert.Equal(t, 0.5, fill.Quantity)
	assert.NotEmpty(t, fill.OrderID)
	assert.False(t, fill.FillTime.IsZero())
	assert.Equal(t, 1, v.OrderCount())
}

func TestPaperVenueNoMark(t *testing.T) {
	v := NewPaperVenue(staticMarks{})

	_, err := v.PlaceMarketOrder(context.Background(), Order{
		Symbol:   "ETHUSDT",
		Side:     SideLong,
		Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrNoMark)
}

func TestPaperVenueRejectsZeroQuantity(t *testing.T) {
	v := NewPaperVenue(staticMarks{"BTCUSDT": 100.0})

	_, err := v.PlaceMarketOrder(context.Background(), Order{
		Symbol: "BTCUSDT",
		Side:   SideShort,
	})
	assert.Error(t, err)
}

func TestPaperVenueClosePositionFlipsSide(t *testing.T) {
	v := NewPaperVenue(staticMarks{"BTCUSDT": 101.5})

	fill, err := v.ClosePosition(context.Background(), "BTCUSDT", SideLong, 2)
	require.NoError(t, err)

	assert.Equal(t, SideShort, fill.Side)
	assert.Equal(t, 101.5, fill.Price)
}

func TestPaperVenueCancelledContext(t *testing.T) {
	v := NewPaperVenue(staticMarks{"BTCUSDT": 100.0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.PlaceMarketOrder(ctx, Order{Symbol: "BTCUSDT", Side: SideLong, Quantity: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideShort, SideLong.Opposite())
	assert.Equal(t, SideLong, SideShort.Opposite())
}
