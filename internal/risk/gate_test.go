package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scalpd/internal/venue"
)

func testLimits() Limits {
	return Limits{
		MinConfidence:   50,
		MaxPositionSize: 10000,
		MaxDailyLoss:    100,
		MaxPositions:    3,
		CooldownSeconds: 30,
		MarginRatio:     0.20,
		QuantityStep:    1,
	}
}

func longProposal(price, confidence float64) Proposal {
	return Proposal{
		Symbol:     "BTCUSDT",
		Side:       venue.SideLong,
		Price:      price,
		Confidence: confidence,
		Now:        time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestAdmitSizesLongEntry(t *testing.T) {
	// 10k balance, 10k cap: notional = min(10000, 9000) = 9000
	sizing, rej := Admit(longProposal(100, 70), View{AvailableBalance: 10000}, testLimits())
	require.Nil(t, rej)

	assert.Equal(t, 90.0, sizing.Quantity)
	assert.Equal(t, 9000.0, sizing.Notional)
	assert.Equal(t, 9000.0, sizing.Commitment)
}

func TestAdmitShortCommitsMargin(t *testing.T) {
	p := longProposal(50, 85)
	p.Side = venue.SideShort

	sizing, rej := Admit(p, View{AvailableBalance: 10000}, testLimits())
	require.Nil(t, rej)

	assert.Equal(t, 180.0, sizing.Quantity)
	assert.Equal(t, 9000.0, sizing.Notional)
	assert.Equal(t, 1800.0, sizing.Commitment)
}

func TestAdmitBelowConfidence(t *testing.T) {
	_, rej := Admit(longProposal(100, 49.9), View{AvailableBalance: 10000}, testLimits())
	require.NotNil(t, rej)
	assert.Equal(t, RejectBelowConfidence, rej.Kind)
}

func TestAdmitDailyLossExceeded(t *testing.T) {
	for _, dayPnL := range []float64{-100.01, -100, 100} {
		_, rej := Admit(longProposal(100, 95), View{AvailableBalance: 10000, DayPnL: dayPnL}, testLimits())
		require.NotNil(t, rej, "dayPnL %f", dayPnL)
		assert.Equal(t, RejectDailyLossExceeded, rej.Kind)
	}
}

func TestAdmitDailyLossJustInside(t *testing.T) {
	_, rej := Admit(longProposal(100, 95), View{AvailableBalance: 10000, DayPnL: -99.99}, testLimits())
	assert.Nil(t, rej)
}

func TestAdmitTooManyPositions(t *testing.T) {
	_, rej := Admit(longProposal(100, 70), View{AvailableBalance: 10000, OpenCount: 3}, testLimits())
	require.NotNil(t, rej)
	assert.Equal(t, RejectTooManyPositions, rej.Kind)
}

func TestAdmitAtCapWhenEntryWouldCloseOpposite(t *testing.T) {
	short := venue.SideShort
	// At the position cap, but the same symbol holds an opposite position
	// this entry would flatten first
	_, rej := Admit(longProposal(100, 70), View{
		AvailableBalance: 10000,
		OpenCount:        3,
		OpenSide:         &short,
	}, testLimits())
	// Falls through the count check and lands on cooldown/open checks
	require.NotNil(t, rej)
	assert.NotEqual(t, RejectTooManyPositions, rej.Kind)
}

func TestAdmitTinyBalanceFloorsToZero(t *testing.T) {
	lim := testLimits()
	lim.MaxPositionSize = 500

	sizing, rej := Admit(longProposal(100, 70), View{AvailableBalance: 100}, lim)
	require.NotNil(t, rej)
	assert.Equal(t, RejectZeroQuantity, rej.Kind)
	assert.Zero(t, sizing.Quantity)
}

func TestAdmitCommitmentWithinBalance(t *testing.T) {
	lim := testLimits()
	lim.MaxPositionSize = 90

	sizing, rej := Admit(longProposal(90, 70), View{AvailableBalance: 100}, lim)
	require.Nil(t, rej)
	assert.Equal(t, 1.0, sizing.Quantity)
	assert.Equal(t, 90.0, sizing.Commitment)
}

func TestAdmitCooldown(t *testing.T) {
	p := longProposal(100, 70)
	view := View{AvailableBalance: 10000, LastTradeAt: p.Now.Add(-10 * time.Second)}

	_, rej := Admit(p, view, testLimits())
	require.NotNil(t, rej)
	assert.Equal(t, RejectSymbolCoolingDown, rej.Kind)

	view.LastTradeAt = p.Now.Add(-31 * time.Second)
	_, rej = Admit(p, view, testLimits())
	assert.Nil(t, rej)
}

func TestAdmitAlreadyOpenSameSide(t *testing.T) {
	long := venue.SideLong
	_, rej := Admit(longProposal(100, 70), View{
		AvailableBalance: 10000,
		OpenCount:        1,
		OpenSide:         &long,
	}, testLimits())
	require.NotNil(t, rej)
	assert.Equal(t, RejectAlreadyOpen, rej.Kind)
}

func TestAdmitZeroQuantity(t *testing.T) {
	// Price far above what the balance can buy a whole step of
	_, rej := Admit(longProposal(1_000_000, 70), View{AvailableBalance: 1000}, testLimits())
	require.NotNil(t, rej)
	assert.Equal(t, RejectZeroQuantity, rej.Kind)
}

func TestSizeFractionalStep(t *testing.T) {
	lim := testLimits()
	lim.QuantityStep = 0.0001

	sizing := Size(venue.SideLong, 50000, 10000, lim)

	// notional 9000 at 50000 = 0.18, an exact step multiple
	assert.InDelta(t, 0.18, sizing.Quantity, 1e-12)
	assert.InDelta(t, 9000.0, sizing.Notional, 1e-6)
}

func TestSizeFloorsToStep(t *testing.T) {
	lim := testLimits()
	lim.QuantityStep = 1

	sizing := Size(venue.SideLong, 333, 1000, lim)

	// 900/333 = 2.70..., floors to 2
	assert.Equal(t, 2.0, sizing.Quantity)
	assert.Equal(t, 666.0, sizing.Notional)
}

func TestSizeZeroPrice(t *testing.T) {
	sizing := Size(venue.SideLong, 0, 1000, testLimits())
	assert.Zero(t, sizing.Quantity)
}

func TestRejectionString(t *testing.T) {
	r := reject(RejectBelowConfidence, "confidence %.1f", 42.0)
	assert.Contains(t, r.String(), "BELOW_CONFIDENCE")
	assert.Contains(t, r.String(), "42.0")
}
