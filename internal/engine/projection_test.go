package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scalpd/internal/config"
	"github.com/ajitpratap0/scalpd/internal/journal"
	"github.com/ajitpratap0/scalpd/internal/signal"
)

func TestUpdateSettingsReplacesAtomically(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")

	next := testSettings()
	next.MinConfidence = 75
	next.CooldownSeconds = 60

	require.NoError(t, h.engine.UpdateSettings(context.Background(), next))

	st := h.state()
	assert.Equal(t, 75.0, st.Settings.MinConfidence)
	assert.Equal(t, 60, st.Settings.CooldownSeconds)

	updates := h.journal.ByKind(journal.KindSettingsUpdate)
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].Payload, "old")
	assert.Contains(t, updates[0].Payload, "new")
}

func TestUpdateSettingsRejectsInvalidWhole(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")

	next := testSettings()
	next.MinConfidence = 75 // valid change
	next.MarginRatio = 2   // invalid one

	err := h.engine.UpdateSettings(context.Background(), next)
	require.Error(t, err)

	var verrs config.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "margin_ratio", verrs[0].Field)

	// Nothing applied, not even the valid field
	st := h.state()
	assert.Equal(t, 60.0, st.Settings.MinConfidence)
	assert.Empty(t, h.journal.ByKind(journal.KindSettingsUpdate))
}

func TestUpdateSettingsJournalsEveryApply(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	next := testSettings()

	// Applying the same settings twice is idempotent in state but both
	// applications are journaled
	require.NoError(t, h.engine.UpdateSettings(context.Background(), next))
	require.NoError(t, h.engine.UpdateSettings(context.Background(), next))

	assert.Len(t, h.journal.ByKind(journal.KindSettingsUpdate), 2)
	assert.Equal(t, next, h.state().Settings)
}

func TestSetEnabledIsIdempotentAndUnjournaled(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")

	require.NoError(t, h.engine.Disable(context.Background()))
	require.NoError(t, h.engine.Disable(context.Background()))
	assert.False(t, h.state().Settings.Enabled)

	require.NoError(t, h.engine.Enable(context.Background()))
	assert.True(t, h.state().Settings.Enabled)

	assert.Zero(t, h.journal.Len())
}

func TestClosePositionManual(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	require.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))

	closed, err := h.engine.ClosePosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ReasonManual, closed.CloseReason)
	assert.Empty(t, h.state().Positions)

	_, err = h.engine.ClosePosition(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestAddAndRemoveSymbol(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")

	require.NoError(t, h.engine.AddSymbol(context.Background(), "ETHUSDT"))
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, h.state().Watchlist)

	// Re-adding is a no-op
	require.NoError(t, h.engine.AddSymbol(context.Background(), "ETHUSDT"))
	assert.Len(t, h.state().Watchlist, 2)

	// Removing closes any open position first
	h.mark("ETHUSDT", 50)
	require.NotNil(t, h.open("ETHUSDT", signal.Buy, 80, 50, 49.5, 50.8))

	require.NoError(t, h.engine.RemoveSymbol(context.Background(), "ETHUSDT"))
	st := h.state()
	assert.Equal(t, []string{"BTCUSDT"}, st.Watchlist)
	assert.Empty(t, st.Positions)
	require.Len(t, st.Closed, 1)
	assert.Equal(t, ReasonManual, st.Closed[0].CloseReason)

	_, ok := h.buffers.Get("ETHUSDT")
	assert.False(t, ok)
}

func TestProjectBuildsFullView(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT", "ETHUSDT")
	h.mark("BTCUSDT", 100)

	require.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))
	h.mark("BTCUSDT", 100.5)

	snap := h.engine.Project()

	assert.InDelta(t, 10000, snap.TradingBalance, 1e-9)
	assert.False(t, snap.Halted)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
	require.Len(t, snap.Watchlist, 2)

	var btc, eth *SymbolView
	for i := range snap.Watchlist {
		switch snap.Watchlist[i].Symbol {
		case "BTCUSDT":
			btc = &snap.Watchlist[i]
		case "ETHUSDT":
			eth = &snap.Watchlist[i]
		}
	}
	require.NotNil(t, btc)
	require.NotNil(t, eth)

	// One flat candle is far from the warm threshold
	assert.True(t, btc.Warming)
	assert.InDelta(t, 100.5, btc.Price, 1e-9)
	assert.True(t, eth.Warming)
	assert.Zero(t, eth.Candles)

	require.Len(t, snap.Positions, 1)
	pv := snap.Positions[0]
	assert.Equal(t, "BTCUSDT", pv.Symbol)
	assert.InDelta(t, 100.5, pv.Mark, 1e-9)
	assert.InDelta(t, 45.0, pv.UnrealizedPnL, 1e-9) // 0.5 * 90
	assert.InDelta(t, 45.0, snap.UnrealizedPnL, 1e-9)
}

func TestProjectSnapshotsAreIndependent(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)
	require.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))

	s1 := h.engine.Project()
	s2 := h.engine.Project()

	s1.Positions[0].Quantity = 12345
	s1.Settings.MinConfidence = 1
	s1.RecentTrades = nil

	assert.InDelta(t, 90, s2.Positions[0].Quantity, 1e-9)
	assert.Equal(t, 60.0, s2.Settings.MinConfidence)
	assert.InDelta(t, 90, h.state().Positions["BTCUSDT"].Quantity, 1e-9)
}
