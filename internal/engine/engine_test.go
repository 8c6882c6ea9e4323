package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scalpd/internal/journal"
	"github.com/ajitpratap0/scalpd/internal/market"
	"github.com/ajitpratap0/scalpd/internal/signal"
	"github.com/ajitpratap0/scalpd/internal/venue"
)

// fakeClock starts at the real wall clock so venue fill times (which use
// time.Now) stay comparable, but advances only when told to
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testSettings() Settings {
	return Settings{
		MinConfidence:     60,
		MaxPositionSize:   10000,
		RiskPerTrade:      1,
		MaxDailyLoss:      500,
		MaxPositions:      3,
		StopLossPercent:   0.5,
		TakeProfitPercent: 1.0,
		MaxHoldSeconds:    300,
		ScalingFactor:     1,
		Enabled:           true,
		CooldownSeconds:   0,
		MarginRatio:       0.20,
	}
}

type harness struct {
	t       *testing.T
	engine  *Engine
	buffers *market.Buffers
	journal *journal.Memory
	clock   *fakeClock
	venue   *venue.PaperVenue
}

func newHarness(t *testing.T, settings Settings, balance float64, symbols ...string) *harness {
	t.Helper()

	buffers := market.NewBuffers()
	jrnl := journal.NewMemory()
	clk := newFakeClock()
	pv := venue.NewPaperVenue(buffers)

	eng := New(NewState(balance, settings, symbols, clk.Now()), Deps{
		Buffers: buffers,
		Venue:   pv,
		Journal: jrnl,
	}, Options{
		QuantityStep:  0.0001,
		ClosedHistory: 200,
		CrashFile:     filepath.Join(t.TempDir(), "crash.json"),
		Clock:         clk.Now,
		Logger:        zerolog.Nop(),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.store.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{t: t, engine: eng, buffers: buffers, journal: jrnl, clock: clk, venue: pv}
}

// mark pushes a flat candle so the symbol's last close becomes price
func (h *harness) mark(symbol string, price float64) {
	h.buffers.Ensure(symbol).Append(market.Candle{
		Symbol:   symbol,
		OpenTime: h.clock.Now(),
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Volume:   1,
	})
}

// open drives the entry path with crafted advice and returns the installed
// position, or nil when the gate rejected it
func (h *harness) open(symbol string, sig signal.Signal, conf, entry, stop, target float64) *Position {
	h.t.Helper()

	advice := signal.Advice{
		Symbol:      symbol,
		Signal:      sig,
		Confidence:  conf,
		Entry:       entry,
		StopLoss:    stop,
		TakeProfit:  target,
		GeneratedAt: h.clock.Now(),
	}
	side := venue.SideShort
	if sig.IsBuy() {
		side = venue.SideLong
	}

	h.engine.openPosition(context.Background(), h.engine.store.Snapshot(), advice, side)
	return h.engine.store.Snapshot().Positions[symbol]
}

func (h *harness) state() *State {
	return h.engine.store.Snapshot()
}

func TestLongRoundTripTakeProfit(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5)
	require.NotNil(t, pos)

	// notional = min(10000, 0.9*10000) = 9000 at price 100
	assert.InDelta(t, 90, pos.Quantity, 1e-9)
	assert.InDelta(t, 9000, pos.Notional, 1e-9)
	assert.InDelta(t, 9000, pos.Commitment, 1e-9)
	assert.InDelta(t, 1000, h.state().AvailableBalance, 1e-9)

	// +1.10% clears the 1.0% take-profit
	h.mark("BTCUSDT", 101.10)
	h.engine.scanExits(context.Background())

	st := h.state()
	require.Empty(t, st.Positions)
	require.Len(t, st.Closed, 1)

	closed := st.Closed[0]
	assert.Equal(t, ReasonTakeProfit, closed.CloseReason)
	assert.InDelta(t, 99.00, closed.RealizedPnL, 1e-9)
	assert.InDelta(t, 10099.00, st.AvailableBalance, 1e-9)
	assert.InDelta(t, 99.00, st.TotalPnL, 1e-9)
	assert.InDelta(t, 99.00, st.DayPnL, 1e-9)

	assert.Len(t, h.journal.ByKind(journal.KindTradeOpen), 1)
	assert.Len(t, h.journal.ByKind(journal.KindTradeClose), 1)
}

func TestShortRoundTripStopLoss(t *testing.T) {
	settings := testSettings()
	settings.MaxPositionSize = 9000
	settings.MaxDailyLoss = 5000
	h := newHarness(t, settings, 10000, "ETHUSDT")
	h.mark("ETHUSDT", 50)

	pos := h.open("ETHUSDT", signal.Sell, 80, 50, 50.5, 49.4)
	require.NotNil(t, pos)

	// 9000 notional at 50 is 180 units; shorts commit only 20% margin
	assert.InDelta(t, 180, pos.Quantity, 1e-9)
	assert.InDelta(t, 1800, pos.Commitment, 1e-9)
	assert.InDelta(t, 8200, h.state().AvailableBalance, 1e-9)

	// -0.6% against the short breaches the 0.5% stop
	h.mark("ETHUSDT", 50.3)
	h.engine.scanExits(context.Background())

	st := h.state()
	require.Empty(t, st.Positions)
	require.Len(t, st.Closed, 1)

	closed := st.Closed[0]
	assert.Equal(t, ReasonStopLoss, closed.CloseReason)
	assert.InDelta(t, -54.0, closed.RealizedPnL, 1e-9)
	assert.InDelta(t, 9946.0, st.AvailableBalance, 1e-9)
	assert.InDelta(t, -54.0, st.TotalPnL, 1e-9)
}

func TestTimeoutExitClampsFlatPnLToZero(t *testing.T) {
	settings := testSettings()
	settings.MaxHoldSeconds = 5
	h := newHarness(t, settings, 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5)
	require.NotNil(t, pos)

	// A 0.05 move is inside the 1e-3 clamp band around a 100 entry
	h.clock.Advance(6 * time.Second)
	h.mark("BTCUSDT", 100.05)
	h.engine.scanExits(context.Background())

	st := h.state()
	require.Empty(t, st.Positions)
	require.Len(t, st.Closed, 1)

	closed := st.Closed[0]
	assert.Equal(t, ReasonTimeout, closed.CloseReason)
	assert.Zero(t, closed.RealizedPnL)
	assert.InDelta(t, 10000, st.AvailableBalance, 1e-9)
	assert.Zero(t, st.TotalPnL)
}

func TestDailyLossBlocksNewEntries(t *testing.T) {
	settings := testSettings()
	settings.StopLossPercent = 5
	settings.TakeProfitPercent = 8
	h := newHarness(t, settings, 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 93.0, 108.5)
	require.NotNil(t, pos)

	// -6.7% blows through the stop and books a loss past the daily limit
	h.mark("BTCUSDT", 93.3)
	h.engine.scanExits(context.Background())

	st := h.state()
	require.Empty(t, st.Positions)
	assert.InDelta(t, -603.0, st.DayPnL, 1e-9)

	// Fresh entries stay blocked until the day rolls over
	h.mark("BTCUSDT", 100)
	again := h.open("BTCUSDT", signal.Buy, 90, 100, 93.0, 108.5)
	assert.Nil(t, again)
	assert.Len(t, h.journal.ByKind(journal.KindTradeOpen), 1)
}

func TestCooldownAnchorsAtOpenTime(t *testing.T) {
	settings := testSettings()
	settings.CooldownSeconds = 30
	h := newHarness(t, settings, 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5)
	require.NotNil(t, pos)

	h.clock.Advance(5 * time.Second)
	_, err := h.engine.ClosePosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// 10s after the open is still inside the 30s cooldown
	h.clock.Advance(5 * time.Second)
	assert.Nil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))

	// 31s after the open clears it
	h.clock.Advance(21 * time.Second)
	assert.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))
}

func TestOppositeSignalFlipClosesPosition(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5)
	require.NotNil(t, pos)

	advice := signal.Advice{
		Symbol:     "BTCUSDT",
		Signal:     signal.Sell,
		Confidence: 75,
		Entry:      100,
		StopLoss:   101.0,
		TakeProfit: 98.8,
	}
	h.engine.act(context.Background(), h.state(), advice)

	st := h.state()
	assert.Empty(t, st.Positions)
	require.Len(t, st.Closed, 1)
	assert.Equal(t, ReasonOppositeSignal, st.Closed[0].CloseReason)
}

func TestOppositeSignalBelowConfidenceKeepsPosition(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5)
	require.NotNil(t, pos)

	advice := signal.Advice{
		Symbol:     "BTCUSDT",
		Signal:     signal.Sell,
		Confidence: 45, // below the 60 minimum
		Entry:      100,
	}
	h.engine.act(context.Background(), h.state(), advice)

	st := h.state()
	require.Len(t, st.Positions, 1)
	assert.Equal(t, pos.ID, st.Positions["BTCUSDT"].ID)
}

func TestSameSideSignalLeavesPositionAlone(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5)
	require.NotNil(t, pos)
	orders := h.venue.OrderCount()

	advice := signal.Advice{
		Symbol:     "BTCUSDT",
		Signal:     signal.StrongBuy,
		Confidence: 95,
		Entry:      100,
		StopLoss:   99.0,
		TakeProfit: 101.5,
	}
	h.engine.act(context.Background(), h.state(), advice)

	st := h.state()
	require.Len(t, st.Positions, 1)
	assert.Equal(t, pos.ID, st.Positions["BTCUSDT"].ID)
	assert.Equal(t, orders, h.venue.OrderCount())
}

func TestBalanceConservationAcrossTrades(t *testing.T) {
	settings := testSettings()
	settings.MaxDailyLoss = 100000
	settings.MaxPositionSize = 2000
	h := newHarness(t, settings, 10000, "BTCUSDT", "ETHUSDT")

	prices := []struct {
		sym         string
		entry, exit float64
		sig         signal.Signal
	}{
		{"BTCUSDT", 100, 101.2, signal.Buy},
		{"ETHUSDT", 50, 49.6, signal.Buy},
		{"BTCUSDT", 101.2, 100.1, signal.Sell},
		{"ETHUSDT", 49.6, 50.2, signal.Sell},
	}

	for _, p := range prices {
		h.mark(p.sym, p.entry)
		stop, target := p.entry*0.99, p.entry*1.015
		if p.sig.IsSell() {
			stop, target = p.entry*1.01, p.entry*0.985
		}
		require.NotNil(t, h.open(p.sym, p.sig, 80, p.entry, stop, target))

		st := h.state()
		assert.LessOrEqual(t, conservationDrift(st), balanceTolerance)

		h.mark(p.sym, p.exit)
		h.engine.scanExits(context.Background())
		h.clock.Advance(time.Second)

		st = h.state()
		require.Empty(t, st.Positions)
		assert.LessOrEqual(t, conservationDrift(st), balanceTolerance)
	}

	st := h.state()
	assert.InDelta(t, st.TradingBalance+st.TotalPnL, st.AvailableBalance, balanceTolerance)
	assert.Len(t, st.Closed, 4)
}

func TestMaxPositionsBypassedByFlip(t *testing.T) {
	settings := testSettings()
	settings.MaxPositions = 1
	settings.MaxPositionSize = 2000
	h := newHarness(t, settings, 10000, "BTCUSDT", "ETHUSDT")
	h.mark("BTCUSDT", 100)
	h.mark("ETHUSDT", 50)

	require.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))

	// A second symbol is refused outright at the position cap
	assert.Nil(t, h.open("ETHUSDT", signal.Buy, 80, 50, 49.5, 50.8))

	// But an opposite signal on the held symbol still flips it closed
	advice := signal.Advice{
		Symbol:     "BTCUSDT",
		Signal:     signal.Sell,
		Confidence: 75,
		Entry:      100,
	}
	h.engine.act(context.Background(), h.state(), advice)
	assert.Empty(t, h.state().Positions)
}

func TestDisabledEngineSkipsDecisionsButKeepsExits(t *testing.T) {
	settings := testSettings()
	settings.MaxHoldSeconds = 5
	h := newHarness(t, settings, 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	require.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))
	require.NoError(t, h.engine.Disable(context.Background()))

	// decide is a no-op while disabled
	h.engine.decide(context.Background())
	require.Len(t, h.state().Positions, 1)

	// the exit monitor still manages the open position
	h.clock.Advance(6 * time.Second)
	h.engine.scanExits(context.Background())
	assert.Empty(t, h.state().Positions)
}

func TestShutdownFlattensBook(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT", "ETHUSDT")
	h.mark("BTCUSDT", 100)
	h.mark("ETHUSDT", 50)

	require.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))

	h.engine.shutdown(context.Background())

	st := h.state()
	assert.Empty(t, st.Positions)
	require.Len(t, st.Closed, 1)
	assert.Equal(t, ReasonShutdown, st.Closed[0].CloseReason)
	assert.Len(t, h.journal.ByKind(journal.KindShutdown), 1)
}

func TestJournalSequenceIsMonotonic(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")
	h.mark("BTCUSDT", 100)

	require.NotNil(t, h.open("BTCUSDT", signal.Buy, 80, 100, 99.0, 101.5))
	h.mark("BTCUSDT", 101.2)
	h.engine.scanExits(context.Background())

	entries := h.journal.Entries()
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
}

func TestEntryDroppedWhenFillCrossesAdvisedStop(t *testing.T) {
	h := newHarness(t, testSettings(), 10000, "BTCUSDT")

	// Advice was computed at mark 100 but the mark fell through the 99.50
	// stop before the fill
	h.mark("BTCUSDT", 99.40)
	pos := h.open("BTCUSDT", signal.Buy, 80, 100, 99.5, 101.0)
	require.Nil(t, pos)

	st := h.state()
	assert.False(t, st.Halted)
	assert.Empty(t, st.Positions)
	assert.InDelta(t, 10000, st.AvailableBalance, 1e-9)
	assert.Zero(t, h.journal.Len())

	// Short mirror: the mark rallied through the stop above
	h.mark("BTCUSDT", 100.60)
	pos = h.open("BTCUSDT", signal.Sell, 80, 100, 100.5, 98.9)
	require.Nil(t, pos)
	assert.False(t, h.state().Halted)
	assert.Empty(t, h.state().Positions)
}
