package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scalpd/internal/venue"
)

func exitFixture(side venue.Side, entry, stop, target float64, now time.Time) *Position {
	return &Position{
		ID:         "p1",
		Symbol:     "BTCUSDT",
		Side:       side,
		Quantity:   1,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		EntryTime:  now,
	}
}

func TestExitReasonLong(t *testing.T) {
	now := time.Now()
	s := testSettings() // tp 1.0%, sl 0.5%, hold 300s
	p := exitFixture(venue.SideLong, 100, 99.0, 101.5, now)

	tests := []struct {
		name   string
		mark   float64
		at     time.Time
		reason CloseReason
		hit    bool
	}{
		{"inside the band", 100.2, now, "", false},
		{"percent take profit", 101.1, now, ReasonTakeProfit, true},
		{"absolute target", 101.5, now, ReasonTakeProfit, true},
		{"percent stop", 99.45, now, ReasonStopLoss, true},
		{"absolute stop", 99.0, now, ReasonStopLoss, true},
		{"timeout", 100.2, now.Add(301 * time.Second), ReasonTimeout, true},
		{"not yet timed out", 100.2, now.Add(299 * time.Second), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, hit := exitReason(p, tt.mark, tt.at, s)
			require.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestExitReasonShort(t *testing.T) {
	now := time.Now()
	s := testSettings()
	p := exitFixture(venue.SideShort, 50, 50.5, 49.4, now)

	tests := []struct {
		name   string
		mark   float64
		reason CloseReason
		hit    bool
	}{
		{"inside the band", 49.9, "", false},
		{"percent take profit", 49.49, ReasonTakeProfit, true},
		{"absolute target", 49.4, ReasonTakeProfit, true},
		{"percent stop", 50.3, ReasonStopLoss, true},
		{"absolute stop", 50.5, ReasonStopLoss, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, hit := exitReason(p, tt.mark, now, s)
			require.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

// Take-profit outranks the stop, which outranks the timeout, when several
// conditions hold on the same scan
func TestExitReasonPriority(t *testing.T) {
	now := time.Now()
	s := testSettings()
	s.MaxHoldSeconds = 5
	late := now.Add(10 * time.Second)

	long := exitFixture(venue.SideLong, 100, 99.0, 101.5, now)

	reason, hit := exitReason(long, 101.2, late, s)
	require.True(t, hit)
	assert.Equal(t, ReasonTakeProfit, reason)

	reason, hit = exitReason(long, 99.3, late, s)
	require.True(t, hit)
	assert.Equal(t, ReasonStopLoss, reason)

	reason, hit = exitReason(long, 100.2, late, s)
	require.True(t, hit)
	assert.Equal(t, ReasonTimeout, reason)
}

func TestRealizedPnLZeroClamp(t *testing.T) {
	long := exitFixture(venue.SideLong, 100, 99.0, 101.5, time.Now())
	long.Quantity = 90

	// Band edge: |exit - entry| < 0.1 clamps to zero
	assert.Zero(t, realizedPnL(long, 100.05))
	assert.Zero(t, realizedPnL(long, 99.95))
	assert.InDelta(t, 13.5, realizedPnL(long, 100.15), 1e-9)
	assert.InDelta(t, -13.5, realizedPnL(long, 99.85), 1e-9)

	short := exitFixture(venue.SideShort, 100, 101.0, 98.8, time.Now())
	short.Quantity = 90
	assert.Zero(t, realizedPnL(short, 100.05))
	assert.InDelta(t, -13.5, realizedPnL(short, 100.15), 1e-9)
	assert.InDelta(t, 13.5, realizedPnL(short, 99.85), 1e-9)
}

func TestHitLevelsIgnoreUnsetTargets(t *testing.T) {
	p := exitFixture(venue.SideLong, 100, 0, 0, time.Now())

	assert.False(t, hitTarget(p, 200))
	assert.False(t, hitStop(p, 1))
}
