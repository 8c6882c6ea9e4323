package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures alerts and optionally fails
type recorder struct {
	sent []Alert
	err  error
}

func (r *recorder) Send(ctx context.Context, alert Alert) error {
	r.sent = append(r.sent, alert)
	return r.err
}

func TestManagerFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewManager(a, b)

	m.Send(context.Background(), Alert{Title: "test", Severity: SeverityInfo})

	require.Len(t, a.sent, 1)
	require.Len(t, b.sent, 1)
	assert.Equal(t, "test", a.sent[0].Title)
	assert.False(t, a.sent[0].Timestamp.IsZero())
}

func TestManagerSurvivesNotifierFailure(t *testing.T) {
	failing := &recorder{err: errors.New("chat unreachable")}
	ok := &recorder{}
	m := NewManager(failing, ok)

	m.Send(context.Background(), Alert{Title: "halt", Severity: SeverityCritical})

	// The failing channel does not stop the others
	require.Len(t, ok.sent, 1)
}

func TestManagerNoNotifiers(t *testing.T) {
	m := NewManager()
	m.Send(context.Background(), Alert{Title: "silent"})
}

func TestEngineHalted(t *testing.T) {
	r := &recorder{}
	m := NewManager(r)

	m.EngineHalted(context.Background(), "negative balance")

	require.Len(t, r.sent, 1)
	assert.Equal(t, SeverityCritical, r.sent[0].Severity)
	assert.Contains(t, r.sent[0].Message, "negative balance")
	assert.Equal(t, "negative balance", r.sent[0].Fields["reason"])
}

func TestDailyLossHalt(t *testing.T) {
	r := &recorder{}
	m := NewManager(r)

	m.DailyLossHalt(context.Background(), -512.34, 500)

	require.Len(t, r.sent, 1)
	assert.Equal(t, SeverityWarning, r.sent[0].Severity)
	assert.Equal(t, -512.34, r.sent[0].Fields["day_pnl"])
}

func TestSymbolQuarantined(t *testing.T) {
	r := &recorder{}
	m := NewManager(r)

	m.SymbolQuarantined(context.Background(), "DOGEUSDT", "NOT_FOUND")

	require.Len(t, r.sent, 1)
	assert.Contains(t, r.sent[0].Message, "DOGEUSDT")
}

func TestVenueFailure(t *testing.T) {
	r := &recorder{}
	m := NewManager(r)

	m.VenueFailure(context.Background(), "BTCUSDT", "close", errors.New("no mark"))

	require.Len(t, r.sent, 1)
	assert.Equal(t, SeverityCritical, r.sent[0].Severity)
	assert.Equal(t, "no mark", r.sent[0].Fields["error"])
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	err := n.Send(context.Background(), Alert{
		Title:     "test",
		Message:   "hello",
		Severity:  SeverityWarning,
		Timestamp: time.Now(),
		Fields:    map[string]any{"k": "v"},
	})
	assert.NoError(t, err)
}

func TestFormatAlert(t *testing.T) {
	out := formatAlert(Alert{
		Title:     "Engine halted",
		Message:   "bad state",
		Severity:  SeverityCritical,
		Timestamp: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Fields:    map[string]any{"reason": "drift"},
	})

	assert.Contains(t, out, "*Engine halted*")
	assert.Contains(t, out, "bad state")
	assert.Contains(t, out, "`drift`")
	assert.Contains(t, out, "2026-08-25")
}
