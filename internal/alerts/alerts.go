// Package alerts delivers operational notifications for events a human
// should see promptly: engine halts, daily-loss trading stops, symbol
// quarantines, venue failures. Alert delivery is best-effort; failures are
// logged and never propagate into the engine.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Fields    map[string]any
}

// Notifier delivers alerts to one channel
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans an alert out to every configured notifier
type Manager struct {
	notifiers []Notifier
}

// NewManager creates an alert manager over the given channels. With no
// channels every send is a silent no-op.
func NewManager(notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// Send delivers the alert to all channels, logging per-channel failures
func (m *Manager) Send(ctx context.Context, alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
		}
	}
}

// EngineHalted alerts on a fatal invariant violation
func (m *Manager) EngineHalted(ctx context.Context, reason string) {
	m.Send(ctx, Alert{
		Title:    "Engine halted",
		Message:  fmt.Sprintf("Trading engine halted: %s", reason),
		Severity: SeverityCritical,
		Fields:   map[string]any{"reason": reason},
	})
}

// DailyLossHalt alerts when the daily loss limit stops new entries
func (m *Manager) DailyLossHalt(ctx context.Context, dayPnL, limit float64) {
	m.Send(ctx, Alert{
		Title:    "Daily loss limit reached",
		Message:  fmt.Sprintf("Day PnL %.2f breached limit %.2f; no new entries until rollover", dayPnL, limit),
		Severity: SeverityWarning,
		Fields:   map[string]any{"day_pnl": dayPnL, "limit": limit},
	})
}

// SymbolQuarantined alerts when a symbol is pulled from polling
func (m *Manager) SymbolQuarantined(ctx context.Context, symbol, reason string) {
	m.Send(ctx, Alert{
		Title:    "Symbol quarantined",
		Message:  fmt.Sprintf("%s removed from polling: %s", symbol, reason),
		Severity: SeverityWarning,
		Fields:   map[string]any{"symbol": symbol, "reason": reason},
	})
}

// VenueFailure alerts on a failed order execution
func (m *Manager) VenueFailure(ctx context.Context, symbol, action string, err error) {
	m.Send(ctx, Alert{
		Title:    "Venue execution failed",
		Message:  fmt.Sprintf("%s for %s failed: %v", action, symbol, err),
		Severity: SeverityCritical,
		Fields:   map[string]any{"symbol": symbol, "action": action, "error": err.Error()},
	})
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send logs the alert at a level matching its severity
func (l *LogNotifier) Send(ctx context.Context, alert Alert) error {
	event := log.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	}

	for key, value := range alert.Fields {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(alert.Message)

	return nil
}
