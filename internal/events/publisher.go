// Package events broadcasts engine activity on NATS so external consumers
// (dashboards, recorders) can follow signals and trades without touching
// engine state. Publishing is fire-and-forget: a dead bus never slows or
// fails the trading loop.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/scalpd/internal/signal"
)

// Subjects published by the engine
const (
	SubjectSignalPrefix = "scalpd.signal." // + symbol
	SubjectTradeOpened  = "scalpd.trade.opened"
	SubjectTradeClosed  = "scalpd.trade.closed"
	SubjectEngineHalted = "scalpd.engine.halted"
)

// TradeEvent describes an opened or closed position on the wire
type TradeEvent struct {
	PositionID  string    `json:"position_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	ExitPrice   float64   `json:"exit_price,omitempty"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	At          time.Time `json:"at"`
}

// HaltEvent describes an engine halt
type HaltEvent struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Publisher broadcasts engine events. Implementations must never block the
// caller beyond a local buffer write.
type Publisher interface {
	SignalGenerated(advice signal.Advice)
	TradeOpened(event TradeEvent)
	TradeClosed(event TradeEvent)
	EngineHalted(reason string)
	Close() error
}

// Nop discards all events; used when NATS is not configured
type Nop struct{}

func (Nop) SignalGenerated(signal.Advice) {}
func (Nop) TradeOpened(TradeEvent)        {}
func (Nop) TradeClosed(TradeEvent)        {}
func (Nop) EngineHalted(string)           {}
func (Nop) Close() error                  { return nil }

// NATSPublisher publishes JSON events to a NATS connection
type NATSPublisher struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewNATSPublisher connects to the given NATS URL with infinite reconnects
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("scalpd-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("nats_url", url).Msg("Event publisher connected")

	return &NATSPublisher{
		nc:     nc,
		logger: log.With().Str("component", "events").Logger(),
	}, nil
}

// publish marshals and sends one event, logging failures instead of
// returning them
func (p *NATSPublisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("Event marshal failed")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("Event publish failed")
	}
}

// SignalGenerated publishes a synthesized signal on its per-symbol subject
func (p *NATSPublisher) SignalGenerated(advice signal.Advice) {
	p.publish(SubjectSignalPrefix+advice.Symbol, advice)
}

// TradeOpened publishes a position open
func (p *NATSPublisher) TradeOpened(event TradeEvent) {
	p.publish(SubjectTradeOpened, event)
}

// TradeClosed publishes a position close
func (p *NATSPublisher) TradeClosed(event TradeEvent) {
	p.publish(SubjectTradeClosed, event)
}

// EngineHalted publishes an engine halt notification
func (p *NATSPublisher) EngineHalted(reason string) {
	p.publish(SubjectEngineHalted, HaltEvent{Reason: reason, At: time.Now().UTC()})
}

// Close flushes buffered messages and drops the connection
func (p *NATSPublisher) Close() error {
	if err := p.nc.Flush(); err != nil {
		p.logger.Warn().Err(err).Msg("NATS flush failed on close")
	}
	p.nc.Close()
	return nil
}
