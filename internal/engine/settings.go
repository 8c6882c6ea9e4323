// Package engine implements the trading core: the single-writer position
// store, the decision orchestrator, the exit monitor and the projection API
// that exposes read models and control commands to the outside.
package engine

import (
	"fmt"

	"github.com/ajitpratap0/scalpd/internal/config"
	"github.com/ajitpratap0/scalpd/internal/risk"
	"github.com/ajitpratap0/scalpd/internal/signal"
)

// Settings are the runtime-tunable trading parameters. They live inside the
// engine state and change only through UpdateSettings, which validates the
// whole replacement before committing it.
type Settings struct {
	MinConfidence     float64 `json:"min_confidence"`
	MaxPositionSize   float64 `json:"max_position_size"`
	RiskPerTrade      float64 `json:"risk_per_trade"`
	MaxDailyLoss      float64 `json:"max_daily_loss"`
	MaxPositions      int     `json:"max_positions"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	MaxHoldSeconds    int     `json:"max_hold_seconds"`
	ScalingFactor     float64 `json:"scaling_factor"`
	Enabled           bool    `json:"enabled"`
	CooldownSeconds   int     `json:"cooldown_seconds"`
	MarginRatio       float64 `json:"margin_ratio"`
}

// SettingsFromConfig maps the boot configuration into runtime settings
func SettingsFromConfig(c config.SettingsConfig) Settings {
	return Settings{
		MinConfidence:     c.MinConfidence,
		MaxPositionSize:   c.MaxPositionSize,
		RiskPerTrade:      c.RiskPerTrade,
		MaxDailyLoss:      c.MaxDailyLoss,
		MaxPositions:      c.MaxPositions,
		StopLossPercent:   c.StopLossPercent,
		TakeProfitPercent: c.TakeProfitPercent,
		MaxHoldSeconds:    c.MaxHoldSeconds,
		ScalingFactor:     c.ScalingFactor,
		Enabled:           c.Enabled,
		CooldownSeconds:   c.CooldownSeconds,
		MarginRatio:       c.MarginRatio,
	}
}

// Validate checks every bound and returns all violations at once. An update
// with any invalid field is rejected whole; no partial application.
func (s Settings) Validate() error {
	var errs config.ValidationErrors

	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		errs = append(errs, config.ValidationError{
			Field:   "min_confidence",
			Message: fmt.Sprintf("Invalid min_confidence %.1f. Must be between 0-100", s.MinConfidence),
		})
	}
	if s.MaxPositionSize <= 0 {
		errs = append(errs, config.ValidationError{
			Field:   "max_position_size",
			Message: "Max position size must be greater than 0",
		})
	}
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > 10 {
		errs = append(errs, config.ValidationError{
			Field:   "risk_per_trade",
			Message: fmt.Sprintf("Invalid risk_per_trade %.2f. Must be in (0, 10]", s.RiskPerTrade),
		})
	}
	if s.MaxDailyLoss <= 0 {
		errs = append(errs, config.ValidationError{
			Field:   "max_daily_loss",
			Message: "Max daily loss must be greater than 0",
		})
	}
	if s.MaxPositions < 1 {
		errs = append(errs, config.ValidationError{
			Field:   "max_positions",
			Message: "Max positions must be at least 1",
		})
	}
	if s.StopLossPercent <= 0 || s.StopLossPercent > 10 {
		errs = append(errs, config.ValidationError{
			Field:   "stop_loss_percent",
			Message: fmt.Sprintf("Invalid stop_loss_percent %.2f. Must be in (0, 10]", s.StopLossPercent),
		})
	}
	if s.TakeProfitPercent <= s.StopLossPercent*0.5 {
		errs = append(errs, config.ValidationError{
			Field:   "take_profit_percent",
			Message: fmt.Sprintf("Invalid take_profit_percent %.2f. Must exceed half the stop loss (%.2f)", s.TakeProfitPercent, s.StopLossPercent*0.5),
		})
	}
	if s.MaxHoldSeconds < 5 {
		errs = append(errs, config.ValidationError{
			Field:   "max_hold_seconds",
			Message: "Max hold must be at least 5 seconds",
		})
	}
	if s.ScalingFactor < 0.1 || s.ScalingFactor > 100 {
		errs = append(errs, config.ValidationError{
			Field:   "scaling_factor",
			Message: fmt.Sprintf("Invalid scaling_factor %.2f. Must be in [0.1, 100]", s.ScalingFactor),
		})
	}
	if s.CooldownSeconds < 0 {
		errs = append(errs, config.ValidationError{
			Field:   "cooldown_seconds",
			Message: "Cooldown seconds must be non-negative",
		})
	}
	if s.MarginRatio <= 0 || s.MarginRatio > 1 {
		errs = append(errs, config.ValidationError{
			Field:   "margin_ratio",
			Message: fmt.Sprintf("Invalid margin_ratio %.2f. Must be in (0, 1]", s.MarginRatio),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Limits maps the settings into the risk gate's view of them
func (s Settings) Limits(quantityStep float64) risk.Limits {
	return risk.Limits{
		MinConfidence:   s.MinConfidence,
		MaxPositionSize: s.MaxPositionSize,
		MaxDailyLoss:    s.MaxDailyLoss,
		MaxPositions:    s.MaxPositions,
		CooldownSeconds: s.CooldownSeconds,
		MarginRatio:     s.MarginRatio,
		QuantityStep:    quantityStep,
	}
}

// SignalParams maps the settings into the synthesizer's target parameters
func (s Settings) SignalParams() signal.Params {
	return signal.Params{
		StopLossPercent:   s.StopLossPercent,
		TakeProfitPercent: s.TakeProfitPercent,
	}
}
