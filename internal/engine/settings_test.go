package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scalpd/internal/config"
)

func TestSettingsValidateAccepts(t *testing.T) {
	assert.NoError(t, testSettings().Validate())
}

func TestSettingsValidateCollectsEveryViolation(t *testing.T) {
	s := Settings{
		MinConfidence:     150, // > 100
		MaxPositionSize:   0,
		RiskPerTrade:      11,
		MaxDailyLoss:      -5,
		MaxPositions:      0,
		StopLossPercent:   12,
		TakeProfitPercent: 1, // below half of stop
		MaxHoldSeconds:    2,
		ScalingFactor:     0.05,
		CooldownSeconds:   -1,
		MarginRatio:       1.5,
	}

	err := s.Validate()
	require.Error(t, err)

	var verrs config.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 11)

	fields := make(map[string]bool, len(verrs))
	for _, ve := range verrs {
		fields[ve.Field] = true
	}
	for _, f := range []string{
		"min_confidence", "max_position_size", "risk_per_trade",
		"max_daily_loss", "max_positions", "stop_loss_percent",
		"take_profit_percent", "max_hold_seconds", "scaling_factor",
		"cooldown_seconds", "margin_ratio",
	} {
		assert.True(t, fields[f], "missing violation for %s", f)
	}
}

func TestSettingsValidateBoundaries(t *testing.T) {
	s := testSettings()

	s.StopLossPercent = 10 // inclusive upper bound
	s.TakeProfitPercent = 5.01
	assert.NoError(t, s.Validate())

	s.TakeProfitPercent = 5 // exactly half the stop is rejected
	assert.Error(t, s.Validate())

	s = testSettings()
	s.ScalingFactor = 0.1
	assert.NoError(t, s.Validate())
	s.ScalingFactor = 100
	assert.NoError(t, s.Validate())

	s = testSettings()
	s.MarginRatio = 1 // full collateral shorts are allowed
	assert.NoError(t, s.Validate())

	s = testSettings()
	s.MaxHoldSeconds = 5
	assert.NoError(t, s.Validate())
	s.MaxHoldSeconds = 4
	assert.Error(t, s.Validate())
}

func TestSettingsFromConfigMapsEveryField(t *testing.T) {
	c := config.SettingsConfig{
		MinConfidence:     65,
		MaxPositionSize:   5000,
		RiskPerTrade:      2,
		MaxDailyLoss:      400,
		MaxPositions:      2,
		StopLossPercent:   0.4,
		TakeProfitPercent: 0.9,
		MaxHoldSeconds:    120,
		ScalingFactor:     2,
		Enabled:           true,
		CooldownSeconds:   15,
		MarginRatio:       0.25,
	}

	s := SettingsFromConfig(c)
	assert.Equal(t, 65.0, s.MinConfidence)
	assert.Equal(t, 5000.0, s.MaxPositionSize)
	assert.Equal(t, 2.0, s.RiskPerTrade)
	assert.Equal(t, 400.0, s.MaxDailyLoss)
	assert.Equal(t, 2, s.MaxPositions)
	assert.Equal(t, 0.4, s.StopLossPercent)
	assert.Equal(t, 0.9, s.TakeProfitPercent)
	assert.Equal(t, 120, s.MaxHoldSeconds)
	assert.Equal(t, 2.0, s.ScalingFactor)
	assert.True(t, s.Enabled)
	assert.Equal(t, 15, s.CooldownSeconds)
	assert.Equal(t, 0.25, s.MarginRatio)
	assert.NoError(t, s.Validate())
}

func TestLimitsMapping(t *testing.T) {
	s := testSettings()
	lim := s.Limits(0.001)

	assert.Equal(t, s.MinConfidence, lim.MinConfidence)
	assert.Equal(t, s.MaxPositionSize, lim.MaxPositionSize)
	assert.Equal(t, s.MaxDailyLoss, lim.MaxDailyLoss)
	assert.Equal(t, s.MaxPositions, lim.MaxPositions)
	assert.Equal(t, s.CooldownSeconds, lim.CooldownSeconds)
	assert.Equal(t, s.MarginRatio, lim.MarginRatio)
	assert.Equal(t, 0.001, lim.QuantityStep)

	params := s.SignalParams()
	assert.Equal(t, s.StopLossPercent, params.StopLossPercent)
	assert.Equal(t, s.TakeProfitPercent, params.TakeProfitPercent)
}
