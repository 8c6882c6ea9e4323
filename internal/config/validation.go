package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateEngine()...)
	errors = append(errors, c.validateMarket()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateAlerts()...)
	errors = append(errors, c.validateMonitoring()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	if c.App.LogFormat != "" && c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be 'json' or 'console'", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateEngine() ValidationErrors {
	var errors ValidationErrors

	if c.Engine.InitialBalance <= 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.initial_balance",
			Message: "Initial balance must be greater than 0",
		})
	}

	if c.Engine.QuantityStep <= 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.quantity_step",
			Message: "Quantity step must be greater than 0",
		})
	}

	if c.Engine.ClosedHistorySize < 1 {
		errors = append(errors, ValidationError{
			Field:   "engine.closed_history_size",
			Message: "Closed history size must be at least 1",
		})
	}

	// Runtime settings share the same validation rules the projection API
	// applies to live updates; a config that would be rejected at runtime
	// must not boot either.
	s := c.Engine.Settings
	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.min_confidence",
			Message: fmt.Sprintf("Invalid min_confidence %.1f. Must be between 0-100", s.MinConfidence),
		})
	}
	if s.MaxPositionSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.max_position_size",
			Message: "Max position size must be greater than 0",
		})
	}
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > 10 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.risk_per_trade",
			Message: fmt.Sprintf("Invalid risk_per_trade %.2f. Must be in (0, 10]", s.RiskPerTrade),
		})
	}
	if s.MaxDailyLoss <= 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.max_daily_loss",
			Message: "Max daily loss must be greater than 0",
		})
	}
	if s.MaxPositions < 1 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.max_positions",
			Message: "Max positions must be at least 1",
		})
	}
	if s.StopLossPercent <= 0 || s.StopLossPercent > 10 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.stop_loss_percent",
			Message: fmt.Sprintf("Invalid stop_loss_percent %.2f. Must be in (0, 10]", s.StopLossPercent),
		})
	}
	if s.TakeProfitPercent <= s.StopLossPercent*0.5 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.take_profit_percent",
			Message: fmt.Sprintf("Invalid take_profit_percent %.2f. Must exceed half the stop loss (%.2f)", s.TakeProfitPercent, s.StopLossPercent*0.5),
		})
	}
	if s.MaxHoldSeconds < 5 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.max_hold_seconds",
			Message: "Max hold must be at least 5 seconds",
		})
	}
	if s.ScalingFactor < 0.1 || s.ScalingFactor > 100 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.scaling_factor",
			Message: fmt.Sprintf("Invalid scaling_factor %.2f. Must be in [0.1, 100]", s.ScalingFactor),
		})
	}
	if s.CooldownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.cooldown_seconds",
			Message: "Cooldown seconds must be non-negative",
		})
	}
	if s.MarginRatio <= 0 || s.MarginRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "engine.settings.margin_ratio",
			Message: fmt.Sprintf("Invalid margin_ratio %.2f. Must be in (0, 1]", s.MarginRatio),
		})
	}

	return errors
}

func (c *Config) validateMarket() ValidationErrors {
	var errors ValidationErrors

	if c.Market.Source != "binance" && c.Market.Source != "sim" {
		errors = append(errors, ValidationError{
			Field:   "market.source",
			Message: fmt.Sprintf("Invalid source '%s'. Must be 'binance' or 'sim'", c.Market.Source),
		})
	}

	if len(c.Market.Symbols) == 0 {
		errors = append(errors, ValidationError{
			Field:   "market.symbols",
			Message: "At least one watchlist symbol is required",
		})
	}

	if c.Market.CandleBucket <= 0 {
		errors = append(errors, ValidationError{
			Field:   "market.candle_bucket",
			Message: "Candle bucket must be a positive duration",
		})
	}

	if c.Market.HistorySeed < 0 {
		errors = append(errors, ValidationError{
			Field:   "market.history_seed",
			Message: "History seed must be non-negative",
		})
	}

	if c.Market.PollConcurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "market.poll_concurrency",
			Message: "Poll concurrency must be at least 1",
		})
	}

	if c.Market.Source == "binance" && c.Market.Binance.RequestsPerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "market.binance.requests_per_second",
			Message: "Binance request rate must be greater than 0",
		})
	}

	if c.Market.Breaker.Enabled && (c.Market.Breaker.FailureRatio <= 0 || c.Market.Breaker.FailureRatio > 1) {
		errors = append(errors, ValidationError{
			Field:   "market.breaker.failure_ratio",
			Message: fmt.Sprintf("Invalid failure_ratio %.2f. Must be in (0, 1]", c.Market.Breaker.FailureRatio),
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if !c.Database.Enabled {
		return errors
	}

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "Database port is required",
		})
	} else if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Market.Cache.Enabled {
		return errors
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required when the market cache is enabled",
		})
	}

	if c.Redis.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: "Redis port is required",
		})
	} else if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if !c.NATS.Enabled {
		return errors
	}

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required when NATS is enabled",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	return errors
}

func (c *Config) validateAlerts() ValidationErrors {
	var errors ValidationErrors

	if !c.Alerts.Telegram.Enabled {
		return errors
	}

	if c.Alerts.Telegram.Token == "" {
		errors = append(errors, ValidationError{
			Field:   "alerts.telegram.token",
			Message: "Telegram bot token is required when telegram alerts are enabled",
		})
	}

	if c.Alerts.Telegram.ChatID == 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.telegram.chat_id",
			Message: "Telegram chat ID is required when telegram alerts are enabled",
		})
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	var errors ValidationErrors

	if !c.Monitoring.EnableMetrics {
		return errors
	}

	if c.Monitoring.PrometheusPort < 1 || c.Monitoring.PrometheusPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.prometheus_port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Monitoring.PrometheusPort),
		})
	}

	return errors
}
