package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration loaded at boot. Runtime-tunable
// trading settings live under engine.settings and seed the engine store;
// everything else is fixed for the lifetime of the process.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Market     MarketConfig     `mapstructure:"market"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// EngineConfig contains the paper portfolio and store settings
type EngineConfig struct {
	InitialBalance    float64        `mapstructure:"initial_balance"`
	QuantityStep      float64        `mapstructure:"quantity_step"`      // order quantity floored to a multiple of this
	ClosedHistorySize int            `mapstructure:"closed_history_size"`
	CrashFile         string         `mapstructure:"crash_file"` // state dump written on invariant violation
	Settings          SettingsConfig `mapstructure:"settings"`
}

// SettingsConfig seeds the runtime-tunable trading settings. The same
// fields are mutable at runtime through the projection API.
type SettingsConfig struct {
	MinConfidence     float64 `mapstructure:"min_confidence"`
	MaxPositionSize   float64 `mapstructure:"max_position_size"`
	RiskPerTrade      float64 `mapstructure:"risk_per_trade"`
	MaxDailyLoss      float64 `mapstructure:"max_daily_loss"`
	MaxPositions      int     `mapstructure:"max_positions"`
	StopLossPercent   float64 `mapstructure:"stop_loss_percent"`
	TakeProfitPercent float64 `mapstructure:"take_profit_percent"`
	MaxHoldSeconds    int     `mapstructure:"max_hold_seconds"`
	ScalingFactor     float64 `mapstructure:"scaling_factor"`
	Enabled           bool    `mapstructure:"enabled"`
	CooldownSeconds   int     `mapstructure:"cooldown_seconds"`
	MarginRatio       float64 `mapstructure:"margin_ratio"` // short margin as fraction of notional
}

// MarketConfig contains market data source settings
type MarketConfig struct {
	Source          string        `mapstructure:"source"` // "binance" or "sim"
	Symbols         []string      `mapstructure:"symbols"`
	CandleBucket    time.Duration `mapstructure:"candle_bucket"`    // openTime bucketing for polled quotes
	HistorySeed     int           `mapstructure:"history_seed"`     // candles fetched when a symbol is added
	PollConcurrency int           `mapstructure:"poll_concurrency"` // per-symbol ingest fan-out bound
	Binance         BinanceConfig `mapstructure:"binance"`
	Sim             SimConfig     `mapstructure:"sim"`
	Cache           CacheConfig   `mapstructure:"cache"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// BinanceConfig contains settings for the Binance-backed source.
// Only public endpoints are used, so no API keys are required.
type BinanceConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	KlineInterval     string  `mapstructure:"kline_interval"`
}

// SimConfig contains settings for the deterministic simulated source
type SimConfig struct {
	Seed       int64   `mapstructure:"seed"`
	StartPrice float64 `mapstructure:"start_price"`
	Trend      float64 `mapstructure:"trend"`      // drift per step, e.g. 0.0002
	Volatility float64 `mapstructure:"volatility"` // stdev per step, e.g. 0.002
	VolumeBase float64 `mapstructure:"volume_base"`
}

// CacheConfig controls the Redis quote/history cache in front of the source
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	QuoteTTL   time.Duration `mapstructure:"quote_ttl"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
}

// BreakerConfig controls the circuit breaker around the source
type BreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	OpenTimeout   time.Duration `mapstructure:"open_timeout"`
	CountInterval time.Duration `mapstructure:"count_interval"`
}

// DatabaseConfig contains PostgreSQL settings for the journal
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// AlertsConfig contains operational alerting settings
type AlertsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig contains Telegram bot alert settings
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("SCALPD")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "scalpd")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Engine defaults
	v.SetDefault("engine.initial_balance", 10000.0)
	v.SetDefault("engine.quantity_step", 0.0001)
	v.SetDefault("engine.closed_history_size", 200)
	v.SetDefault("engine.crash_file", "scalpd-crash.json")

	// Trading settings defaults (runtime-tunable)
	v.SetDefault("engine.settings.min_confidence", 60.0)
	v.SetDefault("engine.settings.max_position_size", 1000.0)
	v.SetDefault("engine.settings.risk_per_trade", 1.0)
	v.SetDefault("engine.settings.max_daily_loss", 500.0)
	v.SetDefault("engine.settings.max_positions", 3)
	v.SetDefault("engine.settings.stop_loss_percent", 0.5)
	v.SetDefault("engine.settings.take_profit_percent", 1.0)
	v.SetDefault("engine.settings.max_hold_seconds", 300)
	v.SetDefault("engine.settings.scaling_factor", 1.0)
	v.SetDefault("engine.settings.enabled", false)
	v.SetDefault("engine.settings.cooldown_seconds", 30)
	v.SetDefault("engine.settings.margin_ratio", 0.20)

	// Market defaults
	v.SetDefault("market.source", "sim")
	v.SetDefault("market.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("market.candle_bucket", time.Minute)
	v.SetDefault("market.history_seed", 200)
	v.SetDefault("market.poll_concurrency", 8)
	v.SetDefault("market.binance.requests_per_second", 10.0)
	v.SetDefault("market.binance.burst", 20)
	v.SetDefault("market.binance.kline_interval", "1m")
	v.SetDefault("market.sim.seed", 42)
	v.SetDefault("market.sim.start_price", 100.0)
	v.SetDefault("market.sim.trend", 0.0)
	v.SetDefault("market.sim.volatility", 0.002)
	v.SetDefault("market.sim.volume_base", 1000.0)
	v.SetDefault("market.cache.enabled", false)
	v.SetDefault("market.cache.quote_ttl", 500*time.Millisecond)
	v.SetDefault("market.cache.history_ttl", 30*time.Second)
	v.SetDefault("market.breaker.enabled", true)
	v.SetDefault("market.breaker.min_requests", 5)
	v.SetDefault("market.breaker.failure_ratio", 0.6)
	v.SetDefault("market.breaker.open_timeout", 30*time.Second)
	v.SetDefault("market.breaker.count_interval", time.Minute)

	// Database defaults (journal persistence, optional)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "scalpd")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 4)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	// Alerts defaults
	v.SetDefault("alerts.telegram.enabled", false)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
