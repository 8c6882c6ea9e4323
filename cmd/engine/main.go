// Command engine runs the scalping engine: market ingest, signal
// synthesis, risk-gated paper execution, and the exit monitor, with
// Prometheus metrics and optional Postgres journaling, Redis caching, NATS
// events and Telegram alerts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/scalpd/internal/alerts"
	"github.com/ajitpratap0/scalpd/internal/config"
	"github.com/ajitpratap0/scalpd/internal/engine"
	"github.com/ajitpratap0/scalpd/internal/events"
	"github.com/ajitpratap0/scalpd/internal/indicators"
	"github.com/ajitpratap0/scalpd/internal/journal"
	"github.com/ajitpratap0/scalpd/internal/market"
	"github.com/ajitpratap0/scalpd/internal/metrics"
	"github.com/ajitpratap0/scalpd/internal/venue"
)

const journalQueueSize = 1024

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("name", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Str("source", cfg.Market.Source).
		Strs("symbols", cfg.Market.Symbols).
		Msg("Starting scalping engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validator := config.NewValidator(cfg, config.DefaultValidatorOptions())
	if err := validator.ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup validation failed")
	}

	source := buildSource(cfg)
	defer func() {
		if err := source.Close(); err != nil {
			log.Warn().Err(err).Msg("Source close failed")
		}
	}()

	buffers := market.NewBuffers()
	ingestor := market.NewIngestor(source, buffers, cfg.Market.Symbols, market.IngestorOptions{
		Scaling:         cfg.Engine.Settings.ScalingFactor,
		SeedLimit:       cfg.Market.HistorySeed,
		CandleBucket:    cfg.Market.CandleBucket,
		SeedConcurrency: cfg.Market.PollConcurrency,
	})

	jrnl, err := buildJournal(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Journal setup failed")
	}
	defer func() {
		if err := jrnl.Close(); err != nil {
			log.Warn().Err(err).Msg("Journal close failed")
		}
	}()

	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.Enabled {
		p, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, events disabled")
		} else {
			publisher = p
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Publisher close failed")
		}
	}()

	notifiers := []alerts.Notifier{alerts.NewLogNotifier()}
	if cfg.Alerts.Telegram.Enabled {
		tg, err := alerts.NewTelegram(cfg.Alerts.Telegram.Token, cfg.Alerts.Telegram.ChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram unavailable, alerts go to the log only")
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	alertManager := alerts.NewManager(notifiers...)

	settings := engine.SettingsFromConfig(cfg.Engine.Settings)
	state := engine.NewState(cfg.Engine.InitialBalance, settings, cfg.Market.Symbols, time.Now())

	eng := engine.New(state, engine.Deps{
		Buffers:   buffers,
		Cache:     indicators.NewCache(),
		Ingestor:  ingestor,
		Venue:     venue.NewPaperVenue(buffers),
		Publisher: publisher,
		Alerts:    alertManager,
		Journal:   jrnl,
	}, engine.Options{
		QuantityStep:  cfg.Engine.QuantityStep,
		ClosedHistory: cfg.Engine.ClosedHistorySize,
		CrashFile:     cfg.Engine.CrashFile,
		Logger:        log.Logger,
	})

	if cfg.Monitoring.EnableMetrics {
		// Health reports 503 once the engine halts on an invariant violation
		srv := metrics.NewServer(cfg.Monitoring.PrometheusPort, func() bool {
			return !eng.Store().Halted()
		}, log.Logger)
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Metrics server failed to start")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ingestor.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Engine exited with error")
		os.Exit(1)
	}

	log.Info().Msg("Engine shutdown complete")
}

// buildSource composes the market data pipeline: a Binance or simulated
// base source, optionally wrapped in the Redis cache and the circuit
// breaker
func buildSource(cfg *config.Config) market.MarketDataSource {
	var source market.MarketDataSource
	switch cfg.Market.Source {
	case "binance":
		source = market.NewBinanceSource(market.BinanceOptions{
			RequestsPerSecond: cfg.Market.Binance.RequestsPerSecond,
			Burst:             cfg.Market.Binance.Burst,
			KlineInterval:     cfg.Market.Binance.KlineInterval,
		})
	default:
		source = market.NewSimSource(market.SimOptions{
			Seed:       cfg.Market.Sim.Seed,
			StartPrice: cfg.Market.Sim.StartPrice,
			Trend:      cfg.Market.Sim.Trend,
			Volatility: cfg.Market.Sim.Volatility,
			VolumeBase: cfg.Market.Sim.VolumeBase,
			Bucket:     cfg.Market.CandleBucket,
		})
	}

	if cfg.Market.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		source = market.NewCachedSource(source, client, market.CacheOptions{
			QuoteTTL:   cfg.Market.Cache.QuoteTTL,
			HistoryTTL: cfg.Market.Cache.HistoryTTL,
			KeyPrefix:  cfg.App.Name,
		})
		log.Info().Str("addr", cfg.Redis.GetRedisAddr()).Msg("Redis quote cache enabled")
	}

	if cfg.Market.Breaker.Enabled {
		source = market.NewBreakerSource(source, market.BreakerSettings{
			MinRequests:   cfg.Market.Breaker.MinRequests,
			FailureRatio:  cfg.Market.Breaker.FailureRatio,
			OpenTimeout:   cfg.Market.Breaker.OpenTimeout,
			CountInterval: cfg.Market.Breaker.CountInterval,
		})
	}

	return source
}

// buildJournal returns the Postgres-backed async journal when the database
// is enabled, the in-memory ring otherwise
func buildJournal(ctx context.Context, cfg *config.Config) (journal.Journal, error) {
	if !cfg.Database.Enabled {
		log.Info().Msg("Database disabled, journaling to memory")
		return journal.NewMemory(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pg := journal.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Database).
		Msg("Journal persisting to Postgres")

	return journal.NewQueued(pg, journalQueueSize), nil
}
