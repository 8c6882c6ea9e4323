package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Binance API error codes worth distinguishing
const (
	binanceCodeTooManyRequests = -1003
	binanceCodeInvalidSymbol   = -1121
	binanceCodeBadAPIKeyFmt    = -2014
	binanceCodeRejectedKey     = -2015
)

// BinanceOptions configures the Binance-backed source
type BinanceOptions struct {
	RequestsPerSecond float64
	Burst             int
	KlineInterval     string
}

// DefaultBinanceOptions returns conservative public-endpoint limits
func DefaultBinanceOptions() BinanceOptions {
	return BinanceOptions{
		RequestsPerSecond: 10,
		Burst:             20,
		KlineInterval:     "1m",
	}
}

// BinanceSource serves quotes and candles from Binance public REST
// endpoints. No API keys are needed: 24h tickers and klines are public.
type BinanceSource struct {
	client   *binance.Client
	limiter  *rate.Limiter
	interval string
	logger   zerolog.Logger
}

// NewBinanceSource creates a Binance market data source
func NewBinanceSource(opts BinanceOptions) *BinanceSource {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultBinanceOptions().RequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBinanceOptions().Burst
	}
	if opts.KlineInterval == "" {
		opts.KlineInterval = DefaultBinanceOptions().KlineInterval
	}

	return &BinanceSource{
		client:   binance.NewClient("", ""),
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		interval: opts.KlineInterval,
		logger:   log.With().Str("component", "binance_source").Logger(),
	}
}

// Latest fetches 24h ticker stats for the requested symbols in one batched
// call and converts them to quotes
func (s *BinanceSource) Latest(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, NewSourceError(KindTransient, "", err)
	}

	stats, err := s.client.NewListPriceChangeStatsService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, classifyBinanceErr("", err)
	}

	quotes := make(map[string]Quote, len(stats))
	for _, st := range stats {
		price, perr := strconv.ParseFloat(st.LastPrice, 64)
		if perr != nil || price <= 0 {
			s.logger.Warn().
				Str("symbol", st.Symbol).
				Str("last_price", st.LastPrice).
				Msg("Skipping unparseable ticker price")
			continue
		}
		volume, _ := strconv.ParseFloat(st.Volume, 64)

		ts := time.Now().UTC()
		if st.CloseTime > 0 {
			ts = time.UnixMilli(st.CloseTime).UTC()
		}

		quotes[st.Symbol] = Quote{
			Symbol: st.Symbol,
			Price:  price,
			Volume: volume,
			Time:   ts,
		}
	}

	return quotes, nil
}

// History fetches up to limit klines for a symbol, oldest first
func (s *BinanceSource) History(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	if limit <= 0 {
		return nil, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, NewSourceError(KindTransient, symbol, err)
	}

	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(s.interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classifyBinanceErr(symbol, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, NewSourceError(KindTransient, symbol,
				fmt.Errorf("unparseable kline at %d", k.OpenTime))
		}

		candles = append(candles, Candle{
			Symbol:   symbol,
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		})
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Int("candles", len(candles)).
		Msg("History fetched")

	return candles, nil
}

// Close releases nothing; the underlying client is a plain HTTP client
func (s *BinanceSource) Close() error {
	return nil
}

// classifyBinanceErr maps Binance API errors onto source error kinds
func classifyBinanceErr(symbol string, err error) *SourceError {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case binanceCodeInvalidSymbol:
			return NewSourceError(KindNotFound, symbol, err)
		case binanceCodeTooManyRequests:
			return NewSourceError(KindRateLimited, symbol, err)
		case binanceCodeBadAPIKeyFmt, binanceCodeRejectedKey:
			return NewSourceError(KindUnauthorized, symbol, err)
		}
	}
	return NewSourceError(KindTransient, symbol, err)
}
