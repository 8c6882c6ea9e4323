package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CacheOptions configures the Redis cache layered over a data source
type CacheOptions struct {
	QuoteTTL   time.Duration
	HistoryTTL time.Duration
	KeyPrefix  string
}

// DefaultCacheOptions returns TTLs tuned for second-scale polling: quotes
// stay fresh just long enough to absorb repolls within one ingest cycle,
// history long enough to survive a burst of symbol additions.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		QuoteTTL:   500 * time.Millisecond,
		HistoryTTL: 30 * time.Second,
		KeyPrefix:  "scalpd",
	}
}

// CachedSource wraps a MarketDataSource with Redis caching. Cache failures
// degrade to pass-through: a broken Redis never fails a fetch, only a
// broken upstream does.
type CachedSource struct {
	upstream MarketDataSource
	redis    *redis.Client
	opts     CacheOptions
}

// NewCachedSource creates a new cached market data source
func NewCachedSource(upstream MarketDataSource, redisClient *redis.Client, opts CacheOptions) *CachedSource {
	def := DefaultCacheOptions()
	if opts.QuoteTTL <= 0 {
		opts.QuoteTTL = def.QuoteTTL
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = def.HistoryTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = def.KeyPrefix
	}

	return &CachedSource{
		upstream: upstream,
		redis:    redisClient,
		opts:     opts,
	}
}

func (c *CachedSource) quoteKey(symbol string) string {
	return fmt.Sprintf("%s:quote:%s", c.opts.KeyPrefix, symbol)
}

func (c *CachedSource) historyKey(symbol string, limit int) string {
	return fmt.Sprintf("%s:history:%s:%d", c.opts.KeyPrefix, symbol, limit)
}

// Latest serves still-fresh quotes from cache and fetches only the misses
// from upstream in a single batched call
func (c *CachedSource) Latest(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}

	quotes := make(map[string]Quote, len(symbols))
	misses := make([]string, 0, len(symbols))

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = c.quoteKey(sym)
	}

	// Check cache first
	cached, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		// Log cache errors but continue with the upstream call
		log.Warn().Err(err).Msg("Redis error during quote cache lookup")
		misses = append(misses, symbols...)
	} else {
		for i, raw := range cached {
			data, ok := raw.(string)
			if !ok {
				misses = append(misses, symbols[i])
				continue
			}
			var q Quote
			if err := json.Unmarshal([]byte(data), &q); err != nil {
				log.Warn().Err(err).Str("cache_key", keys[i]).Msg("Failed to unmarshal cached quote, fetching fresh")
				misses = append(misses, symbols[i])
				continue
			}
			quotes[symbols[i]] = q
		}
	}

	if len(misses) == 0 {
		log.Debug().Int("symbols", len(symbols)).Msg("Quote cache hit for full batch")
		return quotes, nil
	}

	fetched, err := c.upstream.Latest(ctx, misses)
	if err != nil {
		return nil, err
	}

	for sym, q := range fetched {
		quotes[sym] = q
	}

	// Store in cache (async, don't block the ingest cycle on cache writes)
	go c.storeQuotes(fetched)

	return quotes, nil
}

func (c *CachedSource) storeQuotes(quotes map[string]Quote) {
	cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := c.redis.Pipeline()
	for sym, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("Failed to marshal quote for cache")
			continue
		}
		pipe.Set(cacheCtx, c.quoteKey(sym), data, c.opts.QuoteTTL)
	}

	if _, err := pipe.Exec(cacheCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to cache quotes")
	}
}

// History serves a cached candle window when present, otherwise fetches
// from upstream and caches the result
func (c *CachedSource) History(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	cacheKey := c.historyKey(symbol, limit)

	// Check cache first
	cached, err := c.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var candles []Candle
		if err := json.Unmarshal([]byte(cached), &candles); err == nil {
			log.Debug().
				Str("symbol", symbol).
				Int("candles", len(candles)).
				Str("cache_key", cacheKey).
				Msg("Cache hit for History")
			return candles, nil
		}
		log.Warn().Err(err).Msg("Failed to unmarshal cached history, fetching fresh")
	} else if err != redis.Nil {
		log.Warn().Err(err).Msg("Redis error during history cache lookup")
	}

	candles, err := c.upstream.History(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	// Store in cache (async)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		data, err := json.Marshal(candles)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to marshal history for cache")
			return
		}

		if err := c.redis.Set(cacheCtx, cacheKey, data, c.opts.HistoryTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to cache history")
		}
	}()

	return candles, nil
}

// Invalidate removes all cached data for a symbol. Called when a symbol
// leaves the watchlist so a re-add starts from fresh data.
func (c *CachedSource) Invalidate(ctx context.Context, symbol string) error {
	pattern := fmt.Sprintf("%s:*:%s*", c.opts.KeyPrefix, symbol)

	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}

	log.Debug().
		Str("pattern", pattern).
		Msg("Cache invalidated")

	return nil
}

// Close closes the upstream source. The Redis client is shared and owned
// by the caller.
func (c *CachedSource) Close() error {
	return c.upstream.Close()
}
