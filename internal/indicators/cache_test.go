package indicators

import (
	"testing"
	"time"

	"github.com/ajitpratap0/scalpd/internal/market"
)

func TestCacheReusesUnchangedWindow(t *testing.T) {
	cache := NewCache()
	candles := trendingCandles("BTCUSDT", 30, 100, 0.5)

	first := cache.Compute("BTCUSDT", candles)
	second := cache.Compute("BTCUSDT", candles)

	// A memoized set comes back verbatim, including its compute timestamp
	if !second.ComputedAt.Equal(first.ComputedAt) {
		t.Error("Expected the memoized set to be returned for an unchanged window")
	}
}

func TestCacheRecomputesOnNewBucket(t *testing.T) {
	cache := NewCache()
	candles := trendingCandles("BTCUSDT", 30, 100, 0.5)

	first := cache.Compute("BTCUSDT", candles)

	next := market.Candle{
		Symbol:   "BTCUSDT",
		OpenTime: candles[29].OpenTime.Add(time.Minute),
		Open:     115, High: 116, Low: 114, Close: 115.5, Volume: 140,
	}
	grown := append(append([]market.Candle{}, candles...), next)

	second := cache.Compute("BTCUSDT", grown)
	if second.Candles != 31 {
		t.Fatalf("Expected recompute with 31 candles, got %d", second.Candles)
	}
	if second.Price == first.Price {
		t.Error("Expected price to track the new candle")
	}
}

func TestCacheRecomputesOnInBucketReplace(t *testing.T) {
	cache := NewCache()
	candles := trendingCandles("BTCUSDT", 30, 100, 0.5)

	cache.Compute("BTCUSDT", candles)

	// Same bucket, same length, different close: a replaced synthetic candle
	replaced := append([]market.Candle{}, candles...)
	replaced[29].Close = 200

	second := cache.Compute("BTCUSDT", replaced)
	if second.Price != 200 {
		t.Errorf("Expected recompute to pick up replaced close 200, got %v", second.Price)
	}
}

func TestCachePerSymbolIsolation(t *testing.T) {
	cache := NewCache()

	btc := cache.Compute("BTCUSDT", trendingCandles("BTCUSDT", 30, 100, 0.5))
	eth := cache.Compute("ETHUSDT", trendingCandles("ETHUSDT", 30, 2000, 1))

	if btc.Price == eth.Price {
		t.Error("Expected independent sets per symbol")
	}
	if btc.Symbol != "BTCUSDT" || eth.Symbol != "ETHUSDT" {
		t.Error("Expected symbols preserved")
	}
}

func TestCacheForget(t *testing.T) {
	cache := NewCache()
	candles := trendingCandles("BTCUSDT", 30, 100, 0.5)

	first := cache.Compute("BTCUSDT", candles)
	cache.Forget("BTCUSDT")

	second := cache.Compute("BTCUSDT", candles)
	if second.ComputedAt.Before(first.ComputedAt) {
		t.Error("Expected a fresh compute after Forget")
	}
}

func TestCacheEmptyWindowNotCached(t *testing.T) {
	cache := NewCache()

	set := cache.Compute("BTCUSDT", nil)
	if set.Candles != 0 {
		t.Errorf("Expected empty set, got %d candles", set.Candles)
	}
}
