package indicators

import (
	"sync"
	"time"

	"github.com/ajitpratap0/scalpd/internal/market"
)

type cacheEntry struct {
	lastOpen  time.Time
	lastClose float64
	candles   int
	set       Set
}

// Cache memoizes indicator sets per symbol. A set is recomputed only when
// the candle window actually changed: a new bucket, a different length, or
// an in-bucket replacement that moved the close.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates an empty indicator cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Compute returns the memoized set for the window, recomputing on change
func (c *Cache) Compute(symbol string, candles []market.Candle) Set {
	if len(candles) == 0 {
		return Compute(symbol, candles)
	}

	last := candles[len(candles)-1]

	c.mu.Lock()
	entry, ok := c.entries[symbol]
	c.mu.Unlock()

	if ok && entry.candles == len(candles) &&
		entry.lastOpen.Equal(last.OpenTime) && entry.lastClose == last.Close {
		return entry.set
	}

	set := Compute(symbol, candles)

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{
		lastOpen:  last.OpenTime,
		lastClose: last.Close,
		candles:   len(candles),
		set:       set,
	}
	c.mu.Unlock()

	return set
}

// Forget drops the memoized set for a symbol, typically when it leaves the
// watchlist
func (c *Cache) Forget(symbol string) {
	c.mu.Lock()
	delete(c.entries, symbol)
	c.mu.Unlock()
}
