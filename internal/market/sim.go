package market

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimOptions configures the simulated source
type SimOptions struct {
	Seed       int64
	StartPrice float64
	Trend      float64 // drift per step
	Volatility float64 // stdev per step
	VolumeBase float64
	Bucket     time.Duration
}

// DefaultSimOptions returns a mild random walk around 100
func DefaultSimOptions() SimOptions {
	return SimOptions{
		Seed:       42,
		StartPrice: 100.0,
		Trend:      0.0,
		Volatility: 0.002,
		VolumeBase: 1000.0,
		Bucket:     time.Minute,
	}
}

type simState struct {
	price float64
	rng   *rand.Rand
}

// SimSource generates deterministic random-walk quotes and candles so the
// engine can run end-to-end with no network. Each symbol gets its own
// generator seeded from the base seed, so runs are reproducible and
// symbols evolve independently.
type SimSource struct {
	mu     sync.Mutex
	opts   SimOptions
	states map[string]*simState
	now    func() time.Time
}

// NewSimSource creates a simulated market data source
func NewSimSource(opts SimOptions) *SimSource {
	if opts.StartPrice <= 0 {
		opts.StartPrice = DefaultSimOptions().StartPrice
	}
	if opts.Volatility <= 0 {
		opts.Volatility = DefaultSimOptions().Volatility
	}
	if opts.VolumeBase <= 0 {
		opts.VolumeBase = DefaultSimOptions().VolumeBase
	}
	if opts.Bucket <= 0 {
		opts.Bucket = DefaultSimOptions().Bucket
	}

	return &SimSource{
		opts:   opts,
		states: make(map[string]*simState),
		now:    time.Now,
	}
}

// state returns the walk for a symbol, creating it deterministically
func (s *SimSource) state(symbol string) *simState {
	st, ok := s.states[symbol]
	if !ok {
		h := fnv.New64a()
		h.Write([]byte(symbol))
		st = &simState{
			price: s.opts.StartPrice,
			rng:   rand.New(rand.NewSource(s.opts.Seed ^ int64(h.Sum64()))),
		}
		s.states[symbol] = st
	}
	return st
}

// step advances a walk one tick and returns the new price
func (st *simState) step(trend, volatility float64) float64 {
	ret := trend + volatility*st.rng.NormFloat64()
	st.price *= 1 + ret
	if st.price <= 0 {
		st.price = math.SmallestNonzeroFloat64
	}
	return st.price
}

// Latest advances every requested symbol one step and quotes the result
func (s *SimSource) Latest(_ context.Context, symbols []string) (map[string]Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	quotes := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		st := s.state(sym)
		price := st.step(s.opts.Trend, s.opts.Volatility)
		volume := s.opts.VolumeBase * (0.8 + st.rng.Float64()*0.4)
		quotes[sym] = Quote{
			Symbol: sym,
			Price:  price,
			Volume: volume,
			Time:   ts,
		}
	}
	return quotes, nil
}

// History generates limit candles ending at the current bucket, oldest
// first. The walk state carries forward, so subsequent Latest calls
// continue the same path.
func (s *SimSource) History(_ context.Context, symbol string, limit int) ([]Candle, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(symbol)
	end := s.now().UTC().Truncate(s.opts.Bucket)
	start := end.Add(-time.Duration(limit) * s.opts.Bucket)

	candles := make([]Candle, 0, limit)
	for i := 0; i < limit; i++ {
		open := st.price
		closePrice := st.step(s.opts.Trend, s.opts.Volatility)
		wick := math.Abs(st.rng.NormFloat64()) * s.opts.Volatility / 2
		high := math.Max(open, closePrice) * (1 + wick)
		low := math.Min(open, closePrice) * (1 - wick)
		volume := s.opts.VolumeBase * (0.8 + st.rng.Float64()*0.4)

		candles = append(candles, Candle{
			Symbol:   symbol,
			OpenTime: start.Add(time.Duration(i) * s.opts.Bucket),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		})
	}
	return candles, nil
}

// Close releases nothing
func (s *SimSource) Close() error {
	return nil
}
