package market

import (
	"context"
	"sync"
)

// MockSource is a scriptable market data source for testing. Quotes and
// history are set explicitly; errors can be forced per call or per symbol.
type MockSource struct {
	mu           sync.Mutex
	quotes       map[string]Quote
	history      map[string][]Candle
	latestErr    error
	latestErrFor map[string]error
	historyErr   map[string]error
	latestCalls  int
	closed       bool
}

// NewMockSource creates an empty mock source
func NewMockSource() *MockSource {
	return &MockSource{
		quotes:       make(map[string]Quote),
		history:      make(map[string][]Candle),
		latestErrFor: make(map[string]error),
		historyErr:   make(map[string]error),
	}
}

// SetQuote scripts the next quote returned for a symbol
func (m *MockSource) SetQuote(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Symbol] = q
}

// DropQuote removes a symbol from the scripted batch, simulating a
// per-symbol miss
func (m *MockSource) DropQuote(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotes, symbol)
}

// SetHistory scripts the candles History returns for a symbol
func (m *MockSource) SetHistory(symbol string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[symbol] = candles
}

// FailLatest forces every Latest call to return err until cleared with nil
func (m *MockSource) FailLatest(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestErr = err
}

// FailLatestFor fails any Latest batch that includes symbol, mimicking
// venues whose batch endpoints reject the whole request over one bad entry
func (m *MockSource) FailLatestFor(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.latestErrFor, symbol)
		return
	}
	m.latestErrFor[symbol] = err
}

// FailHistory forces History for a symbol to return err
func (m *MockSource) FailHistory(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyErr[symbol] = err
}

// LatestCalls returns how many times Latest has been invoked
func (m *MockSource) LatestCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestCalls
}

// Latest returns the scripted quotes for the requested symbols
func (m *MockSource) Latest(_ context.Context, symbols []string) (map[string]Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestCalls++
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	for _, sym := range symbols {
		if err, ok := m.latestErrFor[sym]; ok {
			return nil, err
		}
	}

	out := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := m.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

// History returns the scripted candles for a symbol
func (m *MockSource) History(_ context.Context, symbol string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.historyErr[symbol]; ok && err != nil {
		return nil, err
	}

	candles := m.history[symbol]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// Close marks the source closed
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
