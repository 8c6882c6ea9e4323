package market

import (
	"sync"
	"time"
)

// BufferMax is the rolling candle history kept per symbol
const BufferMax = 500

// Buffer is a fixed-capacity ring of candles for one symbol. Appending a
// candle whose open time is not strictly newer than the last slot replaces
// the last slot, which tolerates polling several times inside one bucket.
// When the ring is full the oldest candle is dropped.
type Buffer struct {
	mu    sync.RWMutex
	data  []Candle
	start int
	count int
}

// NewBuffer creates an empty candle buffer with capacity BufferMax
func NewBuffer() *Buffer {
	return &Buffer{data: make([]Candle, BufferMax)}
}

// Append inserts a candle, replacing the newest slot when the open time
// does not advance
func (b *Buffer) Append(c Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count > 0 {
		lastIdx := (b.start + b.count - 1) % len(b.data)
		if !c.OpenTime.After(b.data[lastIdx].OpenTime) {
			b.data[lastIdx] = c
			return
		}
	}

	if b.count < len(b.data) {
		b.data[(b.start+b.count)%len(b.data)] = c
		b.count++
		return
	}

	// Full: overwrite the oldest slot and advance the window
	b.data[b.start] = c
	b.start = (b.start + 1) % len(b.data)
}

// Last returns the newest candle, if any
func (b *Buffer) Last() (Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return Candle{}, false
	}
	return b.data[(b.start+b.count-1)%len(b.data)], true
}

// Len returns the number of candles held
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Slice returns a copy of the candles oldest to newest
func (b *Buffer) Slice() []Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Candle, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.data[(b.start+i)%len(b.data)]
	}
	return out
}

// Buffers is a thread-safe registry of per-symbol candle buffers
type Buffers struct {
	mu   sync.RWMutex
	byID map[string]*Buffer
}

// NewBuffers creates an empty buffer registry
func NewBuffers() *Buffers {
	return &Buffers{byID: make(map[string]*Buffer)}
}

// Ensure returns the buffer for a symbol, creating it if missing
func (bs *Buffers) Ensure(symbol string) *Buffer {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b, ok := bs.byID[symbol]
	if !ok {
		b = NewBuffer()
		bs.byID[symbol] = b
	}
	return b
}

// Get returns the buffer for a symbol, if present
func (bs *Buffers) Get(symbol string) (*Buffer, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	b, ok := bs.byID[symbol]
	return b, ok
}

// Remove drops a symbol's buffer entirely
func (bs *Buffers) Remove(symbol string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	delete(bs.byID, symbol)
}

// Symbols returns the symbols with a buffer
func (bs *Buffers) Symbols() []string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	out := make([]string, 0, len(bs.byID))
	for s := range bs.byID {
		out = append(out, s)
	}
	return out
}

// LastClose returns the latest close price for a symbol. This is the mark
// price the engine fills paper orders at.
func (bs *Buffers) LastClose(symbol string) (float64, bool) {
	b, ok := bs.Get(symbol)
	if !ok {
		return 0, false
	}
	c, ok := b.Last()
	if !ok {
		return 0, false
	}
	return c.Close, true
}

// LastTime returns the open time of the newest candle for a symbol
func (bs *Buffers) LastTime(symbol string) (time.Time, bool) {
	b, ok := bs.Get(symbol)
	if !ok {
		return time.Time{}, false
	}
	c, ok := b.Last()
	if !ok {
		return time.Time{}, false
	}
	return c.OpenTime, true
}
