// Package journal provides the append-only sink for engine state-changing
// events: trade opens and closes, settings updates, daily rollovers, and
// shutdown. Sequence numbers are assigned by the engine's writer before an
// entry reaches any sink, so every implementation sees a strictly monotonic
// stream.
package journal

import (
	"context"
	"sync"
	"time"
)

// Kind classifies a journal entry
type Kind string

const (
	KindTradeOpen      Kind = "TRADE_OPEN"
	KindTradeClose     Kind = "TRADE_CLOSE"
	KindSettingsUpdate Kind = "SETTINGS_UPDATE"
	KindDayRollover    Kind = "DAY_ROLLOVER"
	KindShutdown       Kind = "SHUTDOWN"
)

// Entry is one immutable journal record
type Entry struct {
	Seq     uint64         `json:"seq"`
	Kind    Kind           `json:"kind"`
	At      time.Time      `json:"at"`
	Symbol  string         `json:"symbol,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Journal is an append-only event sink. Append must tolerate concurrent
// callers; entries arrive with sequence numbers already assigned.
type Journal interface {
	Append(ctx context.Context, entry Entry) error
	Close() error
}

// MemoryCap bounds the in-memory journal; the oldest entries roll off
const MemoryCap = 10000

// Memory is the default journal: a bounded in-memory ring, mainly for
// development, the sim source, and tests
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory creates an empty in-memory journal
func NewMemory() *Memory {
	return &Memory{}
}

// Append records the entry, dropping the oldest past the cap
func (m *Memory) Append(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	if len(m.entries) > MemoryCap {
		m.entries = m.entries[len(m.entries)-MemoryCap:]
	}
	return nil
}

// Entries returns a copy of all retained entries, oldest first
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ByKind returns retained entries of one kind, oldest first
func (m *Memory) ByKind(kind Kind) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Last returns up to n newest entries, oldest first
func (m *Memory) Last(n int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]Entry, n)
	copy(out, m.entries[len(m.entries)-n:])
	return out
}

// Len returns the number of retained entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for the in-memory journal
func (m *Memory) Close() error {
	return nil
}
