package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/scalpd/internal/journal"
	"github.com/ajitpratap0/scalpd/internal/metrics"
	"github.com/ajitpratap0/scalpd/internal/venue"
)

// ErrHalted is returned for mutations attempted after the engine halted on
// an invariant violation
var ErrHalted = errors.New("engine halted")

// balanceTolerance absorbs float64 accumulation drift in the conservation
// check
const balanceTolerance = 1e-6

// Mutation is one state transition. It runs on the writer goroutine against
// a working copy; returning an error discards the copy and nothing commits.
// Journal entries recorded on the Tx are sequenced and appended only after
// the mutation commits.
type Mutation func(st *State, tx *Tx) error

// Tx collects the journal entries a mutation wants to emit
type Tx struct {
	entries []journal.Entry
	now     time.Time
}

// Now is the mutation's timestamp; every entry in one mutation shares it
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Journal records an entry to append once the mutation commits
func (tx *Tx) Journal(kind journal.Kind, symbol string, payload map[string]any) {
	tx.entries = append(tx.entries, journal.Entry{
		Kind:    kind,
		At:      tx.now,
		Symbol:  symbol,
		Payload: payload,
	})
}

type command struct {
	mutate Mutation
	done   chan error
}

// Store serializes all state mutations through a single writer goroutine.
// Readers never lock: they take the latest snapshot from an atomic pointer
// and get a private deep copy.
type Store struct {
	commands  chan command
	snapshot  atomic.Pointer[State]
	state     *State // owned by the writer loop
	journal   journal.Journal
	seq       atomic.Uint64
	halted    atomic.Bool
	crashFile string
	closedCap int
	onHalt    func(reason string)
	clock     func() time.Time
	metrics   *metrics.Engine
	log       zerolog.Logger
}

// StoreOptions configure a Store
type StoreOptions struct {
	Journal   journal.Journal
	CrashFile string
	ClosedCap int // closed-trade history ring size
	// OnHalt is called once, from the writer goroutine, when an invariant
	// violation halts the engine
	OnHalt func(reason string)
	Clock  func() time.Time
	Logger zerolog.Logger
}

// NewStore creates a store around the given boot state
func NewStore(initial *State, opts StoreOptions) *Store {
	if opts.Journal == nil {
		opts.Journal = journal.NewMemory()
	}
	if opts.ClosedCap <= 0 {
		opts.ClosedCap = 200
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Store{
		commands:  make(chan command, 256),
		state:     initial,
		journal:   opts.Journal,
		crashFile: opts.CrashFile,
		closedCap: opts.ClosedCap,
		onHalt:    opts.OnHalt,
		clock:     opts.Clock,
		metrics:   metrics.ForEngine(),
		log:       opts.Logger.With().Str("component", "store").Logger(),
	}
	s.snapshot.Store(initial.Clone())
	s.publishGauges(initial)
	return s
}

// Run is the writer loop. It exits when ctx is cancelled, after draining
// commands already queued.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case cmd := <-s.commands:
			s.metrics.CommandQueueDepth.Set(float64(len(s.commands)))
			cmd.done <- s.apply(cmd.mutate)
		case <-ctx.Done():
			for {
				select {
				case cmd := <-s.commands:
					cmd.done <- s.apply(cmd.mutate)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

// Mutate submits a mutation to the writer loop and waits for its result
func (s *Store) Mutate(ctx context.Context, fn Mutation) error {
	if s.halted.Load() {
		return ErrHalted
	}

	cmd := command{mutate: fn, done: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a deep copy of the current state. Callers may mutate it
// freely; the engine never sees the changes.
func (s *Store) Snapshot() *State {
	return s.snapshot.Load().Clone()
}

// Halted reports whether an invariant violation stopped the engine
func (s *Store) Halted() bool {
	return s.halted.Load()
}

func (s *Store) apply(fn Mutation) error {
	if s.halted.Load() {
		return ErrHalted
	}

	tx := &Tx{now: s.clock()}
	work := s.state.Clone()

	s.rollover(work, tx)

	if err := fn(work, tx); err != nil {
		return err
	}

	if reason := checkInvariants(work); reason != "" {
		s.halt(work, reason)
		return fmt.Errorf("%w: %s", ErrHalted, reason)
	}

	if drift := conservationDrift(work); drift > balanceTolerance {
		s.log.Warn().Float64("drift", drift).Msg("Balance conservation drift detected")
	}

	s.state = work
	s.snapshot.Store(work.Clone())
	s.publishGauges(work)

	for _, entry := range tx.entries {
		entry.Seq = s.seq.Add(1)
		if err := s.journal.Append(context.Background(), entry); err != nil {
			s.log.Error().Err(err).Str("kind", string(entry.Kind)).Msg("Journal append failed")
		}
	}

	return nil
}

// rollover resets the daily loss counter on the first mutation of a new UTC
// day. The reset also lifts a daily-loss trading pause, since the gate
// re-evaluates dayPnL on every entry.
func (s *Store) rollover(st *State, tx *Tx) {
	today := tx.now.UTC().Format("2006-01-02")
	if st.Day == today {
		return
	}

	prior, priorPnL := st.Day, st.DayPnL
	st.Day = today
	st.DayPnL = 0

	tx.Journal(journal.KindDayRollover, "", map[string]any{
		"day":     prior,
		"day_pnl": priorPnL,
	})
	s.log.Info().Str("day", today).Float64("prior_day_pnl", priorPnL).Msg("Trading day rolled over")
}

func (s *Store) halt(violating *State, reason string) {
	s.halted.Store(true)

	violating.Halted = true
	violating.HaltReason = reason
	s.state = violating
	s.snapshot.Store(violating.Clone())
	s.metrics.Halted.Set(1)

	s.dumpCrashFile(violating)

	s.log.Error().Str("reason", reason).Msg("Invariant violation, engine halted")
	if s.onHalt != nil {
		s.onHalt(reason)
	}
}

// dumpCrashFile serializes the violating state for post-mortem inspection
func (s *Store) dumpCrashFile(st *State) {
	if s.crashFile == "" {
		return
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("Crash state serialization failed")
		return
	}
	if err := os.WriteFile(s.crashFile, data, 0o600); err != nil {
		s.log.Error().Err(err).Str("path", s.crashFile).Msg("Crash file write failed")
		return
	}
	s.log.Info().Str("path", s.crashFile).Msg("Crash state written")
}

func (s *Store) publishGauges(st *State) {
	s.metrics.OpenPositions.Set(float64(len(st.Positions)))
	s.metrics.AvailableBalance.Set(st.AvailableBalance)
	s.metrics.TotalPnL.Set(st.TotalPnL)
	s.metrics.DayPnL.Set(st.DayPnL)
}

// checkInvariants returns a non-empty reason when the state is corrupt.
// These are hard invariants: a violation means a bookkeeping bug, and the
// engine stops trading rather than compound it.
func checkInvariants(st *State) string {
	if st.AvailableBalance < -balanceTolerance {
		return fmt.Sprintf("available balance negative: %.6f", st.AvailableBalance)
	}

	for sym, p := range st.Positions {
		if p.Symbol != sym {
			return fmt.Sprintf("position keyed under %s carries symbol %s", sym, p.Symbol)
		}
		if p.Quantity <= 0 {
			return fmt.Sprintf("%s position has non-positive quantity %.8f", sym, p.Quantity)
		}
		if p.EntryPrice <= 0 {
			return fmt.Sprintf("%s position has non-positive entry price %.8f", sym, p.EntryPrice)
		}
		switch p.Side {
		case venue.SideLong:
			if p.StopLoss >= p.EntryPrice || p.TakeProfit <= p.EntryPrice {
				return fmt.Sprintf("%s long has inverted targets: stop %.4f entry %.4f target %.4f",
					sym, p.StopLoss, p.EntryPrice, p.TakeProfit)
			}
		case venue.SideShort:
			if p.StopLoss <= p.EntryPrice || p.TakeProfit >= p.EntryPrice {
				return fmt.Sprintf("%s short has inverted targets: stop %.4f entry %.4f target %.4f",
					sym, p.StopLoss, p.EntryPrice, p.TakeProfit)
			}
		default:
			return fmt.Sprintf("%s position has unknown side %q", sym, p.Side)
		}
	}

	return ""
}

// conservationDrift measures how far the books are from balancing:
// tradingBalance + totalPnL should equal availableBalance plus the open
// commitments. Drift is logged, not fatal; float accumulation is expected
// to stay far below a cent.
func conservationDrift(st *State) float64 {
	lhs := st.TradingBalance + st.TotalPnL
	rhs := st.AvailableBalance + st.OpenCommitments()
	d := lhs - rhs
	if d < 0 {
		d = -d
	}
	return d
}

// pushClosed appends to the closed-trade ring, evicting the oldest beyond
// the cap
func pushClosed(st *State, p *Position, limit int) {
	st.Closed = append(st.Closed, p)
	if len(st.Closed) > limit {
		st.Closed = st.Closed[len(st.Closed)-limit:]
	}
}
