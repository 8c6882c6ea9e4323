package journal

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Queue tuning. Retry backoff doubles from the base up to the cap; the
// entry is retried until it lands (at-least-once) or the queue overflows
// and drops the oldest waiting entries.
const (
	DefaultQueueSize  = 1024
	retryBase         = 100 * time.Millisecond
	retryCap          = 5 * time.Second
	flushPollInterval = 10 * time.Millisecond
)

var (
	queueMetricsOnce sync.Once
	queueDepth       prometheus.Gauge
	queueDropped     prometheus.Counter
	queueRetries     prometheus.Counter
)

func initQueueMetrics() {
	queueMetricsOnce.Do(func() {
		queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scalpd_journal_queue_depth",
			Help: "Journal entries waiting for the sink",
		})
		queueDropped = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scalpd_journal_queue_dropped_total",
			Help: "Journal entries dropped on queue overflow",
		})
		queueRetries = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scalpd_journal_write_retries_total",
			Help: "Journal sink write retries",
		})
	})
}

// Queued decorates a journal with a bounded asynchronous write queue so a
// slow or failing sink never blocks the trading hot path. Writes are
// retried with backoff; delivery is at-least-once. When the queue is full
// the oldest waiting entry is dropped and counted.
type Queued struct {
	sink   Journal
	queue  chan Entry
	logger zerolog.Logger

	mu      sync.Mutex
	dropped uint64

	wg      sync.WaitGroup
	closing chan struct{}
}

// NewQueued wraps sink with an async queue of the given size (0 uses the
// default) and starts the writer goroutine
func NewQueued(sink Journal, size int) *Queued {
	if size <= 0 {
		size = DefaultQueueSize
	}
	initQueueMetrics()

	q := &Queued{
		sink:    sink,
		queue:   make(chan Entry, size),
		logger:  log.With().Str("component", "journal_queue").Logger(),
		closing: make(chan struct{}),
	}

	q.wg.Add(1)
	go q.drain()

	return q
}

// Append enqueues the entry without blocking. On overflow the oldest
// waiting entry is discarded to make room, keeping the newest events.
func (q *Queued) Append(ctx context.Context, entry Entry) error {
	for {
		select {
		case q.queue <- entry:
			queueDepth.Set(float64(len(q.queue)))
			return nil
		default:
		}

		select {
		case old := <-q.queue:
			q.mu.Lock()
			q.dropped++
			q.mu.Unlock()
			queueDropped.Inc()
			q.logger.Warn().
				Uint64("seq", old.Seq).
				Str("kind", string(old.Kind)).
				Msg("Journal queue full, dropped oldest entry")
		default:
		}
	}
}

// drain is the single writer: it delivers queued entries to the sink,
// retrying failures with exponential backoff
func (q *Queued) drain() {
	defer q.wg.Done()

	for {
		select {
		case entry := <-q.queue:
			queueDepth.Set(float64(len(q.queue)))
			q.deliver(entry)
		case <-q.closing:
			// Flush whatever is still queued, then stop
			for {
				select {
				case entry := <-q.queue:
					q.deliver(entry)
				default:
					return
				}
			}
		}
	}
}

func (q *Queued) deliver(entry Entry) {
	backoff := retryBase
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := q.sink.Append(ctx, entry)
		cancel()
		if err == nil {
			return
		}

		queueRetries.Inc()
		q.logger.Warn().
			Err(err).
			Uint64("seq", entry.Seq).
			Str("kind", string(entry.Kind)).
			Dur("backoff", backoff).
			Msg("Journal write failed, retrying")

		select {
		case <-q.closing:
			// Best effort on shutdown: one last try, then let it go
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := q.sink.Append(ctx, entry); err != nil {
				q.logger.Error().Err(err).Uint64("seq", entry.Seq).Msg("Journal entry lost at shutdown")
			}
			cancel()
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > retryCap {
			backoff = retryCap
		}
	}
}

// Flush blocks until the queue is empty or the context expires
func (q *Queued) Flush(ctx context.Context) error {
	for {
		if len(q.queue) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(flushPollInterval):
		}
	}
}

// Dropped returns how many entries overflow has discarded
func (q *Queued) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops the writer after flushing queued entries, then closes the sink
func (q *Queued) Close() error {
	close(q.closing)
	q.wg.Wait()
	return q.sink.Close()
}
