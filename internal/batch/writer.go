// Package batch accumulates normalised quotes and flushes them to the
// persistent store in fixed-size batches or on a timer, whichever comes
// first. A failed flush keeps rows in memory up to a bounded backlog so a
// store outage degrades to data loss of the oldest rows rather than
// back-pressure on the feeds.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

// backlogFactor bounds the retry backlog at this multiple of the batch size.
const backlogFactor = 10

// finalFlushTimeout bounds the shutdown flush once the run context is gone.
const finalFlushTimeout = 5 * time.Second

// QuoteInserter is the slice of the quote store the writer needs.
type QuoteInserter interface {
	InsertBatch(ctx context.Context, quotes []domain.Quote) error
}

// Stats are cumulative writer counters.
type Stats struct {
	Enqueued int64
	Inserted int64
	Dropped  int64
	Flushes  int64
	Failures int64
}

// Writer is the single consumer of the ingest quote stream. Enqueue never
// blocks; the run loop owns batching, flushing, cache refresh and the
// inserted-signal publish.
type Writer struct {
	store QuoteInserter
	probs domain.ProbabilityCache
	bus   domain.SignalBus

	size     int
	interval time.Duration

	in     chan domain.Quote
	logger *slog.Logger

	mu      sync.Mutex
	pending []domain.Quote
	stats   Stats
}

// NewWriter creates a writer flushing at size rows or every interval. probs
// and bus may be nil; persistence then runs without cache refresh or signal
// publication.
func NewWriter(store QuoteInserter, probs domain.ProbabilityCache, bus domain.SignalBus, size int, interval time.Duration, logger *slog.Logger) *Writer {
	if size <= 0 {
		size = 25
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Writer{
		store:    store,
		probs:    probs,
		bus:      bus,
		size:     size,
		interval: interval,
		in:       make(chan domain.Quote, size*4),
		logger:   logger.With(slog.String("component", "batch_writer")),
	}
}

// Enqueue hands a quote to the writer without blocking. Returns false when
// the intake channel is full.
func (w *Writer) Enqueue(q domain.Quote) bool {
	select {
	case w.in <- q:
		w.mu.Lock()
		w.stats.Enqueued++
		w.mu.Unlock()
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the cumulative counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run consumes until ctx is cancelled, then drains the intake channel and
// performs one final flush under a fresh bounded context.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("batch writer started",
		slog.Int("batch_size", w.size),
		slog.Duration("flush_interval", w.interval),
	)

	for {
		select {
		case <-ctx.Done():
			w.drain()
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			w.flush(flushCtx)
			cancel()
			w.logger.Info("batch writer stopped")
			return ctx.Err()

		case q := <-w.in:
			w.mu.Lock()
			w.pending = append(w.pending, q)
			full := len(w.pending) >= w.size
			w.mu.Unlock()
			if full {
				w.flush(ctx)
			}

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// drain moves whatever is still sitting in the intake channel into pending.
func (w *Writer) drain() {
	for {
		select {
		case q := <-w.in:
			w.mu.Lock()
			w.pending = append(w.pending, q)
			w.mu.Unlock()
		default:
			return
		}
	}
}

// flush writes all pending rows. On failure the rows stay pending, trimmed
// oldest-first to the backlog bound; a store outage therefore costs the
// oldest data, never feed back-pressure.
func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	rows := w.pending
	w.pending = nil
	w.mu.Unlock()

	start := time.Now()
	err := w.store.InsertBatch(ctx, rows)
	if err != nil {
		w.requeue(rows, err)
		return
	}

	w.mu.Lock()
	w.stats.Inserted += int64(len(rows))
	w.stats.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed quotes",
		slog.Int("count", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)

	w.refreshProbabilities(ctx, rows)
	w.publishInserted(ctx, rows)
}

func (w *Writer) requeue(rows []domain.Quote, cause error) {
	w.mu.Lock()
	w.stats.Failures++
	w.pending = append(rows, w.pending...)
	limit := w.size * backlogFactor
	var dropped int
	if len(w.pending) > limit {
		dropped = len(w.pending) - limit
		w.pending = w.pending[dropped:]
		w.stats.Dropped += int64(dropped)
	}
	backlog := len(w.pending)
	w.mu.Unlock()

	level := slog.LevelError
	if errors.Is(cause, domain.ErrPersistenceUnavailable) {
		level = slog.LevelWarn
	}
	w.logger.Log(context.Background(), level, "flush failed, rows retained",
		slog.String("error", cause.Error()),
		slog.Int("backlog", backlog),
		slog.Int("dropped", dropped),
	)
}

// refreshProbabilities pushes the newest price per event id into the
// probability cache.
func (w *Writer) refreshProbabilities(ctx context.Context, rows []domain.Quote) {
	if w.probs == nil {
		return
	}
	latest := make(map[string]domain.Quote, len(rows))
	for _, q := range rows {
		if cur, ok := latest[q.EventID]; !ok || q.Timestamp.After(cur.Timestamp) {
			latest[q.EventID] = q
		}
	}
	for eventID, q := range latest {
		if err := w.probs.Set(ctx, eventID, q.Price, q.Timestamp); err != nil {
			w.logger.Debug("probability cache refresh failed",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// insertedEvent is the payload published on the signals-inserted channel.
type insertedEvent struct {
	Count   int       `json:"count"`
	FirstTS time.Time `json:"first_ts"`
	LastTS  time.Time `json:"last_ts"`
}

func (w *Writer) publishInserted(ctx context.Context, rows []domain.Quote) {
	if w.bus == nil || len(rows) == 0 {
		return
	}
	ev := insertedEvent{Count: len(rows), FirstTS: rows[0].Timestamp, LastTS: rows[len(rows)-1].Timestamp}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := w.bus.Publish(ctx, domain.ChanSignalsInserted, payload); err != nil {
		w.logger.Debug("signal publish failed", slog.String("error", err.Error()))
	}
}
