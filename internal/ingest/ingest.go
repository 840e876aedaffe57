// Package ingest normalises venue WebSocket feeds into quote records. Each
// venue has a normaliser that maintains the per-asset microstructure cache and
// emits enriched quotes into a sink, and a Session supervisor that keeps the
// underlying connection alive with exponential backoff.
package ingest

import (
	"log/slog"
	"sync/atomic"

	"github.com/vantagegraph/vantage/internal/domain"
)

// QuoteSink accepts normalised quotes. Enqueue must not block; it returns
// false when the sink is full and the quote was dropped.
type QuoteSink interface {
	Enqueue(q domain.Quote) bool
}

// dropTracker counts dropped quotes and logs a sampled warning so a saturated
// sink does not flood the log.
type dropTracker struct {
	dropped atomic.Int64
}

// note records one drop and reports whether this occurrence should be logged.
func (d *dropTracker) note() (total int64, logIt bool) {
	n := d.dropped.Add(1)
	return n, n == 1 || n%100 == 0
}

func (d *dropTracker) warn(logger *slog.Logger, eventID string) {
	if total, ok := d.note(); ok {
		logger.Warn("quote sink full, dropping",
			slog.String("event_id", eventID),
			slog.Int64("total_dropped", total),
		)
	}
}
