package domain

import (
	"context"
	"time"
)

// ProbabilityCache holds the latest probability per event id for the read
// paths that cannot afford a table scan.
type ProbabilityCache interface {
	Set(ctx context.Context, eventID string, p Prob, ts time.Time) error
	Get(ctx context.Context, eventID string) (Prob, time.Time, error)
	GetMany(ctx context.Context, eventIDs []string) (map[string]Prob, error)
}

// RateLimiter throttles calls to external services across processes.
type RateLimiter interface {
	// Allow reports whether one more request under key is permitted within
	// the sliding window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request under key is permitted or ctx is done.
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed mutual exclusion for one-shot workflows.
type LockManager interface {
	// Acquire obtains the lock for key or returns ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus broadcasts inserted quotes, emitted alerts, and completed reports
// to any listening dashboard processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channel names.
const (
	ChanSignalsInserted = "signals:inserted"
	ChanAlerts          = "alerts"
	ChanReports         = "reports"
)
