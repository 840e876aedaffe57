package ingest

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Feed is one venue connection lifetime: dial and subscribe, then pump
// messages until failure.
type Feed interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
}

// Session supervises a single venue feed, reconnecting with jittered
// exponential backoff. Each venue gets its own Session; a failure on one
// never touches the other.
type Session struct {
	name      string
	feed      Feed
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
}

// NewSession creates a supervisor for the named feed.
func NewSession(name string, feed Feed, baseDelay, maxDelay time.Duration, logger *slog.Logger) *Session {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Session{
		name:      name,
		feed:      feed,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		logger:    logger.With(slog.String("session", name)),
	}
}

// Run keeps the feed connected until ctx is cancelled. The attempt counter
// resets on every successful connect, so a long-lived connection that
// eventually drops starts over at the base delay.
func (s *Session) Run(ctx context.Context) error {
	defer s.feed.Close()

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.feed.Connect(ctx)
		if err == nil {
			attempt = 0
			s.logger.Info("session connected")
			err = s.feed.Run(ctx)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		delay := backoff(s.baseDelay, s.maxDelay, attempt)
		attempt++
		s.logger.Warn("session lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
			slog.Int("attempt", attempt),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff returns base·2^attempt capped at max, plus up to 25% jitter so two
// sessions dropped by the same outage do not redial in lockstep.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if jitter := int64(d / 4); jitter > 0 {
		d += time.Duration(rand.Int64N(jitter))
	}
	if d > max {
		d = max
	}
	return d
}
