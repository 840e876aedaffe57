// Package archive runs the cold-storage retention job. It periodically sweeps
// market signals older than the retention window out of the primary store and
// into object storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultRetentionDays = 90
	defaultInterval      = 24 * time.Hour
)

// SignalArchiver uploads signals older than the cutoff and removes them from
// the primary store. The s3blob Archiver satisfies it.
type SignalArchiver interface {
	ArchiveSignals(ctx context.Context, before time.Time) (int64, error)
}

// Job executes the retention sweep once at startup and then on a fixed
// interval until its context is cancelled.
type Job struct {
	archiver      SignalArchiver
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

// NewJob creates a retention Job. Non-positive retentionDays or interval fall
// back to 90 days and 24 hours.
func NewJob(archiver SignalArchiver, retentionDays int, interval time.Duration, logger *slog.Logger) *Job {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Job{
		archiver:      archiver,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
	}
}

// Run blocks until ctx is cancelled. A failed sweep is logged and retried at
// the next tick.
func (j *Job) Run(ctx context.Context) error {
	j.logger.Info("archive job started",
		slog.Int("retention_days", j.retentionDays),
		slog.Duration("interval", j.interval),
	)

	if err := j.sweep(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("archive sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("archive job stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := j.sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (j *Job) sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)

	count, err := j.archiver.ArchiveSignals(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: sweep before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	j.logger.Info("archive sweep complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("signals_archived", count),
	)
	return nil
}
