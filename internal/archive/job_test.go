package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeArchiver struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakeArchiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return 0, f.err
}

func (f *fakeArchiver) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.cutoffs...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobSweepsAtStartupWithRetentionCutoff(t *testing.T) {
	arch := &fakeArchiver{}
	job := NewJob(arch, 30, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(arch.calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no sweep within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	cutoff := arch.calls()[0]
	want := time.Now().UTC().AddDate(0, 0, -30)
	if diff := want.Sub(cutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", cutoff, want)
	}
}

func TestJobRepeatsOnInterval(t *testing.T) {
	arch := &fakeArchiver{err: errors.New("transient")}
	job := NewJob(arch, 90, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(arch.calls()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d sweeps within deadline", len(arch.calls()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestNewJobDefaults(t *testing.T) {
	job := NewJob(&fakeArchiver{}, 0, 0, discardLogger())
	if job.retentionDays != defaultRetentionDays {
		t.Errorf("retentionDays = %d, want %d", job.retentionDays, defaultRetentionDays)
	}
	if job.interval != defaultInterval {
		t.Errorf("interval = %v, want %v", job.interval, defaultInterval)
	}
}
