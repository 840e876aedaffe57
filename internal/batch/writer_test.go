package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]domain.Quote
	failNext int
	failErr  error
	inserted chan int
}

func newFakeStore() *fakeStore {
	return &fakeStore{inserted: make(chan int, 64), failErr: errors.New("insert failed")}
}

func (s *fakeStore) InsertBatch(ctx context.Context, quotes []domain.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != 0 {
		if s.failNext > 0 {
			s.failNext--
		}
		return s.failErr
	}
	cp := make([]domain.Quote, len(quotes))
	copy(cp, quotes)
	s.batches = append(s.batches, cp)
	select {
	case s.inserted <- len(quotes):
	default:
	}
	return nil
}

func (s *fakeStore) rows() []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Quote
	for _, b := range s.batches {
		all = append(all, b...)
	}
	return all
}

type fakeBus struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.payloads == nil {
		b.payloads = make(map[string][][]byte)
	}
	b.payloads[channel] = append(b.payloads[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

type fakeProbCache struct {
	mu   sync.Mutex
	seen map[string]domain.Prob
}

func (c *fakeProbCache) Set(ctx context.Context, eventID string, p domain.Prob, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string]domain.Prob)
	}
	c.seen[eventID] = p
	return nil
}

func (c *fakeProbCache) Get(ctx context.Context, eventID string) (domain.Prob, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}

func (c *fakeProbCache) GetMany(ctx context.Context, eventIDs []string) (map[string]domain.Prob, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quote(event string, price domain.Prob, ts time.Time) domain.Quote {
	return domain.Quote{ID: fmt.Sprintf("%s-%d", event, ts.UnixNano()), EventID: event, Price: price, Timestamp: ts}
}

func waitInsert(t *testing.T, store *fakeStore, want int) {
	t.Helper()
	select {
	case n := <-store.inserted:
		if n != want {
			t.Fatalf("inserted %d rows, want %d", n, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no insert before deadline")
	}
}

func TestWriterFlushesAtBatchSize(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	probs := &fakeProbCache{}
	w := NewWriter(store, probs, bus, 3, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	base := time.Now()
	for i := 0; i < 3; i++ {
		if !w.Enqueue(quote("ev-1", domain.Prob(0.5+float64(i)*0.01), base.Add(time.Duration(i)*time.Second))) {
			t.Fatal("enqueue refused")
		}
	}
	waitInsert(t, store, 3)
	cancel()
	<-done

	if got := w.Stats(); got.Inserted != 3 || got.Flushes != 1 || got.Enqueued != 3 {
		t.Errorf("stats = %+v", got)
	}

	// The cache holds the newest price for the event.
	probs.mu.Lock()
	p := probs.seen["ev-1"]
	probs.mu.Unlock()
	if p != 0.52 {
		t.Errorf("cached prob = %v, want 0.52", p)
	}

	bus.mu.Lock()
	events := bus.payloads[domain.ChanSignalsInserted]
	bus.mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	var ev struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(events[0], &ev); err != nil || ev.Count != 3 {
		t.Errorf("event payload %s (err %v)", events[0], err)
	}
}

func TestWriterFlushesOnInterval(t *testing.T) {
	store := newFakeStore()
	w := NewWriter(store, nil, nil, 100, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(quote("ev", 0.4, time.Now()))
	waitInsert(t, store, 1)
}

func TestWriterRetainsRowsAcrossFailedFlush(t *testing.T) {
	store := newFakeStore()
	store.failNext = 1
	store.failErr = fmt.Errorf("store: %w", domain.ErrPersistenceUnavailable)
	w := NewWriter(store, nil, nil, 2, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(quote("a", 0.1, time.Now()))
	w.Enqueue(quote("b", 0.2, time.Now()))

	// First flush fails, a later tick retries with the same rows.
	waitInsert(t, store, 2)

	stats := w.Stats()
	if stats.Failures != 1 {
		t.Errorf("failures = %d, want 1", stats.Failures)
	}
	if stats.Inserted != 2 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(store.rows()) != 2 {
		t.Errorf("store rows = %d, want 2", len(store.rows()))
	}
}

func TestWriterBoundsBacklogDroppingOldest(t *testing.T) {
	store := newFakeStore()
	store.failNext = -1 // fail forever
	size := 2
	w := NewWriter(store, nil, nil, size, time.Hour, testLogger())

	base := time.Now()
	total := size*backlogFactor + 6
	for i := 0; i < total; i += size {
		w.mu.Lock()
		for j := 0; j < size; j++ {
			w.pending = append(w.pending, quote(fmt.Sprintf("ev-%d", i+j), 0.5, base))
		}
		w.mu.Unlock()
		w.flush(context.Background())
	}

	stats := w.Stats()
	if stats.Dropped != 6 {
		t.Errorf("dropped = %d, want 6", stats.Dropped)
	}
	w.mu.Lock()
	backlog := len(w.pending)
	oldest := w.pending[0].EventID
	w.mu.Unlock()
	if backlog != size*backlogFactor {
		t.Errorf("backlog = %d, want %d", backlog, size*backlogFactor)
	}
	if oldest != "ev-6" {
		t.Errorf("oldest retained = %s, want ev-6", oldest)
	}
}

func TestWriterFinalFlushOnShutdown(t *testing.T) {
	store := newFakeStore()
	w := NewWriter(store, nil, nil, 100, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Enqueue(quote("ev", 0.7, time.Now()))
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
	if len(store.rows()) != 1 {
		t.Errorf("store rows = %d, want 1 after final flush", len(store.rows()))
	}
}

func TestEnqueueRefusesWhenFull(t *testing.T) {
	// No run loop consuming: the intake channel fills at 4x batch size.
	w := NewWriter(newFakeStore(), nil, nil, 2, time.Hour, testLogger())

	accepted := 0
	for i := 0; i < 20; i++ {
		if w.Enqueue(quote("ev", 0.5, time.Now())) {
			accepted++
		}
	}
	if accepted != 8 {
		t.Errorf("accepted = %d, want 8", accepted)
	}
}
