package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

type putCall struct {
	path        string
	contentType string
	body        []byte
}

type fakeBlobWriter struct {
	puts []putCall
	err  error
}

func (f *fakeBlobWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.puts = append(f.puts, putCall{path: path, contentType: contentType, body: body})
	return nil
}

type fakeSignalStore struct {
	pages   [][]domain.Quote
	deleted [][]string
}

func (f *fakeSignalStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Quote, error) {
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeSignalStore) DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error) {
	f.deleted = append(f.deleted, ids)
	return int64(len(ids)), nil
}

func testQuote(id, eventID string, ts time.Time, price float64) domain.Quote {
	return domain.Quote{
		ID:              id,
		Timestamp:       ts,
		Platform:        domain.PlatformPolymarket,
		EventID:         eventID,
		PropositionName: "Fed cuts rates in March",
		Price:           domain.Prob(price),
		Side:            domain.SideBuy,
		Size:            10,
		Confidence:      55,
		RawPayload:      []byte(`{"type":"trade"}`),
	}
}

func TestArchiverUploadsThenDeletes(t *testing.T) {
	ts := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	store := &fakeSignalStore{pages: [][]domain.Quote{{
		testQuote("q-1", "ev-a", ts, 0.64),
		testQuote("q-2", "ev-a", ts.Add(time.Minute), 0.65),
		testQuote("q-3", "ev-b", ts.Add(2*time.Minute), 0.41),
	}}}
	writer := &fakeBlobWriter{}

	count, err := NewArchiver(writer, store).ArchiveSignals(context.Background(), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("ArchiveSignals: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	if len(writer.puts) != 1 {
		t.Fatalf("got %d uploads, want 1", len(writer.puts))
	}
	put := writer.puts[0]
	if !strings.HasPrefix(put.path, "signals/2026/04/02/") {
		t.Errorf("path = %q, want signals/2026/04/02/ prefix", put.path)
	}
	if !strings.HasSuffix(put.path, ".jsonl") {
		t.Errorf("path = %q, want .jsonl suffix", put.path)
	}
	if put.contentType != "application/x-ndjson" {
		t.Errorf("content type = %q", put.contentType)
	}

	var lines []archiveRecord
	sc := bufio.NewScanner(bytes.NewReader(put.body))
	for sc.Scan() {
		var rec archiveRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d JSONL lines, want 3", len(lines))
	}
	if lines[0].ID != "q-1" || lines[0].Price != 0.64 || lines[0].ProbabilityPct != 64 {
		t.Errorf("first record = %+v", lines[0])
	}
	if string(lines[0].RawPayload) != `{"type":"trade"}` {
		t.Errorf("raw payload = %s", lines[0].RawPayload)
	}

	if len(store.deleted) != 1 {
		t.Fatalf("got %d delete calls, want 1", len(store.deleted))
	}
	wantIDs := []string{"q-1", "q-2", "q-3"}
	for i, id := range wantIDs {
		if store.deleted[0][i] != id {
			t.Errorf("deleted[%d] = %q, want %q", i, store.deleted[0][i], id)
		}
	}
}

func TestArchiverNoRowsIsNoop(t *testing.T) {
	store := &fakeSignalStore{}
	writer := &fakeBlobWriter{}

	count, err := NewArchiver(writer, store).ArchiveSignals(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveSignals: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(writer.puts) != 0 || len(store.deleted) != 0 {
		t.Errorf("expected no uploads and no deletes, got %d/%d", len(writer.puts), len(store.deleted))
	}
}

func TestArchiverKeepsRowsWhenUploadFails(t *testing.T) {
	ts := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	store := &fakeSignalStore{pages: [][]domain.Quote{{testQuote("q-1", "ev-a", ts, 0.5)}}}
	writer := &fakeBlobWriter{err: errors.New("bucket unreachable")}

	count, err := NewArchiver(writer, store).ArchiveSignals(context.Background(), ts.Add(time.Hour))
	if err == nil {
		t.Fatal("expected error")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(store.deleted) != 0 {
		t.Errorf("rows deleted despite failed upload")
	}
}

type fakeChecker struct {
	exists bool
	paths  []string
}

func (f *fakeChecker) Exists(ctx context.Context, path string) (bool, error) {
	f.paths = append(f.paths, path)
	return f.exists, nil
}

func TestArchiverKeepsRowsWhenVerifyFails(t *testing.T) {
	ts := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	store := &fakeSignalStore{pages: [][]domain.Quote{{
		testQuote("q-1", "ev-a", ts, 0.64),
	}}}
	writer := &fakeBlobWriter{}
	checker := &fakeChecker{exists: false}

	arch := NewArchiver(writer, store).WithVerifier(checker)
	count, err := arch.ArchiveSignals(context.Background(), ts.Add(time.Hour))
	if err == nil {
		t.Fatal("expected verification error")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(store.deleted) != 0 {
		t.Errorf("rows deleted despite missing archive object")
	}
	if len(checker.paths) != 1 || len(writer.puts) != 1 || checker.paths[0] != writer.puts[0].path {
		t.Errorf("verify checked %v, uploads %d", checker.paths, len(writer.puts))
	}
}

func TestSignalPathUsesUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 02:00 on April 3rd local time is still April 2nd in UTC.
	ts := time.Date(2026, 4, 3, 2, 0, 0, 0, loc)

	path := signalPath(ts)
	if !strings.HasPrefix(path, "signals/2026/04/02/") {
		t.Errorf("path = %q, want signals/2026/04/02/ prefix", path)
	}
	if other := signalPath(ts); other == path {
		t.Errorf("expected unique object names, got %q twice", path)
	}
}
