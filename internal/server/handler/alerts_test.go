package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

type fakeAlertReader struct {
	alerts []domain.ArbitrageAlert
	limit  int
	err    error
}

func (f *fakeAlertReader) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageAlert, error) {
	f.limit = limit
	return f.alerts, f.err
}

func TestAlertListRecent(t *testing.T) {
	reader := &fakeAlertReader{alerts: []domain.ArbitrageAlert{
		{
			ID:                 "a1",
			Timestamp:          time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC),
			MarketPair:         "fed-cut-december <-> recession-2026",
			MarketKeyA:         "fed-cut-december",
			MarketKeyB:         "recession-2026",
			ProbabilityA:       0.62,
			ProbabilityB:       0.51,
			SpreadPct:          11,
			PotentialProfitPct: 9.5,
			Status:             domain.AlertStatusAlert,
		},
	}}
	h := NewAlertHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent", nil)
	res := httptest.NewRecorder()
	h.ListRecent(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if reader.limit != 20 {
		t.Fatalf("expected default limit 20, got %d", reader.limit)
	}
	var body struct {
		Alerts []alertResponse `json:"alerts"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(body.Alerts))
	}
	a := body.Alerts[0]
	if a.ProbabilityAPct != 62 || a.ProbabilityBPct != 51 {
		t.Fatalf("unexpected probabilities %v %v", a.ProbabilityAPct, a.ProbabilityBPct)
	}
	if a.SpreadPct != 11 {
		t.Fatalf("unexpected spread %v", a.SpreadPct)
	}
	if a.Status != "alert" {
		t.Fatalf("unexpected status %q", a.Status)
	}
	if a.Timestamp != "2026-08-06T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", a.Timestamp)
	}
}

func TestAlertListRecentClampsLimit(t *testing.T) {
	reader := &fakeAlertReader{}
	h := NewAlertHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent?limit=500", nil)
	res := httptest.NewRecorder()
	h.ListRecent(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if reader.limit != 200 {
		t.Fatalf("expected limit clamped to 200, got %d", reader.limit)
	}
}

func TestAlertListRecentStoreError(t *testing.T) {
	reader := &fakeAlertReader{err: errors.New("connection refused")}
	h := NewAlertHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent", nil)
	res := httptest.NewRecorder()
	h.ListRecent(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", res.Code)
	}
}
