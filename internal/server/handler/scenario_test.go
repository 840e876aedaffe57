package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

type fakeRunner struct {
	report domain.ScenarioReport
	query  string
	err    error
}

func (f *fakeRunner) Analyze(_ context.Context, query string) (domain.ScenarioReport, error) {
	f.query = query
	return f.report, f.err
}

type fakeReportReader struct {
	reports []domain.ScenarioReport
	limit   int
	err     error
}

func (f *fakeReportReader) ListRecent(_ context.Context, limit int) ([]domain.ScenarioReport, error) {
	f.limit = limit
	return f.reports, f.err
}

func completeReport() domain.ScenarioReport {
	created := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	completed := created.Add(40 * time.Second)
	return domain.ScenarioReport{
		ID:            "r1",
		Query:         "what if the Fed cuts in December",
		Status:        domain.ReportComplete,
		TriggerMarket: "fed-cut-december",
		Direction:     domain.DirUp,
		CausalChain: []domain.CausalStep{
			{
				MarketKey:  "recession-2026",
				EventName:  "US recession in 2026",
				Order:      1,
				Direction:  domain.DirDown,
				Confidence: 0.7,
				Path:       []string{"fed-cut-december", "recession-2026"},
				ViaType:    "correlated",
			},
		},
		AffectedNodes: []string{"recession-2026"},
		AffectedEdges: []domain.AffectedEdge{
			{Source: "fed-cut-december", Target: "recession-2026", Type: "correlated", Confidence: 0.7},
		},
		Narrative:   "A December cut eases recession odds.",
		CreatedAt:   created,
		CompletedAt: &completed,
	}
}

func TestScenarioAnalyze(t *testing.T) {
	runner := &fakeRunner{report: completeReport()}
	h := NewScenarioHandler(runner, &fakeReportReader{}, discardLogger())

	body := strings.NewReader(`{"query": "what if the Fed cuts in December"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/scenario", body)
	res := httptest.NewRecorder()
	h.Analyze(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if runner.query != "what if the Fed cuts in December" {
		t.Fatalf("unexpected query passed to runner: %q", runner.query)
	}
	var got scenarioResponse
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Status != "complete" {
		t.Fatalf("unexpected status %q", got.Status)
	}
	if got.TriggerMarket != "fed-cut-december" || got.Direction != "UP" {
		t.Fatalf("unexpected trigger %q direction %q", got.TriggerMarket, got.Direction)
	}
	if len(got.CausalChain) != 1 || got.CausalChain[0].MarketKey != "recession-2026" {
		t.Fatalf("unexpected causal chain %+v", got.CausalChain)
	}
	if got.CompletedAt == "" {
		t.Fatalf("expected completed_at to be set")
	}
}

func TestScenarioAnalyzeFailedReportIsStillOK(t *testing.T) {
	report := completeReport()
	report.Status = domain.ReportFailed
	report.Error = "no market matched the query"
	runner := &fakeRunner{report: report}
	h := NewScenarioHandler(runner, &fakeReportReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/scenario", strings.NewReader(`{"query":"nonsense"}`))
	res := httptest.NewRecorder()
	h.Analyze(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200 for failed report, got %d", res.Code)
	}
	var got scenarioResponse
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Status != "failed" || got.Error == "" {
		t.Fatalf("expected failed report with error, got status %q error %q", got.Status, got.Error)
	}
}

func TestScenarioAnalyzeBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"query": `},
		{"empty query", `{"query": ""}`},
		{"whitespace query", `{"query": "   "}`},
		{"too long", `{"query": "` + strings.Repeat("x", maxQueryLen+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScenarioHandler(&fakeRunner{}, &fakeReportReader{}, discardLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/scenario", strings.NewReader(tt.body))
			res := httptest.NewRecorder()
			h.Analyze(res, req)

			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", res.Code)
			}
		})
	}
}

func TestScenarioAnalyzeRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("analyst unavailable")}
	h := NewScenarioHandler(runner, &fakeReportReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/scenario", strings.NewReader(`{"query":"what if"}`))
	res := httptest.NewRecorder()
	h.Analyze(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", res.Code)
	}
}

func TestScenarioListRecent(t *testing.T) {
	pending := domain.ScenarioReport{
		ID:        "r2",
		Query:     "what if oil spikes",
		Status:    domain.ReportPending,
		CreatedAt: time.Date(2026, 8, 6, 13, 0, 0, 0, time.UTC),
	}
	reader := &fakeReportReader{reports: []domain.ScenarioReport{pending, completeReport()}}
	h := NewScenarioHandler(&fakeRunner{}, reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/scenarios?limit=250", nil)
	res := httptest.NewRecorder()
	h.ListRecent(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if reader.limit != 100 {
		t.Fatalf("expected limit clamped to 100, got %d", reader.limit)
	}
	var body struct {
		Scenarios []scenarioResponse `json:"scenarios"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(body.Scenarios))
	}
	first := body.Scenarios[0]
	if first.Status != "pending" {
		t.Fatalf("unexpected status %q", first.Status)
	}
	if first.CausalChain == nil || first.AffectedNodes == nil || first.AffectedEdges == nil {
		t.Fatalf("expected empty slices instead of null for pending report")
	}
	if first.CompletedAt != "" {
		t.Fatalf("expected no completed_at for pending report, got %q", first.CompletedAt)
	}
}
