package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCatalog struct {
	markets  []domain.Market
	listOpts domain.ListOpts
	listErr  error
	getErr   error
}

func (f *fakeCatalog) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	f.listOpts = opts
	return f.markets, f.listErr
}

func (f *fakeCatalog) GetByKey(_ context.Context, key string) (domain.Market, error) {
	if f.getErr != nil {
		return domain.Market{}, f.getErr
	}
	for _, m := range f.markets {
		if m.MarketKey == key {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func testMarkets() []domain.Market {
	resolution := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	return []domain.Market{
		{
			MarketKey:        "fed-cut-december",
			EventName:        "Fed cuts rates in December",
			PropositionText:  "The Fed lowers the target rate at the December meeting",
			PolymarketID:     "0xabc123",
			KalshiTicker:     "FED-DEC-CUT",
			ResolutionDate:   &resolution,
			SettlementSource: "FOMC statement",
		},
		{
			MarketKey:       "recession-2026",
			EventName:       "US recession in 2026",
			PropositionText: "NBER declares a recession starting in 2026",
			KalshiTicker:    "RECESS-26",
		},
	}
}

func TestMarketList(t *testing.T) {
	catalog := &fakeCatalog{markets: testMarkets()}
	h := NewMarketHandler(catalog, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	res := httptest.NewRecorder()
	h.List(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if catalog.listOpts.Limit != 100 {
		t.Fatalf("expected default limit 100, got %d", catalog.listOpts.Limit)
	}
	var body struct {
		Markets []marketResponse `json:"markets"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(body.Markets))
	}
	first := body.Markets[0]
	if first.MarketKey != "fed-cut-december" {
		t.Fatalf("unexpected market key %q", first.MarketKey)
	}
	if len(first.Venues) != 2 || first.Venues[0] != "polymarket" || first.Venues[1] != "kalshi" {
		t.Fatalf("unexpected venues %v", first.Venues)
	}
	if first.ResolutionDate != "2026-11-03" {
		t.Fatalf("unexpected resolution date %q", first.ResolutionDate)
	}
	second := body.Markets[1]
	if len(second.Venues) != 1 || second.Venues[0] != "kalshi" {
		t.Fatalf("unexpected venues %v", second.Venues)
	}
	if second.ResolutionDate != "" {
		t.Fatalf("expected empty resolution date, got %q", second.ResolutionDate)
	}
}

func TestMarketListClampsLimit(t *testing.T) {
	catalog := &fakeCatalog{}
	h := NewMarketHandler(catalog, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999&offset=40", nil)
	res := httptest.NewRecorder()
	h.List(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if catalog.listOpts.Limit != 500 {
		t.Fatalf("expected limit clamped to 500, got %d", catalog.listOpts.Limit)
	}
	if catalog.listOpts.Offset != 40 {
		t.Fatalf("expected offset 40, got %d", catalog.listOpts.Offset)
	}
}

func TestMarketListStoreError(t *testing.T) {
	catalog := &fakeCatalog{listErr: errors.New("connection refused")}
	h := NewMarketHandler(catalog, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	res := httptest.NewRecorder()
	h.List(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", res.Code)
	}
}

func TestMarketGet(t *testing.T) {
	catalog := &fakeCatalog{markets: testMarkets()}
	h := NewMarketHandler(catalog, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/fed-cut-december", nil)
	req.SetPathValue("key", "fed-cut-december")
	res := httptest.NewRecorder()
	h.Get(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	var body marketResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.MarketKey != "fed-cut-december" {
		t.Fatalf("unexpected market key %q", body.MarketKey)
	}
	if body.PolymarketID != "0xabc123" || body.KalshiTicker != "FED-DEC-CUT" {
		t.Fatalf("unexpected venue ids %q %q", body.PolymarketID, body.KalshiTicker)
	}
}

func TestMarketGetNotFound(t *testing.T) {
	catalog := &fakeCatalog{markets: testMarkets()}
	h := NewMarketHandler(catalog, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/no-such-market", nil)
	req.SetPathValue("key", "no-such-market")
	res := httptest.NewRecorder()
	h.Get(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", res.Code)
	}
}
