package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vantagegraph/vantage/internal/domain"
)

// MarketCatalog is the store slice the market handler reads.
type MarketCatalog interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	GetByKey(ctx context.Context, key string) (domain.Market, error)
}

// MarketHandler serves the catalog endpoints.
type MarketHandler struct {
	catalog MarketCatalog
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(catalog MarketCatalog, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{catalog: catalog, logger: logger}
}

type marketResponse struct {
	MarketKey        string   `json:"market_key"`
	EventName        string   `json:"event_name"`
	Proposition      string   `json:"proposition"`
	Venues           []string `json:"venues"`
	PolymarketID     string   `json:"polymarket_id,omitempty"`
	KalshiTicker     string   `json:"kalshi_ticker,omitempty"`
	ResolutionDate   string   `json:"resolution_date,omitempty"`
	SettlementSource string   `json:"settlement_source,omitempty"`
}

func toMarketResponse(m domain.Market) marketResponse {
	resp := marketResponse{
		MarketKey:        m.MarketKey,
		EventName:        m.EventName,
		Proposition:      m.PropositionText,
		Venues:           venues(m),
		PolymarketID:     m.PolymarketID,
		KalshiTicker:     m.KalshiTicker,
		SettlementSource: m.SettlementSource,
	}
	if m.ResolutionDate != nil {
		resp.ResolutionDate = m.ResolutionDate.UTC().Format("2006-01-02")
	}
	return resp
}

// List returns the tracked market catalog.
// GET /api/markets?limit=100&offset=0
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := domain.ListOpts{Limit: queryLimit(r, 100, 500)}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	markets, err := h.catalog.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "market list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

// Get returns one market by key.
// GET /api/markets/{key}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing market key")
		return
	}
	m, err := h.catalog.GetByKey(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}
