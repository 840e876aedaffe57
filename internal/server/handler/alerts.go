package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

// AlertReader is the store slice the alert handler reads.
type AlertReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageAlert, error)
}

// AlertHandler serves the recent-alerts endpoint.
type AlertHandler struct {
	alerts AlertReader
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(alerts AlertReader, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

type alertResponse struct {
	ID                 string  `json:"id"`
	Timestamp          string  `json:"timestamp"`
	MarketPair         string  `json:"market_pair"`
	MarketKeyA         string  `json:"market_key_a"`
	MarketKeyB         string  `json:"market_key_b"`
	ProbabilityAPct    float64 `json:"probability_a_pct"`
	ProbabilityBPct    float64 `json:"probability_b_pct"`
	SpreadPct          float64 `json:"spread_pct"`
	PotentialProfitPct float64 `json:"potential_profit_pct"`
	Status             string  `json:"status"`
}

// ListRecent returns the most recent arbitrage alerts.
// GET /api/alerts/recent?limit=20
func (h *AlertHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 200)
	alerts, err := h.alerts.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "alert list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse{
			ID:                 a.ID,
			Timestamp:          a.Timestamp.Format(time.RFC3339),
			MarketPair:         a.MarketPair,
			MarketKeyA:         a.MarketKeyA,
			MarketKeyB:         a.MarketKeyB,
			ProbabilityAPct:    float64(a.ProbabilityA.Pct()),
			ProbabilityBPct:    float64(a.ProbabilityB.Pct()),
			SpreadPct:          a.SpreadPct,
			PotentialProfitPct: a.PotentialProfitPct,
			Status:             string(a.Status),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}
