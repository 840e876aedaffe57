package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

// maxQueryLen bounds the scenario query body so the analyst prompt stays sane.
const maxQueryLen = 2000

// ScenarioRunner is the engine slice the handler calls for new analyses.
type ScenarioRunner interface {
	Analyze(ctx context.Context, query string) (domain.ScenarioReport, error)
}

// ScenarioReader is the store slice used for the history endpoint.
type ScenarioReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ScenarioReport, error)
}

// ScenarioHandler serves the what-if endpoints.
type ScenarioHandler struct {
	runner ScenarioRunner
	reader ScenarioReader
	logger *slog.Logger
}

// NewScenarioHandler creates a ScenarioHandler.
func NewScenarioHandler(runner ScenarioRunner, reader ScenarioReader, logger *slog.Logger) *ScenarioHandler {
	return &ScenarioHandler{runner: runner, reader: reader, logger: logger}
}

type scenarioRequest struct {
	Query string `json:"query"`
}

type scenarioResponse struct {
	ID            string                `json:"id"`
	Query         string                `json:"query"`
	Status        string                `json:"status"`
	TriggerMarket string                `json:"trigger_market,omitempty"`
	Direction     string                `json:"direction,omitempty"`
	CausalChain   []domain.CausalStep   `json:"causal_chain"`
	AffectedNodes []string              `json:"affected_nodes"`
	AffectedEdges []domain.AffectedEdge `json:"affected_edges"`
	Narrative     string                `json:"narrative,omitempty"`
	Error         string                `json:"error,omitempty"`
	CreatedAt     string                `json:"created_at"`
	CompletedAt   string                `json:"completed_at,omitempty"`
}

func toScenarioResponse(r domain.ScenarioReport) scenarioResponse {
	resp := scenarioResponse{
		ID:            r.ID,
		Query:         r.Query,
		Status:        string(r.Status),
		TriggerMarket: r.TriggerMarket,
		Direction:     string(r.Direction),
		CausalChain:   r.CausalChain,
		AffectedNodes: r.AffectedNodes,
		AffectedEdges: r.AffectedEdges,
		Narrative:     r.Narrative,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if resp.CausalChain == nil {
		resp.CausalChain = []domain.CausalStep{}
	}
	if resp.AffectedNodes == nil {
		resp.AffectedNodes = []string{}
	}
	if resp.AffectedEdges == nil {
		resp.AffectedEdges = []domain.AffectedEdge{}
	}
	if r.CompletedAt != nil {
		resp.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// Analyze runs one scenario query and returns the finished report, including
// failed reports so the caller always sees a terminal status.
// POST /api/scenario
func (h *ScenarioHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if len(query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "query too long")
		return
	}

	report, err := h.runner.Analyze(r.Context(), query)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "scenario analyze failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to run scenario")
		return
	}
	writeJSON(w, http.StatusOK, toScenarioResponse(report))
}

// ListRecent returns recent reports, newest first.
// GET /api/scenarios?limit=20
func (h *ScenarioHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 100)
	reports, err := h.reader.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "scenario list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list scenarios")
		return
	}
	out := make([]scenarioResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toScenarioResponse(rep))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": out})
}
