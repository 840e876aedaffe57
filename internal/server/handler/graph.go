package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/pricing"
)

// GraphCatalog is the slice of the market store the graph handler reads.
type GraphCatalog interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// GraphEdges is the slice of the relationship store the graph handler reads.
type GraphEdges interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Relationship, error)
}

// GraphHandler serves the dashboard graph snapshot.
type GraphHandler struct {
	catalog      GraphCatalog
	edges        GraphEdges
	resolver     *pricing.Resolver
	hubThreshold int
	logger       *slog.Logger
}

// NewGraphHandler creates a GraphHandler. hubThreshold is the strict link
// count above which a market counts as a hub.
func NewGraphHandler(catalog GraphCatalog, edges GraphEdges, resolver *pricing.Resolver, hubThreshold int, logger *slog.Logger) *GraphHandler {
	if hubThreshold <= 0 {
		hubThreshold = 3
	}
	return &GraphHandler{
		catalog:      catalog,
		edges:        edges,
		resolver:     resolver,
		hubThreshold: hubThreshold,
		logger:       logger,
	}
}

type graphNode struct {
	MarketKey      string   `json:"market_key"`
	EventName      string   `json:"event_name"`
	Proposition    string   `json:"proposition"`
	Venues         []string `json:"venues"`
	ProbabilityPct *float64 `json:"probability_pct,omitempty"`
	PriceSource    string   `json:"price_source,omitempty"`
	IsHub          bool     `json:"is_hub"`
}

type graphEdge struct {
	Source              string   `json:"source"`
	Target              string   `json:"target"`
	Type                string   `json:"type"`
	ConfidencePct       float64  `json:"confidence_pct"`
	ImpactDirection     string   `json:"impact_direction"`
	CorrelationStrength string   `json:"correlation_strength"`
	LogicalLayer        string   `json:"logical_layer"`
	Justification       string   `json:"justification,omitempty"`
	Insight             string   `json:"insight,omitempty"`
	ProbabilitySpread   *float64 `json:"probability_spread_pct,omitempty"`
	ArbitrageFlag       string   `json:"arbitrage_flag,omitempty"`
	RiskAlert           string   `json:"risk_alert,omitempty"`
}

type graphMeta struct {
	MarketCount        int      `json:"market_count"`
	RelationshipCount  int      `json:"relationship_count"`
	Hubs               []string `json:"hubs"`
	ArbitrageFlagCount int      `json:"arbitrage_flag_count"`
	DivergenceCount    int      `json:"divergence_count"`
	GeneratedAt        string   `json:"generated_at"`
}

type graphResponse struct {
	Nodes []graphNode `json:"nodes"`
	Edges []graphEdge `json:"edges"`
	Meta  graphMeta   `json:"meta"`
}

// GraphData joins the catalog, the relationship edges, and the current price
// snapshot into one dashboard payload.
// GET /api/graph-data
func (h *GraphHandler) GraphData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	markets, err := h.catalog.List(ctx, domain.ListOpts{})
	if err != nil {
		h.logger.ErrorContext(ctx, "graph catalog load failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	rels, err := h.edges.List(ctx, domain.ListOpts{})
	if err != nil {
		h.logger.ErrorContext(ctx, "graph relationships load failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load relationships")
		return
	}
	snap, err := h.resolver.Snapshot(ctx, markets)
	if err != nil {
		h.logger.ErrorContext(ctx, "graph price snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to price markets")
		return
	}

	hubs := hubKeys(rels, h.hubThreshold)
	hubSet := make(map[string]bool, len(hubs))
	for _, k := range hubs {
		hubSet[k] = true
	}

	nodes := make([]graphNode, 0, len(markets))
	for _, m := range markets {
		n := graphNode{
			MarketKey:   m.MarketKey,
			EventName:   m.EventName,
			Proposition: m.PropositionText,
			Venues:      venues(m),
			IsHub:       hubSet[m.MarketKey],
		}
		if p, ok := snap.Resolve(m); ok {
			pct := float64(p.Prob.Pct())
			n.ProbabilityPct = &pct
			n.PriceSource = string(p.Source)
		}
		nodes = append(nodes, n)
	}

	edges := make([]graphEdge, 0, len(rels))
	arbCount, divCount := 0, 0
	for _, rel := range rels {
		if rel.ArbitrageFlag == domain.FlagHighValueArbitrage {
			arbCount++
		}
		if rel.RiskAlert == domain.FlagVenueDivergence {
			divCount++
		}
		edges = append(edges, graphEdge{
			Source:              rel.MarketKeyA,
			Target:              rel.MarketKeyB,
			Type:                string(rel.Type),
			ConfidencePct:       rel.ConfidenceScore.Pct(),
			ImpactDirection:     string(rel.ImpactDirection),
			CorrelationStrength: string(rel.CorrelationStrength),
			LogicalLayer:        string(rel.LogicalLayer),
			Justification:       rel.LogicJustification,
			Insight:             rel.VantageInsight,
			ProbabilitySpread:   rel.ProbabilitySpread,
			ArbitrageFlag:       rel.ArbitrageFlag,
			RiskAlert:           rel.RiskAlert,
		})
	}

	writeJSON(w, http.StatusOK, graphResponse{
		Nodes: nodes,
		Edges: edges,
		Meta: graphMeta{
			MarketCount:        len(markets),
			RelationshipCount:  len(rels),
			Hubs:               hubs,
			ArbitrageFlagCount: arbCount,
			DivergenceCount:    divCount,
			GeneratedAt:        time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// hubKeys returns the market keys with strictly more implied and correlated
// links than threshold, sorted.
func hubKeys(rels []domain.Relationship, threshold int) []string {
	links := map[string]int{}
	for _, rel := range rels {
		if rel.Type != domain.RelImplied && rel.Type != domain.RelCorrelated {
			continue
		}
		links[rel.MarketKeyA]++
		links[rel.MarketKeyB]++
	}
	hubs := make([]string, 0, len(links))
	for key, n := range links {
		if n > threshold {
			hubs = append(hubs, key)
		}
	}
	sort.Strings(hubs)
	return hubs
}

func venues(m domain.Market) []string {
	var v []string
	if m.HasPolymarket() {
		v = append(v, "polymarket")
	}
	if m.HasKalshi() {
		v = append(v, "kalshi")
	}
	return v
}
