// Package scenario answers what-if queries: parse the shock with the analyst,
// propagate it through the relationship graph, and write a narrative report.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vantagegraph/vantage/internal/analyst"
	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/pricing"
)

const (
	defaultMaxDepth          = 2
	defaultMinPathConfidence = 0.05
)

// AnalystClient is the slice of the analyst the engine calls.
type AnalystClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ReportStore persists scenario reports through their lifecycle.
type ReportStore interface {
	Insert(ctx context.Context, report domain.ScenarioReport) error
	Update(ctx context.Context, report domain.ScenarioReport) error
}

// RelationshipSource is the slice of the relationship store the engine reads.
type RelationshipSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Relationship, error)
}

// CatalogSource is the slice of the market store the engine reads.
type CatalogSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// Config configures the engine. Reports, Relationships, Catalog, Resolver,
// Analyst and Logger are required; Bus is optional.
type Config struct {
	Reports       ReportStore
	Relationships RelationshipSource
	Catalog       CatalogSource
	Resolver      *pricing.Resolver
	Analyst       AnalystClient
	Bus           domain.SignalBus

	MaxDepth          int
	MinPathConfidence float64

	Logger *slog.Logger
}

// Engine runs scenario analyses one query at a time.
type Engine struct {
	reports       ReportStore
	relationships RelationshipSource
	catalog       CatalogSource
	resolver      *pricing.Resolver
	analyst       AnalystClient
	bus           domain.SignalBus

	maxDepth int
	minConf  float64

	mu     sync.Mutex
	logger *slog.Logger
}

// New creates an Engine. Zero depth and confidence floor fall back to the
// defaults (depth 2, 0.05).
func New(cfg Config) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MinPathConfidence <= 0 {
		cfg.MinPathConfidence = defaultMinPathConfidence
	}
	return &Engine{
		reports:       cfg.Reports,
		relationships: cfg.Relationships,
		catalog:       cfg.Catalog,
		resolver:      cfg.Resolver,
		analyst:       cfg.Analyst,
		bus:           cfg.Bus,
		maxDepth:      cfg.MaxDepth,
		minConf:       cfg.MinPathConfidence,
		logger:        cfg.Logger.With(slog.String("component", "scenario_engine")),
	}
}

type shockResponse struct {
	TargetMarket  string `json:"target_market"`
	AssumedChange string `json:"assumed_change"`
	Direction     string `json:"direction"`
}

type narrativeResponse struct {
	ExecutiveSummary string `json:"executive_summary"`
	MarketImpacts    []struct {
		MarketKey     string  `json:"market_key"`
		Order         int     `json:"order"`
		Direction     string  `json:"direction"`
		ConfidencePct float64 `json:"confidence_pct"`
		Statement     string  `json:"statement"`
	} `json:"market_impacts"`
}

// Analyze runs one scenario query end to end and returns the final report
// row. Analyst failures surface as a report with status failed, never as a
// missing row; only the initial insert can error.
func (e *Engine) Analyze(ctx context.Context, query string) (domain.ScenarioReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := domain.ScenarioReport{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    domain.ReportProcessing,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.reports.Insert(ctx, report); err != nil {
		return domain.ScenarioReport{}, fmt.Errorf("scenario: insert report: %w", err)
	}

	markets, err := e.catalog.List(ctx, domain.ListOpts{})
	if err != nil {
		return e.fail(ctx, report, fmt.Errorf("load catalog: %w", err)), nil
	}
	rels, err := e.relationships.List(ctx, domain.ListOpts{})
	if err != nil {
		return e.fail(ctx, report, fmt.Errorf("load relationships: %w", err)), nil
	}
	snap, err := e.resolver.Snapshot(ctx, markets)
	if err != nil {
		return e.fail(ctx, report, fmt.Errorf("price snapshot: %w", err)), nil
	}

	byKey := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		byKey[m.MarketKey] = m
	}

	shock, err := e.parseShock(ctx, query, markets, snap)
	if err != nil {
		return e.fail(ctx, report, err), nil
	}
	report.TriggerMarket = shock.TargetMarket
	report.Direction = domain.Direction(shock.Direction)

	origin, inCatalog := byKey[shock.TargetMarket]
	if !inCatalog {
		e.logger.Warn("shock target not in catalog, traversing anyway",
			slog.String("target_market", shock.TargetMarket),
		)
		origin = domain.Market{MarketKey: shock.TargetMarket, EventName: shock.TargetMarket}
	}

	impacts := buildGraph(rels).propagate(shock.TargetMarket, report.Direction, e.maxDepth, e.minConf)

	relByPair := make(map[[2]string]domain.Relationship, len(rels))
	for _, rel := range rels {
		relByPair[[2]string{rel.MarketKeyA, rel.MarketKeyB}] = rel
	}

	report.CausalChain = causalChain(impacts, byKey)
	report.AffectedNodes = affectedNodes(impacts)
	report.AffectedEdges = affectedEdges(impacts, relByPair)

	narrative, err := e.narrate(ctx, origin, shock, impacts, byKey, snap)
	if err != nil {
		return e.fail(ctx, report, err), nil
	}
	report.Narrative = narrative

	now := time.Now().UTC()
	report.Status = domain.ReportComplete
	report.CompletedAt = &now
	if err := e.reports.Update(ctx, report); err != nil {
		e.logger.Error("report update failed",
			slog.String("report_id", report.ID),
			slog.String("error", err.Error()),
		)
		return report, nil
	}

	e.publish(ctx, report)

	e.logger.Info("scenario complete",
		slog.String("report_id", report.ID),
		slog.String("trigger_market", report.TriggerMarket),
		slog.String("direction", string(report.Direction)),
		slog.Int("impacts", len(impacts)),
	)
	return report, nil
}

// parseShock runs the first analyst call and validates the parsed direction.
func (e *Engine) parseShock(ctx context.Context, query string, markets []domain.Market, snap *pricing.Snapshot) (shockResponse, error) {
	raw, err := e.analyst.Complete(ctx, shockSystemPrompt, shockUserPrompt(query, markets, snap))
	if err != nil {
		return shockResponse{}, fmt.Errorf("parse shock: %w", err)
	}
	var shock shockResponse
	if err := analyst.ExtractJSON(raw, &shock); err != nil {
		return shockResponse{}, fmt.Errorf("parse shock: %w", err)
	}
	shock.TargetMarket = strings.TrimSpace(shock.TargetMarket)
	shock.Direction = strings.ToUpper(strings.TrimSpace(shock.Direction))
	if shock.TargetMarket == "" {
		return shockResponse{}, fmt.Errorf("parse shock: empty target market: %w", domain.ErrMalformedResponse)
	}
	if shock.Direction != string(domain.DirUp) && shock.Direction != string(domain.DirDown) {
		return shockResponse{}, fmt.Errorf("parse shock: direction %q: %w", shock.Direction, domain.ErrMalformedResponse)
	}
	return shock, nil
}

// narrate runs the retrieval-augmented narrative call, or short-circuits to
// the fixed summary when nothing was impacted.
func (e *Engine) narrate(ctx context.Context, origin domain.Market, shock shockResponse, impacts []impact, byKey map[string]domain.Market, snap *pricing.Snapshot) (string, error) {
	if len(impacts) == 0 {
		return fmt.Sprintf("No connected markets: %s has no relationship edges above the confidence floor, so the shock does not propagate.", eventName(origin)), nil
	}

	rag := ragContext{
		Scenario: ragScenario{
			TargetMarket:  origin.MarketKey,
			EventName:     origin.EventName,
			Proposition:   origin.PropositionText,
			AssumedChange: shock.AssumedChange,
			Direction:     shock.Direction,
		},
	}
	if p, ok := snap.Resolve(origin); ok {
		pct := float64(p.Prob.Pct())
		rag.Scenario.CurrentProbability = &pct
	}
	for _, imp := range impacts {
		m := byKey[imp.MarketKey]
		ri := ragImpact{
			MarketKey:           imp.MarketKey,
			EventName:           eventName(m),
			Proposition:         m.PropositionText,
			OrderLabel:          orderLabel(imp.Order),
			Order:               imp.Order,
			RelationshipType:    string(imp.Rel.Type),
			Direction:           string(imp.Direction),
			ConfidencePct:       imp.Cumulative * 100,
			CausalPath:          imp.Path,
			Justification:       imp.Rel.LogicJustification,
			Insight:             imp.Rel.VantageInsight,
			CorrelationStrength: string(imp.Rel.CorrelationStrength),
			LogicalLayer:        string(imp.Rel.LogicalLayer),
		}
		if p, ok := snap.Resolve(m); ok {
			pct := float64(p.Prob.Pct())
			ri.CurrentProbability = &pct
		}
		rag.Impacts = append(rag.Impacts, ri)
	}

	raw, err := e.analyst.Complete(ctx, narrativeSystemPrompt, narrativeUserPrompt(rag))
	if err != nil {
		return "", fmt.Errorf("narrative: %w", err)
	}
	var resp narrativeResponse
	if err := analyst.ExtractJSON(raw, &resp); err != nil {
		return "", fmt.Errorf("narrative: %w", err)
	}

	statements := make([]string, 0, len(impacts))
	if len(resp.MarketImpacts) > 0 {
		for _, mi := range resp.MarketImpacts {
			if s := strings.TrimSpace(mi.Statement); s != "" {
				statements = append(statements, s)
			}
		}
	}
	if len(statements) == 0 {
		for _, imp := range impacts {
			statements = append(statements, templateStatement(origin, shock.Direction, imp, byKey))
		}
	}

	parts := make([]string, 0, 2)
	if summary := strings.TrimSpace(resp.ExecutiveSummary); summary != "" {
		parts = append(parts, summary)
	}
	parts = append(parts, strings.Join(statements, "\n"))
	return strings.Join(parts, "\n\n"), nil
}

// templateStatement renders the fixed impact sentence when the model omitted
// its own statements.
func templateStatement(origin domain.Market, dir string, imp impact, byKey map[string]domain.Market) string {
	return fmt.Sprintf("%s: If %s moves %s, then %s is %.0f%% likely to move %s because of their %s link.",
		orderLabel(imp.Order),
		eventName(origin),
		dir,
		eventName(byKey[imp.MarketKey]),
		imp.Cumulative*100,
		imp.Direction,
		imp.Rel.Type,
	)
}

func eventName(m domain.Market) string {
	if m.EventName != "" {
		return m.EventName
	}
	return m.MarketKey
}

func causalChain(impacts []impact, byKey map[string]domain.Market) []domain.CausalStep {
	steps := make([]domain.CausalStep, 0, len(impacts))
	for _, imp := range impacts {
		steps = append(steps, domain.CausalStep{
			MarketKey:  imp.MarketKey,
			EventName:  eventName(byKey[imp.MarketKey]),
			Order:      imp.Order,
			Direction:  imp.Direction,
			Confidence: imp.Cumulative,
			Path:       imp.Path,
			ViaType:    string(imp.Rel.Type),
		})
	}
	return steps
}

// affectedNodes lists the impacted market keys, confidence order, excluding
// the shocked origin.
func affectedNodes(impacts []impact) []string {
	nodes := make([]string, 0, len(impacts))
	for _, imp := range impacts {
		nodes = append(nodes, imp.MarketKey)
	}
	return nodes
}

// affectedEdges collects every consecutive pair across all impact paths,
// deduplicated by directed (source, target). Edge metadata comes from the
// relationship row for that pair, not from the impact's final hop.
func affectedEdges(impacts []impact, relByPair map[[2]string]domain.Relationship) []domain.AffectedEdge {
	seen := map[[2]string]bool{}
	var edges []domain.AffectedEdge
	for _, imp := range impacts {
		for i := 0; i+1 < len(imp.Path); i++ {
			key := [2]string{imp.Path[i], imp.Path[i+1]}
			if seen[key] {
				continue
			}
			seen[key] = true
			a, b := domain.CanonicalPair(key[0], key[1])
			rel := relByPair[[2]string{a, b}]
			edges = append(edges, domain.AffectedEdge{
				Source:     key[0],
				Target:     key[1],
				Type:       string(rel.Type),
				Confidence: rel.ConfidenceScore.Frac(),
			})
		}
	}
	return edges
}

func (e *Engine) fail(ctx context.Context, report domain.ScenarioReport, cause error) domain.ScenarioReport {
	e.logger.Error("scenario failed",
		slog.String("report_id", report.ID),
		slog.String("error", cause.Error()),
	)
	now := time.Now().UTC()
	report.Status = domain.ReportFailed
	report.Error = cause.Error()
	report.CompletedAt = &now
	if err := e.reports.Update(ctx, report); err != nil {
		e.logger.Error("failed-report update failed",
			slog.String("report_id", report.ID),
			slog.String("error", err.Error()),
		)
	}
	return report
}

// reportEvent is the bus payload published on the reports channel.
type reportEvent struct {
	ID            string     `json:"id"`
	Query         string     `json:"query"`
	Status        string     `json:"status"`
	TriggerMarket string     `json:"trigger_market"`
	Direction     string     `json:"direction"`
	AffectedNodes []string   `json:"affected_nodes"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (e *Engine) publish(ctx context.Context, r domain.ScenarioReport) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(reportEvent{
		ID:            r.ID,
		Query:         r.Query,
		Status:        string(r.Status),
		TriggerMarket: r.TriggerMarket,
		Direction:     string(r.Direction),
		AffectedNodes: r.AffectedNodes,
		CompletedAt:   r.CompletedAt,
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChanReports, payload); err != nil {
		e.logger.Warn("report publish failed", slog.String("error", err.Error()))
	}
}
