// Package classifier builds the relationship graph: every unordered pair of
// catalog markets is sent to the analyst, the reply is decoded, post-processed
// with the current price snapshot, and upserted as one canonical edge.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vantagegraph/vantage/internal/analyst"
	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/pricing"
)

const (
	defaultConcurrency      = 5
	defaultDivergencePct    = 5.0
	defaultArbitrageFlagPct = 10.0
	defaultHubLinkThreshold = 3

	// runLockKey guards against two concurrent classification runs writing
	// interleaved edges.
	runLockKey = "classifier:run"
	runLockTTL = 30 * time.Minute
)

// AnalystClient is the slice of the analyst the classifier calls.
type AnalystClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CatalogSource is the slice of the market store the classifier reads.
type CatalogSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// EdgeSink records classified relationships.
type EdgeSink interface {
	Upsert(ctx context.Context, r domain.Relationship) error
}

// Config configures the classifier. Catalog, Edges, Resolver, Analyst and
// Logger are required; Locks is optional.
type Config struct {
	Catalog  CatalogSource
	Edges    EdgeSink
	Resolver *pricing.Resolver
	Analyst  AnalystClient
	Locks    domain.LockManager

	Concurrency               int
	DivergenceThresholdPct    float64
	ArbitrageFlagThresholdPct float64
	HubLinkThreshold          int

	Logger *slog.Logger
}

// Classifier runs the one-shot pair classification workflow.
type Classifier struct {
	catalog  CatalogSource
	edges    EdgeSink
	resolver *pricing.Resolver
	analyst  AnalystClient
	locks    domain.LockManager

	concurrency   int
	divergencePct float64
	arbFlagPct    float64
	hubThreshold  int

	logger *slog.Logger
}

// New creates a Classifier. Zero thresholds and concurrency fall back to the
// defaults (5 workers, 5 pp divergence, 10 pp arbitrage, 3 hub links).
func New(cfg Config) *Classifier {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.DivergenceThresholdPct <= 0 {
		cfg.DivergenceThresholdPct = defaultDivergencePct
	}
	if cfg.ArbitrageFlagThresholdPct <= 0 {
		cfg.ArbitrageFlagThresholdPct = defaultArbitrageFlagPct
	}
	if cfg.HubLinkThreshold <= 0 {
		cfg.HubLinkThreshold = defaultHubLinkThreshold
	}
	return &Classifier{
		catalog:       cfg.Catalog,
		edges:         cfg.Edges,
		resolver:      cfg.Resolver,
		analyst:       cfg.Analyst,
		locks:         cfg.Locks,
		concurrency:   cfg.Concurrency,
		divergencePct: cfg.DivergenceThresholdPct,
		arbFlagPct:    cfg.ArbitrageFlagThresholdPct,
		hubThreshold:  cfg.HubLinkThreshold,
		logger:        cfg.Logger.With(slog.String("component", "classifier")),
	}
}

// Stats summarises one classification run.
type Stats struct {
	Pairs      int
	Classified int
	Skipped    int
	Hubs       []string
}

// edgeResponse is the JSON shape the analyst is instructed to return.
type edgeResponse struct {
	RelationshipType    string  `json:"relationship_type"`
	ConfidenceScore     float64 `json:"confidence_score"`
	LogicJustification  string  `json:"logic_justification"`
	ImpactDirection     string  `json:"impact_direction"`
	CorrelationStrength string  `json:"correlation_strength"`
	LogicalLayer        string  `json:"logical_layer"`
	VantageInsight      string  `json:"vantage_insight"`
}

// Run classifies every unordered pair of catalog markets once. Pairs whose
// analyst call or reply parsing fails are skipped, never retried within the
// run. When a lock manager is configured the run is guarded by a single
// cluster-wide lock.
func (c *Classifier) Run(ctx context.Context) (Stats, error) {
	if c.locks != nil {
		release, err := c.locks.Acquire(ctx, runLockKey, runLockTTL)
		if err != nil {
			return Stats{}, fmt.Errorf("classifier: acquire run lock: %w", err)
		}
		defer release()
	}

	markets, err := c.catalog.List(ctx, domain.ListOpts{})
	if err != nil {
		return Stats{}, fmt.Errorf("classifier: load catalog: %w", err)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].MarketKey < markets[j].MarketKey })

	snap, err := c.resolver.Snapshot(ctx, markets)
	if err != nil {
		return Stats{}, fmt.Errorf("classifier: price snapshot: %w", err)
	}

	type pair struct{ a, b domain.Market }
	var pairs []pair
	for i := 0; i < len(markets); i++ {
		for j := i + 1; j < len(markets); j++ {
			pairs = append(pairs, pair{a: markets[i], b: markets[j]})
		}
	}

	c.logger.Info("classification run started",
		slog.Int("markets", len(markets)),
		slog.Int("pairs", len(pairs)),
		slog.Int("concurrency", c.concurrency),
	)

	var (
		mu       sync.Mutex
		upserted []domain.Relationship
		skipped  int
	)

	// A plain group rather than WithContext: one bad pair must not abort the
	// remaining classifications.
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, p := range pairs {
		g.Go(func() error {
			rel, ok := c.classifyPair(ctx, p.a, p.b, snap)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				skipped++
				return nil
			}
			upserted = append(upserted, rel)
			return nil
		})
	}
	_ = g.Wait()

	hubs := c.detectHubs(upserted)

	stats := Stats{
		Pairs:      len(pairs),
		Classified: len(upserted),
		Skipped:    skipped,
		Hubs:       hubs,
	}
	c.logger.Info("classification run complete",
		slog.Int("pairs", stats.Pairs),
		slog.Int("classified", stats.Classified),
		slog.Int("skipped", stats.Skipped),
		slog.Int("hubs", len(stats.Hubs)),
	)
	return stats, nil
}

func (c *Classifier) classifyPair(ctx context.Context, a, b domain.Market, snap *pricing.Snapshot) (domain.Relationship, bool) {
	keyA, _ := domain.CanonicalPair(a.MarketKey, b.MarketKey)
	if keyA != a.MarketKey {
		a, b = b, a
	}

	var pa, pb *pricing.Price
	if p, ok := snap.Resolve(a); ok {
		pa = &p
	}
	if p, ok := snap.Resolve(b); ok {
		pb = &p
	}

	raw, err := c.analyst.Complete(ctx, systemPrompt, pairPrompt(a, b, pa, pb))
	if err != nil {
		c.logger.Warn("analyst call failed",
			slog.String("market_key_a", a.MarketKey),
			slog.String("market_key_b", b.MarketKey),
			slog.String("error", err.Error()),
		)
		return domain.Relationship{}, false
	}

	var resp edgeResponse
	if err := analyst.ExtractJSON(raw, &resp); err != nil {
		c.logger.Warn("analyst reply unparsable",
			slog.String("market_key_a", a.MarketKey),
			slog.String("market_key_b", b.MarketKey),
			slog.String("error", err.Error()),
		)
		return domain.Relationship{}, false
	}

	relType, ok := normaliseType(resp.RelationshipType)
	if !ok {
		c.logger.Warn("analyst returned unknown relationship type",
			slog.String("market_key_a", a.MarketKey),
			slog.String("market_key_b", b.MarketKey),
			slog.String("relationship_type", resp.RelationshipType),
		)
		return domain.Relationship{}, false
	}

	now := time.Now().UTC()
	rel := domain.Relationship{
		ID:                  uuid.NewString(),
		MarketKeyA:          a.MarketKey,
		MarketKeyB:          b.MarketKey,
		Type:                relType,
		ConfidenceScore:     domain.ConfidenceFromRaw(resp.ConfidenceScore),
		LogicJustification:  strings.TrimSpace(resp.LogicJustification),
		ImpactDirection:     domain.ImpactDirection(strings.ToLower(strings.TrimSpace(resp.ImpactDirection))),
		CorrelationStrength: domain.CorrelationStrength(strings.ToLower(strings.TrimSpace(resp.CorrelationStrength))),
		LogicalLayer:        domain.LogicalLayer(strings.ToLower(strings.TrimSpace(resp.LogicalLayer))),
		VantageInsight:      strings.TrimSpace(resp.VantageInsight),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if pa != nil {
		p := pa.Prob
		rel.ProbabilityA = &p
	}
	if pb != nil {
		p := pb.Prob
		rel.ProbabilityB = &p
	}

	c.postProcess(&rel)

	if err := c.edges.Upsert(ctx, rel); err != nil {
		c.logger.Error("edge upsert failed",
			slog.String("market_key_a", rel.MarketKeyA),
			slog.String("market_key_b", rel.MarketKeyB),
			slog.String("error", err.Error()),
		)
		return domain.Relationship{}, false
	}

	c.logger.Debug("pair classified",
		slog.String("market_key_a", rel.MarketKeyA),
		slog.String("market_key_b", rel.MarketKeyB),
		slog.String("type", string(rel.Type)),
		slog.Float64("confidence", rel.ConfidenceScore.Frac()),
	)
	return rel, true
}

// postProcess overlays the price snapshot onto the analyst's verdict. The
// spread semantics depend on the edge type: equivalent pairs should trade at
// the same probability, mutually exclusive pairs should sum to 100.
func (c *Classifier) postProcess(rel *domain.Relationship) {
	if rel.ProbabilityA == nil || rel.ProbabilityB == nil {
		return
	}
	pa, pb := *rel.ProbabilityA, *rel.ProbabilityB

	switch rel.Type {
	case domain.RelEquivalent:
		spread := float64(pa.Diff(pb))
		rel.ProbabilitySpread = &spread
		if spread > c.divergencePct {
			rel.RiskAlert = domain.FlagVenueDivergence
		}
		if spread > c.arbFlagPct {
			rel.ArbitrageFlag = domain.FlagHighValueArbitrage
			rel.LogicJustification = appendNote(rel.LogicJustification,
				fmt.Sprintf("Venues disagree by %.1f pp (%.1f%% vs %.1f%%) on markets that settle identically.",
					spread, float64(pa.Pct()), float64(pb.Pct())))
		}
	case domain.RelMutuallyExclusive:
		sum := float64(pa.Pct()) + float64(pb.Pct())
		dev := sum - 100
		if dev < 0 {
			dev = -dev
		}
		rel.ProbabilitySpread = &dev
		if dev > c.arbFlagPct {
			rel.ArbitrageFlag = domain.FlagHighValueArbitrage
			rel.RiskAlert = domain.FlagComplementDeviation
			rel.LogicJustification = appendNote(rel.LogicJustification,
				fmt.Sprintf("Mutually exclusive pair prices sum to %.1f%%, %.1f pp away from 100.", sum, dev))
		}
	}
}

// detectHubs counts implied and correlated edges per market key and returns
// the keys with strictly more links than the threshold, sorted.
func (c *Classifier) detectHubs(rels []domain.Relationship) []string {
	links := map[string]int{}
	for _, rel := range rels {
		if rel.Type != domain.RelImplied && rel.Type != domain.RelCorrelated {
			continue
		}
		links[rel.MarketKeyA]++
		links[rel.MarketKeyB]++
	}

	var hubs []string
	for key, n := range links {
		if n > c.hubThreshold {
			hubs = append(hubs, key)
		}
	}
	sort.Strings(hubs)

	for _, key := range hubs {
		c.logger.Info("hub market detected",
			slog.String("market_key", key),
			slog.Int("links", links[key]),
		)
	}
	return hubs
}

// normaliseType maps the analyst's free-text type onto the four stored edge
// types. Variants like "implied_conditional" collapse onto implied.
func normaliseType(s string) (domain.RelationshipType, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(t, "implied") {
		t = "implied"
	}
	rt := domain.RelationshipType(t)
	if !rt.Valid() {
		return "", false
	}
	return rt, true
}

func appendNote(justification, note string) string {
	if justification == "" {
		return note
	}
	return justification + " " + note
}
