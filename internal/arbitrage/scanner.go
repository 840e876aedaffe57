// Package arbitrage hunts cross-venue mispricings over the equivalent edges
// of the relationship graph.
package arbitrage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/notify"
	"github.com/vantagegraph/vantage/internal/pricing"
)

const (
	defaultPollInterval          = 30 * time.Second
	defaultSpreadThresholdPct    = 3.0
	defaultLiquidityThresholdUSD = 500.0
	defaultSuppressWindow        = 10 * time.Minute
)

// RelationshipSource is the slice of the relationship store the scanner reads.
type RelationshipSource interface {
	ListByType(ctx context.Context, t domain.RelationshipType) ([]domain.Relationship, error)
}

// CatalogSource is the slice of the market store the scanner reads.
type CatalogSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// AlertSink records emitted alerts.
type AlertSink interface {
	Insert(ctx context.Context, alert domain.ArbitrageAlert) error
}

// Notifier forwards alert events to operator channels.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// ScannerConfig configures the scanner. Relationships, Catalog, Resolver,
// Alerts and Logger are required; Notifier and Bus are optional.
type ScannerConfig struct {
	Relationships RelationshipSource
	Catalog       CatalogSource
	Resolver      *pricing.Resolver
	Alerts        AlertSink
	Notifier      Notifier
	Bus           domain.SignalBus

	PollInterval          time.Duration
	SpreadThresholdPct    float64
	LiquidityThresholdUSD float64

	// SuppressWindow is how long a pair stays quiet after alerting while its
	// spread persists. Zero falls back to the default.
	SuppressWindow time.Duration

	Logger *slog.Logger
}

// Scanner periodically walks the equivalent pairs, prices both sides, and
// emits an alert when the spread clears the threshold and both live sides
// carry enough depth.
type Scanner struct {
	relationships RelationshipSource
	catalog       CatalogSource
	resolver      *pricing.Resolver
	alerts        AlertSink
	notifier      Notifier
	bus           domain.SignalBus

	interval     time.Duration
	spreadPct    float64
	liquidityUSD float64
	suppress     *suppressor

	logger *slog.Logger
}

// NewScanner creates a Scanner. Zero thresholds and interval fall back to the
// defaults (30s, 3.0 pp, $500).
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.SpreadThresholdPct <= 0 {
		cfg.SpreadThresholdPct = defaultSpreadThresholdPct
	}
	if cfg.LiquidityThresholdUSD <= 0 {
		cfg.LiquidityThresholdUSD = defaultLiquidityThresholdUSD
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = defaultSuppressWindow
	}
	return &Scanner{
		relationships: cfg.Relationships,
		catalog:       cfg.Catalog,
		resolver:      cfg.Resolver,
		alerts:        cfg.Alerts,
		notifier:      cfg.Notifier,
		bus:           cfg.Bus,
		interval:      cfg.PollInterval,
		spreadPct:     cfg.SpreadThresholdPct,
		liquidityUSD:  cfg.LiquidityThresholdUSD,
		suppress:      newSuppressor(cfg.SuppressWindow),
		logger:        cfg.Logger.With(slog.String("component", "arb_scanner")),
	}
}

// Run scans once at startup and then on every poll tick until ctx is
// cancelled. Scan failures are logged and retried at the next tick.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("arbitrage scanner started",
		slog.Duration("interval", s.interval),
		slog.Float64("spread_threshold_pct", s.spreadPct),
		slog.Float64("liquidity_threshold_usd", s.liquidityUSD),
	)

	if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("arbitrage scan failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("arbitrage scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("arbitrage scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Scan executes one scan cycle and returns the number of alerts emitted.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	rels, err := s.relationships.ListByType(ctx, domain.RelEquivalent)
	if err != nil {
		return 0, fmt.Errorf("arbitrage: list equivalent pairs: %w", err)
	}
	if len(rels) == 0 {
		return 0, nil
	}

	markets, err := s.catalog.List(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("arbitrage: load catalog: %w", err)
	}
	byKey := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		byKey[m.MarketKey] = m
	}

	snap, err := s.resolver.Snapshot(ctx, markets)
	if err != nil {
		return 0, fmt.Errorf("arbitrage: price snapshot: %w", err)
	}

	s.suppress.sweep()

	emitted := 0
	for _, rel := range rels {
		pairKey := rel.MarketKeyA + "|" + rel.MarketKeyB
		ma, okA := byKey[rel.MarketKeyA]
		mb, okB := byKey[rel.MarketKeyB]
		if !okA || !okB {
			s.logger.Debug("pair references unknown market",
				slog.String("market_key_a", rel.MarketKeyA),
				slog.String("market_key_b", rel.MarketKeyB),
			)
			continue
		}

		pa, okA := snap.Resolve(ma)
		pb, okB := snap.Resolve(mb)
		if !okA || !okB {
			continue
		}

		spread := float64(pa.Prob.Diff(pb.Prob))
		if spread <= s.spreadPct {
			s.suppress.clear(pairKey)
			continue
		}
		if !s.hasDepth(pa) || !s.hasDepth(pb) {
			continue
		}
		if !s.suppress.shouldEmit(pairKey) {
			continue
		}

		alert := s.buildAlert(ma, mb, pa, pb, spread)
		if err := s.alerts.Insert(ctx, alert); err != nil {
			s.logger.Error("alert insert failed",
				slog.String("market_pair", alert.MarketPair),
				slog.String("error", err.Error()),
			)
			continue
		}
		emitted++

		s.publish(ctx, alert)
		s.notify(ctx, alert)

		s.logger.Info("arbitrage alert emitted",
			slog.String("market_pair", alert.MarketPair),
			slog.Float64("spread_pct", alert.SpreadPct),
			slog.String("status", string(alert.Status)),
		)
	}

	s.logger.Info("arbitrage scan complete",
		slog.Int("pairs", len(rels)),
		slog.Int("alerts", emitted),
	)
	return emitted, nil
}

// hasDepth applies the liquidity gate. Demo prices carry no book, so the gate
// only applies to live sides.
func (s *Scanner) hasDepth(p pricing.Price) bool {
	if !p.Live() {
		return true
	}
	return p.DepthUSD > s.liquidityUSD
}

func (s *Scanner) buildAlert(ma, mb domain.Market, pa, pb pricing.Price, spread float64) domain.ArbitrageAlert {
	status := domain.AlertStatusAlert
	if !pa.Live() || !pb.Live() {
		status = domain.AlertStatusSimulated
	}
	return domain.ArbitrageAlert{
		ID:                 uuid.NewString(),
		Timestamp:          time.Now().UTC(),
		MarketPair:         ma.EventName + " ↔ " + mb.EventName,
		MarketKeyA:         ma.MarketKey,
		MarketKeyB:         mb.MarketKey,
		ProbabilityA:       pa.Prob,
		ProbabilityB:       pb.Prob,
		SpreadPct:          spread,
		PotentialProfitPct: spread,
		Status:             status,
	}
}

// alertEvent is the bus payload published on the alerts channel.
type alertEvent struct {
	ID                 string    `json:"id"`
	Timestamp          time.Time `json:"ts"`
	MarketPair         string    `json:"market_pair"`
	MarketKeyA         string    `json:"market_key_a"`
	MarketKeyB         string    `json:"market_key_b"`
	ProbabilityAPct    float64   `json:"probability_a_pct"`
	ProbabilityBPct    float64   `json:"probability_b_pct"`
	SpreadPct          float64   `json:"spread_pct"`
	PotentialProfitPct float64   `json:"potential_profit_pct"`
	Status             string    `json:"status"`
}

func (s *Scanner) publish(ctx context.Context, a domain.ArbitrageAlert) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(alertEvent{
		ID:                 a.ID,
		Timestamp:          a.Timestamp,
		MarketPair:         a.MarketPair,
		MarketKeyA:         a.MarketKeyA,
		MarketKeyB:         a.MarketKeyB,
		ProbabilityAPct:    float64(a.ProbabilityA.Pct()),
		ProbabilityBPct:    float64(a.ProbabilityB.Pct()),
		SpreadPct:          a.SpreadPct,
		PotentialProfitPct: a.PotentialProfitPct,
		Status:             string(a.Status),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChanAlerts, payload); err != nil {
		s.logger.Warn("alert publish failed", slog.String("error", err.Error()))
	}
}

func (s *Scanner) notify(ctx context.Context, a domain.ArbitrageAlert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notify.ArbitrageMessage(a)); err != nil {
		s.logger.Warn("alert notify failed", slog.String("error", err.Error()))
	}
}
