// Package pricing resolves the current probability for a market. The scanner,
// the classifier and the scenario engine all price markets through the same
// resolver so they agree on the priority order: live quote via the Polymarket
// identifier, then live quote via the Kalshi ticker, then the configured demo
// table, then absent.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

// snapshotLimit bounds the latest-per-event scan of market_signals.
const snapshotLimit = 1000

// Source records where a resolved price came from.
type Source string

const (
	SourceLive Source = "live"
	SourceDemo Source = "demo"
)

// Price is one resolved market price. DepthUSD and At are zero for demo
// prices.
type Price struct {
	Prob     domain.Prob
	DepthUSD float64
	At       time.Time
	Source   Source
}

// Live reports whether the price came from a live quote rather than the demo
// fallback.
func (p Price) Live() bool { return p.Source == SourceLive }

// LatestQuoter is the slice of the quote store the resolver reads.
type LatestQuoter interface {
	LatestPerEvent(ctx context.Context, limit int) (map[string]domain.Quote, error)
}

// Resolver builds point-in-time price snapshots. The cache is optional; when
// present it overlays fresher probabilities on top of the store scan.
type Resolver struct {
	quotes LatestQuoter
	cache  domain.ProbabilityCache
	demo   map[string]domain.Prob
}

// NewResolver creates a Resolver. demo maps market keys to fallback
// probability fractions and may be nil.
func NewResolver(quotes LatestQuoter, cache domain.ProbabilityCache, demo map[string]float64) *Resolver {
	d := make(map[string]domain.Prob, len(demo))
	for key, v := range demo {
		d[key] = domain.ProbFromRaw(v)
	}
	return &Resolver{
		quotes: quotes,
		cache:  cache,
		demo:   d,
	}
}

// Snapshot loads the latest quote per identifier and the cached probabilities
// for the given markets. A cache failure degrades to store-only prices rather
// than failing the snapshot.
func (r *Resolver) Snapshot(ctx context.Context, markets []domain.Market) (*Snapshot, error) {
	quotes, err := r.quotes.LatestPerEvent(ctx, snapshotLimit)
	if err != nil {
		return nil, fmt.Errorf("pricing: snapshot quotes: %w", err)
	}

	cached := map[string]domain.Prob{}
	if r.cache != nil {
		ids := make([]string, 0, 2*len(markets))
		for _, m := range markets {
			if m.HasPolymarket() {
				ids = append(ids, m.PolymarketID)
			}
			if m.HasKalshi() {
				ids = append(ids, m.KalshiTicker)
			}
		}
		if vals, err := r.cache.GetMany(ctx, ids); err == nil {
			cached = vals
		}
	}

	return &Snapshot{
		quotes: quotes,
		cached: cached,
		demo:   r.demo,
	}, nil
}

// Snapshot is an immutable view of market prices at one instant.
type Snapshot struct {
	quotes map[string]domain.Quote
	cached map[string]domain.Prob
	demo   map[string]domain.Prob
}

// Resolve returns the price for a market, or ok=false when neither venue has
// a live quote and the demo table has no entry for the market key.
func (s *Snapshot) Resolve(m domain.Market) (Price, bool) {
	if m.HasPolymarket() {
		if p, ok := s.live(m.PolymarketID); ok {
			return p, true
		}
	}
	if m.HasKalshi() {
		if p, ok := s.live(m.KalshiTicker); ok {
			return p, true
		}
	}
	if p, ok := s.demo[m.MarketKey]; ok {
		return Price{Prob: p, Source: SourceDemo}, true
	}
	return Price{}, false
}

func (s *Snapshot) live(id string) (Price, bool) {
	q, hasQuote := s.quotes[id]
	c, hasCached := s.cached[id]
	if !hasQuote && !hasCached {
		return Price{}, false
	}
	p := Price{
		Prob:     q.Price,
		DepthUSD: q.LiquidityDepthUSD,
		At:       q.Timestamp,
		Source:   SourceLive,
	}
	if hasCached {
		p.Prob = c
	}
	return p, true
}
