package ingest

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/platform/kalshi"
)

// KalshiNormalizer turns ticker venue frames into quotes. Ticker updates feed
// the microstructure cache; trades emit quotes enriched from it. The venue
// reports no ladders, so cached depth stays zero and confidence leans on the
// spread component.
type KalshiNormalizer struct {
	cache  *MicroCache
	sink   QuoteSink
	names  map[string]string
	logger *slog.Logger
	drops  dropTracker
}

// NewKalshiNormalizer creates a normaliser. names maps market tickers to
// proposition names from the catalog.
func NewKalshiNormalizer(cache *MicroCache, sink QuoteSink, names map[string]string, logger *slog.Logger) *KalshiNormalizer {
	return &KalshiNormalizer{
		cache:  cache,
		sink:   sink,
		names:  names,
		logger: logger.With(slog.String("component", "kalshi_normalizer")),
	}
}

// Bind registers the normaliser's handlers on a WebSocket client.
func (n *KalshiNormalizer) Bind(ws *kalshi.WSClient) {
	ws.OnTicker(n.HandleTicker)
	ws.OnTrade(n.HandleTrade)
}

// HandleTicker stores the top of book and 24h volume for the market.
func (n *KalshiNormalizer) HandleTicker(m kalshi.TickerMessage) {
	if m.Ticker == "" {
		return
	}

	bid := domain.ProbFromCents(m.YesBid)
	ask := domain.ProbFromCents(m.YesAsk)
	spread := float64(ask) - float64(bid)
	if spread < 0 {
		spread = 0
	}

	n.cache.Update(m.Ticker, func(s *domain.BookState) {
		s.BestBid = bid
		s.BestAsk = ask
		s.Spread = spread
		if m.Volume > 0 {
			s.Volume24h = float64(m.Volume)
		}
		s.HasBook = bid > 0 || ask > 0
	})
}

// HandleTrade emits a quote for an executed trade. The cached mid is
// preferred; without one the yes-side cent price is used. The taker side maps
// yes to buy and no to sell.
func (n *KalshiNormalizer) HandleTrade(m kalshi.TradeMessage) {
	if m.Ticker == "" {
		return
	}

	book, _ := n.cache.Get(m.Ticker)

	price, ok := book.Mid()
	if !ok {
		if m.YesPrice <= 0 {
			return
		}
		price = domain.ProbFromCents(m.YesPrice)
	}

	side := domain.SideBuy
	if m.TakerSide == "no" {
		side = domain.SideSell
	}

	raw, _ := json.Marshal(m)
	q := buildQuote(domain.PlatformKalshi, m.Ticker, n.names[m.Ticker],
		price, side, float64(m.Count), unixFlexible(m.Timestamp), book, raw)
	if !n.sink.Enqueue(q) {
		n.drops.warn(n.logger, m.Ticker)
	}
}

// unixFlexible treats large values as milliseconds and the rest as seconds.
func unixFlexible(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
