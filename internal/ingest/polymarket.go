package ingest

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/platform/polymarket"
)

// depthBandPct is the half-width of the mid-relative band used when summing
// ladder depth.
const depthBandPct = 0.02

// PolymarketNormalizer turns order-book venue frames into quotes. Book
// snapshots and price changes keep the microstructure cache current; trades
// and price changes emit quotes enriched from that cache.
type PolymarketNormalizer struct {
	cache  *MicroCache
	sink   QuoteSink
	names  map[string]string
	logger *slog.Logger
	drops  dropTracker
}

// NewPolymarketNormalizer creates a normaliser. names maps asset ids to
// proposition names from the market catalog; unknown assets emit with an
// empty proposition.
func NewPolymarketNormalizer(cache *MicroCache, sink QuoteSink, names map[string]string, logger *slog.Logger) *PolymarketNormalizer {
	return &PolymarketNormalizer{
		cache:  cache,
		sink:   sink,
		names:  names,
		logger: logger.With(slog.String("component", "polymarket_normalizer")),
	}
}

// Bind registers the normaliser's handlers on a WebSocket client.
func (n *PolymarketNormalizer) Bind(ws *polymarket.WSClient) {
	ws.OnBook(n.HandleBook)
	ws.OnPriceChange(n.HandlePriceChange)
	ws.OnTrade(n.HandleTrade)
}

// HandleBook rebuilds the cached book state for the asset: best bid/ask, the
// mid-relative depth sum, and the absolute spread.
func (n *PolymarketNormalizer) HandleBook(m polymarket.BookMessage) {
	if m.AssetID == "" {
		return
	}

	var bestBid, bestAsk float64
	for _, l := range m.Bids {
		if l.Price > bestBid {
			bestBid = l.Price
		}
	}
	for _, l := range m.Asks {
		if l.Price > 0 && (bestAsk == 0 || l.Price < bestAsk) {
			bestAsk = l.Price
		}
	}

	state := domain.BookState{
		BestBid: domain.ProbFromRaw(bestBid),
		BestAsk: domain.ProbFromRaw(bestAsk),
		HasBook: bestBid > 0 || bestAsk > 0,
	}
	if bestBid > 0 && bestAsk > 0 {
		mid := (bestBid + bestAsk) / 2
		state.Spread = bestAsk - bestBid
		if state.Spread < 0 {
			state.Spread = 0
		}
		state.DepthUSD = ladderDepth(m.Bids, mid) + ladderDepth(m.Asks, mid)
	}

	n.cache.Update(m.AssetID, func(s *domain.BookState) {
		vol := s.Volume24h
		*s = state
		s.Volume24h = vol
	})
}

// ladderDepth sums price*size over levels within the band around mid.
func ladderDepth(levels []polymarket.PriceLevel, mid float64) float64 {
	lo, hi := mid*(1-depthBandPct), mid*(1+depthBandPct)
	var depth float64
	for _, l := range levels {
		if l.Price >= lo && l.Price <= hi {
			depth += l.Price * l.Size
		}
	}
	return depth
}

// HandlePriceChange moves the cached top of book and emits a mid-derived
// quote. The side records the direction of the move against the previous mid.
func (n *PolymarketNormalizer) HandlePriceChange(m polymarket.PriceChangeMessage) {
	if m.AssetID == "" {
		return
	}

	var prevMid domain.Prob
	if prev, ok := n.cache.Get(m.AssetID); ok {
		prevMid, _ = prev.Mid()
	}

	state := n.cache.Update(m.AssetID, func(s *domain.BookState) {
		if m.BestBid > 0 {
			s.BestBid = domain.ProbFromRaw(float64(m.BestBid))
		}
		if m.BestAsk > 0 {
			s.BestAsk = domain.ProbFromRaw(float64(m.BestAsk))
		}
		if s.BestBid > 0 && s.BestAsk > 0 {
			s.Spread = float64(s.BestAsk) - float64(s.BestBid)
			if s.Spread < 0 {
				s.Spread = 0
			}
		}
		s.HasBook = s.BestBid > 0 || s.BestAsk > 0
	})

	mid, ok := state.Mid()
	if !ok {
		return
	}

	side := domain.SideBuy
	if prevMid > 0 && mid < prevMid {
		side = domain.SideSell
	}

	raw, _ := json.Marshal(m)
	q := buildQuote(domain.PlatformPolymarket, m.AssetID, n.names[m.AssetID],
		mid, side, 0, m.Timestamp.Time, state, raw)
	if !n.sink.Enqueue(q) {
		n.drops.warn(n.logger, m.AssetID)
	}
}

// HandleTrade emits a quote for an executed trade, preferring the cached mid
// over the raw trade price.
func (n *PolymarketNormalizer) HandleTrade(m polymarket.TradeMessage) {
	if m.AssetID == "" {
		return
	}

	book, _ := n.cache.Get(m.AssetID)

	price, ok := book.Mid()
	if !ok {
		if m.Price <= 0 {
			return
		}
		price = domain.ProbFromRaw(float64(m.Price))
	}

	side := domain.SideBuy
	if strings.EqualFold(m.Side, "SELL") {
		side = domain.SideSell
	}

	raw, _ := json.Marshal(m)
	q := buildQuote(domain.PlatformPolymarket, m.AssetID, n.names[m.AssetID],
		price, side, float64(m.Size), m.Timestamp.Time, book, raw)
	if !n.sink.Enqueue(q) {
		n.drops.warn(n.logger, m.AssetID)
	}
}
