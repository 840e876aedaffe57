package ingest

import (
	"math"
	"testing"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/platform/kalshi"
)

func TestKalshiTickerThenTrade(t *testing.T) {
	sink := &captureSink{}
	cache := NewMicroCache()
	n := NewKalshiNormalizer(cache, sink, map[string]string{"FED-25DEC": "Fed cuts in December"}, discardLogger())

	n.HandleTicker(kalshi.TickerMessage{
		Ticker: "FED-25DEC", YesBid: 62, YesAsk: 64, Volume: 15000, Timestamp: 1700000000,
	})
	n.HandleTrade(kalshi.TradeMessage{
		Ticker: "FED-25DEC", YesPrice: 63, Count: 5, TakerSide: "yes", Timestamp: 1700000001,
	})

	if len(sink.quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(sink.quotes))
	}
	q := sink.quotes[0]
	if !near(q.Price.Float(), 0.63) {
		t.Errorf("price = %v, want cached mid 0.63", q.Price)
	}
	if q.Side != domain.SideBuy {
		t.Errorf("side = %q, want buy for yes taker", q.Side)
	}
	if q.Size != 5 {
		t.Errorf("size = %v, want 5", q.Size)
	}
	if q.Platform != domain.PlatformKalshi || q.EventID != "FED-25DEC" {
		t.Errorf("platform/event = %q/%q", q.Platform, q.EventID)
	}
	if q.PropositionName != "Fed cuts in December" {
		t.Errorf("proposition = %q", q.PropositionName)
	}
	if q.Volume24h == nil || *q.Volume24h != 15000 {
		t.Errorf("volume = %v, want 15000", q.Volume24h)
	}
	wantSpread := (0.02 / 0.63) * 100
	if q.BidAskSpreadPct == nil || math.Abs(*q.BidAskSpreadPct-wantSpread) > 1e-6 {
		t.Errorf("spread pct = %v, want %v", q.BidAskSpreadPct, wantSpread)
	}
	// No ladder on this venue so depth stays zero and the score leans on the
	// spread component alone.
	if q.LiquidityDepthUSD != 0 {
		t.Errorf("depth = %v, want 0", q.LiquidityDepthUSD)
	}
	if !q.LowConfidence() {
		t.Errorf("confidence = %d, expected low flag with zero depth", q.Confidence)
	}
	if q.Timestamp.Unix() != 1700000001 {
		t.Errorf("timestamp = %v", q.Timestamp)
	}
}

func TestKalshiTradeWithoutTickerFallsBackToCents(t *testing.T) {
	sink := &captureSink{}
	n := NewKalshiNormalizer(NewMicroCache(), sink, nil, discardLogger())

	n.HandleTrade(kalshi.TradeMessage{Ticker: "T", YesPrice: 41, Count: 2, TakerSide: "no"})

	if len(sink.quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(sink.quotes))
	}
	q := sink.quotes[0]
	if !near(q.Price.Float(), 0.41) {
		t.Errorf("price = %v, want 0.41", q.Price)
	}
	if q.Side != domain.SideSell {
		t.Errorf("side = %q, want sell for no taker", q.Side)
	}
	if q.BidAskSpreadPct != nil || q.Volume24h != nil {
		t.Error("expected no enrichment without ticker state")
	}
}

func TestKalshiZeroPriceTradeSkipped(t *testing.T) {
	sink := &captureSink{}
	n := NewKalshiNormalizer(NewMicroCache(), sink, nil, discardLogger())

	n.HandleTrade(kalshi.TradeMessage{Ticker: "T", YesPrice: 0, Count: 1, TakerSide: "yes"})
	n.HandleTrade(kalshi.TradeMessage{YesPrice: 50, Count: 1, TakerSide: "yes"})

	if len(sink.quotes) != 0 {
		t.Fatalf("got %d quotes, want 0", len(sink.quotes))
	}
}

func TestKalshiTickerPreservesVolumeOnPartialUpdate(t *testing.T) {
	cache := NewMicroCache()
	n := NewKalshiNormalizer(cache, &captureSink{}, nil, discardLogger())

	n.HandleTicker(kalshi.TickerMessage{Ticker: "T", YesBid: 40, YesAsk: 42, Volume: 900})
	n.HandleTicker(kalshi.TickerMessage{Ticker: "T", YesBid: 41, YesAsk: 43})

	state, ok := cache.Get("T")
	if !ok {
		t.Fatal("no cached state")
	}
	if state.Volume24h != 900 {
		t.Errorf("volume = %v, want 900 preserved", state.Volume24h)
	}
	mid, _ := state.Mid()
	if !near(mid.Float(), 0.42) {
		t.Errorf("mid = %v, want 0.42", mid)
	}
}
