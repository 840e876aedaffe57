package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/platform/polymarket"
)

type captureSink struct {
	quotes []domain.Quote
	full   bool
}

func (s *captureSink) Enqueue(q domain.Quote) bool {
	if s.full {
		return false
	}
	s.quotes = append(s.quotes, q)
	return true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeJSON[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPolymarketTradeThenBookThenTrade(t *testing.T) {
	sink := &captureSink{}
	n := NewPolymarketNormalizer(NewMicroCache(), sink, map[string]string{"X": "Prop X"}, discardLogger())

	n.HandleTrade(decodeJSON[polymarket.TradeMessage](t,
		`{"asset_id":"X","price":"0.64","size":"10","side":"BUY"}`))
	n.HandleBook(decodeJSON[polymarket.BookMessage](t,
		`{"asset_id":"X","bids":[["0.63","100"]],"asks":[["0.65","100"]]}`))
	n.HandleTrade(decodeJSON[polymarket.TradeMessage](t,
		`{"asset_id":"X","price":"0.66","size":"5","side":"SELL"}`))

	if len(sink.quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(sink.quotes))
	}

	first := sink.quotes[0]
	if !near(first.Price.Float(), 0.64) {
		t.Errorf("first price = %v, want 0.64", first.Price)
	}
	if first.Side != domain.SideBuy {
		t.Errorf("first side = %q", first.Side)
	}
	if first.LiquidityDepthUSD != 0 || first.BidAskSpreadPct != nil {
		t.Error("first quote should carry no book enrichment")
	}
	if !first.LowConfidence() {
		t.Errorf("first confidence = %d, expected low flag", first.Confidence)
	}

	second := sink.quotes[1]
	if !near(second.Price.Float(), 0.64) {
		t.Errorf("second price = %v, want mid 0.64 over trade 0.66", second.Price)
	}
	if second.Side != domain.SideSell {
		t.Errorf("second side = %q", second.Side)
	}
	if !near(second.LiquidityDepthUSD, 128) {
		t.Errorf("depth = %v, want 128", second.LiquidityDepthUSD)
	}
	if second.BidAskSpreadPct == nil || math.Abs(*second.BidAskSpreadPct-3.125) > 1e-6 {
		t.Errorf("spread pct = %v, want 3.125", second.BidAskSpreadPct)
	}
	if second.Confidence != 55 || second.LowConfidence() {
		t.Errorf("confidence = %d flag %q, want 55 unflagged", second.Confidence, second.ConfidenceFlag)
	}
	if second.PropositionName != "Prop X" {
		t.Errorf("proposition = %q", second.PropositionName)
	}
	if second.Platform != domain.PlatformPolymarket {
		t.Errorf("platform = %q", second.Platform)
	}
	if second.ID == "" || second.ID == first.ID {
		t.Error("quote ids must be unique and non-empty")
	}
	if len(second.RawPayload) == 0 {
		t.Error("raw payload missing")
	}
}

func TestPolymarketBookDepthBand(t *testing.T) {
	sink := &captureSink{}
	cache := NewMicroCache()
	n := NewPolymarketNormalizer(cache, sink, nil, discardLogger())

	// The 0.50 bid sits far outside 2% of mid 0.64 and must not count.
	n.HandleBook(decodeJSON[polymarket.BookMessage](t,
		`{"asset_id":"X","bids":[["0.63","100"],["0.50","1000"]],"asks":[["0.65","100"]]}`))

	state, ok := cache.Get("X")
	if !ok {
		t.Fatal("no cached state")
	}
	if !near(state.DepthUSD, 128) {
		t.Errorf("depth = %v, want 128", state.DepthUSD)
	}
	mid, ok := state.Mid()
	if !ok || !near(mid.Float(), 0.64) {
		t.Errorf("mid = %v ok=%v, want 0.64", mid, ok)
	}
}

func TestPolymarketPriceChangeEmitsMidQuote(t *testing.T) {
	sink := &captureSink{}
	n := NewPolymarketNormalizer(NewMicroCache(), sink, nil, discardLogger())

	n.HandleBook(decodeJSON[polymarket.BookMessage](t,
		`{"asset_id":"X","bids":[["0.63","100"]],"asks":[["0.65","100"]]}`))

	n.HandlePriceChange(decodeJSON[polymarket.PriceChangeMessage](t,
		`{"asset_id":"X","best_bid":"0.64","best_ask":"0.66"}`))
	n.HandlePriceChange(decodeJSON[polymarket.PriceChangeMessage](t,
		`{"asset_id":"X","best_bid":"0.60","best_ask":"0.62"}`))

	if len(sink.quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(sink.quotes))
	}
	up, down := sink.quotes[0], sink.quotes[1]
	if !near(up.Price.Float(), 0.65) || up.Side != domain.SideBuy {
		t.Errorf("upward move: price %v side %q, want 0.65 buy", up.Price, up.Side)
	}
	if !near(down.Price.Float(), 0.61) || down.Side != domain.SideSell {
		t.Errorf("downward move: price %v side %q, want 0.61 sell", down.Price, down.Side)
	}
}

func TestPolymarketTradeWithoutPriceOrBookSkipped(t *testing.T) {
	sink := &captureSink{}
	n := NewPolymarketNormalizer(NewMicroCache(), sink, nil, discardLogger())

	n.HandleTrade(decodeJSON[polymarket.TradeMessage](t,
		`{"asset_id":"X","price":"0","size":"5","side":"BUY"}`))
	n.HandleTrade(decodeJSON[polymarket.TradeMessage](t,
		`{"price":"0.5","size":"5","side":"BUY"}`))

	if len(sink.quotes) != 0 {
		t.Fatalf("got %d quotes, want 0", len(sink.quotes))
	}
}

func TestPolymarketSinkFullDoesNotPanic(t *testing.T) {
	sink := &captureSink{full: true}
	n := NewPolymarketNormalizer(NewMicroCache(), sink, nil, discardLogger())

	for i := 0; i < 150; i++ {
		n.HandleTrade(decodeJSON[polymarket.TradeMessage](t,
			`{"asset_id":"X","price":"0.5","size":"1","side":"BUY"}`))
	}
	if got := n.drops.dropped.Load(); got != 150 {
		t.Errorf("dropped = %d, want 150", got)
	}
}
