package domain

// BookState is the cached per-asset order-book summary maintained by the
// ingestors and read during trade normalisation to enrich emitted quotes.
// Process-local only; discarded on exit.
type BookState struct {
	BestBid Prob
	BestAsk Prob

	// DepthUSD is the sum of price*size over ladder levels within 2% of the
	// mid on each side. Zero for ticker venues that report no ladders.
	DepthUSD float64

	// Spread is the absolute bid/ask gap in price units, never negative.
	Spread float64

	// Volume24h is venue-reported 24h volume where the feed supplies it.
	Volume24h float64

	HasBook bool
}

// Mid returns the bid/ask midpoint, or false when the book is one-sided or
// empty.
func (b BookState) Mid() (Prob, bool) {
	if !b.HasBook || b.BestBid <= 0 || b.BestAsk <= 0 {
		return 0, false
	}
	return Prob((float64(b.BestBid) + float64(b.BestAsk)) / 2), true
}

// SpreadPct returns the spread relative to the mid in percentage points, or
// false when no mid exists.
func (b BookState) SpreadPct() (float64, bool) {
	mid, ok := b.Mid()
	if !ok || mid <= 0 {
		return 0, false
	}
	return (b.Spread / float64(mid)) * 100, true
}
