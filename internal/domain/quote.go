package domain

import "time"

// Platform identifies the venue a quote originated from.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
)

// QuoteSide is the aggressor side of a trade-derived quote.
type QuoteSide string

const (
	SideBuy  QuoteSide = "buy"
	SideSell QuoteSide = "sell"
)

// ConfidenceFlagLow marks quotes whose confidence score fell below 50.
const ConfidenceFlagLow = "low_confidence"

// Quote is one normalised market observation, the unit of persistence for the
// market_signals table. Append-only, never mutated after emit.
type Quote struct {
	ID              string
	Timestamp       time.Time
	Platform        Platform
	EventID         string
	PropositionName string
	Price           Prob
	Side            QuoteSide
	Size            float64

	LiquidityDepthUSD float64
	BidAskSpreadPct   *float64
	Volume24h         *float64

	Confidence     int
	ConfidenceFlag string
	RawPayload     []byte
}

// ProbabilityPct returns the price expressed in percentage points.
func (q Quote) ProbabilityPct() float64 { return float64(q.Price) * 100 }

// LowConfidence reports whether the quote carries the low-confidence flag.
func (q Quote) LowConfidence() bool { return q.ConfidenceFlag == ConfidenceFlagLow }
