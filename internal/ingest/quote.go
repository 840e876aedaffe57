package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/vantagegraph/vantage/internal/domain"
)

// buildQuote assembles a normalised quote from a price observation plus the
// cached book state for the asset, computing the confidence score last so it
// reflects the enrichment fields.
func buildQuote(
	platform domain.Platform,
	eventID, proposition string,
	price domain.Prob,
	side domain.QuoteSide,
	size float64,
	ts time.Time,
	book domain.BookState,
	raw []byte,
) domain.Quote {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	q := domain.Quote{
		ID:                uuid.NewString(),
		Timestamp:         ts,
		Platform:          platform,
		EventID:           eventID,
		PropositionName:   proposition,
		Price:             price,
		Side:              side,
		Size:              size,
		LiquidityDepthUSD: book.DepthUSD,
		RawPayload:        raw,
	}

	if pct, ok := book.SpreadPct(); ok {
		q.BidAskSpreadPct = &pct
	}
	if book.Volume24h > 0 {
		v := book.Volume24h
		q.Volume24h = &v
	}

	q.Confidence, q.ConfidenceFlag = scoreConfidence(q.LiquidityDepthUSD, q.BidAskSpreadPct)
	return q
}
