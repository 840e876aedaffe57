package domain

import "time"

// Market is a node in the semantic graph: one tracked proposition that may be
// listed on either or both venues.
type Market struct {
	MarketKey        string
	EventName        string
	PropositionText  string
	PolymarketID     string
	KalshiTicker     string
	ResolutionDate   *time.Time
	SettlementSource string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPolymarket reports whether the market carries a venue-A identifier.
func (m Market) HasPolymarket() bool { return m.PolymarketID != "" }

// HasKalshi reports whether the market carries a venue-B identifier.
func (m Market) HasKalshi() bool { return m.KalshiTicker != "" }
