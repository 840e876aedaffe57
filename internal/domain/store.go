package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata, the node set of the semantic graph.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByKey(ctx context.Context, key string) (Market, error)
	GetByPolymarketID(ctx context.Context, id string) (Market, error)
	GetByKalshiTicker(ctx context.Context, ticker string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// QuoteStore persists normalised quotes to the market_signals table.
type QuoteStore interface {
	InsertBatch(ctx context.Context, quotes []Quote) error
	// LatestPerEvent scans recent quotes newest-first and returns the first
	// occurrence per event id.
	LatestPerEvent(ctx context.Context, limit int) (map[string]Quote, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Quote, error)
	DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// RelationshipStore persists classified edges keyed by canonical pair.
type RelationshipStore interface {
	Upsert(ctx context.Context, r Relationship) error
	List(ctx context.Context, opts ListOpts) ([]Relationship, error)
	ListConnected(ctx context.Context) ([]Relationship, error)
	ListByType(ctx context.Context, t RelationshipType) ([]Relationship, error)
	Count(ctx context.Context) (int64, error)
}

// AlertStore persists arbitrage alerts.
type AlertStore interface {
	Insert(ctx context.Context, alert ArbitrageAlert) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageAlert, error)
	Count(ctx context.Context) (int64, error)
}

// ScenarioStore persists scenario reports through their lifecycle.
type ScenarioStore interface {
	Insert(ctx context.Context, report ScenarioReport) error
	Update(ctx context.Context, report ScenarioReport) error
	GetByID(ctx context.Context, id string) (ScenarioReport, error)
	ListRecent(ctx context.Context, limit int) ([]ScenarioReport, error)
}
