package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagegraph/vantage/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketUpsertQuery = `
	INSERT INTO markets (
		market_key, event_name, proposition_text,
		polymarket_id, kalshi_ticker,
		resolution_date, settlement_source, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	ON CONFLICT (market_key) DO UPDATE SET
		event_name        = EXCLUDED.event_name,
		proposition_text  = EXCLUDED.proposition_text,
		polymarket_id     = EXCLUDED.polymarket_id,
		kalshi_ticker     = EXCLUDED.kalshi_ticker,
		resolution_date   = EXCLUDED.resolution_date,
		settlement_source = EXCLUDED.settlement_source,
		updated_at        = NOW()`

const marketColumns = `market_key, event_name, proposition_text, polymarket_id, kalshi_ticker, resolution_date, settlement_source, created_at, updated_at`

// Upsert inserts or updates a single market keyed by market_key.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.pool.Exec(ctx, marketUpsertQuery,
		m.MarketKey, m.EventName, m.PropositionText,
		nullStr(m.PolymarketID), nullStr(m.KalshiTicker),
		m.ResolutionDate, m.SettlementSource,
	)
	return wrapErr("upsert market "+m.MarketKey, err)
}

// UpsertBatch inserts or updates multiple markets in a single batch round trip.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(marketUpsertQuery,
			m.MarketKey, m.EventName, m.PropositionText,
			nullStr(m.PolymarketID), nullStr(m.KalshiTicker),
			m.ResolutionDate, m.SettlementSource,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, m := range markets {
		if _, err := results.Exec(); err != nil {
			return wrapErr("upsert market "+m.MarketKey, err)
		}
	}
	return nil
}

// GetByKey returns a market by its catalog key.
func (s *MarketStore) GetByKey(ctx context.Context, key string) (domain.Market, error) {
	return s.getBy(ctx, "market_key = $1", "get market "+key, key)
}

// GetByPolymarketID returns the market mapped to a venue-A asset id.
func (s *MarketStore) GetByPolymarketID(ctx context.Context, id string) (domain.Market, error) {
	return s.getBy(ctx, "polymarket_id = $1", "get market by polymarket id "+id, id)
}

// GetByKalshiTicker returns the market mapped to a venue-B ticker.
func (s *MarketStore) GetByKalshiTicker(ctx context.Context, ticker string) (domain.Market, error) {
	return s.getBy(ctx, "kalshi_ticker = $1", "get market by kalshi ticker "+ticker, ticker)
}

func (s *MarketStore) getBy(ctx context.Context, where, op string, arg any) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE `+where, arg)
	m, err := scanMarket(row)
	if err != nil {
		return domain.Market{}, wrapErr(op, err)
	}
	return m, nil
}

// List returns markets ordered by key.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY market_key LIMIT $1 OFFSET $2`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, wrapErr("list markets", err)
	}
	defer rows.Close()

	var list []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, wrapErr("list markets", err)
		}
		list = append(list, m)
	}
	return list, wrapErr("list markets", rows.Err())
}

// Count returns the number of catalog rows.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n)
	return n, wrapErr("count markets", err)
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var polyID, ticker, settlement *string
	err := row.Scan(
		&m.MarketKey, &m.EventName, &m.PropositionText,
		&polyID, &ticker, &m.ResolutionDate, &settlement,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.PolymarketID = deref(polyID)
	m.KalshiTicker = deref(ticker)
	m.SettlementSource = deref(settlement)
	return m, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
