package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagegraph/vantage/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert appends one alert row.
func (s *AlertStore) Insert(ctx context.Context, a domain.ArbitrageAlert) error {
	const query = `
		INSERT INTO arbitrage_alerts (
			id, ts, market_pair, market_key_a, market_key_b,
			probability_a, probability_b, spread_pct, potential_profit_pct, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Timestamp, a.MarketPair, a.MarketKeyA, a.MarketKeyB,
		a.ProbabilityA.Float(), a.ProbabilityB.Float(),
		a.SpreadPct, a.PotentialProfitPct, string(a.Status),
	)
	return wrapErr("insert alert "+a.ID, err)
}

// ListRecent returns the newest alerts first.
func (s *AlertStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, ts, market_pair, market_key_a, market_key_b,
		       probability_a, probability_b, spread_pct, potential_profit_pct, status
		FROM arbitrage_alerts ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr("list alerts", err)
	}
	defer rows.Close()

	var list []domain.ArbitrageAlert
	for rows.Next() {
		var a domain.ArbitrageAlert
		var probA, probB float64
		var status string
		if err := rows.Scan(
			&a.ID, &a.Timestamp, &a.MarketPair, &a.MarketKeyA, &a.MarketKeyB,
			&probA, &probB, &a.SpreadPct, &a.PotentialProfitPct, &status,
		); err != nil {
			return nil, wrapErr("list alerts", err)
		}
		a.ProbabilityA = domain.Prob(probA)
		a.ProbabilityB = domain.Prob(probB)
		a.Status = domain.AlertStatus(status)
		list = append(list, a)
	}
	return list, wrapErr("list alerts", rows.Err())
}

// Count returns the number of stored alerts.
func (s *AlertStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM arbitrage_alerts`).Scan(&n)
	return n, wrapErr("count alerts", err)
}
