package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagegraph/vantage/internal/domain"
)

// SignalStore implements domain.QuoteStore on the market_signals table.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalColumns = `id, ts, platform, event_id, proposition_name, price, side, size, liquidity_depth_usd, bid_ask_spread_pct, volume_24h, confidence, confidence_flag, raw_payload`

// InsertBatch appends quotes in one batch round trip. Duplicate ids are
// ignored so a retried flush cannot double-write.
func (s *SignalStore) InsertBatch(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	const query = `
		INSERT INTO market_signals (
			id, ts, platform, event_id, proposition_name,
			price, side, size, probability_pct,
			liquidity_depth_usd, bid_ask_spread_pct, volume_24h,
			confidence, confidence_flag, raw_payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(query,
			q.ID, q.Timestamp, string(q.Platform), q.EventID, q.PropositionName,
			q.Price.Float(), string(q.Side), q.Size, q.ProbabilityPct(),
			q.LiquidityDepthUSD, q.BidAskSpreadPct, q.Volume24h,
			q.Confidence, nullStr(q.ConfidenceFlag), q.RawPayload,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range quotes {
		if _, err := results.Exec(); err != nil {
			return wrapErr("insert signals", err)
		}
	}
	return nil
}

// LatestPerEvent scans the newest rows and keeps the first occurrence per
// event id, so each entry is that event's most recent quote.
func (s *SignalStore) LatestPerEvent(ctx context.Context, limit int) (map[string]domain.Quote, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM market_signals ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr("latest signals", err)
	}
	defer rows.Close()

	latest := make(map[string]domain.Quote)
	for rows.Next() {
		q, err := scanSignal(rows)
		if err != nil {
			return nil, wrapErr("latest signals", err)
		}
		if _, seen := latest[q.EventID]; !seen {
			latest[q.EventID] = q
		}
	}
	return latest, wrapErr("latest signals", rows.Err())
}

// ListBefore returns quotes older than the cutoff, oldest first.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Quote, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM market_signals WHERE ts < $1 ORDER BY ts ASC LIMIT $2`,
		before, limit)
	if err != nil {
		return nil, wrapErr("list signals before", err)
	}
	defer rows.Close()

	var list []domain.Quote
	for rows.Next() {
		q, err := scanSignal(rows)
		if err != nil {
			return nil, wrapErr("list signals before", err)
		}
		list = append(list, q)
	}
	return list, wrapErr("list signals before", rows.Err())
}

// DeleteBefore removes archived rows. With ids it deletes exactly those rows;
// without, every row older than the cutoff goes.
func (s *SignalStore) DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error) {
	if len(ids) > 0 {
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM market_signals WHERE ts < $1 AND id = ANY($2)`, before, ids)
		return tag.RowsAffected(), wrapErr("delete signals", err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_signals WHERE ts < $1`, before)
	return tag.RowsAffected(), wrapErr("delete signals", err)
}

// Count returns the number of stored quotes.
func (s *SignalStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM market_signals`).Scan(&n)
	return n, wrapErr("count signals", err)
}

func scanSignal(row pgx.Row) (domain.Quote, error) {
	var q domain.Quote
	var platform, side string
	var price float64
	var flag *string
	err := row.Scan(
		&q.ID, &q.Timestamp, &platform, &q.EventID, &q.PropositionName,
		&price, &side, &q.Size,
		&q.LiquidityDepthUSD, &q.BidAskSpreadPct, &q.Volume24h,
		&q.Confidence, &flag, &q.RawPayload,
	)
	if err != nil {
		return domain.Quote{}, err
	}
	q.Platform = domain.Platform(platform)
	q.Side = domain.QuoteSide(side)
	q.Price = domain.Prob(price)
	q.ConfidenceFlag = deref(flag)
	return q, nil
}
