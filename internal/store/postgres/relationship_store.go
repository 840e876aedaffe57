package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagegraph/vantage/internal/domain"
)

// RelationshipStore implements domain.RelationshipStore using PostgreSQL.
// Rows are keyed by the canonical (a, b) pair; Upsert enforces the ordering
// before writing.
type RelationshipStore struct {
	pool *pgxpool.Pool
}

// NewRelationshipStore creates a new RelationshipStore.
func NewRelationshipStore(pool *pgxpool.Pool) *RelationshipStore {
	return &RelationshipStore{pool: pool}
}

const relationshipColumns = `id, market_key_a, market_key_b, relationship_type, confidence_score, logic_justification, impact_direction, correlation_strength, logical_layer, vantage_insight, probability_a, probability_b, probability_spread, arbitrage_flag, risk_alert, created_at, updated_at`

// Upsert writes one classified edge, replacing any previous classification of
// the same pair.
func (s *RelationshipStore) Upsert(ctx context.Context, r domain.Relationship) error {
	a, b := domain.CanonicalPair(r.MarketKeyA, r.MarketKeyB)

	const query = `
		INSERT INTO market_relationships (
			id, market_key_a, market_key_b, relationship_type, confidence_score,
			logic_justification, impact_direction, correlation_strength,
			logical_layer, vantage_insight,
			probability_a, probability_b, probability_spread,
			arbitrage_flag, risk_alert, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW()
		)
		ON CONFLICT (market_key_a, market_key_b) DO UPDATE SET
			relationship_type    = EXCLUDED.relationship_type,
			confidence_score     = EXCLUDED.confidence_score,
			logic_justification  = EXCLUDED.logic_justification,
			impact_direction     = EXCLUDED.impact_direction,
			correlation_strength = EXCLUDED.correlation_strength,
			logical_layer        = EXCLUDED.logical_layer,
			vantage_insight      = EXCLUDED.vantage_insight,
			probability_a        = EXCLUDED.probability_a,
			probability_b        = EXCLUDED.probability_b,
			probability_spread   = EXCLUDED.probability_spread,
			arbitrage_flag       = EXCLUDED.arbitrage_flag,
			risk_alert           = EXCLUDED.risk_alert,
			updated_at           = NOW()`

	_, err := s.pool.Exec(ctx, query,
		r.ID, a, b, string(r.Type), r.ConfidenceScore,
		r.LogicJustification, string(r.ImpactDirection), string(r.CorrelationStrength),
		string(r.LogicalLayer), r.VantageInsight,
		probPtr(r.ProbabilityA), probPtr(r.ProbabilityB), r.ProbabilitySpread,
		nullStr(r.ArbitrageFlag), nullStr(r.RiskAlert),
	)
	return wrapErr("upsert relationship "+a+"/"+b, err)
}

// List returns edges ordered by canonical pair.
func (s *RelationshipStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Relationship, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	return s.query(ctx, "list relationships",
		`SELECT `+relationshipColumns+` FROM market_relationships
		 ORDER BY market_key_a, market_key_b LIMIT $1 OFFSET $2`,
		limit, opts.Offset,
	)
}

// ListConnected returns every edge, for graph traversal and rendering.
func (s *RelationshipStore) ListConnected(ctx context.Context) ([]domain.Relationship, error) {
	return s.query(ctx, "list connected relationships",
		`SELECT `+relationshipColumns+` FROM market_relationships
		 ORDER BY market_key_a, market_key_b`,
	)
}

// ListByType returns edges of one relationship type.
func (s *RelationshipStore) ListByType(ctx context.Context, t domain.RelationshipType) ([]domain.Relationship, error) {
	return s.query(ctx, "list relationships by type",
		`SELECT `+relationshipColumns+` FROM market_relationships
		 WHERE relationship_type = $1 ORDER BY market_key_a, market_key_b`,
		string(t),
	)
}

// Count returns the number of stored edges.
func (s *RelationshipStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM market_relationships`).Scan(&n)
	return n, wrapErr("count relationships", err)
}

func (s *RelationshipStore) query(ctx context.Context, op, query string, args ...any) ([]domain.Relationship, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var list []domain.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		list = append(list, r)
	}
	return list, wrapErr(op, rows.Err())
}

func scanRelationship(row pgx.Row) (domain.Relationship, error) {
	var r domain.Relationship
	var relType, impact, strength, layer string
	var probA, probB *float64
	var arbFlag, riskAlert *string
	err := row.Scan(
		&r.ID, &r.MarketKeyA, &r.MarketKeyB, &relType, &r.ConfidenceScore,
		&r.LogicJustification, &impact, &strength, &layer, &r.VantageInsight,
		&probA, &probB, &r.ProbabilitySpread,
		&arbFlag, &riskAlert, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.Relationship{}, err
	}
	r.Type = domain.RelationshipType(relType)
	r.ImpactDirection = domain.ImpactDirection(impact)
	r.CorrelationStrength = domain.CorrelationStrength(strength)
	r.LogicalLayer = domain.LogicalLayer(layer)
	if probA != nil {
		p := domain.Prob(*probA)
		r.ProbabilityA = &p
	}
	if probB != nil {
		p := domain.Prob(*probB)
		r.ProbabilityB = &p
	}
	r.ArbitrageFlag = deref(arbFlag)
	r.RiskAlert = deref(riskAlert)
	return r, nil
}

func probPtr(p *domain.Prob) *float64 {
	if p == nil {
		return nil
	}
	v := p.Float()
	return &v
}
