package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagegraph/vantage/internal/domain"
)

// ScenarioStore implements domain.ScenarioStore using PostgreSQL. The chain,
// node and edge collections are stored as JSONB documents.
type ScenarioStore struct {
	pool *pgxpool.Pool
}

// NewScenarioStore creates a new ScenarioStore.
func NewScenarioStore(pool *pgxpool.Pool) *ScenarioStore {
	return &ScenarioStore{pool: pool}
}

// Insert creates the report row; the scenario engine inserts it in the
// processing state.
func (s *ScenarioStore) Insert(ctx context.Context, r domain.ScenarioReport) error {
	chain, nodes, edges, err := marshalReportDocs(r)
	if err != nil {
		return fmt.Errorf("postgres: insert scenario %s: %w", r.ID, err)
	}

	const query = `
		INSERT INTO scenario_reports (
			id, query, status, trigger_market, direction,
			causal_chain, affected_nodes, affected_edges,
			narrative, error, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.Query, string(r.Status), r.TriggerMarket, string(r.Direction),
		chain, nodes, edges, r.Narrative, r.Error, r.CreatedAt, r.CompletedAt,
	)
	return wrapErr("insert scenario "+r.ID, err)
}

// Update rewrites the mutable fields as the report moves through its
// lifecycle.
func (s *ScenarioStore) Update(ctx context.Context, r domain.ScenarioReport) error {
	chain, nodes, edges, err := marshalReportDocs(r)
	if err != nil {
		return fmt.Errorf("postgres: update scenario %s: %w", r.ID, err)
	}

	const query = `
		UPDATE scenario_reports SET
			status = $2, trigger_market = $3, direction = $4,
			causal_chain = $5, affected_nodes = $6, affected_edges = $7,
			narrative = $8, error = $9, completed_at = $10
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Status), r.TriggerMarket, string(r.Direction),
		chain, nodes, edges, r.Narrative, r.Error, r.CompletedAt,
	)
	if err != nil {
		return wrapErr("update scenario "+r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update scenario %s: %w", r.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns one report.
func (s *ScenarioStore) GetByID(ctx context.Context, id string) (domain.ScenarioReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, query, status, trigger_market, direction,
		       causal_chain, affected_nodes, affected_edges,
		       narrative, error, created_at, completed_at
		FROM scenario_reports WHERE id = $1`, id)
	r, err := scanScenario(row)
	if err != nil {
		return domain.ScenarioReport{}, wrapErr("get scenario "+id, err)
	}
	return r, nil
}

// ListRecent returns the newest reports first.
func (s *ScenarioStore) ListRecent(ctx context.Context, limit int) ([]domain.ScenarioReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, query, status, trigger_market, direction,
		       causal_chain, affected_nodes, affected_edges,
		       narrative, error, created_at, completed_at
		FROM scenario_reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr("list scenarios", err)
	}
	defer rows.Close()

	var list []domain.ScenarioReport
	for rows.Next() {
		r, err := scanScenario(rows)
		if err != nil {
			return nil, wrapErr("list scenarios", err)
		}
		list = append(list, r)
	}
	return list, wrapErr("list scenarios", rows.Err())
}

func marshalReportDocs(r domain.ScenarioReport) (chain, nodes, edges []byte, err error) {
	if chain, err = json.Marshal(emptySlice(r.CausalChain)); err != nil {
		return nil, nil, nil, err
	}
	if nodes, err = json.Marshal(emptySlice(r.AffectedNodes)); err != nil {
		return nil, nil, nil, err
	}
	if edges, err = json.Marshal(emptySlice(r.AffectedEdges)); err != nil {
		return nil, nil, nil, err
	}
	return chain, nodes, edges, nil
}

// emptySlice keeps JSONB documents as [] rather than null.
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanScenario(row pgx.Row) (domain.ScenarioReport, error) {
	var r domain.ScenarioReport
	var status, direction string
	var chain, nodes, edges []byte
	err := row.Scan(
		&r.ID, &r.Query, &status, &r.TriggerMarket, &direction,
		&chain, &nodes, &edges, &r.Narrative, &r.Error,
		&r.CreatedAt, &r.CompletedAt,
	)
	if err != nil {
		return domain.ScenarioReport{}, err
	}
	r.Status = domain.ReportStatus(status)
	r.Direction = domain.Direction(direction)
	if err := json.Unmarshal(chain, &r.CausalChain); err != nil {
		return domain.ScenarioReport{}, fmt.Errorf("decode causal_chain: %w", err)
	}
	if err := json.Unmarshal(nodes, &r.AffectedNodes); err != nil {
		return domain.ScenarioReport{}, fmt.Errorf("decode affected_nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &r.AffectedEdges); err != nil {
		return domain.ScenarioReport{}, fmt.Errorf("decode affected_edges: %w", err)
	}
	return r, nil
}
