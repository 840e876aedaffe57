package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vantagegraph/vantage/internal/domain"
)

// Postgres error codes the stores translate into domain sentinels.
const (
	codeUndefinedTable  = "42P01"
	codeUniqueViolation = "23505"
)

// wrapErr maps driver errors onto domain sentinels so callers can degrade on
// a missing schema without importing pgx.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: %s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable:
			return fmt.Errorf("postgres: %s: table missing: %w", op, domain.ErrPersistenceUnavailable)
		case codeUniqueViolation:
			return fmt.Errorf("postgres: %s: %w", op, domain.ErrAlreadyExists)
		}
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
