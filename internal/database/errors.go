package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"ms-settlement/internal/domain"
)

// NotFound translates sql.ErrNoRows into the given domain sentinel and wraps
// anything else with the operation name.
func NotFound(err error, sentinel error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return fmt.Errorf("query %s: %w", id, err)
}

// ExpectOneRow turns a zero-row update into domain.ErrConcurrentUpdate, which
// is how a stale version check surfaces.
func ExpectOneRow(res sql.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrConcurrentUpdate, what)
	}
	return nil
}

// IsUniqueViolation recognises unique constraint failures from both
// PostgreSQL (SQLSTATE 23505) and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
