package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"reply_tracker/pkg/apperr"
)

// Common persistence errors
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

const pgUniqueViolation = "23505"

// wrapDBError maps driver errors onto the sentinels above and tags the result
// as a DATABASE_ERROR.
func wrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		err = errors.Join(ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		err = errors.Join(ErrDuplicate, err)
	}
	return apperr.DatabaseError(operation, err)
}

// quoteTable quotes a possibly schema-qualified table name. Names with
// spaces, such as "Live submissions", are kept intact.
func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
