package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the ledger reacts to.
const (
	sqlStateUndefinedTable = "42P01"
)

// isUndefinedTable reports whether err is Postgres rejecting a query on a
// table that does not exist yet, as happens before EnsureSchema has run.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUndefinedTable
}
