package ports

import (
	"context"
	"database/sql"
)

// Database is the parameterized-query surface SQL actions need.
// *sql.DB satisfies it.
type Database interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
