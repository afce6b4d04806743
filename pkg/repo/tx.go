package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the subset of pgx.Tx the repositories rely on. Both pgx.Tx and
// *pgxpool.Pool satisfy it, so read-only queries may run outside an explicit
// transaction.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Transactor runs a unit of work inside a single transaction. Services receive
// it as an explicit dependency so tests can substitute an in-memory
// implementation.
//
// The contract: the callback either commits as a whole or leaves no trace, and
// reads issued through the transaction see a snapshot consistent with its
// writes. Implementations joining an already-open transaction run the callback
// in place.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
