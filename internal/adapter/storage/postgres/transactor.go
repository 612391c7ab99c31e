package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a new database transaction with the given isolation options.
// The ledger always asks for pgx.Serializable.
func (t *Transactor) Begin(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return t.pool.BeginTx(ctx, opts)
}
