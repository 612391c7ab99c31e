package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TokenRepo implements ports.TokenRepository on the single-row idempotency_counter table.
type TokenRepo struct{}

func NewTokenRepo() *TokenRepo {
	return &TokenRepo{}
}

// Next increments the counter inside tx and returns the new value.
func (r *TokenRepo) Next(ctx context.Context, tx pgx.Tx) (int64, error) {
	query := `UPDATE idempotency_counter SET value = value + 1 WHERE id = 1 RETURNING value`

	var token int64
	if err := tx.QueryRow(ctx, query).Scan(&token); err != nil {
		return 0, fmt.Errorf("next idempotency token: %w", err)
	}
	return token, nil
}
