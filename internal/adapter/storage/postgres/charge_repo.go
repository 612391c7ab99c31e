package postgres

import (
	"context"
	"errors"
	"fmt"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const chargeColumns = `id, token, account_id, amount, comment, annulled, created_at`

// ChargeRepo implements ports.ChargeRepository.
type ChargeRepo struct {
	pool Pool
}

// NewChargeRepo creates a new ChargeRepo.
func NewChargeRepo(pool Pool) *ChargeRepo {
	return &ChargeRepo{pool: pool}
}

func scanCharge(row pgx.Row) (*domain.Charge, error) {
	c := &domain.Charge{}
	err := row.Scan(&c.ID, &c.Token, &c.AccountID, &c.Amount, &c.Comment, &c.Annulled, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts the charge and sets its generated id.
func (r *ChargeRepo) Create(ctx context.Context, tx pgx.Tx, c *domain.Charge) error {
	query := `INSERT INTO charges (token, account_id, amount, comment, annulled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	err := tx.QueryRow(ctx, query,
		c.Token, c.AccountID, c.Amount, c.Comment, c.Annulled, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert charge: %w", err)
	}
	return nil
}

func (r *ChargeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE id = $1 FOR UPDATE`

	c, err := scanCharge(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get charge for update: %w", err)
	}
	return c, nil
}

func (r *ChargeRepo) GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges WHERE token = $1`

	c, err := scanCharge(tx.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get charge by token: %w", err)
	}
	return c, nil
}

func (r *ChargeRepo) MarkAnnulled(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `UPDATE charges SET annulled = TRUE WHERE id = $1 AND annulled = FALSE`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("annul charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("charge %d not found or already annulled", id)
	}
	return nil
}

func (r *ChargeRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Charge, error) {
	query := `SELECT ` + chargeColumns + ` FROM charges
		WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	var charges []domain.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		charges = append(charges, *c)
	}
	return charges, rows.Err()
}
