package postgres

import (
	"context"
	"errors"
	"fmt"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const purchaseColumns = `id, token, account_id, product_id, sold_id, price, annulled, created_at`

// PurchaseRepo implements ports.PurchaseRepository.
type PurchaseRepo struct {
	pool Pool
}

// NewPurchaseRepo creates a new PurchaseRepo.
func NewPurchaseRepo(pool Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	p := &domain.Purchase{}
	err := row.Scan(&p.ID, &p.Token, &p.AccountID, &p.ProductID, &p.SoldID, &p.Price, &p.Annulled, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts the purchase and sets its generated id.
// A reused token fails with unique_violation on purchases_token_key.
func (r *PurchaseRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Purchase) error {
	query := `INSERT INTO purchases (token, account_id, product_id, sold_id, price, annulled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := tx.QueryRow(ctx, query,
		p.Token, p.AccountID, p.ProductID, p.SoldID, p.Price, p.Annulled, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// GetByIDForUpdate fetches a purchase and locks it for annulment.
func (r *PurchaseRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1 FOR UPDATE`

	p, err := scanPurchase(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get purchase for update: %w", err)
	}
	return p, nil
}

// GetByToken fetches the purchase committed under token, if any.
func (r *PurchaseRepo) GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE token = $1`

	p, err := scanPurchase(tx.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get purchase by token: %w", err)
	}
	return p, nil
}

// MarkAnnulled flips the annulled flag. Rows already annulled are left alone and reported.
func (r *PurchaseRepo) MarkAnnulled(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `UPDATE purchases SET annulled = TRUE WHERE id = $1 AND annulled = FALSE`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("annul purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("purchase %d not found or already annulled", id)
	}
	return nil
}

// ListByAccount returns the newest purchases of an account first.
func (r *PurchaseRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases
		WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}
