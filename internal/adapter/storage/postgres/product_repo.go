package postgres

import (
	"context"
	"errors"
	"fmt"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const productColumns = `p.id, p.name, p.price, p.stock, p.created_at, p.updated_at`

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct {
	pool Pool
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(pool Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	p := &domain.Product{}
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByIDForUpdate fetches a product by id and locks the row.
func (r *ProductRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1 FOR UPDATE`

	p, err := scanProduct(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product for update: %w", err)
	}
	return p, nil
}

// GetByIdentifier resolves a stored (type, value) identifier to its product.
func (r *ProductRepo) GetByIdentifier(ctx context.Context, tx pgx.Tx, identType domain.ProductIdentType, value string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products p JOIN product_identifiers i ON i.product_id = p.id
		WHERE i.ident_type = $1 AND i.ident = $2`

	p, err := scanProduct(tx.QueryRow(ctx, query, string(identType), value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product by identifier: %w", err)
	}
	return p, nil
}

// AdjustStock adds delta to the stock counter. Stock may go negative.
func (r *ProductRepo) AdjustStock(ctx context.Context, tx pgx.Tx, id int64, delta int64) error {
	query := `UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("adjust product stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product not found: %d", id)
	}
	return nil
}
