package ports

import (
	"context"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx run inside the serializable unit of work and back every
// balance decision; the others serve read-only reporting.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByIDInTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error)
	GetByIdentifier(ctx context.Context, tx pgx.Tx, identType domain.AccountIdentType, value string) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, id int64, balance decimal.Decimal) error
}

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error)
	GetByIdentifier(ctx context.Context, tx pgx.Tx, identType domain.ProductIdentType, value string) (*domain.Product, error)
	AdjustStock(ctx context.Context, tx pgx.Tx, id int64, delta int64) error
}

// PurchaseRepository persists purchases. Create fills ID.
// MarkAnnulled only flips rows that are not annulled yet.
type PurchaseRepository interface {
	Create(ctx context.Context, tx pgx.Tx, p *domain.Purchase) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Purchase, error)
	GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Purchase, error)
	MarkAnnulled(ctx context.Context, tx pgx.Tx, id int64) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Purchase, error)
}

// ChargeRepository persists charges.
type ChargeRepository interface {
	Create(ctx context.Context, tx pgx.Tx, c *domain.Charge) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Charge, error)
	GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Charge, error)
	MarkAnnulled(ctx context.Context, tx pgx.Tx, id int64) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Charge, error)
}

// TransferRepository persists transfers. ListByAccount returns transfers the
// account sent or received.
type TransferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transfer) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Transfer, error)
	GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Transfer, error)
	MarkAnnulled(ctx context.Context, tx pgx.Tx, id int64) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Transfer, error)
}

// TokenRepository issues idempotency tokens from the single shared counter.
type TokenRepository interface {
	Next(ctx context.Context, tx pgx.Tx) (int64, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}
