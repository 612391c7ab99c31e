package service

import (
	"context"
	"fmt"

	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// IdentifierResolver turns (type, value) pairs from a terminal into accounts and
// products inside the caller's unit of work.
type IdentifierResolver struct {
	accounts ports.AccountRepository
	products ports.ProductRepository
	unknown  ports.UnknownIdentifierLog
	clock    ports.Clock
	log      zerolog.Logger
}

// NewIdentifierResolver creates an IdentifierResolver. unknown may be nil.
func NewIdentifierResolver(
	accounts ports.AccountRepository,
	products ports.ProductRepository,
	unknown ports.UnknownIdentifierLog,
	clock ports.Clock,
	log zerolog.Logger,
) *IdentifierResolver {
	return &IdentifierResolver{
		accounts: accounts,
		products: products,
		unknown:  unknown,
		clock:    clock,
		log:      log,
	}
}

// Account resolves an account identifier. Unresolved card and badge scans are
// recorded for diagnosis; that record never changes the outcome.
func (r *IdentifierResolver) Account(ctx context.Context, tx pgx.Tx, ident domain.AccountIdentifier) (*domain.Account, error) {
	if !ident.Type.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown account identifier type %q", ident.Type))
	}

	var (
		acc *domain.Account
		err error
	)
	if ident.Type == domain.AccountIdentPrimaryKey {
		id, ok := ident.PrimaryKey()
		if !ok {
			return nil, apperror.ErrNotFound("Account")
		}
		acc, err = r.accounts.GetByIDInTx(ctx, tx, id)
	} else {
		acc, err = r.accounts.GetByIdentifier(ctx, tx, ident.Type, ident.Value)
	}
	if err != nil {
		return nil, internal("resolve account", err)
	}
	if acc == nil {
		r.recordUnknown(ctx, ident)
		return nil, apperror.ErrNotFound("Account")
	}
	return acc, nil
}

// Product resolves a product identifier.
func (r *IdentifierResolver) Product(ctx context.Context, tx pgx.Tx, ident domain.ProductIdentifier) (*domain.Product, error) {
	if !ident.Type.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown product identifier type %q", ident.Type))
	}

	var (
		p   *domain.Product
		err error
	)
	if ident.Type == domain.ProductIdentPrimaryKey {
		id, ok := ident.PrimaryKey()
		if !ok {
			return nil, apperror.ErrNotFound("Product")
		}
		p, err = r.products.GetByIDForUpdate(ctx, tx, id)
	} else {
		p, err = r.products.GetByIdentifier(ctx, tx, ident.Type, ident.Value)
	}
	if err != nil {
		return nil, internal("resolve product", err)
	}
	if p == nil {
		return nil, apperror.ErrNotFound("Product")
	}
	return p, nil
}

func (r *IdentifierResolver) recordUnknown(ctx context.Context, ident domain.AccountIdentifier) {
	if r.unknown == nil || !ident.Type.Trackable() {
		return
	}
	entry := domain.UnknownIdentifier{Type: ident.Type, Value: ident.Value, SeenAt: r.clock.Now()}
	if err := r.unknown.Record(ctx, entry); err != nil {
		r.log.Warn().Err(err).
			Str("ident_type", string(ident.Type)).
			Msg("failed to record unknown identifier")
	}
}
