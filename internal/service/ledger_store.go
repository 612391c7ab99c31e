package service

import (
	"context"
	"fmt"

	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerStore applies balance, stock and entry writes inside a unit of work and
// enforces the balance floor on every debit. Every balance it decides on is
// read with a row lock in the same transaction it writes in.
type LedgerStore struct {
	accounts  ports.AccountRepository
	products  ports.ProductRepository
	purchases ports.PurchaseRepository
	charges   ports.ChargeRepository
	transfers ports.TransferRepository
	floor     decimal.Decimal
}

// Repositories groups the persistence ports of the ledger.
type Repositories struct {
	Accounts  ports.AccountRepository
	Products  ports.ProductRepository
	Purchases ports.PurchaseRepository
	Charges   ports.ChargeRepository
	Transfers ports.TransferRepository
	Tokens    ports.TokenRepository
}

// NewLedgerStore creates a LedgerStore enforcing floor.
func NewLedgerStore(repos Repositories, floor decimal.Decimal) *LedgerStore {
	return &LedgerStore{
		accounts:  repos.Accounts,
		products:  repos.Products,
		purchases: repos.Purchases,
		charges:   repos.Charges,
		transfers: repos.Transfers,
		floor:     floor,
	}
}

// Debit takes amount from the account and returns the new balance. A zero
// amount is allowed (free products) and only reads the balance.
func (s *LedgerStore) Debit(ctx context.Context, tx pgx.Tx, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}

	acc, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		return acc.Balance, nil
	}
	if !acc.CanDebit(amount, s.floor) {
		return decimal.Zero, apperror.ErrInsufficientFunds()
	}

	balance := acc.Balance.Sub(amount)
	if err := s.accounts.UpdateBalance(ctx, tx, accountID, balance); err != nil {
		return decimal.Zero, internal("update balance", err)
	}
	return balance, nil
}

// Credit adds a positive amount to the account and returns the new balance.
func (s *LedgerStore) Credit(ctx context.Context, tx pgx.Tx, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}

	acc, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := acc.Balance.Add(amount)
	if err := s.accounts.UpdateBalance(ctx, tx, accountID, balance); err != nil {
		return decimal.Zero, internal("update balance", err)
	}
	return balance, nil
}

// AdjustStock moves product stock by delta. Stock is advisory and may go negative.
func (s *LedgerStore) AdjustStock(ctx context.Context, tx pgx.Tx, productID int64, delta int64) error {
	if err := s.products.AdjustStock(ctx, tx, productID, delta); err != nil {
		return internal("adjust stock", err)
	}
	return nil
}

// Append persists a new entry and returns its id.
func (s *LedgerStore) Append(ctx context.Context, tx pgx.Tx, entry domain.LedgerEntry) (int64, error) {
	var err error
	var id int64
	switch e := entry.(type) {
	case *domain.Purchase:
		err = s.purchases.Create(ctx, tx, e)
		id = e.ID
	case *domain.Charge:
		err = s.charges.Create(ctx, tx, e)
		id = e.ID
	case *domain.Transfer:
		err = s.transfers.Create(ctx, tx, e)
		id = e.ID
	default:
		return 0, apperror.InternalError(fmt.Errorf("append: unsupported entry %T", entry))
	}
	if err != nil {
		// Classified by RetryPolicy.Run; the guard looks for a token conflict underneath.
		return 0, fmt.Errorf("append %s: %w", entry.Kind(), err)
	}
	return id, nil
}

// MarkAnnulled flips the annulled flag of a stored entry.
func (s *LedgerStore) MarkAnnulled(ctx context.Context, tx pgx.Tx, kind domain.EntryKind, id int64) error {
	var err error
	switch kind {
	case domain.EntryPurchase:
		err = s.purchases.MarkAnnulled(ctx, tx, id)
	case domain.EntryCharge:
		err = s.charges.MarkAnnulled(ctx, tx, id)
	case domain.EntryTransfer:
		err = s.transfers.MarkAnnulled(ctx, tx, id)
	default:
		err = fmt.Errorf("unknown entry kind %q", kind)
	}
	if err != nil {
		return internal("mark annulled", err)
	}
	return nil
}

// Balance locks the account and returns its balance.
func (s *LedgerStore) Balance(ctx context.Context, tx pgx.Tx, accountID int64) (decimal.Decimal, error) {
	acc, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

// LockAccounts locks both parties of a transfer in ascending id order, so two
// opposite transfers between the same pair cannot deadlock.
func (s *LedgerStore) LockAccounts(ctx context.Context, tx pgx.Tx, a, b int64) error {
	if a > b {
		a, b = b, a
	}
	if _, err := s.lockAccount(ctx, tx, a); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	_, err := s.lockAccount(ctx, tx, b)
	return err
}

func (s *LedgerStore) lockAccount(ctx context.Context, tx pgx.Tx, accountID int64) (*domain.Account, error) {
	acc, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, internal("lock account", err)
	}
	if acc == nil {
		return nil, apperror.ErrNotFound("Account")
	}
	return acc, nil
}
