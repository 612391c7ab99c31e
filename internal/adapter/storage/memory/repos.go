package memory

import (
	"context"
	"fmt"
	"sort"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct{ store *Store }

func NewAccountRepo(s *Store) *AccountRepo { return &AccountRepo{store: s} }

func (r *AccountRepo) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	var out *domain.Account
	r.store.read(func(st *state) {
		if a, ok := st.accounts[id]; ok {
			out = &a
		}
	})
	return out, nil
}

func (r *AccountRepo) GetByIDInTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	return r.GetByIDForUpdate(ctx, tx, id)
}

func (r *AccountRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	a, ok := st.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *AccountRepo) GetByIdentifier(_ context.Context, tx pgx.Tx, identType domain.AccountIdentType, value string) (*domain.Account, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	id, ok := st.accountIdents[domain.AccountIdentifier{Type: identType, Value: value}]
	if !ok {
		return nil, nil
	}
	a, ok := st.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *AccountRepo) UpdateBalance(_ context.Context, tx pgx.Tx, id int64, balance decimal.Decimal) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	a, ok := st.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %d", id)
	}
	a.Balance = balance
	a.UpdatedAt = r.store.clock()
	st.accounts[id] = a
	return nil
}

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct{ store *Store }

func NewProductRepo(s *Store) *ProductRepo { return &ProductRepo{store: s} }

func (r *ProductRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Product, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	p, ok := st.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ProductRepo) GetByIdentifier(_ context.Context, tx pgx.Tx, identType domain.ProductIdentType, value string) (*domain.Product, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	id, ok := st.productIdents[domain.ProductIdentifier{Type: identType, Value: value}]
	if !ok {
		return nil, nil
	}
	p, ok := st.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ProductRepo) AdjustStock(_ context.Context, tx pgx.Tx, id int64, delta int64) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	p, ok := st.products[id]
	if !ok {
		return fmt.Errorf("product not found: %d", id)
	}
	p.Stock += delta
	p.UpdatedAt = r.store.clock()
	st.products[id] = p
	return nil
}

// GetProduct returns the committed product, for tests and diagnostics.
func (s *Store) GetProduct(id int64) (*domain.Product, bool) {
	var out *domain.Product
	s.read(func(st *state) {
		if p, ok := st.products[id]; ok {
			out = &p
		}
	})
	return out, out != nil
}

// PurchaseRepo implements ports.PurchaseRepository. Entry ids are 1-based slice positions.
type PurchaseRepo struct{ store *Store }

func NewPurchaseRepo(s *Store) *PurchaseRepo { return &PurchaseRepo{store: s} }

func (r *PurchaseRepo) Create(_ context.Context, tx pgx.Tx, p *domain.Purchase) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if _, ok := st.accounts[p.AccountID]; !ok {
		return fmt.Errorf("insert purchase: account %d does not exist", p.AccountID)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("insert purchase: negative price %s", p.Price)
	}
	id := int64(len(st.purchases) + 1)
	if err := st.claimToken(domain.EntryPurchase, p.Token, id, "purchases_token_key"); err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	p.ID = id
	st.purchases = append(st.purchases, *p)
	return nil
}

func (r *PurchaseRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Purchase, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	if id < 1 || id > int64(len(st.purchases)) {
		return nil, nil
	}
	p := st.purchases[id-1]
	return &p, nil
}

func (r *PurchaseRepo) GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Purchase, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	id, ok := st.tokens[domain.EntryPurchase][token]
	if !ok {
		return nil, nil
	}
	return r.GetByIDForUpdate(ctx, tx, id)
}

func (r *PurchaseRepo) MarkAnnulled(_ context.Context, tx pgx.Tx, id int64) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if id < 1 || id > int64(len(st.purchases)) || st.purchases[id-1].Annulled {
		return fmt.Errorf("purchase %d not found or already annulled", id)
	}
	st.purchases[id-1].Annulled = true
	return nil
}

func (r *PurchaseRepo) ListByAccount(_ context.Context, accountID int64, limit int) ([]domain.Purchase, error) {
	var out []domain.Purchase
	r.store.read(func(st *state) {
		for _, p := range st.purchases {
			if p.AccountID == accountID {
				out = append(out, p)
			}
		}
	})
	sortNewestFirst(out, func(p domain.Purchase) domain.Entry { return p.Entry })
	return capList(out, limit), nil
}

// ChargeRepo implements ports.ChargeRepository.
type ChargeRepo struct{ store *Store }

func NewChargeRepo(s *Store) *ChargeRepo { return &ChargeRepo{store: s} }

func (r *ChargeRepo) Create(_ context.Context, tx pgx.Tx, c *domain.Charge) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if _, ok := st.accounts[c.AccountID]; !ok {
		return fmt.Errorf("insert charge: account %d does not exist", c.AccountID)
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("insert charge: non-positive amount %s", c.Amount)
	}
	id := int64(len(st.charges) + 1)
	if err := st.claimToken(domain.EntryCharge, c.Token, id, "charges_token_key"); err != nil {
		return fmt.Errorf("insert charge: %w", err)
	}
	c.ID = id
	st.charges = append(st.charges, *c)
	return nil
}

func (r *ChargeRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Charge, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	if id < 1 || id > int64(len(st.charges)) {
		return nil, nil
	}
	c := st.charges[id-1]
	return &c, nil
}

func (r *ChargeRepo) GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Charge, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	id, ok := st.tokens[domain.EntryCharge][token]
	if !ok {
		return nil, nil
	}
	return r.GetByIDForUpdate(ctx, tx, id)
}

func (r *ChargeRepo) MarkAnnulled(_ context.Context, tx pgx.Tx, id int64) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if id < 1 || id > int64(len(st.charges)) || st.charges[id-1].Annulled {
		return fmt.Errorf("charge %d not found or already annulled", id)
	}
	st.charges[id-1].Annulled = true
	return nil
}

func (r *ChargeRepo) ListByAccount(_ context.Context, accountID int64, limit int) ([]domain.Charge, error) {
	var out []domain.Charge
	r.store.read(func(st *state) {
		for _, c := range st.charges {
			if c.AccountID == accountID {
				out = append(out, c)
			}
		}
	})
	sortNewestFirst(out, func(c domain.Charge) domain.Entry { return c.Entry })
	return capList(out, limit), nil
}

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct{ store *Store }

func NewTransferRepo(s *Store) *TransferRepo { return &TransferRepo{store: s} }

func (r *TransferRepo) Create(_ context.Context, tx pgx.Tx, t *domain.Transfer) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if t.SenderID != nil && t.ReceiverID != nil && *t.SenderID == *t.ReceiverID {
		return fmt.Errorf("insert transfer: violates check constraint \"transfers_distinct_parties\"")
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("insert transfer: non-positive amount %s", t.Amount)
	}
	id := int64(len(st.transfers) + 1)
	if err := st.claimToken(domain.EntryTransfer, t.Token, id, "transfers_token_key"); err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	t.ID = id
	st.transfers = append(st.transfers, *t)
	return nil
}

func (r *TransferRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Transfer, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	if id < 1 || id > int64(len(st.transfers)) {
		return nil, nil
	}
	t := st.transfers[id-1]
	return &t, nil
}

func (r *TransferRepo) GetByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.Transfer, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	id, ok := st.tokens[domain.EntryTransfer][token]
	if !ok {
		return nil, nil
	}
	return r.GetByIDForUpdate(ctx, tx, id)
}

func (r *TransferRepo) MarkAnnulled(_ context.Context, tx pgx.Tx, id int64) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if id < 1 || id > int64(len(st.transfers)) || st.transfers[id-1].Annulled {
		return fmt.Errorf("transfer %d not found or already annulled", id)
	}
	st.transfers[id-1].Annulled = true
	return nil
}

func (r *TransferRepo) ListByAccount(_ context.Context, accountID int64, limit int) ([]domain.Transfer, error) {
	var out []domain.Transfer
	r.store.read(func(st *state) {
		for _, t := range st.transfers {
			if (t.SenderID != nil && *t.SenderID == accountID) || (t.ReceiverID != nil && *t.ReceiverID == accountID) {
				out = append(out, t)
			}
		}
	})
	sortNewestFirst(out, func(t domain.Transfer) domain.Entry { return t.Entry })
	return capList(out, limit), nil
}

// TokenRepo implements ports.TokenRepository.
type TokenRepo struct{}

func NewTokenRepo() *TokenRepo { return &TokenRepo{} }

func (r *TokenRepo) Next(_ context.Context, tx pgx.Tx) (int64, error) {
	st, err := txState(tx)
	if err != nil {
		return 0, err
	}
	st.counter++
	return st.counter, nil
}

func sortNewestFirst[T any](list []T, entry func(T) domain.Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := entry(list[i]), entry(list[j])
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func capList[T any](list []T, limit int) []T {
	if limit >= 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}
