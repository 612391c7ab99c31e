// Package memory is a ledger store held in process memory. Units of work are
// executed one at a time on a private copy of the state, which makes every
// committed history trivially serializable. It backs the memory storage driver
// and the end-to-end tests of the ledger service.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kiosk-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrForeignTx is returned when a repository is handed a transaction it did not begin.
var ErrForeignTx = errors.New("memory: transaction does not belong to this store")

type state struct {
	accounts      map[int64]domain.Account
	accountIdents map[domain.AccountIdentifier]int64
	products      map[int64]domain.Product
	productIdents map[domain.ProductIdentifier]int64
	purchases     []domain.Purchase
	charges       []domain.Charge
	transfers     []domain.Transfer
	tokens        map[domain.EntryKind]map[int64]int64
	counter       int64
	nextAccount   int64
	nextProduct   int64
}

func newState() *state {
	return &state{
		accounts:      make(map[int64]domain.Account),
		accountIdents: make(map[domain.AccountIdentifier]int64),
		products:      make(map[int64]domain.Product),
		productIdents: make(map[domain.ProductIdentifier]int64),
		tokens: map[domain.EntryKind]map[int64]int64{
			domain.EntryPurchase: {},
			domain.EntryCharge:   {},
			domain.EntryTransfer: {},
		},
	}
}

// clone copies everything a unit of work may mutate. Entry slices are copied
// element-wise; their pointer fields are never mutated in place.
func (s *state) clone() *state {
	c := &state{
		accounts:      make(map[int64]domain.Account, len(s.accounts)),
		accountIdents: make(map[domain.AccountIdentifier]int64, len(s.accountIdents)),
		products:      make(map[int64]domain.Product, len(s.products)),
		productIdents: make(map[domain.ProductIdentifier]int64, len(s.productIdents)),
		purchases:     append([]domain.Purchase(nil), s.purchases...),
		charges:       append([]domain.Charge(nil), s.charges...),
		transfers:     append([]domain.Transfer(nil), s.transfers...),
		tokens:        make(map[domain.EntryKind]map[int64]int64, len(s.tokens)),
		counter:       s.counter,
		nextAccount:   s.nextAccount,
		nextProduct:   s.nextProduct,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.accountIdents {
		c.accountIdents[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.productIdents {
		c.productIdents[k] = v
	}
	for kind, m := range s.tokens {
		cm := make(map[int64]int64, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.tokens[kind] = cm
	}
	return c
}

// claimToken records token for kind, failing like the PostgreSQL unique constraint would.
func (s *state) claimToken(kind domain.EntryKind, token *int64, id int64, constraint string) error {
	if token == nil {
		return nil
	}
	if _, taken := s.tokens[kind][*token]; taken {
		return &pgconn.PgError{
			Severity:       "ERROR",
			Code:           "23505",
			Message:        fmt.Sprintf("duplicate key value violates unique constraint %q", constraint),
			ConstraintName: constraint,
		}
	}
	s.tokens[kind][*token] = id
	return nil
}

// Store is the in-memory ledger. It implements ports.DBTransactor; the repositories
// built by its constructors implement the repository ports.
type Store struct {
	slot chan struct{}

	mu        sync.RWMutex
	committed *state
	clock     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		slot:      make(chan struct{}, 1),
		committed: newState(),
		clock:     time.Now,
	}
}

// Begin waits for the single transaction slot, honouring ctx, and returns a
// transaction working on a snapshot of the committed state. Options are accepted
// for interface compatibility; every transaction is serializable.
func (s *Store) Begin(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()

	return &memTx{store: s, work: work}, nil
}

func (s *Store) release() {
	<-s.slot
}

func (s *Store) publish(work *state) {
	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
}

// exclusive takes the transaction slot and the state lock for an administrative
// change, so it cannot be overwritten by a unit of work in flight. It returns the unlock func.
func (s *Store) exclusive() func() {
	s.slot <- struct{}{}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.release()
	}
}

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.committed)
}

// memTx is a unit of work. Only Commit and Rollback are meaningful; the store's
// repositories reach the working state through txState.
type memTx struct {
	pgx.Tx

	store *Store
	work  *state
	done  bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	defer t.store.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.publish(t.work)
	return nil
}

// Rollback discards the working state. Calling it after Commit is a no-op, which
// lets callers defer it unconditionally.
func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.release()
	return nil
}

func txState(tx pgx.Tx) (*state, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.done {
		return nil, ErrForeignTx
	}
	return mt.work, nil
}

// --- Seeding (administrative operations, outside the ledger engine) ---

// CreateAccount adds an account with its stored identifiers.
func (s *Store) CreateAccount(name string, balance decimal.Decimal, idents ...domain.AccountIdentifier) (*domain.Account, error) {
	defer s.exclusive()()

	for _, ident := range idents {
		if !ident.Type.Stored() {
			return nil, fmt.Errorf("memory: identifier type %q cannot be stored", ident.Type)
		}
		if _, taken := s.committed.accountIdents[ident]; taken {
			return nil, fmt.Errorf("memory: identifier %s/%s already registered", ident.Type, ident.Value)
		}
	}

	s.committed.nextAccount++
	now := s.clock()
	acc := domain.Account{
		ID:        s.committed.nextAccount,
		Name:      name,
		Balance:   balance,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.committed.accounts[acc.ID] = acc
	for _, ident := range idents {
		s.committed.accountIdents[ident] = acc.ID
	}
	return &acc, nil
}

// SetAccountEnabled toggles whether the account is shown on the login screen.
func (s *Store) SetAccountEnabled(id int64, enabled bool) error {
	defer s.exclusive()()

	acc, ok := s.committed.accounts[id]
	if !ok {
		return fmt.Errorf("memory: account not found: %d", id)
	}
	acc.Enabled = enabled
	s.committed.accounts[id] = acc
	return nil
}

// CreateProduct adds a product with its stored identifiers.
func (s *Store) CreateProduct(name string, price decimal.Decimal, stock int64, idents ...domain.ProductIdentifier) (*domain.Product, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("memory: negative price %s", price)
	}

	defer s.exclusive()()

	for _, ident := range idents {
		if !ident.Type.Stored() {
			return nil, fmt.Errorf("memory: identifier type %q cannot be stored", ident.Type)
		}
		if _, taken := s.committed.productIdents[ident]; taken {
			return nil, fmt.Errorf("memory: identifier %s/%s already registered", ident.Type, ident.Value)
		}
	}

	s.committed.nextProduct++
	now := s.clock()
	p := domain.Product{
		ID:        s.committed.nextProduct,
		Name:      name,
		Price:     price,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.committed.products[p.ID] = p
	for _, ident := range idents {
		s.committed.productIdents[ident] = p.ID
	}
	return &p, nil
}

// DeleteProduct removes a product. Purchases keep their price and lose the reference.
func (s *Store) DeleteProduct(id int64) error {
	defer s.exclusive()()

	if _, ok := s.committed.products[id]; !ok {
		return fmt.Errorf("memory: product not found: %d", id)
	}
	delete(s.committed.products, id)
	for ident, pid := range s.committed.productIdents {
		if pid == id {
			delete(s.committed.productIdents, ident)
		}
	}
	for i, p := range s.committed.purchases {
		if p.ProductID != nil && *p.ProductID == id {
			s.committed.purchases[i].ProductID = nil
		}
	}
	return nil
}

// HealthCheck implements ports.HealthChecker for the memory driver.
type HealthCheck struct{}

func (HealthCheck) Ping(context.Context) error { return nil }
func (HealthCheck) Name() string               { return "memory" }
