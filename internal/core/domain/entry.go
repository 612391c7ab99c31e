package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind names a ledger entry variant. It is also the operation kind an
// idempotency token is scoped to.
type EntryKind string

const (
	EntryPurchase EntryKind = "PURCHASE"
	EntryCharge   EntryKind = "CHARGE"
	EntryTransfer EntryKind = "TRANSFER"
)

// ErrAlreadyAnnulled is returned when annulling an entry that is already annulled.
var ErrAlreadyAnnulled = errors.New("entry already annulled")

// Entry holds the fields shared by every ledger entry. Rows are immutable
// except for Annulled, which flips false -> true exactly once.
type Entry struct {
	ID        int64     `json:"id"`
	Token     *int64    `json:"token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Annulled  bool      `json:"annulled"`
}

// AnnullableAt reports whether the entry may still be annulled at now.
// The window is exclusive: at exactly now == CreatedAt+window the entry is closed.
func (e Entry) AnnullableAt(now time.Time, window time.Duration) bool {
	return !e.Annulled && now.Sub(e.CreatedAt) < window
}

func (e Entry) annul() (Entry, error) {
	if e.Annulled {
		return e, ErrAlreadyAnnulled
	}
	e.Annulled = true
	return e, nil
}

// LedgerEntry is implemented by *Purchase, *Charge and *Transfer only.
type LedgerEntry interface {
	Kind() EntryKind
	ledgerEntry()
}

// Purchase records one product bought by an account at a snapshot price.
type Purchase struct {
	Entry
	AccountID int64           `json:"account_id"`
	ProductID *int64          `json:"product_id"` // nil once the product is deleted
	SoldID    int64           `json:"sold_product_id"`
	Price     decimal.Decimal `json:"price"`
}

func (Purchase) Kind() EntryKind { return EntryPurchase }
func (Purchase) ledgerEntry()    {}

// Annul returns the annulled copy of p.
func (p Purchase) Annul() (Purchase, error) {
	e, err := p.Entry.annul()
	if err != nil {
		return p, err
	}
	p.Entry = e
	return p, nil
}

// Charge records money put on an account.
type Charge struct {
	Entry
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Comment   string          `json:"comment,omitempty"`
}

func (Charge) Kind() EntryKind { return EntryCharge }
func (Charge) ledgerEntry()    {}

func (c Charge) Annul() (Charge, error) {
	e, err := c.Entry.annul()
	if err != nil {
		return c, err
	}
	c.Entry = e
	return c, nil
}

// Transfer records money moved between two accounts.
type Transfer struct {
	Entry
	SenderID   *int64          `json:"sender_id"`
	ReceiverID *int64          `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
}

func (Transfer) Kind() EntryKind { return EntryTransfer }
func (Transfer) ledgerEntry()    {}

func (t Transfer) Annul() (Transfer, error) {
	e, err := t.Entry.annul()
	if err != nil {
		return t, err
	}
	t.Entry = e
	return t, nil
}
