package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventAction tells whether an entry was created or annulled.
type EventAction string

const (
	ActionCreated  EventAction = "CREATED"
	ActionAnnulled EventAction = "ANNULLED"
)

// BalanceSnapshot is an account balance right after the mutation committed.
type BalanceSnapshot struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// LedgerEvent describes a committed mutation. It is built once and passed by value.
type LedgerEvent struct {
	Kind       EntryKind         `json:"kind"`
	Action     EventAction       `json:"action"`
	EntryID    int64             `json:"entry_id"`
	AccountID  *int64            `json:"account_id,omitempty"`
	ProductID  *int64            `json:"product_id,omitempty"`
	SenderID   *int64            `json:"sender_id,omitempty"`
	ReceiverID *int64            `json:"receiver_id,omitempty"`
	Amount     decimal.Decimal   `json:"amount"`
	Comment    string            `json:"comment,omitempty"`
	Annulled   bool              `json:"annulled"`
	Balances   []BalanceSnapshot `json:"balances"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewPurchaseEvent builds the event for a purchase and the buyer's resulting balance.
func NewPurchaseEvent(action EventAction, p Purchase, balance decimal.Decimal, at time.Time) LedgerEvent {
	accountID := p.AccountID
	return LedgerEvent{
		Kind:       EntryPurchase,
		Action:     action,
		EntryID:    p.ID,
		AccountID:  &accountID,
		ProductID:  copyID(p.ProductID),
		Amount:     p.Price,
		Annulled:   p.Annulled,
		Balances:   []BalanceSnapshot{{AccountID: accountID, Balance: balance}},
		OccurredAt: at,
	}
}

func NewChargeEvent(action EventAction, c Charge, balance decimal.Decimal, at time.Time) LedgerEvent {
	accountID := c.AccountID
	return LedgerEvent{
		Kind:       EntryCharge,
		Action:     action,
		EntryID:    c.ID,
		AccountID:  &accountID,
		Amount:     c.Amount,
		Comment:    c.Comment,
		Annulled:   c.Annulled,
		Balances:   []BalanceSnapshot{{AccountID: accountID, Balance: balance}},
		OccurredAt: at,
	}
}

// NewTransferEvent carries both resulting balances, sender first.
func NewTransferEvent(action EventAction, t Transfer, sender, receiver BalanceSnapshot, at time.Time) LedgerEvent {
	return LedgerEvent{
		Kind:       EntryTransfer,
		Action:     action,
		EntryID:    t.ID,
		SenderID:   copyID(t.SenderID),
		ReceiverID: copyID(t.ReceiverID),
		Amount:     t.Amount,
		Annulled:   t.Annulled,
		Balances:   []BalanceSnapshot{sender, receiver},
		OccurredAt: at,
	}
}

// BalanceOf returns the resulting balance of accountID, if the event carries it.
func (e LedgerEvent) BalanceOf(accountID int64) (decimal.Decimal, bool) {
	for _, b := range e.Balances {
		if b.AccountID == accountID {
			return b.Balance, true
		}
	}
	return decimal.Zero, false
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
