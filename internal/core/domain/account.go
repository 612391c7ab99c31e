package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a member of the kiosk fund. Accounts are soft-disabled, never deleted.
type Account struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Enabled   bool            `json:"enabled"` // shown on the kiosk login screen
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanDebit reports whether amount can be taken without crossing floor.
func (a *Account) CanDebit(amount, floor decimal.Decimal) bool {
	return !a.Balance.Sub(amount).LessThan(floor)
}
