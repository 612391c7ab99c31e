package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is an item sold at the kiosk. Stock is advisory and may go negative.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
