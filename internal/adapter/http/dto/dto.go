package dto

import (
	"time"

	"kiosk-ledger/internal/core/domain"
)

// TokenResponse carries a fresh idempotency token.
type TokenResponse struct {
	Token int64 `json:"token"`
}

// PurchaseRequest is the request body for buying one product.
type PurchaseRequest struct {
	AccountID   int64  `json:"account_id" binding:"required,gt=0"`
	ProductType string `json:"product_type" binding:"required,product_ident_type"`
	Product     string `json:"product" binding:"required,max=128"`
	Token       *int64 `json:"token,omitempty" binding:"omitempty,gt=0"`
}

// ChargeRequest is the request body for a top-up. Amount is a decimal string.
type ChargeRequest struct {
	AccountID int64  `json:"account_id" binding:"required,gt=0"`
	Amount    string `json:"amount" binding:"required,money"`
	Comment   string `json:"comment" binding:"max=255"`
	Token     *int64 `json:"token,omitempty" binding:"omitempty,gt=0"`
}

// TransferRequest is the request body for moving money to another account.
type TransferRequest struct {
	SenderID     int64  `json:"sender_id" binding:"required,gt=0"`
	ReceiverType string `json:"receiver_type" binding:"required,account_ident_type"`
	Receiver     string `json:"receiver" binding:"required,max=128"`
	Amount       string `json:"amount" binding:"required,money"`
	Token        *int64 `json:"token,omitempty" binding:"omitempty,gt=0"`
}

// ResolveQuery is the query string of GET /accounts/resolve.
type ResolveQuery struct {
	Type           string `form:"type" binding:"required,account_ident_type"`
	Value          string `form:"value" binding:"required,max=128"`
	RequireEnabled bool   `form:"require_enabled"`
}

// PurchaseResponse is returned by a purchase, first time or on replay.
type PurchaseResponse struct {
	PurchaseID int64  `json:"purchase_id"`
	ProductID  *int64 `json:"product_id"`
}

type ChargeResponse struct {
	ChargeID int64 `json:"charge_id"`
}

type TransferResponse struct {
	TransferID int64 `json:"transfer_id"`
	ReceiverID int64 `json:"receiver_id"`
}

// AccountResponse is an account as shown on the kiosk.
type AccountResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
	Enabled bool   `json:"enabled"`
}

type PurchaseItem struct {
	ID         int64  `json:"id"`
	ProductID  *int64 `json:"product_id"`
	Price      string `json:"price"`
	CreatedAt  string `json:"created_at"`
	Annulled   bool   `json:"annulled"`
	Annullable bool   `json:"annullable"`
}

type ChargeItem struct {
	ID         int64  `json:"id"`
	Amount     string `json:"amount"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at"`
	Annulled   bool   `json:"annulled"`
	Annullable bool   `json:"annullable"`
}

type TransferItem struct {
	ID         int64  `json:"id"`
	SenderID   *int64 `json:"sender_id"`
	ReceiverID *int64 `json:"receiver_id"`
	Amount     string `json:"amount"`
	Incoming   bool   `json:"incoming"`
	CreatedAt  string `json:"created_at"`
	Annulled   bool   `json:"annulled"`
	Annullable bool   `json:"annullable"`
}

// HistoryResponse lists the recent entries of one account.
type HistoryResponse struct {
	Balance   string         `json:"balance"`
	Purchases []PurchaseItem `json:"purchases"`
	Charges   []ChargeItem   `json:"charges"`
	Transfers []TransferItem `json:"transfers"`
}

type UnknownIdentifierItem struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	SeenAt string `json:"seen_at"`
}

// ---- Converters ----

func NewPurchaseResponse(r *domain.PurchaseResult) PurchaseResponse {
	resp := PurchaseResponse{PurchaseID: r.PurchaseID}
	if r.ProductID != 0 {
		id := r.ProductID
		resp.ProductID = &id
	}
	return resp
}

func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:      a.ID,
		Name:    a.Name,
		Balance: domain.FormatAmount(a.Balance),
		Enabled: a.Enabled,
	}
}

func NewPurchaseItems(records []domain.PurchaseRecord) []PurchaseItem {
	items := make([]PurchaseItem, 0, len(records))
	for _, r := range records {
		items = append(items, PurchaseItem{
			ID:         r.ID,
			ProductID:  r.ProductID,
			Price:      domain.FormatAmount(r.Price),
			CreatedAt:  formatTime(r.CreatedAt),
			Annulled:   r.Annulled,
			Annullable: r.Annullable,
		})
	}
	return items
}

func NewChargeItems(records []domain.ChargeRecord) []ChargeItem {
	items := make([]ChargeItem, 0, len(records))
	for _, r := range records {
		items = append(items, ChargeItem{
			ID:         r.ID,
			Amount:     domain.FormatAmount(r.Amount),
			Comment:    r.Comment,
			CreatedAt:  formatTime(r.CreatedAt),
			Annulled:   r.Annulled,
			Annullable: r.Annullable,
		})
	}
	return items
}

func NewTransferItems(records []domain.TransferRecord) []TransferItem {
	items := make([]TransferItem, 0, len(records))
	for _, r := range records {
		items = append(items, TransferItem{
			ID:         r.ID,
			SenderID:   r.SenderID,
			ReceiverID: r.ReceiverID,
			Amount:     domain.FormatAmount(r.Amount),
			Incoming:   r.Incoming,
			CreatedAt:  formatTime(r.CreatedAt),
			Annulled:   r.Annulled,
			Annullable: r.Annullable,
		})
	}
	return items
}

func NewUnknownIdentifierItems(idents []domain.UnknownIdentifier) []UnknownIdentifierItem {
	items := make([]UnknownIdentifierItem, 0, len(idents))
	for _, u := range idents {
		items = append(items, UnknownIdentifierItem{
			Type:   string(u.Type),
			Value:  u.Value,
			SeenAt: formatTime(u.SeenAt),
		})
	}
	return items
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
