package domain

import "strconv"

// PurchaseResult is what a purchase returns, first time or on replay.
// AccountID records who made the purchase; a replay for anyone else is refused.
type PurchaseResult struct {
	PurchaseID int64 `json:"purchase_id"`
	ProductID  int64 `json:"product_id"`
	AccountID  int64 `json:"account_id"`
}

// ChargeResult is what a charge returns.
type ChargeResult struct {
	ChargeID  int64 `json:"charge_id"`
	AccountID int64 `json:"account_id"`
}

// TransferResult is what a transfer returns.
type TransferResult struct {
	TransferID int64 `json:"transfer_id"`
	ReceiverID int64 `json:"receiver_id"`
	SenderID   int64 `json:"sender_id"`
}

// BuildIdempotencyKey constructs the cache key for a token scoped to an operation kind.
// Format: "PURCHASE:42".
func BuildIdempotencyKey(kind EntryKind, token int64) string {
	return string(kind) + ":" + strconv.FormatInt(token, 10)
}
