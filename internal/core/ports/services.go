package ports

import (
	"context"
	"time"

	"kiosk-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// IdempotencyCache is the Redis-layer idempotency check (fast path).
// The database uniqueness constraint stays authoritative.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached result JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// UnknownIdentifierLog keeps a bounded, expiring record of scanned identifiers that
// matched no account. Best-effort: failures never affect resolution.
type UnknownIdentifierLog interface {
	Record(ctx context.Context, ident domain.UnknownIdentifier) error
	Recent(ctx context.Context) ([]domain.UnknownIdentifier, error)
}

// Notifier receives committed ledger events. Delivery outcome is not observed.
type Notifier interface {
	Notify(ctx context.Context, event domain.LedgerEvent)
}

// Throttle limits request rate per terminal.
type Throttle interface {
	// Allow reports whether one more request fits in the current window for key.
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// Clock abstracts time so annul windows can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// --- Service Ports (Business Logic) ---

// LedgerService is the transaction coordinator: every balance-mutating operation
// of the kiosk, each executed as one serializable unit of work.
type LedgerService interface {
	IssueToken(ctx context.Context) (int64, error)
	ResolveAccount(ctx context.Context, ident domain.AccountIdentifier, requireEnabled bool) (*domain.Account, error)
	Purchase(ctx context.Context, req PurchaseRequest) (*domain.PurchaseResult, error)
	AnnulPurchase(ctx context.Context, purchaseID int64) error
	Charge(ctx context.Context, req ChargeRequest) (*domain.ChargeResult, error)
	AnnulCharge(ctx context.Context, chargeID int64) error
	Transfer(ctx context.Context, req TransferRequest) (*domain.TransferResult, error)
	AnnulTransfer(ctx context.Context, transferID int64) error
}

// PurchaseRequest holds validated input for a purchase.
type PurchaseRequest struct {
	AccountID int64
	Product   domain.ProductIdentifier
	Token     *int64
}

// ChargeRequest holds validated input for a top-up.
type ChargeRequest struct {
	AccountID int64
	Amount    decimal.Decimal
	Comment   string
	Token     *int64
}

// TransferRequest holds validated input for a transfer between accounts.
type TransferRequest struct {
	SenderID int64
	Receiver domain.AccountIdentifier
	Amount   decimal.Decimal
	Token    *int64
}

// ReportingService defines the read side shown to a logged-in account.
type ReportingService interface {
	Balance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	RecentPurchases(ctx context.Context, accountID int64) ([]domain.PurchaseRecord, error)
	RecentCharges(ctx context.Context, accountID int64) ([]domain.ChargeRecord, error)
	RecentTransfers(ctx context.Context, accountID int64) ([]domain.TransferRecord, error)
}
