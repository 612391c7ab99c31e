package service

import (
	"context"

	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// ReportLimits caps the recent-entry lists. A negative value means unlimited.
type ReportLimits struct {
	Purchases int
	Charges   int
	Transfers int
}

// reportingService implements ports.ReportingService.
type reportingService struct {
	repos  Repositories
	rules  domain.LedgerPolicy
	limits ReportLimits
	clock  ports.Clock
}

// NewReportingService creates a new reporting service.
func NewReportingService(repos Repositories, rules domain.LedgerPolicy, limits ReportLimits, clock ports.Clock) ports.ReportingService {
	return &reportingService{
		repos:  repos,
		rules:  rules,
		limits: limits,
		clock:  clock,
	}
}

// Balance returns the committed balance of the account.
func (s *reportingService) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	acc, err := s.repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(err)
	}
	if acc == nil {
		return decimal.Zero, apperror.ErrNotFound("Account")
	}
	return acc.Balance, nil
}

// RecentPurchases lists the account's purchases, newest first.
func (s *reportingService) RecentPurchases(ctx context.Context, accountID int64) ([]domain.PurchaseRecord, error) {
	list, err := s.repos.Purchases.ListByAccount(ctx, accountID, s.limits.Purchases)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	now, window := s.clock.Now(), s.rules.AnnulWindow(domain.EntryPurchase)
	out := make([]domain.PurchaseRecord, 0, len(list))
	for _, p := range list {
		out = append(out, domain.PurchaseRecord{Purchase: p, Annullable: p.AnnullableAt(now, window)})
	}
	return out, nil
}

func (s *reportingService) RecentCharges(ctx context.Context, accountID int64) ([]domain.ChargeRecord, error) {
	list, err := s.repos.Charges.ListByAccount(ctx, accountID, s.limits.Charges)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	now, window := s.clock.Now(), s.rules.AnnulWindow(domain.EntryCharge)
	out := make([]domain.ChargeRecord, 0, len(list))
	for _, c := range list {
		out = append(out, domain.ChargeRecord{Charge: c, Annullable: c.AnnullableAt(now, window)})
	}
	return out, nil
}

// RecentTransfers lists transfers the account sent or received. A transfer with
// a removed party is never annullable.
func (s *reportingService) RecentTransfers(ctx context.Context, accountID int64) ([]domain.TransferRecord, error) {
	list, err := s.repos.Transfers.ListByAccount(ctx, accountID, s.limits.Transfers)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	now, window := s.clock.Now(), s.rules.AnnulWindow(domain.EntryTransfer)
	out := make([]domain.TransferRecord, 0, len(list))
	for _, t := range list {
		complete := t.SenderID != nil && t.ReceiverID != nil
		out = append(out, domain.TransferRecord{
			Transfer:   t,
			Incoming:   t.ReceiverID != nil && *t.ReceiverID == accountID,
			Annullable: complete && t.AnnullableAt(now, window),
		})
	}
	return out, nil
}
