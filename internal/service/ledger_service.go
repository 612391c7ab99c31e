package service

import (
	"context"

	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerServiceImpl implements ports.LedgerService. Each operation is one
// serializable unit of work: resolve, validate, mutate balances and stock,
// append or annul the entry. The event goes to the notifier after commit.
type LedgerServiceImpl struct {
	repos    Repositories
	store    *LedgerStore
	policy   *RetryPolicy
	guard    *IdempotencyGuard
	resolver *IdentifierResolver
	notifier ports.Notifier
	clock    ports.Clock
	rules    domain.LedgerPolicy
	log      zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	repos Repositories,
	policy *RetryPolicy,
	guard *IdempotencyGuard,
	resolver *IdentifierResolver,
	notifier ports.Notifier,
	clock ports.Clock,
	rules domain.LedgerPolicy,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		repos:    repos,
		store:    NewLedgerStore(repos, rules.MinBalance),
		policy:   policy,
		guard:    guard,
		resolver: resolver,
		notifier: notifier,
		clock:    clock,
		rules:    rules,
		log:      log,
	}
}

// IssueToken hands out a fresh idempotency token.
func (s *LedgerServiceImpl) IssueToken(ctx context.Context) (int64, error) {
	return s.guard.IssueToken(ctx)
}

// ResolveAccount resolves an identifier to an account. requireEnabled is set by
// the login screen, which must not offer disabled accounts.
func (s *LedgerServiceImpl) ResolveAccount(ctx context.Context, ident domain.AccountIdentifier, requireEnabled bool) (*domain.Account, error) {
	var acc *domain.Account
	err := s.policy.Run(ctx, "resolve_account", func(ctx context.Context, tx pgx.Tx) error {
		a, err := s.resolver.Account(ctx, tx, ident)
		acc = a
		return err
	})
	if err != nil {
		return nil, err
	}
	if requireEnabled && !acc.Enabled {
		return nil, apperror.ErrAccountDisabled()
	}
	return acc, nil
}

// Purchase sells one unit of a product to the account at its current price.
func (s *LedgerServiceImpl) Purchase(ctx context.Context, req ports.PurchaseRequest) (*domain.PurchaseResult, error) {
	var event domain.LedgerEvent

	owns := func(prior *domain.PurchaseResult) bool { return prior.AccountID == req.AccountID }
	res, fresh, err := guard(ctx, s.guard, domain.EntryPurchase, req.Token, owns, s.purchaseByToken,
		func(ctx context.Context, tx pgx.Tx) (*domain.PurchaseResult, error) {
			product, err := s.resolver.Product(ctx, tx, req.Product)
			if err != nil {
				return nil, err
			}

			// Stock is decremented unconditionally; a failed debit rolls it back.
			if err := s.store.AdjustStock(ctx, tx, product.ID, -1); err != nil {
				return nil, err
			}
			balance, err := s.store.Debit(ctx, tx, req.AccountID, product.Price)
			if err != nil {
				return nil, err
			}

			productID := product.ID
			p := &domain.Purchase{
				Entry:     domain.Entry{Token: req.Token, CreatedAt: s.clock.Now()},
				AccountID: req.AccountID,
				ProductID: &productID,
				SoldID:    productID,
				Price:     product.Price,
			}
			if _, err := s.store.Append(ctx, tx, p); err != nil {
				return nil, err
			}

			event = domain.NewPurchaseEvent(domain.ActionCreated, *p, balance, p.CreatedAt)
			return &domain.PurchaseResult{PurchaseID: p.ID, ProductID: productID, AccountID: req.AccountID}, nil
		})
	if err != nil {
		return nil, err
	}

	if fresh {
		s.log.Info().
			Int64("purchase_id", res.PurchaseID).
			Int64("account_id", req.AccountID).
			Int64("product_id", res.ProductID).
			Str("price", event.Amount.StringFixed(domain.MoneyScale)).
			Msg("purchase committed")
		s.emit(ctx, event)
	}
	return res, nil
}

func (s *LedgerServiceImpl) purchaseByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.PurchaseResult, error) {
	p, err := s.repos.Purchases.GetByToken(ctx, tx, token)
	if err != nil || p == nil {
		return nil, err
	}
	return &domain.PurchaseResult{PurchaseID: p.ID, ProductID: p.SoldID, AccountID: p.AccountID}, nil
}

// AnnulPurchase refunds the recorded price and puts the unit back in stock.
func (s *LedgerServiceImpl) AnnulPurchase(ctx context.Context, purchaseID int64) error {
	var event domain.LedgerEvent

	err := s.policy.Run(ctx, "annul_purchase", func(ctx context.Context, tx pgx.Tx) error {
		p, err := s.repos.Purchases.GetByIDForUpdate(ctx, tx, purchaseID)
		if err != nil {
			return internal("lock purchase", err)
		}
		if p == nil {
			return apperror.ErrNotFound("Purchase")
		}

		now := s.clock.Now()
		done, err := p.Annul()
		if err != nil {
			return apperror.ErrAlreadyAnnulled("Purchase")
		}
		if !p.AnnullableAt(now, s.rules.AnnulWindow(domain.EntryPurchase)) {
			return apperror.ErrNotAnnullable("Purchase")
		}

		var balance decimal.Decimal
		if p.Price.IsPositive() {
			balance, err = s.store.Credit(ctx, tx, p.AccountID, p.Price)
		} else {
			balance, err = s.store.Balance(ctx, tx, p.AccountID)
		}
		if err != nil {
			return err
		}
		if p.ProductID != nil {
			if err := s.store.AdjustStock(ctx, tx, *p.ProductID, 1); err != nil {
				return err
			}
		}
		if err := s.store.MarkAnnulled(ctx, tx, domain.EntryPurchase, p.ID); err != nil {
			return err
		}

		event = domain.NewPurchaseEvent(domain.ActionAnnulled, done, balance, now)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Int64("purchase_id", purchaseID).Msg("purchase annulled")
	s.emit(ctx, event)
	return nil
}

// Charge puts money on an account.
func (s *LedgerServiceImpl) Charge(ctx context.Context, req ports.ChargeRequest) (*domain.ChargeResult, error) {
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}

	var event domain.LedgerEvent

	owns := func(prior *domain.ChargeResult) bool { return prior.AccountID == req.AccountID }
	res, fresh, err := guard(ctx, s.guard, domain.EntryCharge, req.Token, owns, s.chargeByToken,
		func(ctx context.Context, tx pgx.Tx) (*domain.ChargeResult, error) {
			balance, err := s.store.Credit(ctx, tx, req.AccountID, req.Amount)
			if err != nil {
				return nil, err
			}

			c := &domain.Charge{
				Entry:     domain.Entry{Token: req.Token, CreatedAt: s.clock.Now()},
				AccountID: req.AccountID,
				Amount:    req.Amount,
				Comment:   req.Comment,
			}
			if _, err := s.store.Append(ctx, tx, c); err != nil {
				return nil, err
			}

			event = domain.NewChargeEvent(domain.ActionCreated, *c, balance, c.CreatedAt)
			return &domain.ChargeResult{ChargeID: c.ID, AccountID: req.AccountID}, nil
		})
	if err != nil {
		return nil, err
	}

	if fresh {
		s.log.Info().
			Int64("charge_id", res.ChargeID).
			Int64("account_id", req.AccountID).
			Str("amount", req.Amount.StringFixed(domain.MoneyScale)).
			Msg("charge committed")
		s.emit(ctx, event)
	}
	return res, nil
}

func (s *LedgerServiceImpl) chargeByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.ChargeResult, error) {
	c, err := s.repos.Charges.GetByToken(ctx, tx, token)
	if err != nil || c == nil {
		return nil, err
	}
	return &domain.ChargeResult{ChargeID: c.ID, AccountID: c.AccountID}, nil
}

// AnnulCharge takes the charged amount back. It fails with InsufficientFunds
// once the money has been spent, leaving the charge in place.
func (s *LedgerServiceImpl) AnnulCharge(ctx context.Context, chargeID int64) error {
	var event domain.LedgerEvent

	err := s.policy.Run(ctx, "annul_charge", func(ctx context.Context, tx pgx.Tx) error {
		c, err := s.repos.Charges.GetByIDForUpdate(ctx, tx, chargeID)
		if err != nil {
			return internal("lock charge", err)
		}
		if c == nil {
			return apperror.ErrNotFound("Charge")
		}

		now := s.clock.Now()
		done, err := c.Annul()
		if err != nil {
			return apperror.ErrAlreadyAnnulled("Charge")
		}
		if !c.AnnullableAt(now, s.rules.AnnulWindow(domain.EntryCharge)) {
			return apperror.ErrNotAnnullable("Charge")
		}

		balance, err := s.store.Debit(ctx, tx, c.AccountID, c.Amount)
		if err != nil {
			return err
		}
		if err := s.store.MarkAnnulled(ctx, tx, domain.EntryCharge, c.ID); err != nil {
			return err
		}

		event = domain.NewChargeEvent(domain.ActionAnnulled, done, balance, now)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Int64("charge_id", chargeID).Msg("charge annulled")
	s.emit(ctx, event)
	return nil
}

// Transfer moves money from the logged-in sender to the resolved receiver.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*domain.TransferResult, error) {
	var event domain.LedgerEvent

	owns := func(prior *domain.TransferResult) bool { return prior.SenderID == req.SenderID }
	res, fresh, err := guard(ctx, s.guard, domain.EntryTransfer, req.Token, owns, s.transferByToken,
		func(ctx context.Context, tx pgx.Tx) (*domain.TransferResult, error) {
			receiver, err := s.resolver.Account(ctx, tx, req.Receiver)
			if err != nil {
				return nil, err
			}
			if receiver.ID == req.SenderID {
				return nil, apperror.ErrSenderEqualsReceiver()
			}
			if err := checkAmount(req.Amount); err != nil {
				return nil, err
			}

			if err := s.store.LockAccounts(ctx, tx, req.SenderID, receiver.ID); err != nil {
				return nil, err
			}
			senderBalance, err := s.store.Debit(ctx, tx, req.SenderID, req.Amount)
			if err != nil {
				return nil, err
			}
			receiverBalance, err := s.store.Credit(ctx, tx, receiver.ID, req.Amount)
			if err != nil {
				return nil, err
			}

			senderID, receiverID := req.SenderID, receiver.ID
			t := &domain.Transfer{
				Entry:      domain.Entry{Token: req.Token, CreatedAt: s.clock.Now()},
				SenderID:   &senderID,
				ReceiverID: &receiverID,
				Amount:     req.Amount,
			}
			if _, err := s.store.Append(ctx, tx, t); err != nil {
				return nil, err
			}

			event = domain.NewTransferEvent(domain.ActionCreated, *t,
				domain.BalanceSnapshot{AccountID: senderID, Balance: senderBalance},
				domain.BalanceSnapshot{AccountID: receiverID, Balance: receiverBalance},
				t.CreatedAt)
			return &domain.TransferResult{TransferID: t.ID, ReceiverID: receiverID, SenderID: senderID}, nil
		})
	if err != nil {
		return nil, err
	}

	if fresh {
		s.log.Info().
			Int64("transfer_id", res.TransferID).
			Int64("sender_id", req.SenderID).
			Int64("receiver_id", res.ReceiverID).
			Str("amount", req.Amount.StringFixed(domain.MoneyScale)).
			Msg("transfer committed")
		s.emit(ctx, event)
	}
	return res, nil
}

func (s *LedgerServiceImpl) transferByToken(ctx context.Context, tx pgx.Tx, token int64) (*domain.TransferResult, error) {
	t, err := s.repos.Transfers.GetByToken(ctx, tx, token)
	if err != nil || t == nil {
		return nil, err
	}
	res := &domain.TransferResult{TransferID: t.ID}
	if t.ReceiverID != nil {
		res.ReceiverID = *t.ReceiverID
	}
	if t.SenderID != nil {
		res.SenderID = *t.SenderID
	}
	return res, nil
}

// AnnulTransfer moves the amount back from receiver to sender. It fails with
// InsufficientFunds once the receiver has spent it.
func (s *LedgerServiceImpl) AnnulTransfer(ctx context.Context, transferID int64) error {
	var event domain.LedgerEvent

	err := s.policy.Run(ctx, "annul_transfer", func(ctx context.Context, tx pgx.Tx) error {
		t, err := s.repos.Transfers.GetByIDForUpdate(ctx, tx, transferID)
		if err != nil {
			return internal("lock transfer", err)
		}
		if t == nil {
			return apperror.ErrNotFound("Transfer")
		}

		now := s.clock.Now()
		done, err := t.Annul()
		if err != nil {
			return apperror.ErrAlreadyAnnulled("Transfer")
		}
		if !t.AnnullableAt(now, s.rules.AnnulWindow(domain.EntryTransfer)) {
			return apperror.ErrNotAnnullable("Transfer")
		}
		if t.SenderID == nil || t.ReceiverID == nil {
			return apperror.ErrNotAnnullable("Transfer")
		}
		senderID, receiverID := *t.SenderID, *t.ReceiverID

		if err := s.store.LockAccounts(ctx, tx, senderID, receiverID); err != nil {
			return err
		}
		receiverBalance, err := s.store.Debit(ctx, tx, receiverID, t.Amount)
		if err != nil {
			return err
		}
		senderBalance, err := s.store.Credit(ctx, tx, senderID, t.Amount)
		if err != nil {
			return err
		}
		if err := s.store.MarkAnnulled(ctx, tx, domain.EntryTransfer, t.ID); err != nil {
			return err
		}

		event = domain.NewTransferEvent(domain.ActionAnnulled, done,
			domain.BalanceSnapshot{AccountID: senderID, Balance: senderBalance},
			domain.BalanceSnapshot{AccountID: receiverID, Balance: receiverBalance},
			now)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Int64("transfer_id", transferID).Msg("transfer annulled")
	s.emit(ctx, event)
	return nil
}

func (s *LedgerServiceImpl) emit(ctx context.Context, event domain.LedgerEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.WithoutCancel(ctx), event)
}

// checkAmount accepts positive amounts with at most two fractional digits.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	if !amount.Equal(amount.Round(domain.MoneyScale)) {
		return apperror.ErrAmountScale()
	}
	return nil
}
