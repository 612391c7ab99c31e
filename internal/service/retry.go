package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	maxRetryDelay     = 2 * time.Second
	retryJitterFactor = 0.5
)

// RetryConfig bounds the retry loop around one unit of work.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	TxTimeout time.Duration
}

// TxFunc is the body of a unit of work. It must not commit or roll back tx.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// RetryPolicy runs units of work in serializable transactions and retries the
// ones the store aborted for a conflict or timeout.
type RetryPolicy struct {
	transactor ports.DBTransactor
	cfg        RetryConfig
	log        zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a RetryPolicy. Attempts below 1 are treated as 1.
func NewRetryPolicy(transactor ports.DBTransactor, cfg RetryConfig, log zerolog.Logger) *RetryPolicy {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &RetryPolicy{
		transactor: transactor,
		cfg:        cfg,
		log:        log,
		sleep:      sleepContext,
	}
}

// Run executes fn until it commits, fails for a non-retryable reason, or the
// attempts run out. Business failures come back unchanged, retryable
// failures as apperror.ErrRetryable and everything else as apperror.InternalError.
func (p *RetryPolicy) Run(ctx context.Context, op string, fn TxFunc) error {
	var lastErr error
	delays := p.newBackOff()
	for attempt := 0; attempt < p.cfg.Attempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, delays.NextBackOff()); err != nil {
				return apperror.ErrRetryable(lastErr)
			}
		}

		err := p.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableStoreError(err) {
			return classify(err)
		}

		lastErr = err
		p.log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Int("max_attempts", p.cfg.Attempts).
			Msg("unit of work aborted, retrying")

		if ctx.Err() != nil {
			return apperror.ErrRetryable(err)
		}
	}

	p.log.Error().Err(lastErr).Str("op", op).Msg("retry attempts exhausted")
	return apperror.ErrRetryable(lastErr)
}

func (p *RetryPolicy) runOnce(ctx context.Context, fn TxFunc) error {
	if p.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TxTimeout)
		defer cancel()
	}

	tx, err := p.transactor.Begin(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// newBackOff returns the delay schedule for one Run: exponential from BaseDelay,
// capped at maxRetryDelay, each delay jittered by retryJitterFactor.
func (p *RetryPolicy) newBackOff() backoff.BackOff {
	if p.cfg.BaseDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = retryJitterFactor
	b.MaxInterval = maxRetryDelay
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRetryableStoreError reports whether err means the unit of work was aborted
// for a reason a resubmission can fix: serialization failure, deadlock, lock
// or statement timeout, or a cancelled context.
func IsRetryableStoreError(err error) bool {
	if err == nil {
		return false
	}
	if apperror.IsRetryable(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.QueryCanceled:
			return true
		}
		return false
	}

	return pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// isDuplicateToken reports whether err is the unique violation raised when an
// entry with the same idempotency token was committed first.
func isDuplicateToken(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return strings.HasSuffix(pgErr.ConstraintName, "_token_key")
}

func classify(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.InternalError(err)
}
