package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kiosk-ledger/internal/core/ports/mocks"
	"kiosk-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestIsRetryableStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, true},
		{"wrapped in internal error", apperror.InternalError(fmt.Errorf("lock: %w", &pgconn.PgError{Code: "40001"})), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"deadline exceeded", fmt.Errorf("begin tx: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, true},
		{"retryable app error", apperror.ErrRetryable(nil), true},
		{"business failure", apperror.ErrInsufficientFunds(), false},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableStoreError(tt.err))
		})
	}
}

func TestIsDuplicateToken(t *testing.T) {
	assert.True(t, isDuplicateToken(fmt.Errorf("append: %w", &pgconn.PgError{Code: "23505", ConstraintName: "charges_token_key"})))
	assert.False(t, isDuplicateToken(&pgconn.PgError{Code: "23505", ConstraintName: "account_identifiers_ident_type_ident_key"}))
	assert.False(t, isDuplicateToken(&pgconn.PgError{Code: "40001", ConstraintName: "charges_token_key"}))
	assert.False(t, isDuplicateToken(errors.New("boom")))
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := NewRetryPolicy(nil, RetryConfig{Attempts: 3, BaseDelay: 10 * time.Millisecond}, zerolog.Nop())
	ceiling := time.Duration(float64(maxRetryDelay) * (1 + retryJitterFactor))

	for i := 0; i < 50; i++ {
		first := p.newBackOff().NextBackOff()
		assert.GreaterOrEqual(t, first, 5*time.Millisecond)
		assert.LessOrEqual(t, first, 15*time.Millisecond)
	}

	delays := p.newBackOff()
	for retry := 0; retry < 40; retry++ {
		d := delays.NextBackOff()
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, ceiling)
	}

	none := NewRetryPolicy(nil, RetryConfig{Attempts: 0}, zerolog.Nop())
	assert.Equal(t, time.Duration(0), none.newBackOff().NextBackOff())
	assert.Equal(t, 1, none.cfg.Attempts)
}

func TestRetryPolicy_SleepsBetweenAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transactor := mocks.NewMockDBTransactor(ctrl)
	p := NewRetryPolicy(transactor, RetryConfig{Attempts: 3, BaseDelay: 10 * time.Millisecond}, zerolog.Nop())
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	transactor.EXPECT().Begin(gomock.Any(), serializable).Return(&mockTx{}, nil).Times(3)

	calls := 0
	err := p.Run(context.Background(), "test", func(context.Context, pgx.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, slept, 2)
	assert.LessOrEqual(t, slept[0], 15*time.Millisecond)
	assert.GreaterOrEqual(t, slept[1], 10*time.Millisecond, "second delay grows")
}

func TestRetryPolicy_StopsWhenContextDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transactor := mocks.NewMockDBTransactor(ctrl)
	p := NewRetryPolicy(transactor, RetryConfig{Attempts: 5, BaseDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	tx := &mockTx{}
	transactor.EXPECT().Begin(gomock.Any(), serializable).Return(tx, nil).Times(1)

	err := p.Run(ctx, "test", func(context.Context, pgx.Tx) error {
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})

	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))
}

func TestRetryPolicy_BeginFailureIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transactor := mocks.NewMockDBTransactor(ctrl)
	p := NewRetryPolicy(transactor, RetryConfig{Attempts: 3}, zerolog.Nop())
	transactor.EXPECT().Begin(gomock.Any(), serializable).Return(nil, errors.New("pool closed"))

	err := p.Run(context.Background(), "test", func(context.Context, pgx.Tx) error {
		t.Fatal("must not run without a transaction")
		return nil
	})

	assert.Equal(t, apperror.KindFatal, apperror.KindOf(err))
}

func TestRetryPolicy_TxTimeoutApplied(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transactor := mocks.NewMockDBTransactor(ctrl)
	p := NewRetryPolicy(transactor, RetryConfig{Attempts: 1, TxTimeout: 50 * time.Millisecond}, zerolog.Nop())
	transactor.EXPECT().Begin(gomock.Any(), serializable).Return(&mockTx{}, nil)

	err := p.Run(context.Background(), "test", func(ctx context.Context, _ pgx.Tx) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		return ctx.Err()
	})

	assert.True(t, apperror.IsRetryable(err), "a stalled unit of work surfaces as retryable")
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
