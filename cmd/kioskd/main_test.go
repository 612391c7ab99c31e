package main

import (
	"context"
	"testing"
	"time"

	"kiosk-ledger/config"
	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-c", "/etc/kiosk.yaml", "--migrate"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/kiosk.yaml", opts.configPath)
	assert.True(t, opts.migrate)
	assert.False(t, opts.seedDemo)
	assert.Equal(t, "docs/api/openapi.yaml", opts.openAPIPath)

	_, err = parseFlags([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)

	_, err = parseFlags([]string{"--nope"})
	assert.Error(t, err)
}

func TestOpenStorage_MemorySeeded(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: config.DriverMemory}}
	store, err := openStorage(context.Background(), cfg, options{seedDemo: true}, zerolog.Nop())
	require.NoError(t, err)
	defer store.close()

	policy := service.NewRetryPolicy(store.transactor, service.RetryConfig{Attempts: 1, TxTimeout: time.Second}, zerolog.Nop())
	var acc *domain.Account
	err = policy.Run(context.Background(), "lookup", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		acc, err = store.repos.Accounts.GetByIdentifier(ctx, tx, domain.AccountIdentBarcode, "1000001")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "Ada", acc.Name)

	require.Len(t, store.checkers, 1)
	assert.Equal(t, "memory", store.checkers[0].Name())
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "sqlite"}}
	_, err := openStorage(context.Background(), cfg, options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	n, stop := newNotifier(config.NotifyConfig{}, zerolog.Nop())
	assert.IsType(t, &service.LogNotifier{}, n)
	assert.NoError(t, stop(context.Background()))

	n, stop = newNotifier(config.NotifyConfig{WebhookURL: "http://127.0.0.1:1/hook", Timeout: time.Second}, zerolog.Nop())
	assert.IsType(t, &service.WebhookNotifier{}, n)
	assert.NoError(t, stop(context.Background()))
}
