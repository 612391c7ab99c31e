package main

import (
	"context"
	"fmt"

	"kiosk-ledger/config"
	"kiosk-ledger/internal/adapter/storage/memory"
	pgStorage "kiosk-ledger/internal/adapter/storage/postgres"
	"kiosk-ledger/internal/core/domain"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// storage bundles the repositories of the selected driver.
type storage struct {
	repos      service.Repositories
	transactor ports.DBTransactor
	checkers   []ports.HealthChecker
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, opts options, log zerolog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store := memory.NewStore()
		if opts.seedDemo {
			if err := seedDemo(store); err != nil {
				return nil, fmt.Errorf("seed demo data: %w", err)
			}
			log.Info().Msg("Demo accounts and products loaded")
		}
		return newMemoryStorage(store), nil

	case config.DriverPostgres:
		if opts.migrate {
			if err := pgStorage.Migrate(cfg.Database, log); err != nil {
				return nil, err
			}
		}
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return &storage{
			repos: service.Repositories{
				Accounts:  pgStorage.NewAccountRepo(pool),
				Products:  pgStorage.NewProductRepo(pool),
				Purchases: pgStorage.NewPurchaseRepo(pool),
				Charges:   pgStorage.NewChargeRepo(pool),
				Transfers: pgStorage.NewTransferRepo(pool),
				Tokens:    pgStorage.NewTokenRepo(),
			},
			transactor: pgStorage.NewTransactor(pool),
			checkers:   []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
			close:      pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func newMemoryStorage(store *memory.Store) *storage {
	return &storage{
		repos: service.Repositories{
			Accounts:  memory.NewAccountRepo(store),
			Products:  memory.NewProductRepo(store),
			Purchases: memory.NewPurchaseRepo(store),
			Charges:   memory.NewChargeRepo(store),
			Transfers: memory.NewTransferRepo(store),
			Tokens:    memory.NewTokenRepo(),
		},
		transactor: store,
		checkers:   []ports.HealthChecker{memory.HealthCheck{}},
		close:      func() {},
	}
}

func seedDemo(store *memory.Store) error {
	accounts := []struct {
		name    string
		balance string
		barcode string
	}{
		{"Ada", "10.00", "1000001"},
		{"Grace", "25.00", "1000002"},
	}
	for _, a := range accounts {
		_, err := store.CreateAccount(a.name, decimal.RequireFromString(a.balance),
			domain.AccountIdentifier{Type: domain.AccountIdentBarcode, Value: a.barcode})
		if err != nil {
			return err
		}
	}

	products := []struct {
		name    string
		price   string
		stock   int64
		barcode string
	}{
		{"Club-Mate", "1.50", 24, "4029764001807"},
		{"Coffee", "0.50", 100, "2000001"},
	}
	for _, p := range products {
		_, err := store.CreateProduct(p.name, decimal.RequireFromString(p.price), p.stock,
			domain.ProductIdentifier{Type: domain.ProductIdentBarcode, Value: p.barcode})
		if err != nil {
			return err
		}
	}
	return nil
}
