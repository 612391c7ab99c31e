package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiosk-ledger/config"
	httpHandler "kiosk-ledger/internal/adapter/http/handler"
	"kiosk-ledger/internal/adapter/http/middleware"
	redisStorage "kiosk-ledger/internal/adapter/storage/redis"
	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/internal/service"
	"kiosk-ledger/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// shutdownTimeout bounds draining HTTP requests and pending event deliveries.
const shutdownTimeout = 10 * time.Second

type options struct {
	configPath  string
	migrate     bool
	seedDemo    bool
	openAPIPath string
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("kioskd", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	flagSet.BoolVar(&opts.migrate, "migrate", false, "apply database migrations before serving (postgres driver)")
	flagSet.BoolVar(&opts.seedDemo, "seed-demo", false, "load demo accounts and products (memory driver)")
	flagSet.StringVar(&opts.openAPIPath, "openapi", "docs/api/openapi.yaml", "OpenAPI document served at /swagger")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg, opts, log); err != nil {
		log.Fatal().Err(err).Msg("kioskd stopped")
	}
	log.Info().Msg("Server exited")
}

func run(cfg *config.Config, opts options, log zerolog.Logger) error {
	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting kiosk ledger")

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, opts, log)
	if err != nil {
		return err
	}
	defer store.close()

	rules, err := cfg.Ledger.Policy()
	if err != nil {
		return err
	}

	// Redis is optional: it backs the idempotency fast path, the unknown-identifier
	// log and the terminal throttle.
	var (
		cache      ports.IdempotencyCache
		unknownLog ports.UnknownIdentifierLog = redisStorage.NoopUnknownIdentifierLog{}
		throttle   ports.Throttle
	)
	checkers := store.checkers
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer rdb.Close()

		cache = redisStorage.NewIdempotencyCache(rdb)
		unknownLog = redisStorage.NewUnknownIdentifierLog(rdb, cfg.UnknownIdentifiers.Capacity, cfg.UnknownIdentifiers.TTL)
		if cfg.Throttle.Enabled {
			throttle = redisStorage.NewThrottle(rdb)
		}
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	} else if cfg.Throttle.Enabled {
		log.Warn().Msg("throttle enabled without Redis, terminals are not throttled")
	}

	clock := service.SystemClock()
	notifier, stopNotifier := newNotifier(cfg.Notify, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := stopNotifier(ctx); err != nil {
			log.Warn().Err(err).Msg("pending event deliveries abandoned")
		}
	}()

	policy := service.NewRetryPolicy(store.transactor, service.RetryConfig{
		Attempts:  cfg.Ledger.RetryAttempts,
		BaseDelay: cfg.Ledger.RetryBaseDelay,
		TxTimeout: cfg.Ledger.TxTimeout,
	}, logger.Component(log, "retry"))
	guard := service.NewIdempotencyGuard(policy, store.repos.Tokens, cache, cfg.Ledger.IdempotencyTTL, logger.Component(log, "idempotency"))
	resolver := service.NewIdentifierResolver(store.repos.Accounts, store.repos.Products, unknownLog, clock, logger.Component(log, "resolver"))
	ledgerSvc := service.NewLedgerService(store.repos, policy, guard, resolver, notifier, clock, rules, logger.Component(log, "ledger"))
	reportingSvc := service.NewReportingService(store.repos, rules, service.ReportLimits{
		Purchases: cfg.Reporting.LastPurchases,
		Charges:   cfg.Reporting.LastCharges,
		Transfers: cfg.Reporting.LastTransfers,
	}, clock)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile(opts.openAPIPath); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		ReportingSvc:   reportingSvc,
		UnknownLog:     unknownLog,
		Throttle:       throttle,
		ThrottleRule:   middleware.ThrottleRule{Limit: cfg.Throttle.Limit, Window: cfg.Throttle.Window},
		HealthCheckers: checkers,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	return nil
}

// newNotifier picks the webhook notifier when a URL is configured, else events are only logged.
// The returned func waits for in-flight deliveries until its context is done.
func newNotifier(cfg config.NotifyConfig, log zerolog.Logger) (ports.Notifier, func(context.Context) error) {
	if cfg.WebhookURL == "" {
		return service.NewLogNotifier(logger.Component(log, "events")), func(context.Context) error { return nil }
	}
	client := &http.Client{Timeout: cfg.Timeout}
	n := service.NewWebhookNotifier(cfg.WebhookURL, cfg.Secret, client, logger.Component(log, "webhook"))
	return n, n.Shutdown
}
