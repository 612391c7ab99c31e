package config

import (
	"fmt"
	"strings"
	"time"

	"kiosk-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server             ServerConfig             `mapstructure:"server"`
	Storage            StorageConfig            `mapstructure:"storage"`
	Database           DatabaseConfig           `mapstructure:"database"`
	Redis              RedisConfig              `mapstructure:"redis"`
	Log                LogConfig                `mapstructure:"log"`
	Ledger             LedgerConfig             `mapstructure:"ledger"`
	Reporting          ReportingConfig          `mapstructure:"reporting"`
	Notify             NotifyConfig             `mapstructure:"notify"`
	UnknownIdentifiers UnknownIdentifiersConfig `mapstructure:"unknown_identifiers"`
	Throttle           ThrottleConfig           `mapstructure:"throttle"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig carries the rules of the ledger engine.
// Annul windows are exclusive: an entry exactly as old as its window can no longer be annulled.
type LedgerConfig struct {
	MinBalance          string        `mapstructure:"min_balance"`
	AnnulWindowPurchase time.Duration `mapstructure:"annul_window_purchase"`
	AnnulWindowCharge   time.Duration `mapstructure:"annul_window_charge"`
	AnnulWindowTransfer time.Duration `mapstructure:"annul_window_transfer"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
	TxTimeout           time.Duration `mapstructure:"tx_timeout"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl"`
}

// Policy converts the section into the value handed to the ledger service.
func (l LedgerConfig) Policy() (domain.LedgerPolicy, error) {
	floor, err := decimal.NewFromString(l.MinBalance)
	if err != nil {
		return domain.LedgerPolicy{}, fmt.Errorf("ledger.min_balance %q: %w", l.MinBalance, err)
	}
	return domain.LedgerPolicy{
		MinBalance:          floor,
		AnnulWindowPurchase: l.AnnulWindowPurchase,
		AnnulWindowCharge:   l.AnnulWindowCharge,
		AnnulWindowTransfer: l.AnnulWindowTransfer,
	}, nil
}

// ReportingConfig caps the recent-entry lists. A negative value means unlimited.
type ReportingConfig struct {
	LastPurchases int `mapstructure:"last_purchases"`
	LastCharges   int `mapstructure:"last_charges"`
	LastTransfers int `mapstructure:"last_transfers"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type UnknownIdentifiersConfig struct {
	Capacity int64         `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ThrottleConfig limits requests per terminal. Requires Redis.
type ThrottleConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int64         `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: KL_ (Kiosk Ledger).
// Nested keys use underscore: KL_DATABASE_HOST, KL_LEDGER_MIN_BALANCE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "kiosk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.min_balance", "0")
	v.SetDefault("ledger.annul_window_purchase", "60m")
	v.SetDefault("ledger.annul_window_charge", "60m")
	v.SetDefault("ledger.annul_window_transfer", "60m")
	v.SetDefault("ledger.retry_attempts", 5)
	v.SetDefault("ledger.retry_base_delay", "20ms")
	v.SetDefault("ledger.tx_timeout", "5s")
	v.SetDefault("ledger.idempotency_ttl", "24h")
	v.SetDefault("reporting.last_purchases", 100)
	v.SetDefault("reporting.last_charges", 10)
	v.SetDefault("reporting.last_transfers", 10)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.secret", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("unknown_identifiers.capacity", 50)
	v.SetDefault("unknown_identifiers.ttl", "24h")
	v.SetDefault("throttle.enabled", false)
	v.SetDefault("throttle.limit", 120)
	v.SetDefault("throttle.window", "1m")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: KL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("KL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q: must be %q or %q", c.Storage.Driver, DriverPostgres, DriverMemory)
	}
	if _, err := c.Ledger.Policy(); err != nil {
		return err
	}
	if c.Ledger.RetryAttempts < 1 {
		return fmt.Errorf("ledger.retry_attempts must be at least 1, got %d", c.Ledger.RetryAttempts)
	}
	if c.Ledger.TxTimeout <= 0 {
		return fmt.Errorf("ledger.tx_timeout must be positive")
	}
	if c.Throttle.Enabled && (c.Throttle.Limit < 1 || c.Throttle.Window < time.Second) {
		return fmt.Errorf("throttle: limit must be at least 1 and window at least 1s")
	}
	return nil
}
