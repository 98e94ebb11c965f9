package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Port string
	Env  string

	Store       string
	DatabaseURL string
	JournalPath string

	LockBackend string
	RedisAddr   string
	LockTimeout time.Duration

	FXRounding     string
	MinimumBalance int64

	// OperatorToken guards /v1/ops. Stored as given; compared by hash.
	OperatorToken string

	ReconcileInterval time.Duration
	WebhookURL        string
	WebhookSecret     string
	RabbitURL         string
	RabbitExchange    string

	LegacyCSVPath        string
	LegacyDatabaseURL    string
	LegacyTable          string
	MigrationTargetTable string
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on System Env Variables")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "3000"),
		Env:         getEnv("ENV", "development"),
		Store:       getEnv("STORE", StoreMemory),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JournalPath: getEnv("JOURNAL_PATH", ""),

		LockBackend: getEnv("LOCK_BACKEND", LockLocal),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),

		FXRounding:    getEnv("FX_ROUNDING", "half_even"),
		OperatorToken: getEnv("OPERATOR_TOKEN", ""),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		RabbitURL:      getEnv("RABBIT_URL", ""),
		RabbitExchange: getEnv("RABBIT_EXCHANGE", "ledger.alerts"),

		LegacyCSVPath:        getEnv("LEGACY_CSV_PATH", ""),
		LegacyDatabaseURL:    getEnv("LEGACY_DATABASE_URL", ""),
		LegacyTable:          getEnv("LEGACY_TABLE", "legacy_transactions"),
		MigrationTargetTable: getEnv("MIGRATION_TARGET_TABLE", "transactions"),
	}

	var err error
	if cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.MinimumBalance, err = getInt64("MINIMUM_BALANCE", 0); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE=%s requires DATABASE_URL", c.Store)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockLocal, LockRedis, c.LockBackend)
	}

	if c.MinimumBalance < 0 {
		return fmt.Errorf("MINIMUM_BALANCE must not be negative, got %d", c.MinimumBalance)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper to get env with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
