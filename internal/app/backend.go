// Package app wires configuration to concrete stores, lockers and sources
// for the binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Mo-Nouir/database-tests/internal/adapter/legacy"
	"github.com/Mo-Nouir/database-tests/internal/adapter/storage"
	"github.com/Mo-Nouir/database-tests/internal/adapter/storage/memstore"
	"github.com/Mo-Nouir/database-tests/internal/core/config"
	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
	"github.com/Mo-Nouir/database-tests/internal/core/lock"
	"github.com/Mo-Nouir/database-tests/internal/core/migration"
	"github.com/Mo-Nouir/database-tests/internal/core/transfer"
)

// Backend is the selected ledger store plus the migrated-side view of it.
type Backend struct {
	Store  ledger.Store
	Target migration.Target
	Pool   *pgxpool.Pool
	close  func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := storage.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store:  storage.NewStore(pool),
			Target: storage.NewMigrationTarget(pool, cfg.MigrationTargetTable),
			Pool:   pool,
			close:  func() error { pool.Close(); return nil },
		}, nil

	case config.StoreMemory:
		if cfg.JournalPath == "" {
			slog.Warn("⚠️ in-memory store without JOURNAL_PATH, state is lost on exit")
			s := memstore.New()
			return &Backend{Store: s, Target: s, close: s.Close}, nil
		}
		s, err := memstore.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		slog.Info("journal replayed", "path", cfg.JournalPath)
		return &Backend{Store: s, Target: s, close: s.Close}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// NewLocker returns the configured locker and a close func for any client
// it opened.
func NewLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func() error, error) {
	if cfg.LockBackend != config.LockRedis {
		return lock.NewKeyedMutex(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	opts := lock.DefaultRedisOptions()
	// A holder must not lose the lock while a transfer can still be waiting on the store.
	opts.Expiry = max(opts.Expiry, 2*cfg.LockTimeout)
	return lock.NewRedisLocker(client, opts), client.Close, nil
}

func Policy(cfg *config.Config) transfer.Policy {
	return transfer.Policy{
		Rounding:       domain.RoundingMode(cfg.FXRounding),
		MinimumBalance: cfg.MinimumBalance,
		LockTimeout:    cfg.LockTimeout,
	}
}

// ErrNoLegacySource means neither LEGACY_CSV_PATH nor LEGACY_DATABASE_URL is set.
var ErrNoLegacySource = errors.New("no legacy source configured")

// OpenLegacy prefers the CSV export when both sources are configured.
func OpenLegacy(ctx context.Context, cfg *config.Config) (migration.LegacySource, func() error, error) {
	switch {
	case cfg.LegacyCSVPath != "":
		return legacy.NewCSVSource(cfg.LegacyCSVPath), func() error { return nil }, nil
	case cfg.LegacyDatabaseURL != "":
		src, err := legacy.OpenPostgres(ctx, cfg.LegacyDatabaseURL, cfg.LegacyTable)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
	return nil, nil, ErrNoLegacySource
}
