package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mo-Nouir/database-tests/internal/adapter/legacy"
	"github.com/Mo-Nouir/database-tests/internal/core/config"
	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/lock"
)

func TestOpenBackend_MemoryJournal(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Store: config.StoreMemory, JournalPath: filepath.Join(t.TempDir(), "ledger.journal")}

	b, err := OpenBackend(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, b.Store.CreateAccount(ctx, domain.Account{ID: "ACC100", Currency: domain.USD, Status: domain.AccountActive}))
	require.NoError(t, b.Close())

	b, err = OpenBackend(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()
	accounts, err := b.Target.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestOpenBackend_UnknownStore(t *testing.T) {
	_, err := OpenBackend(context.Background(), &config.Config{Store: "sqlite"})
	assert.ErrorContains(t, err, "unknown store")
}

func TestNewLocker_Local(t *testing.T) {
	l, closeFn, err := NewLocker(context.Background(), &config.Config{LockBackend: config.LockLocal})
	require.NoError(t, err)
	assert.IsType(t, &lock.KeyedMutex{}, l)
	assert.NoError(t, closeFn())
}

func TestPolicy(t *testing.T) {
	p := Policy(&config.Config{FXRounding: "down", MinimumBalance: 50, LockTimeout: time.Second})
	assert.Equal(t, domain.RoundingMode("down"), p.Rounding)
	assert.Equal(t, int64(50), p.MinimumBalance)
	assert.Equal(t, time.Second, p.LockTimeout)
}

func TestOpenLegacy(t *testing.T) {
	ctx := context.Background()

	_, _, err := OpenLegacy(ctx, &config.Config{})
	assert.ErrorIs(t, err, ErrNoLegacySource)

	path := filepath.Join(t.TempDir(), "legacy.csv")
	require.NoError(t, os.WriteFile(path, []byte("transaction_id\nL1\n"), 0o600))

	src, closeFn, err := OpenLegacy(ctx, &config.Config{LegacyCSVPath: path, LegacyDatabaseURL: "postgres://unused"})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &legacy.CSVSource{}, src)

	ids, err := src.TransactionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, ids)
}
