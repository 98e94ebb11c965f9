//go:build integration

package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/Mo-Nouir/database-tests/internal/adapter/legacy"
	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
	"github.com/Mo-Nouir/database-tests/internal/core/lock"
	"github.com/Mo-Nouir/database-tests/internal/core/migration"
	"github.com/Mo-Nouir/database-tests/internal/core/reconcile"
	"github.com/Mo-Nouir/database-tests/internal/core/transfer"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// setupPostgres starts a disposable PostgreSQL container, applies the
// embedded migrations and returns a connected Store plus its DSN.
func setupPostgres(t *testing.T) (*Store, string) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(dsn, Up))
	require.NoError(t, RunMigrations(dsn, Up), "second run is a no-op")

	pool, err := ConnectDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewStore(pool), dsn
}

func newEngine(t *testing.T, store ledger.Store) *transfer.Engine {
	t.Helper()
	e, err := transfer.New(store, lock.NewKeyedMutex(), transfer.DefaultPolicy(), transfer.WithLogger(discard))
	require.NoError(t, err)
	return e
}

func TestIntegration_Store(t *testing.T) {
	store, dsn := setupPostgres(t)
	ctx := context.Background()
	engine := newEngine(t, store)

	for _, a := range []struct {
		id, cur string
		bal     int64
	}{{"ACC100", "USD", 1000}, {"ACC200", "USD", 500}, {"ACC300", "EUR", 0}} {
		_, err := engine.CreateAccount(ctx, a.id, a.cur, a.bal)
		require.NoError(t, err)
	}

	t.Run("duplicate account", func(t *testing.T) {
		_, err := engine.CreateAccount(ctx, "ACC100", "USD", 0)
		assert.ErrorIs(t, err, domain.ErrAccountExists)
	})

	t.Run("usd scenario", func(t *testing.T) {
		tx, err := engine.ExecuteTransfer(ctx, transfer.TransferRequest{
			TransactionID: "T1", From: "ACC100", To: "ACC200", Amount: 300, Currency: "USD",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, tx.Status)

		from, _ := store.GetAccount(ctx, "ACC100")
		to, _ := store.GetAccount(ctx, "ACC200")
		assert.Equal(t, int64(700), from.Balance)
		assert.Equal(t, int64(800), to.Balance)

		stored, err := store.GetTransaction(ctx, "T1")
		require.NoError(t, err)
		assert.True(t, stored.CreatedAt.Equal(tx.CreatedAt))
		assert.Nil(t, stored.ExchangeRate)
	})

	t.Run("fx scenario keeps exact rate", func(t *testing.T) {
		rate := decimal.RequireFromString("0.9012345678")
		_, err := engine.ExecuteTransfer(ctx, transfer.TransferRequest{
			TransactionID: "T2", From: "ACC100", To: "ACC300", Amount: 100, Currency: "USD", ExchangeRate: &rate,
		})
		require.NoError(t, err)

		stored, err := store.GetTransaction(ctx, "T2")
		require.NoError(t, err)
		require.NotNil(t, stored.ExchangeRate)
		assert.True(t, stored.ExchangeRate.Equal(rate))
		assert.Equal(t, int64(90), stored.CreditedAmount)
	})

	t.Run("duplicate transaction id leaves balances", func(t *testing.T) {
		before, err := store.Snapshot(ctx)
		require.NoError(t, err)

		err = store.Apply(ctx, []ledger.AccountUpdate{
			{AccountID: "ACC100", ExpectedBalance: 600, NewBalance: 500},
			{AccountID: "ACC200", ExpectedBalance: 800, NewBalance: 900},
		}, domain.Transaction{
			ID: "T1", FromAccount: "ACC100", ToAccount: "ACC200", Amount: 100, CreditedAmount: 100,
			Currency: domain.USD, Status: domain.StatusCompleted, CreatedAt: time.Now().UTC(), CompletedAt: ptr(time.Now().UTC()),
		})
		require.ErrorIs(t, err, domain.ErrDuplicateTransactionID)

		after, err := store.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Accounts, after.Accounts)
		assert.Len(t, after.Transactions, len(before.Transactions))
	})

	t.Run("stale expected balance rolls back", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		err := store.Apply(ctx, []ledger.AccountUpdate{
			{AccountID: "ACC100", ExpectedBalance: 1, NewBalance: 0},
			{AccountID: "ACC200", ExpectedBalance: 800, NewBalance: 801},
		}, domain.Transaction{
			ID: "T-stale", FromAccount: "ACC100", ToAccount: "ACC200", Amount: 1, CreditedAmount: 1,
			Currency: domain.USD, Status: domain.StatusCompleted, CreatedAt: now, CompletedAt: &now,
		})
		require.ErrorIs(t, err, domain.ErrConcurrentModification)

		_, err = store.GetTransaction(ctx, "T-stale")
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})

	t.Run("concurrent transfers conserve money", func(t *testing.T) {
		var g errgroup.Group
		for i := 0; i < 20; i++ {
			g.Go(func() error {
				_, err := engine.ExecuteTransfer(ctx, transfer.TransferRequest{
					From: "ACC200", To: "ACC100", Amount: 10, Currency: "USD",
				})
				return err
			})
		}
		require.NoError(t, g.Wait())

		r, err := reconcile.New(store, discard, nil).Reconcile(ctx)
		require.NoError(t, err)
		assert.True(t, r.Clean(), "divergences: %+v", r.Divergences)
	})

	t.Run("history and sums", func(t *testing.T) {
		page, err := engine.ListTransactions(ctx, "ACC100", transfer.ListOptions{Limit: 5})
		require.NoError(t, err)
		assert.Len(t, page.Transactions, 5)
		require.NotEmpty(t, page.NextCursor)

		rest, err := engine.ListTransactions(ctx, "ACC100", transfer.ListOptions{Limit: 100, Cursor: page.NextCursor})
		require.NoError(t, err)
		assert.Len(t, rest.Transactions, 22-5)
		assert.Empty(t, rest.NextCursor)

		totals, err := engine.SumAmount(ctx, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []domain.CurrencyTotal{{Currency: domain.USD, Amount: 300 + 100 + 200, Count: 22}}, totals)
	})

	t.Run("deactivated account cannot move", func(t *testing.T) {
		_, err := engine.DeactivateAccount(ctx, "ACC300")
		require.NoError(t, err)
		_, err = engine.ExecuteTransfer(ctx, transfer.TransferRequest{From: "ACC100", To: "ACC300", Amount: 1, Currency: "USD", ExchangeRate: decimalPtr("1.2")})
		assert.ErrorIs(t, err, domain.ErrAccountInactive)
	})

	t.Run("migration against staging table and legacy database", func(t *testing.T) {
		_, err := store.db.Exec(ctx, `
			CREATE TABLE staging_transactions AS SELECT * FROM transactions;
			INSERT INTO staging_transactions SELECT * FROM transactions WHERE transaction_id = 'T1';
			CREATE TABLE legacy_transactions (transaction_id TEXT);
			INSERT INTO legacy_transactions SELECT transaction_id FROM transactions;
			INSERT INTO legacy_transactions VALUES ('LEGACY-ONLY');
		`)
		require.NoError(t, err)

		src, err := legacy.OpenPostgres(ctx, dsn, "legacy_transactions")
		require.NoError(t, err)
		defer src.Close()

		v := migration.NewValidator(NewMigrationTarget(store.db, "public.staging_transactions"), discard)
		report, err := v.Validate(ctx, src)
		require.NoError(t, err)

		assert.False(t, report.CountMismatch)
		assert.Equal(t, []string{"T1"}, report.DuplicateTransactionIDs)
		assert.Equal(t, []string{"LEGACY-ONLY"}, report.MissingFromLedger)
		assert.Empty(t, report.OrphanTransactions)
		assert.Empty(t, report.MissingExchangeRate)
	})

	t.Run("migration against legacy-shaped staging table", func(t *testing.T) {
		_, err := store.db.Exec(ctx, `
			CREATE TABLE staging_narrow (
				transaction_id TEXT,
				from_account   TEXT,
				to_account     TEXT,
				currency       TEXT,
				exchange_rate  NUMERIC
			);
			INSERT INTO staging_narrow VALUES
				('N1', 'ACC100', 'ACC200', 'USD', NULL),
				('N2', 'ACC100', 'ACC300', 'USD', NULL),
				('N3', 'ACC100', 'GONE', 'USD', NULL);
		`)
		require.NoError(t, err)

		target := NewMigrationTarget(store.db, "staging_narrow")
		migrated, err := target.MigratedTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, migrated, 3)
		accounts, err := target.Accounts(ctx)
		require.NoError(t, err)

		report := migration.Compare([]string{"N1", "N2", "N3"}, migrated, accounts)
		assert.Equal(t, []string{"N3"}, report.OrphanTransactions)
		assert.Equal(t, []string{"N2"}, report.MissingExchangeRate)
		assert.Empty(t, report.MissingFromLedger)
	})

	t.Run("full page keeps a cursor", func(t *testing.T) {
		_, err := engine.CreateAccount(ctx, "ACC400", "USD", 0)
		require.NoError(t, err)
		_, err = engine.CreateAccount(ctx, "ACC500", "USD", 0)
		require.NoError(t, err)

		_, err = store.db.Exec(ctx, `
			INSERT INTO transactions (transaction_id, from_account, to_account, amount, credited_amount,
				currency, status, created_at, completed_at)
			SELECT 'BULK-' || lpad(g::text, 4, '0'), 'ACC400', 'ACC500', 1, 1, 'USD', 'completed',
				now() - make_interval(secs => 1000 - g), now() - make_interval(secs => 1000 - g)
			FROM generate_series(0, $1::int) AS g`, ledger.MaxPageSize)
		require.NoError(t, err)

		first, err := engine.ListTransactions(ctx, "ACC400", transfer.ListOptions{Limit: ledger.MaxPageSize})
		require.NoError(t, err)
		assert.Len(t, first.Transactions, ledger.MaxPageSize)
		require.NotEmpty(t, first.NextCursor)

		rest, err := engine.ListTransactions(ctx, "ACC400", transfer.ListOptions{Limit: ledger.MaxPageSize, Cursor: first.NextCursor})
		require.NoError(t, err)
		require.Len(t, rest.Transactions, 1)
		assert.Equal(t, "BULK-0000", rest.Transactions[0].ID)
		assert.Empty(t, rest.NextCursor)
	})
}

func TestIntegration_MigrateDown(t *testing.T) {
	_, dsn := setupPostgres(t)
	require.NoError(t, RunMigrations(dsn, Down))
	assert.Error(t, RunMigrations(dsn, Direction("sideways")))
}

func ptr[T any](v T) *T { return &v }

func decimalPtr(s string) *decimal.Decimal { return ptr(decimal.RequireFromString(s)) }
