package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mo-Nouir/database-tests/internal/adapter/storage/memstore"
	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
	"github.com/Mo-Nouir/database-tests/internal/core/lock"
	"github.com/Mo-Nouir/database-tests/internal/core/telemetry"
	"github.com/Mo-Nouir/database-tests/internal/core/transfer"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func account(id string, balance, opening int64) domain.Account {
	return domain.Account{ID: id, Balance: balance, OpeningBalance: opening, Currency: domain.USD, Status: domain.AccountActive}
}

func tx(id, from, to string, amount, credited int64) domain.Transaction {
	return domain.Transaction{ID: id, FromAccount: from, ToAccount: to, Amount: amount, CreditedAmount: credited, Currency: domain.USD, Status: domain.StatusCompleted}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name        string
		snap        ledger.Snapshot
		divergences []Divergence
		orphans     []string
	}{
		{
			name: "consistent ledger",
			snap: ledger.Snapshot{
				Accounts:     []domain.Account{account("ACC100", 700, 1000), account("ACC200", 800, 500)},
				Transactions: []domain.Transaction{tx("T1", "ACC100", "ACC200", 300, 300)},
			},
			divergences: []Divergence{},
			orphans:     []string{},
		},
		{
			name: "cross currency credits use credited amount",
			snap: ledger.Snapshot{
				Accounts: []domain.Account{
					account("USD1", 0, 10000),
					{ID: "EUR1", Balance: 9000, Currency: domain.EUR, Status: domain.AccountActive},
				},
				Transactions: []domain.Transaction{tx("FX", "USD1", "EUR1", 10000, 9000)},
			},
			divergences: []Divergence{},
			orphans:     []string{},
		},
		{
			name: "tampered balances sorted by id",
			snap: ledger.Snapshot{
				Accounts: []domain.Account{
					account("ACC300", 5, 0),
					account("ACC100", 650, 1000),
					account("ACC200", 800, 500),
				},
				Transactions: []domain.Transaction{tx("T1", "ACC100", "ACC200", 300, 300)},
			},
			divergences: []Divergence{
				{AccountID: "ACC100", Currency: domain.USD, StoredBalance: 650, ComputedBalance: 700},
				{AccountID: "ACC300", Currency: domain.USD, StoredBalance: 5, ComputedBalance: 0},
			},
			orphans: []string{},
		},
		{
			name: "transaction naming unknown account",
			snap: ledger.Snapshot{
				Accounts:     []domain.Account{account("ACC100", 900, 1000)},
				Transactions: []domain.Transaction{tx("T9", "ACC100", "GHOST", 100, 100)},
			},
			divergences: []Divergence{},
			orphans:     []string{"T9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compare(tt.snap)
			assert.Equal(t, tt.divergences, r.Divergences)
			assert.Equal(t, tt.orphans, r.OrphanTransactions)
			assert.Equal(t, len(tt.snap.Accounts), r.CheckedAccounts)
			assert.Equal(t, len(tt.snap.Transactions), r.CheckedTransactions)
			assert.Equal(t, len(tt.divergences) == 0 && len(tt.orphans) == 0, r.Clean())
		})
	}
}

func TestDivergenceDelta(t *testing.T) {
	assert.Equal(t, int64(-50), Divergence{StoredBalance: 650, ComputedBalance: 700}.Delta())
}

// Balances produced by the transfer engine always reconcile.
func TestReconcile_AfterEngineTransfers(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine, err := transfer.New(store, lock.NewKeyedMutex(), transfer.DefaultPolicy(), transfer.WithLogger(discard))
	require.NoError(t, err)

	for _, a := range []struct {
		id, cur string
		bal     int64
	}{{"ACC100", "USD", 10000}, {"ACC200", "USD", 500}, {"ACC300", "EUR", 0}} {
		_, err := engine.CreateAccount(ctx, a.id, a.cur, a.bal)
		require.NoError(t, err)
	}
	rate := decimal.RequireFromString("0.9")
	for _, req := range []transfer.TransferRequest{
		{From: "ACC100", To: "ACC200", Amount: 300, Currency: "USD"},
		{From: "ACC200", To: "ACC100", Amount: 50, Currency: "USD"},
		{From: "ACC100", To: "ACC300", Amount: 333, Currency: "USD", ExchangeRate: &rate},
	} {
		_, err := engine.ExecuteTransfer(ctx, req)
		require.NoError(t, err)
	}

	reg := prometheus.NewRegistry()
	r, err := New(store, discard, telemetry.NewMetrics(reg)).Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, r.Clean())
	assert.Equal(t, 3, r.CheckedAccounts)
	assert.Equal(t, 3, r.CheckedTransactions)
	assert.False(t, r.RanAt.IsZero())
}

// Reconcile reads, it never writes.
func TestReconcile_DoesNotRepair(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.CreateAccount(ctx, account("ACC100", 1000, 900)))

	e := New(store, discard, nil)
	r, err := e.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, r.Divergences, 1)

	a, err := store.GetAccount(ctx, "ACC100")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), a.Balance)
}

type brokenStore struct{ ledger.Store }

func (brokenStore) Snapshot(context.Context) (ledger.Snapshot, error) {
	return ledger.Snapshot{}, errors.New("connection refused")
}

func TestReconcile_SnapshotError(t *testing.T) {
	_, err := New(brokenStore{}, discard, nil).Reconcile(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestReconcile_UsesSnapshotTime(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Compare(ledger.Snapshot{TakenAt: at})
	assert.Equal(t, at, r.SnapshotAt)
	assert.True(t, r.Clean())
}
