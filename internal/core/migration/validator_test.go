package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticLegacy struct {
	ids []string
	err error
}

func (s staticLegacy) TransactionIDs(context.Context) ([]string, error) { return s.ids, s.err }

type staticTarget struct {
	txs      []domain.Transaction
	accounts []domain.Account
}

func (s staticTarget) MigratedTransactions(context.Context) ([]domain.Transaction, error) {
	return s.txs, nil
}

func (s staticTarget) Accounts(context.Context) ([]domain.Account, error) { return s.accounts, nil }

var baseAccounts = []domain.Account{
	{ID: "ACC100", Currency: domain.USD},
	{ID: "ACC200", Currency: domain.USD},
	{ID: "ACC300", Currency: domain.EUR},
}

func usd(id, from, to string) domain.Transaction {
	return domain.Transaction{ID: id, FromAccount: from, ToAccount: to, Amount: 100, CreditedAmount: 100, Currency: domain.USD}
}

// 10,000 legacy rows against 10,000 migrated rows where one id was written twice.
func TestValidate_MigrationScenario(t *testing.T) {
	const n = 10_000
	legacy := make([]string, n)
	migrated := make([]domain.Transaction, n)
	for i := 0; i < n; i++ {
		legacy[i] = fmt.Sprintf("L%05d", i)
		migrated[i] = usd(legacy[i], "ACC100", "ACC200")
	}
	migrated[n-1].ID = "L00042"

	v := NewValidator(staticTarget{txs: migrated, accounts: baseAccounts}, discard)
	report, err := v.Validate(context.Background(), staticLegacy{ids: legacy})
	require.NoError(t, err)

	assert.False(t, report.CountMismatch)
	assert.Equal(t, n, report.LegacyCount)
	assert.Equal(t, n, report.MigratedCount)
	assert.Equal(t, []string{"L00042"}, report.DuplicateTransactionIDs)
	assert.Equal(t, []string{"L09999"}, report.MissingFromLedger)
	assert.Empty(t, report.OrphanTransactions)
	assert.Empty(t, report.MissingExchangeRate)
	assert.False(t, report.Passed())
	assert.False(t, report.RanAt.IsZero())
}

func TestCompare(t *testing.T) {
	r := decimal.RequireFromString("0.9")
	fx := domain.Transaction{ID: "FX-OK", FromAccount: "ACC100", ToAccount: "ACC300", Amount: 100, CreditedAmount: 90, Currency: domain.USD, ExchangeRate: &r}
	fxNoRate := fx
	fxNoRate.ID, fxNoRate.ExchangeRate = "FX-NORATE", nil
	wrongCurrency := usd("CUR-NORATE", "ACC100", "ACC200")
	wrongCurrency.Currency = domain.GBP

	tests := []struct {
		name     string
		legacy   []string
		migrated []domain.Transaction
		check    func(t *testing.T, r Report)
	}{
		{
			name:     "clean migration passes",
			legacy:   []string{"T1", "T2", "FX-OK"},
			migrated: []domain.Transaction{usd("T1", "ACC100", "ACC200"), usd("T2", "ACC200", "ACC100"), fx},
			check: func(t *testing.T, r Report) {
				assert.True(t, r.Passed())
				assert.Equal(t, []string{}, r.DuplicateTransactionIDs)
			},
		},
		{
			name:     "count mismatch",
			legacy:   []string{"T1", "T2"},
			migrated: []domain.Transaction{usd("T1", "ACC100", "ACC200")},
			check: func(t *testing.T, r Report) {
				assert.True(t, r.CountMismatch)
				assert.Equal(t, []string{"T2"}, r.MissingFromLedger)
			},
		},
		{
			name:     "orphans sorted and de-duplicated",
			legacy:   []string{"T2", "T1", "T1"},
			migrated: []domain.Transaction{usd("T2", "GHOST", "ACC200"), usd("T1", "ACC100", "NOWHERE"), usd("T1", "ACC100", "NOWHERE")},
			check: func(t *testing.T, r Report) {
				assert.Equal(t, []string{"T1", "T2"}, r.OrphanTransactions)
				assert.Equal(t, []string{"T1"}, r.DuplicateTransactionIDs)
			},
		},
		{
			name:     "fx rows without rate",
			legacy:   []string{"FX-OK", "FX-NORATE", "CUR-NORATE"},
			migrated: []domain.Transaction{fx, fxNoRate, wrongCurrency},
			check: func(t *testing.T, r Report) {
				assert.Equal(t, []string{"CUR-NORATE", "FX-NORATE"}, r.MissingExchangeRate)
				assert.False(t, r.Passed())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Compare(tt.legacy, tt.migrated, baseAccounts))
		})
	}
}

func TestValidate_SourceError(t *testing.T) {
	v := NewValidator(staticTarget{}, discard)
	_, err := v.Validate(context.Background(), staticLegacy{err: errors.New("file not found")})
	assert.ErrorContains(t, err, "file not found")
}
