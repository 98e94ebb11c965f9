package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/migration"
)

// MigrationTarget exposes migrated rows to the migration validator. The table
// may be a staging copy without a primary key, so repeated ids survive. Only
// transaction_id, from_account, to_account, currency and exchange_rate are
// read; any other columns are ignored.
type MigrationTarget struct {
	db    *pgxpool.Pool
	table string
}

var _ migration.Target = (*MigrationTarget)(nil)

func NewMigrationTarget(db *pgxpool.Pool, table string) *MigrationTarget {
	if table == "" {
		table = "transactions"
	}
	return &MigrationTarget{db: db, table: table}
}

func (t *MigrationTarget) MigratedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := t.db.Query(ctx, `
		SELECT transaction_id, from_account, to_account, currency, exchange_rate::text
		FROM `+pgx.Identifier(splitTable(t.table)).Sanitize()+`
		ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.table, err)
	}
	txs, err := pgx.CollectRows(rows, scanMigratedRow)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.table, err)
	}
	return txs, nil
}

func scanMigratedRow(row pgx.CollectableRow) (domain.Transaction, error) {
	var (
		tx       domain.Transaction
		currency string
		rate     *string
	)
	if err := row.Scan(&tx.ID, &tx.FromAccount, &tx.ToAccount, &currency, &rate); err != nil {
		return domain.Transaction{}, err
	}
	tx.Currency = domain.Currency(strings.TrimSpace(currency))
	if rate != nil {
		d, err := decimal.NewFromString(*rate)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("transaction %s: bad exchange rate %q: %w", tx.ID, *rate, err)
		}
		tx.ExchangeRate = &d
	}
	return tx, nil
}

func (t *MigrationTarget) Accounts(ctx context.Context) ([]domain.Account, error) {
	return listAccounts(ctx, t.db)
}

// splitTable turns "schema.table" into identifier parts for pgx.Identifier.
func splitTable(name string) []string {
	return strings.SplitN(name, ".", 2)
}
