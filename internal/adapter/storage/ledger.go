package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
)

// LedgerRepository reads and appends rows of the transactions table.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// exchange_rate is read as text so no precision is lost on the way to decimal.
const transactionColumns = `transaction_id, from_account, to_account, amount, credited_amount,
	currency, exchange_rate::text, status, created_at, completed_at`

func (r *LedgerRepository) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

func getTransaction(ctx context.Context, q querier, id string) (domain.Transaction, error) {
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
	}
	return tx, err
}

// insertTransaction appends tx and reports false if the id was already taken.
func insertTransaction(ctx context.Context, q querier, tx domain.Transaction) (bool, error) {
	var rate *string
	if tx.ExchangeRate != nil {
		s := tx.ExchangeRate.String()
		rate = &s
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO transactions (transaction_id, from_account, to_account, amount, credited_amount,
			currency, exchange_rate, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
		ON CONFLICT (transaction_id) DO NOTHING`,
		tx.ID, tx.FromAccount, tx.ToAccount, tx.Amount, tx.CreditedAmount,
		string(tx.Currency), rate, string(tx.Status), tx.CreatedAt, tx.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListTransactions pages through an account's history newest first using a
// keyset on (created_at, transaction_id).
func (r *LedgerRepository) ListTransactions(ctx context.Context, accountID string, page ledger.Page) ([]domain.Transaction, error) {
	var (
		afterAt *time.Time
		afterID string
	)
	if page.After != nil {
		afterAt, afterID = &page.After.CreatedAt, page.After.ID
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (from_account = $1 OR to_account = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR (created_at, transaction_id) < ($3, $4::text))
		ORDER BY created_at DESC, transaction_id DESC
		LIMIT $5
	`
	rows, err := r.db.Query(ctx, query, accountID, page.Since, afterAt, afterID, page.RowLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (r *LedgerRepository) SumAmount(ctx context.Context, since time.Time) ([]domain.CurrencyTotal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT currency, COALESCE(SUM(amount), 0)::bigint, COUNT(*)
		FROM transactions
		WHERE created_at >= $1
		GROUP BY currency
		ORDER BY currency`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	totals := []domain.CurrencyTotal{}
	for rows.Next() {
		var total domain.CurrencyTotal
		var currency string
		if err := rows.Scan(&currency, &total.Amount, &total.Count); err != nil {
			return nil, err
		}
		total.Currency = domain.Currency(currency)
		totals = append(totals, total)
	}
	return totals, rows.Err()
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		tx               domain.Transaction
		currency, status string
		rate             *string
	)
	err := row.Scan(&tx.ID, &tx.FromAccount, &tx.ToAccount, &tx.Amount, &tx.CreditedAmount,
		&currency, &rate, &status, &tx.CreatedAt, &tx.CompletedAt)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx.Currency = domain.Currency(currency)
	tx.Status = domain.TransactionStatus(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	if tx.CompletedAt != nil {
		at := tx.CompletedAt.UTC()
		tx.CompletedAt = &at
	}
	if rate != nil {
		d, err := decimal.NewFromString(*rate)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("transaction %s: bad exchange rate %q: %w", tx.ID, *rate, err)
		}
		tx.ExchangeRate = &d
	}
	return tx, nil
}
