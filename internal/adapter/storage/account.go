package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `account_id, balance, opening_balance, currency, status, created_at`

func (r *AccountRepository) CreateAccount(ctx context.Context, acc domain.Account) error {
	query := `
		INSERT INTO accounts (account_id, balance, opening_balance, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		acc.ID, acc.Balance, acc.OpeningBalance, string(acc.Currency), string(acc.Status), acc.CreatedAt,
	)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrAccountExists, acc.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return getAccount(ctx, r.db, id)
}

func getAccount(ctx context.Context, q querier, id string) (domain.Account, error) {
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	if err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

func (r *AccountRepository) SetAccountStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET status = $1 WHERE account_id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return nil
}

func (r *AccountRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return listAccounts(ctx, r.db)
}

func listAccounts(ctx context.Context, q querier) ([]domain.Account, error) {
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var acc domain.Account
	var currency, status string
	if err := row.Scan(&acc.ID, &acc.Balance, &acc.OpeningBalance, &currency, &status, &acc.CreatedAt); err != nil {
		return domain.Account{}, err
	}
	acc.Currency = domain.Currency(currency)
	acc.Status = domain.AccountStatus(status)
	acc.CreatedAt = acc.CreatedAt.UTC()
	return acc, nil
}
