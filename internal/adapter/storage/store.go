package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
)

// Store is the Postgres ledger.Store.
type Store struct {
	*AccountRepository
	*LedgerRepository
	db *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		AccountRepository: NewAccountRepository(db),
		LedgerRepository:  NewLedgerRepository(db),
		db:                db,
	}
}

// Apply inserts tx and moves every balance in one database transaction.
// Each UPDATE is guarded by the balance the engine read under lock, so a
// writer that bypassed the account locks makes the whole Apply roll back.
func (s *Store) Apply(ctx context.Context, updates []ledger.AccountUpdate, tx domain.Transaction) error {
	dbtx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer dbtx.Rollback(ctx)

	inserted, err := insertTransaction(ctx, dbtx, tx)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTransactionID, tx.ID)
	}

	for _, u := range updates {
		tag, err := dbtx.Exec(ctx, `
			UPDATE accounts SET balance = $1
			WHERE account_id = $2 AND balance = $3 AND status = 'active'`,
			u.NewBalance, u.AccountID, u.ExpectedBalance,
		)
		if pgCode(err) == codeCheckViolation {
			return fmt.Errorf("%w: %s", domain.ErrNegativeBalanceRejected, u.AccountID)
		}
		if err != nil {
			return fmt.Errorf("update balance of %s: %w", u.AccountID, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", domain.ErrConcurrentModification, u.AccountID)
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}

// Snapshot reads all accounts and transactions inside one REPEATABLE READ
// transaction so both lists describe the same instant.
func (s *Store) Snapshot(ctx context.Context) (ledger.Snapshot, error) {
	dbtx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer dbtx.Rollback(ctx)

	var snap ledger.Snapshot
	if err := dbtx.QueryRow(ctx, `SELECT now()`).Scan(&snap.TakenAt); err != nil {
		return ledger.Snapshot{}, err
	}
	snap.TakenAt = snap.TakenAt.UTC()

	if snap.Accounts, err = listAccounts(ctx, dbtx); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("snapshot accounts: %w", err)
	}
	if snap.Transactions, err = listAllTransactions(ctx, dbtx, "transactions"); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("snapshot transactions: %w", err)
	}

	return snap, dbtx.Commit(ctx)
}

func listAllTransactions(ctx context.Context, q querier, table string) ([]domain.Transaction, error) {
	rows, err := q.Query(ctx, `SELECT `+transactionColumns+` FROM `+pgx.Identifier(splitTable(table)).Sanitize()+
		` ORDER BY created_at, transaction_id`)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}
