// Package ledger defines the storage contract the transfer engine, the
// reconciliation engine and the migration validator are written against.
package ledger

import (
	"context"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// AccountUpdate is one balance mutation inside an Apply call.
// ExpectedBalance is the balance the caller read under lock; the store refuses
// the whole Apply if the stored balance no longer matches it.
type AccountUpdate struct {
	AccountID       string
	ExpectedBalance int64
	NewBalance      int64
}

// Snapshot is a consistent view of every account and transaction at one instant.
type Snapshot struct {
	Accounts     []domain.Account
	Transactions []domain.Transaction
	TakenAt      time.Time
}

// Page selects a window of an account's history, newest first.
// Stores return at most Limit rows and do not clamp it further; callers
// probing for a next page ask for one more than they will show.
type Page struct {
	Since *time.Time
	After *Cursor
	Limit int
}

// RowLimit is the row count a store should fetch for this page.
func (p Page) RowLimit() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	return p.Limit
}

// Store is durable keyed storage for accounts and transactions.
//
// Apply is atomic: either every update and the transaction insert become
// visible together or none do. It returns domain.ErrDuplicateTransactionID when
// the transaction id already exists and only returns nil once the write is durable.
type Store interface {
	CreateAccount(ctx context.Context, account domain.Account) error
	GetAccount(ctx context.Context, id string) (domain.Account, error)
	SetAccountStatus(ctx context.Context, id string, status domain.AccountStatus) error

	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	Apply(ctx context.Context, updates []AccountUpdate, tx domain.Transaction) error

	Snapshot(ctx context.Context) (Snapshot, error)
	ListTransactions(ctx context.Context, accountID string, page Page) ([]domain.Transaction, error)
	SumAmount(ctx context.Context, since time.Time) ([]domain.CurrencyTotal, error)
}
