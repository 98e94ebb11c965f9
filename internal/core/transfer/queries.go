package transfer

import (
	"context"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
)

type ListOptions struct {
	Since  *time.Time
	Limit  int
	Cursor string
}

// TransactionPage is one page of an account's history, newest first.
// NextCursor is empty on the last page.
type TransactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

func (e *Engine) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

// ListTransactions returns transactions that debit or credit the account,
// ordered by created_at then transaction id, both descending.
func (e *Engine) ListTransactions(ctx context.Context, accountID string, opts ListOptions) (TransactionPage, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return TransactionPage{}, err
	}

	page := ledger.Page{Since: opts.Since, Limit: ledger.NormalizeLimit(opts.Limit)}
	if opts.Cursor != "" {
		cur, err := ledger.DecodeCursor(opts.Cursor)
		if err != nil {
			return TransactionPage{}, err
		}
		page.After = &cur
	}

	limit := page.Limit
	page.Limit = limit + 1
	txs, err := e.store.ListTransactions(ctx, accountID, page)
	if err != nil {
		return TransactionPage{}, err
	}

	out := TransactionPage{Transactions: txs}
	if len(txs) > limit {
		out.Transactions = txs[:limit]
		next, err := ledger.CursorFor(txs[limit-1]).Encode()
		if err != nil {
			return TransactionPage{}, err
		}
		out.NextCursor = next
	}
	if out.Transactions == nil {
		out.Transactions = []domain.Transaction{}
	}
	return out, nil
}

// SumAmount totals the amounts of transactions created at or after since,
// grouped by currency.
func (e *Engine) SumAmount(ctx context.Context, since time.Time) ([]domain.CurrencyTotal, error) {
	totals, err := e.store.SumAmount(ctx, since)
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = []domain.CurrencyTotal{}
	}
	return totals, nil
}
