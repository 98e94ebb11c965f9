// Package memstore is an in-memory ledger.Store. With a journal path it
// appends every mutation to a JSON-lines file and fsyncs before acknowledging,
// so reopening the same path restores the committed state.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
)

// Store is safe for concurrent use. Values handed in or out are copies.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	txs      map[string]domain.Transaction
	order    []string
	journal  *journal
	now      func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// New returns a volatile store.
func New() *Store {
	return &Store{
		accounts: make(map[string]domain.Account),
		txs:      make(map[string]domain.Transaction),
		now:      time.Now,
	}
}

// Open returns a store backed by the journal at path, replaying whatever it
// already holds.
func Open(path string) (*Store, error) {
	s := New()
	j, err := openJournal(path, s.replay)
	if err != nil {
		return nil, err
	}
	s.journal = j
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.close()
	s.journal = nil
	return err
}

func (s *Store) CreateAccount(ctx context.Context, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAccountExists, account.ID)
	}
	if err := s.write(entry{Op: opCreateAccount, Account: &account}); err != nil {
		return err
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return account, nil
}

func (s *Store) SetAccountStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	if err := s.write(entry{Op: opSetStatus, AccountID: id, Status: status}); err != nil {
		return err
	}
	account.Status = status
	s.accounts[id] = account
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
	}
	return copyTx(tx), nil
}

// Apply checks every guard before touching state, then journals, then
// mutates. A failed journal write leaves the maps untouched.
func (s *Store) Apply(ctx context.Context, updates []ledger.AccountUpdate, tx domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTransactionID, tx.ID)
	}
	for _, u := range updates {
		account, ok := s.accounts[u.AccountID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, u.AccountID)
		}
		if !account.Active() {
			return fmt.Errorf("%w: %s", domain.ErrAccountInactive, u.AccountID)
		}
		if account.Balance != u.ExpectedBalance {
			return fmt.Errorf("%w: %s holds %d, expected %d",
				domain.ErrConcurrentModification, u.AccountID, account.Balance, u.ExpectedBalance)
		}
		if u.NewBalance < 0 {
			return fmt.Errorf("%w: %s", domain.ErrNegativeBalanceRejected, u.AccountID)
		}
	}

	tx = copyTx(tx)
	if err := s.write(entry{Op: opApply, Updates: updates, Transaction: &tx}); err != nil {
		return err
	}
	s.apply(updates, tx)
	return nil
}

func (s *Store) apply(updates []ledger.AccountUpdate, tx domain.Transaction) {
	for _, u := range updates {
		account := s.accounts[u.AccountID]
		account.Balance = u.NewBalance
		s.accounts[u.AccountID] = account
	}
	s.txs[tx.ID] = tx
	s.order = append(s.order, tx.ID)
}

func (s *Store) Snapshot(ctx context.Context) (ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := ledger.Snapshot{
		Accounts:     make([]domain.Account, 0, len(s.accounts)),
		Transactions: make([]domain.Transaction, 0, len(s.order)),
		TakenAt:      s.now().UTC(),
	}
	for _, account := range s.accounts {
		snap.Accounts = append(snap.Accounts, account)
	}
	slices.SortFunc(snap.Accounts, func(a, b domain.Account) int { return cmp.Compare(a.ID, b.ID) })
	for _, id := range s.order {
		snap.Transactions = append(snap.Transactions, copyTx(s.txs[id]))
	}
	return snap, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, page ledger.Page) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, id := range s.order {
		tx := s.txs[id]
		if !tx.Touches(accountID) {
			continue
		}
		if page.Since != nil && tx.CreatedAt.Before(*page.Since) {
			continue
		}
		if page.After != nil && !page.After.Before(tx) {
			continue
		}
		out = append(out, copyTx(tx))
	}

	slices.SortFunc(out, newestFirst)
	if n := page.RowLimit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) SumAmount(ctx context.Context, since time.Time) ([]domain.CurrencyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCurrency := make(map[domain.Currency]*domain.CurrencyTotal)
	for _, tx := range s.txs {
		if tx.CreatedAt.Before(since) {
			continue
		}
		total, ok := byCurrency[tx.Currency]
		if !ok {
			total = &domain.CurrencyTotal{Currency: tx.Currency}
			byCurrency[tx.Currency] = total
		}
		total.Amount += tx.Amount
		total.Count++
	}

	out := make([]domain.CurrencyTotal, 0, len(byCurrency))
	for _, total := range byCurrency {
		out = append(out, *total)
	}
	slices.SortFunc(out, func(a, b domain.CurrencyTotal) int { return cmp.Compare(a.Currency, b.Currency) })
	return out, nil
}

// MigratedTransactions exposes every stored transaction to the migration validator.
func (s *Store) MigratedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Transactions, nil
}

func (s *Store) Accounts(ctx context.Context) ([]domain.Account, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Accounts, nil
}

// Import loads already-completed transactions without touching balances or
// checking guards. It exists to stage legacy data for migration validation;
// duplicates are kept so the validator can report them.
func (s *Store) Import(ctx context.Context, txs ...domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		tx = copyTx(tx)
		if err := s.write(entry{Op: opImport, Transaction: &tx}); err != nil {
			return err
		}
		s.importTx(tx)
	}
	return nil
}

func (s *Store) importTx(tx domain.Transaction) {
	key := tx.ID
	if _, dup := s.txs[key]; dup {
		key = fmt.Sprintf("%s#%d", tx.ID, len(s.order))
	}
	s.txs[key] = tx
	s.order = append(s.order, key)
}

func (s *Store) write(e entry) error {
	if s.journal == nil {
		return nil
	}
	return s.journal.append(e)
}

func newestFirst(a, b domain.Transaction) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func copyTx(tx domain.Transaction) domain.Transaction {
	if tx.ExchangeRate != nil {
		rate := *tx.ExchangeRate
		tx.ExchangeRate = &rate
	}
	if tx.CompletedAt != nil {
		at := *tx.CompletedAt
		tx.CompletedAt = &at
	}
	return tx
}
