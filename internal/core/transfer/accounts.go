package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
)

// CreateAccount opens an active account holding initial minor units.
func (e *Engine) CreateAccount(ctx context.Context, id, currency string, initial int64) (domain.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Account{}, domain.ErrMissingAccountID
	}
	cur, err := domain.ParseCurrency(currency)
	if err != nil {
		return domain.Account{}, err
	}
	if initial < 0 {
		return domain.Account{}, fmt.Errorf("%w: initial balance %d", domain.ErrNegativeBalanceRejected, initial)
	}

	account := domain.Account{
		ID:             id,
		Balance:        initial,
		OpeningBalance: initial,
		Currency:       cur,
		Status:         domain.AccountActive,
		CreatedAt:      e.now().UTC().Truncate(time.Microsecond),
	}
	if err := e.store.CreateAccount(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("create account %s: %w", id, err)
	}

	e.log.Info("account created", "account_id", id, "currency", cur, "opening_balance", initial)
	return account, nil
}

// DeactivateAccount marks an account inactive. It waits for the account lock
// so a transfer already in flight finishes first; later transfers see the
// new status when they re-read under lock.
func (e *Engine) DeactivateAccount(ctx context.Context, id string) (domain.Account, error) {
	locks, err := e.lockAccounts(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	defer e.unlock(ctx, locks)

	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if !account.Active() {
		return account, nil
	}

	if err := e.store.SetAccountStatus(ctx, id, domain.AccountInactive); err != nil {
		return domain.Account{}, fmt.Errorf("deactivate account %s: %w", id, err)
	}
	account.Status = domain.AccountInactive

	e.log.Info("account deactivated", "account_id", id)
	return account, nil
}

// GetBalance returns the stored balance of an account.
func (e *Engine) GetBalance(ctx context.Context, id string) (domain.Money, error) {
	account, err := e.store.GetAccount(ctx, id)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.NewMoney(account.Balance, account.Currency), nil
}

func (e *Engine) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return e.store.GetAccount(ctx, id)
}
