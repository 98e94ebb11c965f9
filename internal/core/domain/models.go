package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

type TransactionStatus string

// StatusCompleted is the only status a stored transaction can have.
// Attempts that never commit leave no row behind.
const StatusCompleted TransactionStatus = "completed"

// Account represents a ledger account. Balance is stored in minor units (cents).
type Account struct {
	ID             string        `json:"account_id"`
	Balance        int64         `json:"balance"`
	OpeningBalance int64         `json:"opening_balance"`
	Currency       Currency      `json:"currency"`
	Status         AccountStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (a Account) Active() bool {
	return a.Status == AccountActive
}

// Transaction represents a completed movement of money between two accounts.
//
// Amount is in minor units of Currency (the source account currency).
// CreditedAmount is in minor units of the destination account currency and
// equals Amount unless the transfer crossed currencies.
type Transaction struct {
	ID             string            `json:"transaction_id"`
	FromAccount    string            `json:"from_account"`
	ToAccount      string            `json:"to_account"`
	Amount         int64             `json:"amount"`
	CreditedAmount int64             `json:"credited_amount"`
	Currency       Currency          `json:"currency"`
	ExchangeRate   *decimal.Decimal  `json:"exchange_rate,omitempty"`
	Status         TransactionStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// Touches reports whether the transaction debits or credits the account.
func (t Transaction) Touches(accountID string) bool {
	return t.FromAccount == accountID || t.ToAccount == accountID
}

// CurrencyTotal is an aggregate amount for one currency.
type CurrencyTotal struct {
	Currency Currency `json:"currency"`
	Amount   int64    `json:"amount"`
	Count    int64    `json:"count"`
}
