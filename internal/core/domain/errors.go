package domain

import "errors"

var (
	ErrAccountNotFound             = errors.New("account not found")
	ErrAccountExists               = errors.New("account already exists")
	ErrAccountInactive             = errors.New("account is inactive")
	ErrTransactionNotFound         = errors.New("transaction not found")
	ErrInsufficientBalance         = errors.New("insufficient balance")
	ErrCurrencyMismatch            = errors.New("currency does not match source account")
	ErrCurrencyMismatchWithoutRate = errors.New("currency mismatch without exchange rate")
	ErrUnexpectedExchangeRate      = errors.New("exchange rate given for same-currency transfer")
	ErrInvalidExchangeRate         = errors.New("exchange rate out of supported range")
	ErrDuplicateTransactionID      = errors.New("duplicate transaction id")
	ErrNegativeBalanceRejected     = errors.New("resulting balance would be negative")
	ErrInvalidAmount               = errors.New("amount must be greater than zero")
	ErrInvalidCurrency             = errors.New("invalid currency code")
	ErrAmountOutOfRange            = errors.New("amount out of range")
	ErrSameAccount                 = errors.New("from and to account cannot be the same")
	ErrMissingAccountID            = errors.New("account id is required")
	ErrLockTimeout                 = errors.New("timed out acquiring account lock")
	ErrConcurrentModification      = errors.New("account modified concurrently")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAccountNotFound, "account_not_found"},
	{ErrAccountExists, "account_exists"},
	{ErrAccountInactive, "account_inactive"},
	{ErrTransactionNotFound, "transaction_not_found"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrCurrencyMismatchWithoutRate, "currency_mismatch_without_rate"},
	{ErrCurrencyMismatch, "currency_mismatch"},
	{ErrUnexpectedExchangeRate, "unexpected_exchange_rate"},
	{ErrInvalidExchangeRate, "invalid_exchange_rate"},
	{ErrDuplicateTransactionID, "duplicate_transaction_id"},
	{ErrNegativeBalanceRejected, "negative_balance_rejected"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidCurrency, "invalid_currency"},
	{ErrAmountOutOfRange, "amount_out_of_range"},
	{ErrSameAccount, "same_account"},
	{ErrMissingAccountID, "missing_account_id"},
	{ErrLockTimeout, "lock_timeout"},
	{ErrConcurrentModification, "concurrent_modification"},
}

// Code returns a stable slug for a ledger error, "internal" for anything else.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// IsRetryable reports whether a failed transfer may succeed when retried
// unchanged with the same transaction id.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrConcurrentModification)
}
