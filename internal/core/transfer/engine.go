// Package transfer is the only mutation path into the ledger. It validates a
// transfer, serialises it against every other transfer touching the same
// accounts and hands the resulting balances to the store in one atomic Apply.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
	"github.com/Mo-Nouir/database-tests/internal/core/lock"
	"github.com/Mo-Nouir/database-tests/internal/core/telemetry"
)

// TransferRequest asks to move Amount minor units of Currency from one account
// to another. ExchangeRate is required when the two accounts hold different
// currencies and is expressed as units of the destination per unit of the source.
type TransferRequest struct {
	TransactionID string           `json:"transaction_id"`
	From          string           `json:"from_account"`
	To            string           `json:"to_account"`
	Amount        int64            `json:"amount"`
	Currency      string           `json:"currency"`
	ExchangeRate  *decimal.Decimal `json:"exchange_rate,omitempty"`
}

type Engine struct {
	store   ledger.Store
	locker  lock.Locker
	policy  Policy
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(telemetry.TracerName) }
}

func New(store ledger.Store, locker lock.Locker, policy Policy, opts ...Option) (*Engine, error) {
	if store == nil || locker == nil {
		return nil, errors.New("transfer engine needs a store and a locker")
	}
	policy, err := policy.validate()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:  store,
		locker: locker,
		policy: policy,
		log:    slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
		tracer: otel.GetTracerProvider().Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// ExecuteTransfer moves money between two accounts and returns the committed
// transaction. On any error the store is left exactly as it was.
func (e *Engine) ExecuteTransfer(ctx context.Context, req TransferRequest) (tx domain.Transaction, err error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "transfer.execute", trace.WithAttributes(
		attribute.String("ledger.from_account", req.From),
		attribute.String("ledger.to_account", req.To),
		attribute.Int64("ledger.amount", req.Amount),
	))
	defer func() {
		outcome := domain.Code(err)
		e.metrics.ObserveTransfer(outcome, e.now().Sub(start))
		span.SetAttributes(attribute.String("ledger.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			e.log.Warn("transfer rejected",
				"transaction_id", req.TransactionID,
				"from", req.From,
				"to", req.To,
				"amount", req.Amount,
				"code", outcome,
				"error", err,
			)
		} else {
			span.SetAttributes(attribute.String("ledger.transaction_id", tx.ID))
			e.log.Info("transfer completed",
				"transaction_id", tx.ID,
				"from", tx.FromAccount,
				"to", tx.ToAccount,
				"amount", tx.Amount,
				"credited", tx.CreditedAmount,
			)
		}
		span.End()
	}()

	currency, err := validateRequest(req)
	if err != nil {
		return domain.Transaction{}, err
	}
	if req.TransactionID == "" {
		req.TransactionID = e.newID()
	}
	createdAt := e.now().UTC().Truncate(time.Microsecond)

	locks, err := e.lockAccounts(ctx, req.From, req.To)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer e.unlock(ctx, locks)

	from, to, err := e.loadActivePair(ctx, req.From, req.To)
	if err != nil {
		return domain.Transaction{}, err
	}

	// Under lock, so a concurrent retry of the same id cannot slip past.
	if _, err := e.store.GetTransaction(ctx, req.TransactionID); err == nil {
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrDuplicateTransactionID, req.TransactionID)
	} else if !errors.Is(err, domain.ErrTransactionNotFound) {
		return domain.Transaction{}, fmt.Errorf("check transaction %s: %w", req.TransactionID, err)
	}

	credited, err := e.creditedAmount(req, currency, from, to)
	if err != nil {
		return domain.Transaction{}, err
	}

	if from.Balance-req.Amount < e.policy.MinimumBalance {
		return domain.Transaction{}, fmt.Errorf("%w: %s has %s, needs %s",
			domain.ErrInsufficientBalance, from.ID,
			domain.NewMoney(from.Balance, from.Currency),
			domain.NewMoney(req.Amount, from.Currency))
	}

	newFrom, err := domain.NewMoney(from.Balance, from.Currency).Subtract(domain.NewMoney(req.Amount, from.Currency))
	if err != nil || newFrom.Amount < 0 {
		return domain.Transaction{}, fmt.Errorf("%w: debit %s", domain.ErrNegativeBalanceRejected, from.ID)
	}
	newTo, err := domain.NewMoney(to.Balance, to.Currency).Add(domain.NewMoney(credited, to.Currency))
	if err != nil || newTo.Amount < 0 {
		return domain.Transaction{}, fmt.Errorf("%w: credit %s", domain.ErrNegativeBalanceRejected, to.ID)
	}

	completedAt := e.now().UTC().Truncate(time.Microsecond)
	if completedAt.Before(createdAt) {
		completedAt = createdAt
	}
	tx = domain.Transaction{
		ID:             req.TransactionID,
		FromAccount:    from.ID,
		ToAccount:      to.ID,
		Amount:         req.Amount,
		CreditedAmount: credited,
		Currency:       currency,
		ExchangeRate:   req.ExchangeRate,
		Status:         domain.StatusCompleted,
		CreatedAt:      createdAt,
		CompletedAt:    &completedAt,
	}

	updates := []ledger.AccountUpdate{
		{AccountID: from.ID, ExpectedBalance: from.Balance, NewBalance: newFrom.Amount},
		{AccountID: to.ID, ExpectedBalance: to.Balance, NewBalance: newTo.Amount},
	}
	if err := e.store.Apply(ctx, updates, tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("apply transfer %s: %w", tx.ID, err)
	}
	return tx, nil
}

func validateRequest(req TransferRequest) (domain.Currency, error) {
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		return "", domain.ErrMissingAccountID
	}
	if req.From == req.To {
		return "", fmt.Errorf("%w: %s", domain.ErrSameAccount, req.From)
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("%w: got %d", domain.ErrInvalidAmount, req.Amount)
	}
	return domain.ParseCurrency(req.Currency)
}

// unlock releases locks even after ctx is cancelled. A failed release is
// logged, not returned: the operation itself already finished.
func (e *Engine) unlock(ctx context.Context, locks *lock.Set) {
	if err := locks.Release(context.WithoutCancel(ctx)); err != nil {
		e.log.Error("failed to release account locks", "keys", locks.Keys(), "error", err)
	}
}

// lockAccounts takes both account locks within the policy's lock timeout.
// Running out of time is reported as ErrLockTimeout unless the caller's own
// context ended first.
func (e *Engine) lockAccounts(ctx context.Context, ids ...string) (*lock.Set, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.policy.LockTimeout)
	defer cancel()

	set, err := lock.AcquireOrdered(lockCtx, e.locker, ids...)
	if err == nil {
		return set, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("acquire account locks: %w", ctx.Err())
	}
	if errors.Is(err, lock.ErrNotAcquired) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", domain.ErrLockTimeout, err)
	}
	return nil, fmt.Errorf("acquire account locks: %w", err)
}

func (e *Engine) loadActivePair(ctx context.Context, fromID, toID string) (domain.Account, domain.Account, error) {
	from, err := e.store.GetAccount(ctx, fromID)
	if err != nil {
		return domain.Account{}, domain.Account{}, fmt.Errorf("from account %s: %w", fromID, err)
	}
	to, err := e.store.GetAccount(ctx, toID)
	if err != nil {
		return domain.Account{}, domain.Account{}, fmt.Errorf("to account %s: %w", toID, err)
	}
	if !from.Active() {
		return domain.Account{}, domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountInactive, fromID)
	}
	if !to.Active() {
		return domain.Account{}, domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountInactive, toID)
	}
	return from, to, nil
}

// creditedAmount applies the currency rule and returns what the destination
// receives in its own minor units.
func (e *Engine) creditedAmount(req TransferRequest, currency domain.Currency, from, to domain.Account) (int64, error) {
	if currency != from.Currency {
		return 0, fmt.Errorf("%w: request is %s, %s holds %s",
			domain.ErrCurrencyMismatch, currency, from.ID, from.Currency)
	}

	if from.Currency == to.Currency {
		if req.ExchangeRate != nil && !req.ExchangeRate.Equal(decimal.NewFromInt(1)) {
			return 0, fmt.Errorf("%w: %s", domain.ErrUnexpectedExchangeRate, req.ExchangeRate)
		}
		return req.Amount, nil
	}

	if req.ExchangeRate == nil || !req.ExchangeRate.IsPositive() {
		return 0, fmt.Errorf("%w: %s to %s", domain.ErrCurrencyMismatchWithoutRate, from.Currency, to.Currency)
	}
	if err := domain.ValidateRate(*req.ExchangeRate); err != nil {
		return 0, err
	}
	credited, err := domain.Convert(req.Amount, from.Currency, to.Currency, *req.ExchangeRate, e.policy.Rounding)
	if err != nil {
		return 0, err
	}
	if credited <= 0 {
		return 0, fmt.Errorf("%w: %s rounds to zero in %s",
			domain.ErrInvalidAmount, domain.NewMoney(req.Amount, from.Currency), to.Currency)
	}
	return credited, nil
}
