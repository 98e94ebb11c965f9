package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrCurrencyMismatchWithoutRate),
		errors.Is(err, domain.ErrUnexpectedExchangeRate),
		errors.Is(err, domain.ErrInvalidExchangeRate),
		errors.Is(err, domain.ErrNegativeBalanceRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDuplicateTransactionID),
		errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrAmountOutOfRange),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrMissingAccountID),
		errors.Is(err, ledger.ErrInvalidCursor):
		return http.StatusBadRequest
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a ledger error to its HTTP status. Internal errors are
// logged and their message is not echoed to the caller.
func writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	code := domain.Code(err)
	if errors.Is(err, ledger.ErrInvalidCursor) {
		code = "invalid_cursor"
	}

	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		slog.Error("❌ request failed", "error", err, "method", c.Method(), "path", c.Path())
		msg = "internal error"
	case http.StatusServiceUnavailable:
		c.Set(fiber.HeaderRetryAfter, "1")
	}

	return c.Status(status).JSON(errorResponse{Error: msg, Code: code})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(http.StatusBadRequest).JSON(errorResponse{Error: msg, Code: "invalid_request"})
}
