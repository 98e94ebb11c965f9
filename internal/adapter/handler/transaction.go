package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Mo-Nouir/database-tests/internal/adapter/middleware"
	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/transfer"
)

type TransactionHandler struct {
	Engine *transfer.Engine
}

// Transfer executes one transfer. A retry with the same transaction id (or
// Idempotency-Key) and the same body returns the stored transaction.
func (h *TransactionHandler) Transfer(c *fiber.Ctx) error {
	var req transfer.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid body")
	}
	if req.TransactionID == "" {
		req.TransactionID = middleware.IdempotencyKey(c)
	}

	tx, err := h.Engine.ExecuteTransfer(c.Context(), req)
	if errors.Is(err, domain.ErrDuplicateTransactionID) {
		return h.replay(c, req, err)
	}
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(tx)
}

func (h *TransactionHandler) replay(c *fiber.Ctx, req transfer.TransferRequest, dupErr error) error {
	stored, err := h.Engine.GetTransaction(c.Context(), req.TransactionID)
	if err != nil {
		return writeError(c, dupErr)
	}
	if !sameTransfer(req, stored) {
		return writeError(c, dupErr)
	}

	slog.Info("🛑 Idempotency Hit! Returning stored transaction", "transaction_id", stored.ID)
	c.Set("X-Idempotency-Hit", "true")
	return c.Status(http.StatusOK).JSON(stored)
}

func sameTransfer(req transfer.TransferRequest, tx domain.Transaction) bool {
	if req.From != tx.FromAccount || req.To != tx.ToAccount || req.Amount != tx.Amount {
		return false
	}
	cur, err := domain.ParseCurrency(req.Currency)
	if err != nil || cur != tx.Currency {
		return false
	}
	switch {
	case req.ExchangeRate == nil && tx.ExchangeRate == nil:
		return true
	case req.ExchangeRate != nil && tx.ExchangeRate != nil:
		return req.ExchangeRate.Equal(*tx.ExchangeRate)
	default:
		return false
	}
}

func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	tx, err := h.Engine.GetTransaction(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(tx)
}

// SumAmount serves /transactions/sum?since=
func (h *TransactionHandler) SumAmount(c *fiber.Ctx) error {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return badRequest(c, "since must be an RFC 3339 timestamp")
		}
		since = t
	}

	totals, err := h.Engine.SumAmount(c.Context(), since)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"since": since, "totals": totals})
}
