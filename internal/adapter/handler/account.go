package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Mo-Nouir/database-tests/internal/core/transfer"
)

type AccountHandler struct {
	Engine *transfer.Engine
}

// CreateAccountRequest defines what the caller sends us
type CreateAccountRequest struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
	Balance   int64  `json:"balance"` // Minor units!
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
	Display   string `json:"display"`
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid account body", "error", err)
		return badRequest(c, "Invalid request body")
	}

	account, err := h.Engine.CreateAccount(c.Context(), req.AccountID, req.Currency, req.Balance)
	if err != nil {
		return writeError(c, err)
	}

	slog.Info("✅ Account Created", "account_id", account.ID, "currency", account.Currency)
	return c.Status(http.StatusCreated).JSON(account)
}

func (h *AccountHandler) DeactivateAccount(c *fiber.Ctx) error {
	account, err := h.Engine.DeactivateAccount(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(account)
}

func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	account, err := h.Engine.GetAccount(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(account)
}

func (h *AccountHandler) GetBalance(c *fiber.Ctx) error {
	id := c.Params("id")
	balance, err := h.Engine.GetBalance(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(BalanceResponse{
		AccountID: id,
		Balance:   balance.Amount,
		Currency:  string(balance.Currency),
		Display:   balance.String(),
	})
}

// ListTransactions serves /accounts/:id/transactions?since=&limit=&cursor=
func (h *AccountHandler) ListTransactions(c *fiber.Ctx) error {
	var opts transfer.ListOptions

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return badRequest(c, "since must be an RFC 3339 timestamp")
		}
		opts.Since = &since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		opts.Limit = limit
	}
	opts.Cursor = c.Query("cursor")

	page, err := h.Engine.ListTransactions(c.Context(), c.Params("id"), opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}
