package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mo-Nouir/database-tests/internal/adapter/middleware"
	"github.com/Mo-Nouir/database-tests/internal/core/migration"
	"github.com/Mo-Nouir/database-tests/internal/core/telemetry"
	"github.com/Mo-Nouir/database-tests/internal/core/transfer"
)

type Deps struct {
	Engine     *transfer.Engine
	Reconciler Reconciler
	Validator  *migration.Validator
	Legacy     migration.LegacySource

	// OperatorTokenHash is the SHA256 hex of the operator token. Empty
	// disables /v1/ops.
	OperatorTokenHash string

	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer
}

func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Metrics != nil {
		app.Use(middleware.Metrics(d.Metrics))
	}
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	accounts := &AccountHandler{Engine: d.Engine}
	transactions := &TransactionHandler{Engine: d.Engine}
	ops := &OpsHandler{Reconciler: d.Reconciler, Validator: d.Validator, Legacy: d.Legacy}

	api := app.Group("/v1")

	api.Post("/accounts", accounts.CreateAccount)
	api.Get("/accounts/:id", accounts.GetAccount)
	api.Post("/accounts/:id/deactivate", accounts.DeactivateAccount)
	api.Get("/accounts/:id/balance", accounts.GetBalance)
	api.Get("/accounts/:id/transactions", accounts.ListTransactions)

	api.Post("/transfers", middleware.Idempotency(), transactions.Transfer)
	api.Get("/transactions/sum", transactions.SumAmount)
	api.Get("/transactions/:id", transactions.GetTransaction)

	private := api.Group("/ops", middleware.OperatorOnly(d.OperatorTokenHash))
	private.Get("/reconciliation", ops.Reconcile)
	private.Post("/migration/validate", ops.ValidateMigration)
}
