package handler

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Mo-Nouir/database-tests/internal/core/migration"
	"github.com/Mo-Nouir/database-tests/internal/core/reconcile"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Report, error)
}

// OpsHandler serves the operator-only reconciliation and migration checks.
// Findings are returned with 200; only a failure to run is an error.
type OpsHandler struct {
	Reconciler Reconciler
	Validator  *migration.Validator
	Legacy     migration.LegacySource
}

func (h *OpsHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.Reconciler.Reconcile(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"clean": report.Clean(), "report": report})
}

func (h *OpsHandler) ValidateMigration(c *fiber.Ctx) error {
	if h.Validator == nil || h.Legacy == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(errorResponse{
			Error: "no legacy source configured",
			Code:  "migration_source_unavailable",
		})
	}

	report, err := h.Validator.Validate(c.Context(), h.Legacy)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"passed": report.Passed(), "report": report})
}
