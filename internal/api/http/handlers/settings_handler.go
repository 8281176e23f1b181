package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-engine/internal/api/dto"
	"github.com/spec-kit/triage-engine/internal/service"
	apperrors "github.com/spec-kit/triage-engine/pkg/util/errorutil"
)

// SettingsHandler exposes the runtime SLA policy.
type SettingsHandler struct {
	sla *service.SLAService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(sla *service.SLAService) *SettingsHandler {
	return &SettingsHandler{sla: sla}
}

// GetSLA GET /settings/sla.
func (h *SettingsHandler) GetSLA(c *fiber.Ctx) error {
	policy, err := h.sla.GetPolicy(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SLAPolicyFromDomain(policy)})
}

// UpdateSLA PUT /settings/sla.
func (h *SettingsHandler) UpdateSLA(c *fiber.Ctx) error {
	var req dto.SLAPolicyPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	policy, err := h.sla.UpdatePolicy(c.UserContext(), req.ToDomain())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SLAPolicyFromDomain(policy)})
}
