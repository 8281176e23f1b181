package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-engine/internal/api/http/handlers"
	"github.com/spec-kit/triage-engine/internal/auth"
	"github.com/spec-kit/triage-engine/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Settings       *handlers.SettingsHandler
	Triage         *handlers.TriageHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	staffOnly := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole()}
	app.Get("/metrics", append(staffOnly, cfg.Triage.Metrics)...)

	settings := app.Group("/settings", staffOnly...)
	settings.Get("/sla", cfg.Settings.GetSLA)
	settings.Put("/sla", auth.RequireRole(domain.UserRoleAdmin), cfg.Settings.UpdateSLA)

	internal := app.Group("/internal", staffOnly...)
	internal.Post("/tickets/:id/triage", cfg.Triage.Enqueue)
	internal.Post("/sla/sweep", auth.RequireRole(domain.UserRoleAdmin), cfg.Triage.Sweep)
}
