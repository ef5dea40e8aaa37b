package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Issues         *handlers.IssuesHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes under the /api base path.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	issues := api.Group("/issues", cfg.AuthMiddleware.Handle)
	issues.Post("/", cfg.Issues.Create)
	issues.Get("/", cfg.Issues.List)
	issues.Get("/stats", cfg.Issues.Stats)
	issues.Get("/:id", cfg.Issues.Get)
	issues.Put("/:id", cfg.Issues.Update)
	issues.Delete("/:id", cfg.Issues.Delete)
	issues.Patch("/:id/status", cfg.Issues.UpdateStatus)
}
