package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/iam-service/internal/api/http/handlers"
	"github.com/spec-kit/iam-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Roles          *handlers.RolesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	iam := app.Group("/api/iam", cfg.AuthMiddleware.Handle)

	iam.Get("/users", cfg.Users.List)
	iam.Post("/users", cfg.Users.Create)
	iam.Get("/users/:id", cfg.Users.Get)
	iam.Put("/users/:id", cfg.Users.Update)
	iam.Delete("/users/:id", cfg.Users.Delete)
	iam.Post("/users/:id/roles", cfg.Users.AssignRoles)

	iam.Get("/roles", cfg.Roles.List)
	iam.Post("/roles", cfg.Roles.Create)
	iam.Get("/roles/:id", cfg.Roles.Get)
	iam.Put("/roles/:id", cfg.Roles.Update)
	iam.Delete("/roles/:id", cfg.Roles.Delete)
	iam.Post("/roles/:id/users", cfg.Roles.AssignUsers)

	iam.Get("/permissions", cfg.Roles.Permissions)
}
