package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/api/http/handlers"
	"github.com/spec-kit/support-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Customers      *handlers.CustomersHandler
	Conversations  *handlers.ConversationsHandler
	Metrics        *handlers.MetricsHandler
	DeadLetters    *handlers.DeadLettersHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/operators/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/customers/lookup", cfg.Customers.Lookup)
	protected.Get("/customers/:id/conversations", cfg.Customers.Conversations)
	protected.Get("/conversations/:id", cfg.Conversations.Get)
	protected.Get("/conversations/:id/messages", cfg.Conversations.Messages)
	protected.Get("/conversations/:id/ticket", cfg.Conversations.Ticket)
	protected.Get("/metrics", cfg.Metrics.Window)
	protected.Get("/dead-letters", cfg.DeadLetters.List)
}
