package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/roster-api/internal/config"
	"github.com/noah-isme/roster-api/internal/handler"
	"github.com/noah-isme/roster-api/internal/middleware"
	"github.com/noah-isme/roster-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentHandler       *handler.StudentHandler
	RosterFileHandler    *handler.RosterFileHandler
	StudentStreamHandler *handler.StudentStreamHandler
	DatabaseProbe        handler.HealthProbe
	// MutationLimiter guards writes. Defaults to a per-client limiter built from cfg.
	MutationLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/health", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	}, handler.HealthCheck(cfg, deps.DatabaseProbe))
	app.Get(middleware.MetricsPath, observability.MetricsHandler())

	limiter := deps.MutationLimiter
	if limiter == nil {
		limiter = middleware.RateLimit("students", cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	students := app.Group("/students")

	// Fixed segments must be registered ahead of /:id.
	if deps.StudentStreamHandler != nil {
		deps.StudentStreamHandler.Register(students)
	}
	if deps.RosterFileHandler != nil {
		deps.RosterFileHandler.Register(students, limiter)
	}
	if deps.StudentHandler != nil {
		deps.StudentHandler.Register(students, limiter)
	}
}
