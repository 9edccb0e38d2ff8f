package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/roster-api/internal/config"
	"github.com/noah-isme/roster-api/internal/utils"
)

// HealthProbe checks a backing dependency.
type HealthProbe func(ctx context.Context) error

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Database    string    `json:"database"`
}

// HealthCheck returns a handler that reports application health. A failing database probe
// yields 503.
func HealthCheck(cfg config.Config, database HealthProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Database:    "up",
		}

		if database != nil {
			ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
			defer cancel()
			if err := database(ctx); err != nil {
				payload.Status = "degraded"
				payload.Database = "down"
				return utils.SendJSON(c, fiber.StatusServiceUnavailable, payload)
			}
		}

		return utils.SendJSON(c, fiber.StatusOK, payload)
	}
}
