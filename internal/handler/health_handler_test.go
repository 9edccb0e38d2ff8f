package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-api/internal/config"
	"github.com/noah-isme/roster-api/internal/handler"
)

func TestHealthCheckReportsDatabaseState(t *testing.T) {
	cases := []struct {
		name     string
		probe    handler.HealthProbe
		status   int
		database string
	}{
		{name: "up", probe: func(context.Context) error { return nil }, status: fiber.StatusOK, database: "up"},
		{name: "down", probe: func(context.Context) error { return errors.New("refused") }, status: fiber.StatusServiceUnavailable, database: "down"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/health", handler.HealthCheck(config.Config{AppName: "Roster API", AppEnv: "test"}, tc.probe))

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var body handler.HealthResponse
			decodeResponse(t, resp, &body)
			require.Equal(t, "Roster API", body.Service)
			require.Equal(t, tc.database, body.Database)
		})
	}
}
