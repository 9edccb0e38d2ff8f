package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/middleware"
	"github.com/noah-isme/roster-api/internal/observability"
)

const streamPingInterval = 30 * time.Second

// StudentEventSource hands out subscriptions to roster change events.
type StudentEventSource interface {
	Subscribe() (<-chan dto.StudentEvent, func())
}

// StudentStreamHandler pushes roster change events to websocket clients so they can refetch
// instead of patching local copies.
type StudentStreamHandler struct {
	events StudentEventSource
	logger zerolog.Logger
}

// NewStudentStreamHandler constructs the handler.
func NewStudentStreamHandler(events StudentEventSource, logger zerolog.Logger) *StudentStreamHandler {
	return &StudentStreamHandler{
		events: events,
		logger: logger.With().Str("component", "student_stream_handler").Logger(),
	}
}

// Register binds the websocket upgrade route.
func (h *StudentStreamHandler) Register(router fiber.Router) {
	router.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/stream", websocket.New(h.serve))
}

func (h *StudentStreamHandler) serve(conn *websocket.Conn) {
	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	clients := observability.StreamClients()
	clients.Inc()
	defer clients.Dec()

	logger := h.logger
	if correlation, ok := conn.Locals("correlation_id").(string); ok && correlation != "" {
		logger = logger.With().Str("correlation_id", correlation).Logger()
	}
	logger.Info().Msg("roster stream connected")
	defer logger.Info().Msg("roster stream disconnected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("roster stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				logger.Debug().Err(err).Msg("roster stream ping failed")
				return
			}
		case <-closed:
			return
		}
	}
}
