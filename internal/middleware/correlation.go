package middleware

import (
	"context"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// maxCorrelationIDLength matches the activity log correlation_id column.
const maxCorrelationIDLength = 64

var correlationHeaders = []string{"X-Correlation-ID", "X-Request-ID"}

type correlationIDKey struct{}

var correlationKey = correlationIDKey{}

// CorrelationID ensures every request carries a correlation identifier, echoed in X-Correlation-ID.
// Incoming identifiers that are too long or not printable are replaced.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlation := ""
		for _, header := range correlationHeaders {
			if candidate := strings.TrimSpace(c.Get(header)); validCorrelationID(candidate) {
				correlation = candidate
				break
			}
		}
		if correlation == "" {
			correlation = uuid.NewString()
		}

		c.Locals("correlation_id", correlation)
		c.Set("X-Correlation-ID", correlation)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), correlation))

		return c.Next()
	}
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// CorrelationIDFromContext extracts the correlation identifier from context, if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals("correlation_id").(string); ok && id != "" {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches the correlation identifier to the provided context.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(correlationID) == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, strings.TrimSpace(correlationID))
}
