package utils

import "github.com/gofiber/fiber/v2"

// ErrorResponse describes the body returned for every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// SendJSON writes data as the response body with the given status code.
func SendJSON(c *fiber.Ctx, status int, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(data)
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithDetails(c, status, message, nil)
}

// SendErrorWithDetails sends an error JSON response listing the offending fields or rules.
func SendErrorWithDetails(c *fiber.Ctx, status int, message string, details []string) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// SendNoContent ends the request with 204 and an empty body.
func SendNoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
