package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		fiberErr, expected := err.(*fiber.Error)
		if expected {
			code = fiberErr.Code
		}

		correlationID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if correlationID != "" {
			fields = append(fields, zap.String("correlationId", correlationID))
		}
		logger.Error("request error", fields...)

		// Unexpected faults keep their cause server-side; the client gets a
		// generic message plus the correlation id to quote back.
		if !expected {
			body := fiber.Map{"error": "internal server error"}
			if correlationID != "" {
				body["correlation_id"] = correlationID
			}
			return c.Status(code).JSON(body)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
