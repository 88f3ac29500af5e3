package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders handler errors as {"error": message}. Client errors are
// logged at warn, everything else at error.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if id := c.Get(fiber.HeaderXRequestID); id != "" {
			fields = append(fields, zap.String("correlation_id", id))
		}

		message := err.Error()
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
			if fiberErr == nil {
				message = "internal server error"
			}
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
