package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"conference-central/logging"
	"conference-central/metrics"
)

const requestIDLocal = "requestid"

// RequestID assigns each request an ID, honouring an incoming X-Request-ID.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  logging.GenerateRequestID,
		ContextKey: requestIDLocal,
	})
}

// RequestLogger puts the request ID on the user context, then logs and
// times the request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if id, ok := c.Locals(requestIDLocal).(string); ok && id != "" {
			c.SetUserContext(logging.ContextWithRequestID(c.UserContext(), id))
		}

		err := c.Next()
		if err != nil {
			// Let the app's error handler set the status before logging.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequest(c.Method(), c.Route().Path, status, elapsed)
		logging.Ctx(c.UserContext()).Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("request served")
		return nil
	}
}
