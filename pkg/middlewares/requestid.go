package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderRequestID carries the per-request correlation id
const HeaderRequestID = "X-Request-ID"

// RequestID tags every request with an id, keeping one the caller already
// sent. The id is stored in Locals under "requestid" for the access log.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Locals("requestid", id)
		c.Set(HeaderRequestID, id)
		return c.Next()
	}
}
