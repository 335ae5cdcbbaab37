package handlers

import (
	"asset-cache/pkg/version"

	"github.com/gofiber/fiber/v2"
)

// ReadinessChecker reports whether the cache store finished opening
type ReadinessChecker interface {
	Ready() bool
}

// HealthHandler serves liveness and build information
type HealthHandler struct {
	readiness func() ReadinessChecker
}

// NewHealthHandler takes a getter so a reset engine is picked up
func NewHealthHandler(readiness func() ReadinessChecker) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

// Health always answers 200; "store" tells whether the store is open yet
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	store := "unknown"
	if h.readiness != nil {
		if r := h.readiness(); r != nil {
			store = "not ready"
			if r.Ready() {
				store = "ready"
			}
		}
	}
	return c.JSON(fiber.Map{
		"status": "OK",
		"store":  store,
	})
}

func (h *HealthHandler) Version(c *fiber.Ctx) error {
	return c.JSON(version.Info())
}
