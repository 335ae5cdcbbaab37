// pkg/handlers/cache.go
package handlers

import (
	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// CacheHandler handles cache management HTTP requests
type CacheHandler struct {
	log          *utils.Logger
	cacheService interfaces.CacheServiceInterface
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cacheService interfaces.CacheServiceInterface, log *utils.Logger) *CacheHandler {
	return &CacheHandler{
		cacheService: cacheService,
		log:          log,
	}
}

// GetUsage returns freshly computed storage usage
func (h *CacheHandler) GetUsage(c *fiber.Ctx) error {
	h.log.WithFunc().Debug("Getting storage usage")
	return c.JSON(h.cacheService.GetStorageUsage(c.UserContext()))
}

// Cleanup runs one eviction pass
func (h *CacheHandler) Cleanup(c *fiber.Ctx) error {
	h.log.WithFunc().Info("Running cache cleanup")

	result := h.cacheService.MaybeCleanup(c.UserContext())
	if result != nil && result.Skipped {
		return c.Status(fiber.StatusConflict).JSON(result)
	}
	return c.JSON(result)
}

// PurgeCache clears every collection
func (h *CacheHandler) PurgeCache(c *fiber.Ctx) error {
	h.log.WithFunc().Info("Purging cache")

	h.cacheService.ClearAllCache(c.UserContext())

	return c.JSON(fiber.Map{
		"message": "Cache purged",
	})
}
