package handlers

import (
	config "asset-cache/config"
	utils "asset-cache/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// ConfigHandler exposes the running configuration
type ConfigHandler struct {
	log    *utils.Logger
	config *config.Config
}

func NewConfigHandler(config *config.Config, logger *utils.Logger) *ConfigHandler {
	return &ConfigHandler{
		config: config,
		log:    logger,
	}
}

// GetConfig returns the configuration with secrets masked
func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(h.config.Redacted())
}
