// pkg/handlers/assets.go
package handlers

import (
	"strings"

	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AssetHandler serves icons, fonts and cached resources
type AssetHandler struct {
	log          *utils.Logger
	cacheService interfaces.CacheServiceInterface
}

// ResourceRequest is the body of PUT /api/resource
type ResourceRequest struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(cacheService interfaces.CacheServiceInterface, log *utils.Logger) *AssetHandler {
	return &AssetHandler{
		cacheService: cacheService,
		log:          log,
	}
}

// GetIcon returns the icon for url. It never fails once the query is
// valid: a placeholder is returned when the real icon is unavailable.
// With raw=1 the image bytes are sent instead of the JSON envelope.
func (h *AssetHandler) GetIcon(c *fiber.Ctx) error {
	rawURL := c.Query("url")
	override := c.Query("domain")

	if err := utils.ValidateURL(rawURL); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, err.Error())
	}

	domain := h.cacheService.DomainFor(rawURL, override)
	icon := h.cacheService.GetIcon(c.UserContext(), rawURL, override)

	h.log.WithFunc().WithFields(logrus.Fields{
		"url":    rawURL,
		"domain": domain,
	}).Debug("Icon served")

	if c.QueryBool("raw") {
		mediaType, body, err := utils.DecodeDataURL(icon)
		if err != nil {
			h.log.WithFunc().WithError(err).Error("Stored icon is not a data url")
			return HTTPError(c, fiber.StatusInternalServerError, "Invalid stored icon")
		}
		// entries written before image-only fetching may hold anything
		if !strings.HasPrefix(mediaType, "image/") {
			h.log.WithFunc().WithField("mediaType", mediaType).Warn("Refusing to serve non-image icon raw")
			return HTTPError(c, fiber.StatusUnsupportedMediaType, "Stored icon is not an image")
		}
		c.Set(fiber.HeaderContentType, mediaType)
		c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderContentSecurityPolicy, "default-src 'none'; style-src 'unsafe-inline'; sandbox")
		return c.Send(body)
	}

	return c.JSON(fiber.Map{
		"domain": domain,
		"icon":   icon,
	})
}

// GetFont returns the font data URL or 404 so the caller can fall back
// to a system font
func (h *AssetHandler) GetFont(c *fiber.Ctx) error {
	name := c.Query("name")
	fontURL := c.Query("url")

	if err := utils.ValidateFontName(name); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := utils.ValidateURL(fontURL); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, err.Error())
	}

	font, ok := h.cacheService.GetFont(c.UserContext(), name, fontURL)
	if !ok {
		return HTTPError(c, fiber.StatusNotFound, "Font not available")
	}

	return c.JSON(fiber.Map{
		"name": name,
		"font": font,
	})
}

// PutResource caches caller-supplied content
func (h *AssetHandler) PutResource(c *fiber.Ctx) error {
	var req ResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateURL(req.URL); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := utils.ValidateResourceType(req.Type); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, err.Error())
	}

	h.cacheService.CacheResource(c.UserContext(), req.URL, req.Content, req.Type)

	return c.SendStatus(fiber.StatusNoContent)
}

// GetResource returns fresh cached content for url or 404
func (h *AssetHandler) GetResource(c *fiber.Ctx) error {
	rawURL := c.Query("url")
	if err := utils.ValidateURL(rawURL); err != nil {
		return HTTPError(c, fiber.StatusBadRequest, err.Error())
	}

	content, ok := h.cacheService.GetCachedResource(c.UserContext(), rawURL)
	if !ok {
		return HTTPError(c, fiber.StatusNotFound, "Resource not cached")
	}

	return c.JSON(fiber.Map{
		"url":     rawURL,
		"content": content,
	})
}
