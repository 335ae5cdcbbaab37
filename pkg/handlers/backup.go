package handlers

import (
	"asset-cache/pkg/interfaces"
	utils "asset-cache/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type BackupHandler struct {
	backupService interfaces.BackupServiceInterface
	log           *utils.Logger
}

// NewBackupHandler accepts a nil service when backup is disabled
func NewBackupHandler(backupService interfaces.BackupServiceInterface, log *utils.Logger) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
		log:           log,
	}
}

func (h *BackupHandler) IsBackupEnabled() bool {
	return h.backupService != nil
}

func (h *BackupHandler) GetBackupStatus(c *fiber.Ctx) error {
	if !h.IsBackupEnabled() {
		return c.JSON(fiber.Map{
			"enabled":  false,
			"provider": "none",
		})
	}
	return c.JSON(h.backupService.Status())
}

func (h *BackupHandler) HandleBackup(c *fiber.Ctx) error {
	if !h.IsBackupEnabled() {
		return HTTPError(c, fiber.StatusServiceUnavailable, "Backup is disabled")
	}

	if err := h.backupService.Backup(c.UserContext()); err != nil {
		h.log.WithFunc().WithError(err).Error("❌ Backup failed")
		return HTTPError(c, fiber.StatusInternalServerError, err.Error())
	}

	h.log.WithFunc().Info("✅ Backup successful")
	return c.JSON(fiber.Map{
		"message": "Backup completed successfully",
	})
}

func (h *BackupHandler) HandleRestore(c *fiber.Ctx) error {
	if !h.IsBackupEnabled() {
		return HTTPError(c, fiber.StatusServiceUnavailable, "Backup is disabled")
	}

	if err := h.backupService.Restore(c.UserContext()); err != nil {
		h.log.WithFunc().WithError(err).Error("❌ Restore failed")
		return HTTPError(c, fiber.StatusInternalServerError, err.Error())
	}

	h.log.WithFunc().Info("✅ Restore downloaded")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Restore staged, restart the service to apply it",
	})
}
