package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"asset-cache/config"
	"asset-cache/pkg/handlers"
	"asset-cache/pkg/interfaces"
	middleware "asset-cache/pkg/middlewares"
	service "asset-cache/pkg/services"
	"asset-cache/pkg/utils"
	"asset-cache/pkg/version"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// setupServices initialise et configure tous les services
func setupServices(cfg *config.Config, pathManager *utils.PathManager, log *utils.Logger) (*service.Lifecycle, interfaces.CacheServiceInterface, interfaces.BackupServiceInterface) {
	opener := service.NewStoreOpener(cfg, pathManager, log)
	lifecycle := service.NewLifecycle(func() *service.Engine {
		return service.NewEngine(cfg.Cache, log, opener)
	}, log)

	cacheService, err := service.NewCacheService(lifecycle, cfg.Cache, log)
	if err != nil {
		log.WithFunc().WithError(err).Fatal("Failed to initialize cache service")
	}

	backupService, err := service.NewBackupService(cfg, lifecycle, pathManager, log)
	if err != nil {
		log.WithFunc().WithError(err).Fatal("Failed to initialize backup service")
	}
	// a nil *BackupService must stay a nil interface for the handler
	var backup interfaces.BackupServiceInterface
	if backupService != nil {
		backup = backupService
	}

	return lifecycle, cacheService, backup
}

func setupRoutes(app *fiber.App, cfg *config.Config, lifecycle *service.Lifecycle, cacheService interfaces.CacheServiceInterface, backupService interfaces.BackupServiceInterface, log *utils.Logger) {
	assetHandler := handlers.NewAssetHandler(cacheService, log)
	cacheHandler := handlers.NewCacheHandler(cacheService, log)
	backupHandler := handlers.NewBackupHandler(backupService, log)
	configHandler := handlers.NewConfigHandler(cfg, log)
	healthHandler := handlers.NewHealthHandler(func() handlers.ReadinessChecker {
		return lifecycle.Instance()
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg, log)

	app.Get("/health", healthHandler.Health)
	app.Get("/version", healthHandler.Version)
	app.Get("/config", configHandler.GetConfig)

	api := app.Group("/api")
	api.Get("/icon", authMiddleware.Fetch(), assetHandler.GetIcon)
	api.Get("/font", authMiddleware.Fetch(), assetHandler.GetFont)
	api.Get("/resource", authMiddleware.Authenticate(), assetHandler.GetResource)
	api.Put("/resource", authMiddleware.Authenticate(), assetHandler.PutResource)

	cache := app.Group("/cache", authMiddleware.Require())
	cache.Get("/usage", cacheHandler.GetUsage)
	cache.Post("/cleanup", cacheHandler.Cleanup)
	cache.Delete("/", cacheHandler.PurgeCache)

	app.Get("/backup/status", backupHandler.GetBackupStatus)
	app.Post("/backup", authMiddleware.Require(), backupHandler.HandleBackup)
	app.Post("/restore", authMiddleware.Require(), backupHandler.HandleRestore)
}

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config/config.yaml"), "path to the YAML configuration")
	flag.Parse()

	// Configuration - load first to get logging settings
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// Use a basic logger for startup errors
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := utils.NewLogger(utils.Config{
		LogLevel:  cfg.Logging.Level,
		LogFormat: cfg.Logging.Format,
		Pretty:    true,
	})

	log.WithFields(logrus.Fields{
		"version": version.Version,
		"commit":  version.Commit,
		"driver":  cfg.Storage.Driver,
	}).Info("asset cache starting")

	if err := config.LoadAuthFromFile(cfg); err != nil {
		log.WithError(err).Fatal("Failed to load auth configuration")
	}

	pathManager := utils.NewPathManager(cfg.Storage.Path, log)

	// une restauration téléchargée s'applique avant l'ouverture du store
	if applied, err := pathManager.ApplyPendingRestore(); err != nil {
		log.WithFunc().WithError(err).Error("Failed to apply pending restore")
	} else if applied {
		log.WithFunc().Info("✅ Pending restore applied")
	}

	lifecycle, cacheService, backupService := setupServices(cfg, pathManager, log)
	log.WithField("backup", backupService != nil).Info("Backup configuration")

	app := fiber.New(fiber.Config{
		AppName:       "asset cache",
		Prefork:       false,
		CaseSensitive: true,
		ServerHeader:  "asset cache",
		BodyLimit:     int(cfg.Cache.MaxAssetBytes) * 2,

		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			log.WithFields(logrus.Fields{
				"path":      c.Path(),
				"method":    c.Method(),
				"requestId": c.Locals("requestid"),
				"error":     err.Error(),
			}).Error("Error handling request")
			return handlers.HTTPError(c, code, err.Error())
		},
	})

	app.Use(middleware.RequestID())

	// Middleware pour le logging
	app.Use(func(c *fiber.Ctx) error {
		// Health check en debug pour éviter le spam
		if c.Path() == "/health" {
			log.Debug("Health check")
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		log.WithFields(logrus.Fields{
			"path":      c.Path(),
			"method":    c.Method(),
			"status":    c.Response().StatusCode(),
			"requestId": c.Locals("requestid"),
			"duration":  time.Since(start).String(),
		}).Info("Request handled")
		return err
	})

	setupRoutes(app, cfg, lifecycle, cacheService, backupService, log)

	// warm the store so the first request does not pay for opening it
	lifecycle.Instance()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.WithFunc().Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.WithFunc().WithError(err).Warn("HTTP shutdown incomplete")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.WithFunc().WithField("port", addr).Info("🚀 Application starting")
	if err := app.Listen(addr); err != nil {
		log.WithFunc().WithError(err).Fatal("HTTP Server failed")
	}

	if err := lifecycle.Reset(); err != nil {
		log.WithFunc().WithError(err).Warn("Failed to close cache store")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
