// pkg/utils/paths.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const databaseFile = "assets.db"

type PathManager struct {
	baseStoragePath string
	log             *Logger
}

func NewPathManager(basePath string, log *Logger) *PathManager {
	// Créer les dossiers nécessaires
	dirs := []string{
		"snapshots", // Pour les snapshots envoyés au backup
		"restore",   // Pour les restaurations en attente
	}

	for _, dir := range dirs {
		path := filepath.Join(basePath, dir)
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", path, err)
		}
	}

	return &PathManager{
		baseStoragePath: basePath,
		log:             log,
	}
}

func (pm *PathManager) GetBasePath() string {
	return filepath.Join(pm.baseStoragePath)
}

// GetDatabasePath is the live SQLite store
func (pm *PathManager) GetDatabasePath() string {
	return filepath.Join(pm.baseStoragePath, databaseFile)
}

// GetSnapshotPath is where a backup snapshot is written before upload
func (pm *PathManager) GetSnapshotPath() string {
	return filepath.Join(pm.baseStoragePath, "snapshots", databaseFile)
}

// GetRestorePendingPath holds a downloaded snapshot until the next start
func (pm *PathManager) GetRestorePendingPath() string {
	return filepath.Join(pm.baseStoragePath, "restore", databaseFile+".pending")
}

// HasPendingRestore reports whether a restored snapshot is waiting
func (pm *PathManager) HasPendingRestore() bool {
	_, err := os.Stat(pm.GetRestorePendingPath())
	return err == nil
}

// ApplyPendingRestore swaps a downloaded snapshot in as the live database.
// Must run before the store is opened. The replaced database is kept as
// assets.db.bak.
func (pm *PathManager) ApplyPendingRestore() (bool, error) {
	pending := pm.GetRestorePendingPath()
	if _, err := os.Stat(pending); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat pending restore: %w", err)
	}

	live := pm.GetDatabasePath()
	if _, err := os.Stat(live); err == nil {
		if err := os.Rename(live, live+".bak"); err != nil {
			return false, fmt.Errorf("failed to keep previous database: %w", err)
		}
	}
	// WAL side files belong to the replaced database
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(live + suffix); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to remove %s: %w", live+suffix, err)
		}
	}

	if err := os.Rename(pending, live); err != nil {
		return false, fmt.Errorf("failed to apply pending restore: %w", err)
	}

	pm.log.WithFields(logrus.Fields{
		"database": live,
		"backup":   live + ".bak",
	}).Info("Applied pending restore")
	return true, nil
}
