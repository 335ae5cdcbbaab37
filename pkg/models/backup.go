package models

import "time"

// BackupStatus is reported by GET /backup/status
type BackupStatus struct {
	Enabled        bool       `json:"enabled"`
	Provider       string     `json:"provider"`
	LastBackupAt   *time.Time `json:"lastBackupAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	PendingRestore bool       `json:"pendingRestore"`
}
