package interfaces

import (
	"context"
	"time"

	"asset-cache/pkg/models"
)

// StoreBackend is the persistent store behind every collection.
// Implementations serialize writes per collection; concurrent puts to the
// same key resolve as last write wins.
type StoreBackend interface {
	// Get returns the entry for key, or false when absent
	Get(ctx context.Context, collection models.Collection, key string) (models.CacheEntry, bool, error)
	// Put inserts or overwrites the entry under entry.Key
	Put(ctx context.Context, collection models.Collection, entry models.CacheEntry) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, collection models.Collection, key string) error
	// Clear removes every entry of the collection
	Clear(ctx context.Context, collection models.Collection) error
	// ScanExpired deletes entries with storedAt <= cutoff using the stored_at
	// index and returns how many were removed
	ScanExpired(ctx context.Context, collection models.Collection, cutoff time.Time) (int, error)
	// SumSizes returns the total sizeBytes of the collection
	SumSizes(ctx context.Context, collection models.Collection) (int64, error)
	// Count returns the number of entries in the collection
	Count(ctx context.Context, collection models.Collection) (int, error)
	Close() error
}

// Snapshotter is implemented by backends that can copy themselves to a file
type Snapshotter interface {
	Snapshot(ctx context.Context, destPath string) error
}

// CacheServiceInterface is the public surface handlers depend on.
// None of these operations report errors: failures degrade to safe defaults.
type CacheServiceInterface interface {
	GetIcon(ctx context.Context, rawURL, domain string) string
	GetFont(ctx context.Context, fontName, fontURL string) (string, bool)
	CacheResource(ctx context.Context, rawURL, content, resourceType string)
	GetCachedResource(ctx context.Context, rawURL string) (string, bool)
	GetStorageUsage(ctx context.Context) models.StorageUsage
	MaybeCleanup(ctx context.Context) *models.CleanupResult
	ClearAllCache(ctx context.Context)
	DomainFor(rawURL, override string) string
}

// BackupServiceInterface uploads and restores store snapshots
type BackupServiceInterface interface {
	Backup(ctx context.Context) error
	Restore(ctx context.Context) error
	Provider() string
	Status() models.BackupStatus
}
