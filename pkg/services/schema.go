package service

import (
	"context"
	"fmt"
	"time"

	"asset-cache/config"
	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/models"
	"asset-cache/pkg/storage/redis"
	"asset-cache/pkg/storage/sqlite"
	"asset-cache/pkg/utils"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
)

// SchemaVersion is the layout this build writes. Minor bumps only add
// collections or indexes.
const SchemaVersion = "1.0.0"

const schemaVersionKey = "schema.version"

// NewStoreOpener returns the Opener for the configured storage driver.
// Every opener stamps or checks the schema version before returning.
func NewStoreOpener(cfg *config.Config, pathManager *utils.PathManager, log *utils.Logger) Opener {
	return func(ctx context.Context) (interfaces.StoreBackend, error) {
		var (
			store interfaces.StoreBackend
			err   error
		)

		switch cfg.Storage.Driver {
		case "redis":
			log.WithFunc().WithFields(logrus.Fields{
				"addr":   cfg.Storage.Redis.Addr,
				"db":     cfg.Storage.Redis.DB,
				"prefix": cfg.Storage.Redis.Prefix,
			}).Debug("Opening redis store")
			store, err = redis.Open(ctx, redis.Options{
				Addr:     cfg.Storage.Redis.Addr,
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
				Prefix:   cfg.Storage.Redis.Prefix,
			})
		default:
			dbPath := pathManager.GetDatabasePath()
			log.WithFunc().WithField("path", dbPath).Debug("Opening sqlite store")
			store, err = sqlite.Open(ctx, dbPath)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
		}

		if err := EnsureSchemaVersion(ctx, store, log); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	}
}

// EnsureSchemaVersion records SchemaVersion in the metadata collection.
// An older or missing record is upgraded; a record from a newer major
// version is refused.
func EnsureSchemaVersion(ctx context.Context, store interfaces.StoreBackend, log *utils.Logger) error {
	current := semver.MustParse(SchemaVersion)

	entry, ok, err := store.Get(ctx, models.CollectionMetadata, schemaVersionKey)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if ok {
		stored, err := semver.NewVersion(entry.Payload)
		if err != nil {
			log.WithFunc().WithError(err).WithField("stored", entry.Payload).Warn("Unreadable schema version, overwriting")
		} else {
			if stored.Major() > current.Major() {
				return fmt.Errorf("%w: store schema %s is newer than supported %s", ErrStoreUnavailable, stored, current)
			}
			if !stored.LessThan(current) {
				log.WithFunc().WithField("version", stored.String()).Debug("Schema version up to date")
				return nil
			}
			log.WithFunc().WithFields(logrus.Fields{
				"from": stored.String(),
				"to":   current.String(),
			}).Info("Upgrading schema version")
		}
	}

	payload := current.String()
	if err := store.Put(ctx, models.CollectionMetadata, models.CacheEntry{
		Key:       schemaVersionKey,
		Payload:   payload,
		SizeBytes: int64(len(payload)),
		StoredAt:  time.Now().UTC(),
		Category:  models.CategoryMetadata,
	}); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}
