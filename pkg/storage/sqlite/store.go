// Package sqlite implements the cache store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/models"
	"asset-cache/pkg/storage/migrate"
	"asset-cache/pkg/storage/sqlite/migrations"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the four cache collections.
type Store struct {
	sqlDB *sql.DB
	path  string
}

// Open opens the store at path, creating it if needed, and applies any
// missing migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection: the store serializes transactions itself
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := migrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, path: cleanPath}, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get loads an entry by key.
func (s *Store) Get(ctx context.Context, collection models.Collection, key string) (models.CacheEntry, bool, error) {
	table, err := s.table(collection)
	if err != nil {
		return models.CacheEntry{}, false, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT cache_key, origin_url, payload, size_bytes, stored_at, category
		 FROM `+table+`
		 WHERE cache_key = ?`,
		key,
	)

	var entry models.CacheEntry
	var storedAt int64
	if err := row.Scan(&entry.Key, &entry.OriginURL, &entry.Payload, &entry.SizeBytes, &storedAt, &entry.Category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, fmt.Errorf("get %s entry: %w", collection, err)
	}
	entry.StoredAt = unixMillisToTime(storedAt)
	return entry, true, nil
}

// Put upserts an entry by key.
func (s *Store) Put(ctx context.Context, collection models.Collection, entry models.CacheEntry) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.SizeBytes < 0 {
		return fmt.Errorf("size must be >= 0, got %d", entry.SizeBytes)
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO `+table+` (cache_key, origin_url, payload, size_bytes, stored_at, category)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		    origin_url = excluded.origin_url,
		    payload = excluded.payload,
		    size_bytes = excluded.size_bytes,
		    stored_at = excluded.stored_at,
		    category = excluded.category`,
		entry.Key,
		entry.OriginURL,
		entry.Payload,
		entry.SizeBytes,
		timeToUnixMillis(entry.StoredAt),
		entry.Category,
	)
	if err != nil {
		return fmt.Errorf("put %s entry: %w", collection, err)
	}
	return nil
}

// Delete removes an entry by key.
func (s *Store) Delete(ctx context.Context, collection models.Collection, key string) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM `+table+` WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete %s entry: %w", collection, err)
	}
	return nil
}

// Clear empties the collection.
func (s *Store) Clear(ctx context.Context, collection models.Collection) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}

// ScanExpired walks the stored_at index forward over [-inf, cutoff] and
// deletes each visited entry in one transaction.
func (s *Store) ScanExpired(ctx context.Context, collection models.Collection, cutoff time.Time) (int, error) {
	table, err := s.table(collection)
	if err != nil {
		return 0, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin scan %s: %w", collection, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT cache_key FROM `+table+` INDEXED BY idx_`+table+`_stored_at
		 WHERE stored_at <= ?
		 ORDER BY stored_at`,
		cutoff.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", collection, err)
	}

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan %s key: %w", collection, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate %s: %w", collection, err)
	}
	_ = rows.Close()

	if len(keys) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM `+table+` WHERE cache_key = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare delete %s: %w", collection, err)
	}
	defer stmt.Close()

	deleted := 0
	for _, key := range keys {
		res, err := stmt.ExecContext(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("delete expired %s entry: %w", collection, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scan %s: %w", collection, err)
	}
	return deleted, nil
}

// SumSizes returns the total stored bytes of the collection.
func (s *Store) SumSizes(ctx context.Context, collection models.Collection) (int64, error) {
	table, err := s.table(collection)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM `+table).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum %s sizes: %w", collection, err)
	}
	return total, nil
}

// Count returns the number of entries in the collection.
func (s *Store) Count(ctx context.Context, collection models.Collection) (int, error) {
	table, err := s.table(collection)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Snapshot writes a consistent copy of the database to destPath.
func (s *Store) Snapshot(ctx context.Context, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove previous snapshot: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
		return fmt.Errorf("snapshot sqlite db: %w", err)
	}
	return nil
}

// table maps a collection to its table name; only known collections are
// accepted so the name is safe to splice into SQL.
func (s *Store) table(collection models.Collection) (string, error) {
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if !collection.Valid() {
		return "", fmt.Errorf("unknown collection %q", collection)
	}
	return string(collection), nil
}

func timeToUnixMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func unixMillisToTime(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

var (
	_ interfaces.StoreBackend = (*Store)(nil)
	_ interfaces.Snapshotter  = (*Store)(nil)
)
