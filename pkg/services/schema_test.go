package service

import (
	"context"
	"path/filepath"
	"testing"

	"asset-cache/config"
	"asset-cache/pkg/models"
	"asset-cache/pkg/storage/sqlite"
	"asset-cache/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func putVersion(t *testing.T, store *sqlite.Store, v string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), models.CollectionMetadata, models.CacheEntry{
		Key: schemaVersionKey, Payload: v, SizeBytes: int64(len(v)),
	}))
}

func storedVersion(t *testing.T, store *sqlite.Store) string {
	t.Helper()
	entry, ok, err := store.Get(context.Background(), models.CollectionMetadata, schemaVersionKey)
	require.NoError(t, err)
	require.True(t, ok)
	return entry.Payload
}

func TestEnsureSchemaVersion(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		want    string
		wantErr bool
	}{
		{name: "fresh store", stored: "", want: SchemaVersion},
		{name: "older version upgraded", stored: "0.9.0", want: SchemaVersion},
		{name: "same version kept", stored: SchemaVersion, want: SchemaVersion},
		{name: "newer minor kept", stored: "1.4.0", want: "1.4.0"},
		{name: "unreadable overwritten", stored: "garbage", want: SchemaVersion},
		{name: "newer major refused", stored: "2.0.0", want: "2.0.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openRawStore(t)
			if tt.stored != "" {
				putVersion(t, store, tt.stored)
			}

			err := EnsureSchemaVersion(context.Background(), store, newTestLogger())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrStoreUnavailable)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, storedVersion(t, store))
		})
	}
}

func TestStoreOpener_ReopenIsIdempotent(t *testing.T) {
	log := newTestLogger()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = dir
	open := NewStoreOpener(cfg, utils.NewPathManager(dir, log), log)
	ctx := context.Background()

	store, err := open(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, models.CollectionIcons, models.CacheEntry{Key: "example.com", Payload: "p", SizeBytes: 1}))
	require.NoError(t, store.Close())

	store, err = open(ctx)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count(ctx, models.CollectionIcons)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "reopen keeps existing entries")

	n, err = store.Count(ctx, models.CollectionMetadata)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one schema version record")
}

func TestStoreOpener_RefusesNewerMajor(t *testing.T) {
	log := newTestLogger()
	dir := t.TempDir()
	pm := utils.NewPathManager(dir, log)
	ctx := context.Background()

	raw, err := sqlite.Open(ctx, pm.GetDatabasePath())
	require.NoError(t, err)
	putVersion(t, raw, "3.0.0")
	require.NoError(t, raw.Close())

	cfg := &config.Config{}
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = dir
	_, err = NewStoreOpener(cfg, pm, log)(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
