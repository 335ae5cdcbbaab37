package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.QueryRow(query).Scan(&n))
	return n
}

func TestApply_RecordsApplied(t *testing.T) {
	db := openDB(t)
	migrations := fstest.MapFS{
		"001_create.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);")},
	}

	applied, err := Apply(context.Background(), db, migrations, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"001_create.sql"}, applied)
	assert.Equal(t, int64(1), count(t, db, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, int64(1), count(t, db, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='items'"))
}

func TestApply_SkipsAlreadyApplied(t *testing.T) {
	db := openDB(t)
	migrations := fstest.MapFS{
		"001_create.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items(id TEXT PRIMARY KEY);")},
	}

	_, err := Apply(context.Background(), db, migrations, ".")
	require.NoError(t, err)

	applied, err := Apply(context.Background(), db, migrations, ".")
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, int64(1), count(t, db, "SELECT COUNT(*) FROM schema_migrations"))
}

func TestApply_AdditiveUpgrade(t *testing.T) {
	db := openDB(t)
	v1 := fstest.MapFS{
		"001_create.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items(id TEXT PRIMARY KEY);")},
	}
	_, err := Apply(context.Background(), db, v1, "")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO items(id) VALUES ('keep')")
	require.NoError(t, err)

	v2 := fstest.MapFS{
		"001_create.sql": v1["001_create.sql"],
		"002_index.sql":  &fstest.MapFile{Data: []byte("CREATE INDEX IF NOT EXISTS idx_items_id ON items(id);")},
	}
	applied, err := Apply(context.Background(), db, v2, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"002_index.sql"}, applied)
	assert.Equal(t, int64(1), count(t, db, "SELECT COUNT(*) FROM items"))
}

func TestApply_DoesNotRecordFailedMigration(t *testing.T) {
	db := openDB(t)
	migrations := fstest.MapFS{
		"001_broken.sql": &fstest.MapFile{Data: []byte("CREATE TABLE;")},
	}

	_, err := Apply(context.Background(), db, migrations, "")
	require.Error(t, err)
	assert.Equal(t, int64(0), count(t, db, "SELECT COUNT(*) FROM schema_migrations"))
}

func TestExtractUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;"
	assert.Equal(t, "\nCREATE TABLE a(id INT);\n", ExtractUp(content))
	assert.Equal(t, "SELECT 1;", ExtractUp("SELECT 1;"))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.False(t, IsAlreadyExists(assert.AnError))
	assert.True(t, IsAlreadyExists(errString("table icons already exists")))
	assert.True(t, IsAlreadyExists(errString("duplicate column name: category")))
}

type errString string

func (e errString) Error() string { return string(e) }
