package settings

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhowland/epubfts/internal/storage"
)

func writeSettingsDB(t *testing.T, libraryDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := sql.Open(storage.DriverName, path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec("CREATE TABLE settings (config_calibre_dir TEXT)")
	require.NoError(t, err)
	if libraryDir != "" {
		_, err = db.Exec("INSERT INTO settings (config_calibre_dir) VALUES (?)", libraryDir)
		require.NoError(t, err)
	}
	return path
}

func TestResolveExplicitFile(t *testing.T) {
	got, err := Resolve("/somewhere/app.db")
	require.NoError(t, err)
	assert.Equal(t, "/somewhere/app.db", got)
}

func TestResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	got, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultFileName), got)
}

func TestResolveDefault(t *testing.T) {
	got, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFileName, filepath.Base(got))
	assert.Contains(t, got, appConfigDir)
}

func TestLibraryPath(t *testing.T) {
	path := writeSettingsDB(t, "/data/books")

	dir, err := LibraryPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "/data/books", dir)
}

func TestLibraryPathNotConfigured(t *testing.T) {
	path := writeSettingsDB(t, "")

	_, err := LibraryPath(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLibraryPathEmptyValue(t *testing.T) {
	path := writeSettingsDB(t, "")
	db, err := sql.Open(storage.DriverName, path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO settings (config_calibre_dir) VALUES ('')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = LibraryPath(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
