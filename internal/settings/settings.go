// Package settings reads the Calibre-Web application settings database,
// which is the source of truth for where the book library lives. The
// full-text index database is kept in the same directory.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dhowland/epubfts/internal/storage"
)

const (
	// DefaultFileName is the settings database file name.
	DefaultFileName = "app.db"

	appConfigDir = "calibre-web"
)

// ErrNotConfigured is returned when the settings database exists but no
// library path has been configured in it.
var ErrNotConfigured = errors.New("library path not configured")

// Resolve turns a user-supplied settings location into a concrete
// database path. An empty value falls back to the per-user config
// directory; a directory gets the default file name appended.
func Resolve(pathOrDir string) (string, error) {
	if pathOrDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine config directory: %w", err)
		}
		return filepath.Join(base, appConfigDir, DefaultFileName), nil
	}
	if info, err := os.Stat(pathOrDir); err == nil && info.IsDir() {
		return filepath.Join(pathOrDir, DefaultFileName), nil
	}
	return pathOrDir, nil
}

// LibraryPath reads the configured library root out of the settings
// database at settingsPath. ErrNotConfigured means the row exists but
// carries no path.
func LibraryPath(ctx context.Context, settingsPath string) (string, error) {
	db, err := sql.Open(storage.DriverName, settingsPath)
	if err != nil {
		return "", fmt.Errorf("failed to open settings database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var dir sql.NullString
	err = db.QueryRowContext(ctx, "SELECT config_calibre_dir FROM settings LIMIT 1").Scan(&dir)
	if err == sql.ErrNoRows {
		return "", ErrNotConfigured
	}
	if err != nil {
		return "", fmt.Errorf("failed to read settings: %w", err)
	}
	if !dir.Valid || dir.String == "" {
		return "", ErrNotConfigured
	}
	return dir.String, nil
}
