// Package catalog reads the Calibre metadata database that accompanies a
// book library. It is strictly read-only; the catalog is owned by other
// software and this package never writes to it.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dhowland/epubfts/internal/storage"
	"github.com/dhowland/epubfts/pkg/types"
)

// MetadataFileName is the catalog database inside the library root.
const MetadataFileName = "metadata.db"

// ErrBookNotFound is returned by BookInfo for an unknown book id.
var ErrBookNotFound = errors.New("book not found")

// Catalog is a read-only view over a library's metadata database.
type Catalog struct {
	db *sql.DB
}

// Open opens the metadata database under libraryPath.
func Open(libraryPath string) (*Catalog, error) {
	metadataPath := filepath.Join(libraryPath, MetadataFileName)
	db, err := sql.Open(storage.DriverName, metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Rows lists every book that has an EPUB rendition, in stable book id
// order. Books carrying only other formats are excluded.
func (c *Catalog) Rows(ctx context.Context) ([]types.CatalogRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT books.id, books.path, data.name
		FROM books
		JOIN data ON data.book = books.id
		WHERE lower(data.format) = 'epub'
		ORDER BY books.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.CatalogRow
	for rows.Next() {
		var row types.CatalogRow
		if err := rows.Scan(&row.BookID, &row.RelPath, &row.BaseName); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// BookInfo returns the display title and sortable author string for one
// book.
func (c *Catalog) BookInfo(ctx context.Context, bookID int64) (title, author string, err error) {
	var t, a sql.NullString
	err = c.db.QueryRowContext(ctx,
		"SELECT title, author_sort FROM books WHERE id = ?", bookID).Scan(&t, &a)
	if err == sql.ErrNoRows {
		return "", "", ErrBookNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read book info: %w", err)
	}
	return t.String, a.String, nil
}
