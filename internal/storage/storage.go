package storage

import (
	"context"
	"errors"

	"github.com/dhowland/epubfts/pkg/types"
)

// ErrBadQuery marks a malformed full-text match expression. Callers may
// retry with a sanitized expression; anything else wrapping a store
// error is fatal for the operation.
var ErrBadQuery = errors.New("malformed match expression")

// Store is the persistence interface for the EPUB full-text index: a
// fingerprint table keyed by book id plus an FTS table of text chunks.
type Store interface {
	// Clear empties both the fingerprint and chunk relations.
	Clear(ctx context.Context) error

	// ReplaceBook atomically swaps a book's chunk set and upserts its
	// fingerprint. A reader never observes fresh chunks with a stale
	// fingerprint or vice versa.
	ReplaceBook(ctx context.Context, bookID int64, filePath string, mtime float64, size int64, sections []types.Section) error

	// RemoveBook deletes a book's chunks and fingerprint.
	RemoveBook(ctx context.Context, bookID int64) error

	// Fingerprints returns the full current reconciliation map.
	Fingerprints(ctx context.Context) (map[int64]Fingerprint, error)

	// Stats summarizes the index contents.
	Stats(ctx context.Context) (*Stats, error)

	// SearchRaw runs the given native match expression and returns
	// chunk-level rows ordered best rank first, ties broken by insertion
	// order. A malformed expression returns ErrBadQuery.
	SearchRaw(ctx context.Context, match string, fetchLimit int) ([]MatchRow, error)

	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a transaction over the same operations. Mutations made through a
// Tx become visible only on Commit.
type Tx interface {
	Commit() error
	Rollback() error
	Store
}

// Fingerprint is the stored staleness proxy for one indexed book.
type Fingerprint struct {
	FilePath string
	MTime    float64
	Size     int64
}

// MatchRow is one chunk-level full-text match.
type MatchRow struct {
	BookID  int64
	Section string
	Snippet string
	Rank    float64
}

// Stats summarizes the index state.
type Stats struct {
	BooksIndexed     int64   `json:"books_indexed"`
	ChunksIndexed    int64   `json:"chunks_indexed"`
	AvgChunksPerBook float64 `json:"avg_chunks_per_book"`
	TotalCharacters  int64   `json:"total_indexed_characters"`
	DBSizeBytes      int64   `json:"db_size_bytes"`
	LastIndexedAt    string  `json:"last_indexed_at"`
}
