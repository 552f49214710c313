package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhowland/epubfts/internal/epub"
	"github.com/dhowland/epubfts/internal/logger"
	"github.com/dhowland/epubfts/internal/storage"
	"github.com/dhowland/epubfts/pkg/types"
)

// stubExtractor returns canned sections and records which paths it saw.
type stubExtractor struct {
	mu       sync.Mutex
	calls    []string
	sections []types.Section
	empty    map[string]bool // paths that extract to nothing
}

func (s *stubExtractor) Extract(path string) epub.Result {
	s.mu.Lock()
	s.calls = append(s.calls, path)
	s.mu.Unlock()
	if s.empty[filepath.Base(path)] {
		return epub.Result{Reason: "nothing extractable"}
	}
	return epub.Result{Sections: s.sections}
}

func (s *stubExtractor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func defaultSections() []types.Section {
	return []types.Section{
		{Title: "Chapter One", Content: "some searchable prose"},
	}
}

func setupEngine(t *testing.T) (*Engine, *stubExtractor, *storage.SQLiteStore, string) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := t.TempDir()
	ex := &stubExtractor{sections: defaultSections(), empty: map[string]bool{}}
	return New(store, ex, base, logger.Discard()), ex, store, base
}

func writeBook(t *testing.T, base, rel, name, content string) {
	t.Helper()
	dir := filepath.Join(base, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".epub"), []byte(content), 0o644))
}

func TestSyncIndexesNewBooks(t *testing.T) {
	eng, ex, store, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "Author/Book One", "file1", "aaa")
	writeBook(t, base, "Author/Book Two", "file2", "bbb")
	rows := []types.CatalogRow{
		{BookID: 1, RelPath: "Author/Book One", BaseName: "file1"},
		{BookID: 2, RelPath: "Author/Book Two", BaseName: "file2"},
	}

	result, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Seen)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 0, result.Removed)
	assert.Equal(t, 2, ex.callCount())

	fps, err := store.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Len(t, fps, 2)
}

func TestSyncIdempotent(t *testing.T) {
	eng, ex, _, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book", "content")
	rows := []types.CatalogRow{{BookID: 1, RelPath: "a", BaseName: "book"}}

	_, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, ex.callCount())

	result, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Indexed)
	assert.Equal(t, 0, result.Removed)
	assert.Equal(t, 1, result.Seen)
	// Unchanged fingerprint means no second extraction.
	assert.Equal(t, 1, ex.callCount())
}

func TestSyncReindexesChangedFile(t *testing.T) {
	eng, ex, _, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book", "v1")
	rows := []types.CatalogRow{{BookID: 1, RelPath: "a", BaseName: "book"}}

	_, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)

	// Different size forces a fingerprint mismatch.
	writeBook(t, base, "a", "book", "version two, longer")

	result, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 2, ex.callCount())
}

func TestSyncRemovesMissingFile(t *testing.T) {
	eng, _, store, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book", "content")
	rows := []types.CatalogRow{{BookID: 1, RelPath: "a", BaseName: "book"}}

	_, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(base, "a", "book.epub")))

	result, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 0, result.Seen)

	fps, err := store.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Empty(t, fps)
}

func TestSyncRemovesBookGoneFromCatalog(t *testing.T) {
	eng, _, store, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book1", "content")
	writeBook(t, base, "b", "book2", "content")
	rows := []types.CatalogRow{
		{BookID: 1, RelPath: "a", BaseName: "book1"},
		{BookID: 2, RelPath: "b", BaseName: "book2"},
	}

	_, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)

	result, err := eng.Sync(ctx, rows[:1], Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	fps, err := store.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Contains(t, fps, int64(1))
	assert.NotContains(t, fps, int64(2))
}

func TestSyncForceReindexesUnchanged(t *testing.T) {
	eng, ex, _, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book", "content")
	rows := []types.CatalogRow{{BookID: 1, RelPath: "a", BaseName: "book"}}

	_, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)

	result, err := eng.Sync(ctx, rows, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 2, ex.callCount())
}

func TestSyncEmptyExtractionKeepsFingerprint(t *testing.T) {
	eng, ex, store, base := setupEngine(t)
	ctx := context.Background()

	// A book that never yields text is fingerprinted with zero chunks
	// so later syncs skip it instead of re-parsing it forever.
	ex.empty["book.epub"] = true
	writeBook(t, base, "a", "book", "corrupt archive")
	rows := []types.CatalogRow{{BookID: 1, RelPath: "a", BaseName: "book"}}

	result, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 0, result.Removed)
	require.Equal(t, 1, ex.callCount())

	fps, err := store.Fingerprints(ctx)
	require.NoError(t, err)
	require.Contains(t, fps, int64(1))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ChunksIndexed)

	// Unchanged file, second sync: fingerprint matches, no extraction.
	result, err = eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Indexed)
	assert.Equal(t, 1, ex.callCount())
}

func TestSyncEmptyExtractionDropsStaleChunks(t *testing.T) {
	eng, ex, store, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book", "v1")
	rows := []types.CatalogRow{{BookID: 1, RelPath: "a", BaseName: "book"}}

	_, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)

	// The replacement file yields no text; the old chunks must not
	// stay searchable, but the fingerprint survives.
	ex.empty["book.epub"] = true
	writeBook(t, base, "a", "book", "v2 different size")

	result, err := eng.Sync(ctx, rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 0, result.Removed)

	fps, err := store.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Contains(t, fps, int64(1))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ChunksIndexed)
}

func TestSyncParallelWorkers(t *testing.T) {
	eng, ex, store, base := setupEngine(t)
	ctx := context.Background()

	var rows []types.CatalogRow
	for i := 1; i <= 12; i++ {
		rel := filepath.Join("shelf", string(rune('a'+i-1)))
		writeBook(t, base, rel, "book", "content")
		rows = append(rows, types.CatalogRow{BookID: int64(i), RelPath: rel, BaseName: "book"})
	}

	result, err := eng.Sync(ctx, rows, Options{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 12, result.Indexed)
	assert.Equal(t, 12, ex.callCount())

	fps, err := store.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Len(t, fps, 12)
}

func TestSyncProgressReported(t *testing.T) {
	eng, _, _, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book1", "content")
	writeBook(t, base, "b", "book2", "content")
	rows := []types.CatalogRow{
		{BookID: 1, RelPath: "a", BaseName: "book1"},
		{BookID: 2, RelPath: "b", BaseName: "book2"},
	}

	var lastProcessed, lastTotal int
	_, err := eng.Sync(ctx, rows, Options{
		Progress: func(processed, total, indexed, removed int) {
			lastProcessed = processed
			lastTotal = total
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, lastProcessed)
	assert.Equal(t, 2, lastTotal)
}

func TestSyncProgressPanicTolerated(t *testing.T) {
	eng, _, store, base := setupEngine(t)
	ctx := context.Background()

	writeBook(t, base, "a", "book1", "content")
	writeBook(t, base, "b", "book2", "content")
	rows := []types.CatalogRow{
		{BookID: 1, RelPath: "a", BaseName: "book1"},
		{BookID: 2, RelPath: "b", BaseName: "book2"},
	}

	result, err := eng.Sync(ctx, rows, Options{
		Progress: func(processed, total, indexed, removed int) {
			panic("observer bug")
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Indexed)

	fps, err := store.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Len(t, fps, 2)
}

func TestSyncCancelled(t *testing.T) {
	eng, _, _, base := setupEngine(t)

	writeBook(t, base, "a", "book", "content")
	rows := []types.CatalogRow{{BookID: 1, RelPath: "a", BaseName: "book"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Sync(ctx, rows, Options{})
	assert.Error(t, err)
}
