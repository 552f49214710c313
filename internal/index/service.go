package index

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhowland/epubfts/internal/epub"
	"github.com/dhowland/epubfts/internal/logger"
	"github.com/dhowland/epubfts/internal/searcher"
	"github.com/dhowland/epubfts/internal/storage"
	"github.com/dhowland/epubfts/internal/syncer"
	"github.com/dhowland/epubfts/pkg/types"
)

const (
	// DBFileName is the index database, kept beside the application
	// settings database.
	DBFileName = "epub_fts.db"

	// syncInterval suppresses repeat syncs. A non-forced sync within
	// this window of the last successful one is a no-op.
	syncInterval = 300 * time.Second
)

// Service is the single entry point for indexing and search. One mutex
// serializes all operations; concurrent callers queue rather than
// interleave, and a second sync arriving while one runs is absorbed by
// the freshness gate.
type Service struct {
	mu       sync.Mutex
	store    storage.Store
	engine   *syncer.Engine
	searcher *searcher.Searcher
	log      logger.Logger

	// lastSync is the unixnano of the last successful sync, read
	// without the mutex for the cheap early gate check.
	lastSync atomic.Int64
}

// DBPathFor places the index database next to the settings database.
func DBPathFor(settingsPath string) string {
	return filepath.Join(filepath.Dir(settingsPath), DBFileName)
}

// Open opens (creating if needed) the index at dbPath, with basePath as
// the library root that catalog paths resolve against.
func Open(dbPath, basePath string, log logger.Logger) (*Service, error) {
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	return NewService(store, basePath, log)
}

// NewService builds a Service on an existing store. The store is owned
// by the service from here on.
func NewService(store storage.Store, basePath string, log logger.Logger) (*Service, error) {
	sr, err := searcher.New(store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	extractor := epub.New(log)
	return &Service{
		store:    store,
		engine:   syncer.New(store, extractor, basePath, log),
		searcher: sr,
		log:      log,
	}, nil
}

// Sync reconciles the index against rows. Unless opts.Force is set, a
// call within the freshness window of the previous successful sync
// returns immediately with Skipped set.
func (s *Service) Sync(ctx context.Context, rows []types.CatalogRow, opts syncer.Options) (*types.SyncResult, error) {
	if !opts.Force && s.recentlySynced() {
		return &types.SyncResult{Skipped: true}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check: another caller may have synced while we waited.
	if !opts.Force && s.recentlySynced() {
		return &types.SyncResult{Skipped: true}, nil
	}

	result, err := s.engine.Sync(ctx, rows, opts)
	if err != nil {
		return nil, err
	}

	s.lastSync.Store(time.Now().UnixNano())
	if result.Indexed > 0 || result.Removed > 0 {
		s.searcher.PurgeCache()
	}
	return result, nil
}

// Search runs a ranked, per-book-deduplicated query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]types.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searcher.Search(ctx, query, limit)
}

// Stats reports the current index contents.
func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Stats(ctx)
}

// Clear empties the index and re-arms the freshness gate so the next
// sync runs unconditionally.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.lastSync.Store(0)
	s.searcher.PurgeCache()
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}

func (s *Service) recentlySynced() bool {
	last := s.lastSync.Load()
	return last != 0 && time.Since(time.Unix(0, last)) < syncInterval
}
