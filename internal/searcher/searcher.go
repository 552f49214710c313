package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dhowland/epubfts/internal/chunker"
	"github.com/dhowland/epubfts/internal/logger"
	"github.com/dhowland/epubfts/internal/storage"
	"github.com/dhowland/epubfts/pkg/types"
)

const (
	// DefaultLimit is the result cap when the caller does not set one.
	DefaultLimit = 20

	// fetchMultiplier oversizes the chunk-level fetch so that book-level
	// deduplication can still fill the requested limit.
	fetchMultiplier = 6

	cacheSize = 256
)

// Searcher runs ranked full-text queries and deduplicates the
// chunk-level rows down to one hit per book. Results are cached per
// (query, limit) until the next index mutation.
type Searcher struct {
	store storage.Store
	cache *lru.Cache[[32]byte, []types.SearchHit]
	log   logger.Logger
}

func New(store storage.Store, log logger.Logger) (*Searcher, error) {
	cache, err := lru.New[[32]byte, []types.SearchHit](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Searcher{store: store, cache: cache, log: log}, nil
}

// Search runs query as an FTS5 match expression and returns at most
// limit hits, best-ranked chunk per book, in rank order. A query the
// engine rejects is retried once with every token quoted; a query that
// still fails yields no hits rather than an error.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]types.SearchHit, error) {
	normalized := chunker.Normalize(query)
	if normalized == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := cacheKey(normalized, limit)
	if hits, ok := s.cache.Get(key); ok {
		return cloneHits(hits), nil
	}

	fetchLimit := limit * fetchMultiplier
	if fetchLimit < limit {
		fetchLimit = limit
	}

	rows, err := s.store.SearchRaw(ctx, normalized, fetchLimit)
	if errors.Is(err, storage.ErrBadQuery) {
		quoted := quoteTokens(normalized)
		s.log.Debug("match expression rejected, retrying quoted",
			"query", normalized, "fallback", quoted)
		rows, err = s.store.SearchRaw(ctx, quoted, fetchLimit)
		if errors.Is(err, storage.ErrBadQuery) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}

	hits := dedupe(rows, limit)
	s.cache.Add(key, hits)
	return cloneHits(hits), nil
}

// PurgeCache drops every cached result set. Call after any index
// mutation.
func (s *Searcher) PurgeCache() {
	s.cache.Purge()
}

// dedupe keeps the first (best-ranked) row per book, preserving order.
func dedupe(rows []storage.MatchRow, limit int) []types.SearchHit {
	seen := make(map[int64]struct{}, limit)
	hits := make([]types.SearchHit, 0, limit)
	for _, row := range rows {
		if _, ok := seen[row.BookID]; ok {
			continue
		}
		seen[row.BookID] = struct{}{}
		hits = append(hits, types.SearchHit{
			BookID:  row.BookID,
			Section: row.Section,
			Snippet: row.Snippet,
			Rank:    row.Rank,
		})
		if len(hits) >= limit {
			break
		}
	}
	return hits
}

// quoteTokens rewrites a free-form query as quoted FTS5 strings so
// operator characters lose their meaning. Embedded quotes are doubled
// per the FTS5 string syntax.
func quoteTokens(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func cacheKey(normalized string, limit int) [32]byte {
	return sha256.Sum256([]byte(normalized + "|" + strconv.Itoa(limit)))
}

// cloneHits guards cached slices against caller mutation.
func cloneHits(hits []types.SearchHit) []types.SearchHit {
	out := make([]types.SearchHit, len(hits))
	copy(out, hits)
	return out
}
