package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhowland/epubfts/internal/epub"
	"github.com/dhowland/epubfts/internal/logger"
	"github.com/dhowland/epubfts/internal/storage"
	"github.com/dhowland/epubfts/pkg/types"
)

const (
	archiveExt = ".epub"

	// inFlightPerWorker bounds how many extracted books may wait for the
	// serialized writer before extraction backpressures.
	inFlightPerWorker = 4
)

// Extractor produces the indexable sections of one archive.
type Extractor interface {
	Extract(path string) epub.Result
}

// Engine reconciles the stored index against a catalog listing. Changed
// and new books are re-extracted, vanished and stale books are removed,
// unchanged books are left untouched. All writes for one reconciliation
// go through a single transaction committed at the end.
type Engine struct {
	store     storage.Store
	extractor Extractor
	basePath  string
	log       logger.Logger
}

// Options controls a single reconciliation run.
type Options struct {
	// Force reindexes every present book regardless of fingerprints.
	Force bool
	// Workers is the extraction parallelism. Values below 2 run
	// extraction inline.
	Workers int
	// Progress, when non-nil, is invoked after each book reaches a
	// final disposition. A panicking callback is logged and disarmed.
	Progress types.ProgressFunc
}

func New(store storage.Store, extractor Extractor, basePath string, log logger.Logger) *Engine {
	return &Engine{
		store:     store,
		extractor: extractor,
		basePath:  basePath,
		log:       log,
	}
}

// job is one book whose archive must be (re)extracted.
type job struct {
	row   types.CatalogRow
	path  string
	mtime float64
	size  int64
}

type extractOutcome struct {
	job      job
	sections []types.Section
	reason   string
}

// progressReporter wraps the user callback so a panic inside it cannot
// abort a half-committed sync.
type progressReporter struct {
	fn  types.ProgressFunc
	log logger.Logger
}

func (p *progressReporter) report(processed, total, indexed, removed int) {
	if p.fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("progress callback panicked, disabling it", "panic", fmt.Sprint(r))
			p.fn = nil
		}
	}()
	p.fn(processed, total, indexed, removed)
}

// Sync reconciles the index against rows, the current catalog listing.
func (e *Engine) Sync(ctx context.Context, rows []types.CatalogRow, opts Options) (*types.SyncResult, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	fps, err := tx.Fingerprints(ctx)
	if err != nil {
		return nil, err
	}

	progress := &progressReporter{fn: opts.Progress, log: e.log}
	total := len(rows)
	result := &types.SyncResult{}
	processed := 0

	inCatalog := make(map[int64]struct{}, len(rows))
	var pending []job

	for _, row := range rows {
		inCatalog[row.BookID] = struct{}{}
		path := filepath.Join(e.basePath, filepath.FromSlash(row.RelPath), row.BaseName+archiveExt)

		info, err := os.Stat(path)
		if err != nil {
			// Catalog row without a file on disk. Drop any stale entry.
			if _, had := fps[row.BookID]; had {
				if rerr := tx.RemoveBook(ctx, row.BookID); rerr != nil {
					return nil, rerr
				}
				result.Removed++
			}
			e.log.Debug("archive missing, skipping", "book_id", row.BookID, "path", path)
			processed++
			progress.report(processed, total, result.Indexed, result.Removed)
			continue
		}

		mtime := unixFloat(info.ModTime())
		size := info.Size()
		result.Seen++

		if fp, ok := fps[row.BookID]; ok && !opts.Force && sameFingerprint(fp, mtime, size) {
			processed++
			progress.report(processed, total, result.Indexed, result.Removed)
			continue
		}

		pending = append(pending, job{row: row, path: path, mtime: mtime, size: size})
	}

	// Books indexed previously but no longer in the catalog at all.
	for bookID := range fps {
		if _, ok := inCatalog[bookID]; !ok {
			if err := tx.RemoveBook(ctx, bookID); err != nil {
				return nil, err
			}
			result.Removed++
		}
	}

	if err := e.runExtractions(ctx, pending, opts.Workers, func(outcome extractOutcome) error {
		processed++
		werr := e.applyOutcome(ctx, tx, outcome, result)
		progress.report(processed, total, result.Indexed, result.Removed)
		return werr
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sync: %w", err)
	}
	committed = true

	e.log.Info("sync complete",
		"seen", result.Seen, "indexed", result.Indexed, "removed", result.Removed)
	return result, nil
}

// applyOutcome writes one extraction result through the transaction. A
// book whose archive yields no text still gets its fingerprint upserted
// with zero chunks: any stale chunks stop being searchable, and the
// unextractable file is not re-parsed on every later sync.
func (e *Engine) applyOutcome(ctx context.Context, tx storage.Tx, outcome extractOutcome, result *types.SyncResult) error {
	if len(outcome.sections) == 0 {
		reason := outcome.reason
		if reason == "" {
			reason = "no extractable text"
		}
		e.log.Warn("extraction produced nothing",
			"book_id", outcome.job.row.BookID, "path", outcome.job.path, "reason", reason)
	}

	if err := tx.ReplaceBook(ctx, outcome.job.row.BookID, outcome.job.path,
		outcome.job.mtime, outcome.job.size, outcome.sections); err != nil {
		return err
	}
	result.Indexed++
	return nil
}

// runExtractions extracts the pending jobs, serializing collect (and
// thus all writes) on the calling goroutine. With fewer than two
// workers the whole thing runs inline.
func (e *Engine) runExtractions(ctx context.Context, pending []job, workers int, collect func(extractOutcome) error) error {
	if len(pending) == 0 {
		return nil
	}

	if workers < 2 {
		for _, j := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := e.extractor.Extract(j.path)
			if err := collect(extractOutcome{job: j, sections: res.Sections, reason: res.Reason}); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	outcomes := make(chan extractOutcome, workers*inFlightPerWorker)

	g.Go(func() error {
		defer close(jobs)
		for _, j := range pending {
			select {
			case jobs <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				res := e.extractor.Extract(j.path)
				select {
				case outcomes <- extractOutcome{job: j, sections: res.Sections, reason: res.Reason}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Keep draining after a write error so no worker stays blocked.
	var writeErr error
	for outcome := range outcomes {
		if writeErr != nil {
			continue
		}
		writeErr = collect(outcome)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return writeErr
}

func sameFingerprint(fp storage.Fingerprint, mtime float64, size int64) bool {
	return fp.MTime == mtime && fp.Size == size
}

// unixFloat converts a mod time to fractional Unix seconds, the stored
// fingerprint representation.
func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
