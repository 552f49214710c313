// Package syncer reconciles the full-text index against a catalog
// listing using per-book fingerprints. Extraction fans out across a
// worker pool; every database write happens on one goroutine inside one
// transaction, so a failed run leaves the index exactly as it was.
package syncer
