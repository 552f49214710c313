package types

// Section is one indexable unit of text extracted from an EPUB content
// document: the document's display title plus a bounded chunk of its text.
type Section struct {
	Title   string
	Content string
}

// CatalogRow identifies one EPUB entry in the external book catalog.
// RelPath and BaseName locate the archive below the library root as
// RelPath/BaseName.epub.
type CatalogRow struct {
	BookID   int64
	RelPath  string
	BaseName string
}

// SearchHit is a single ranked search result, at most one per book.
// Rank comes from the storage engine's BM25 scoring; lower is better.
type SearchHit struct {
	BookID  int64   `json:"book_id"`
	Section string  `json:"section"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// SyncResult reports what one synchronization pass did. Skipped is set
// when the pass was elided because a recent one already ran.
type SyncResult struct {
	Indexed int  `json:"indexed"`
	Removed int  `json:"removed"`
	Seen    int  `json:"seen"`
	Skipped bool `json:"skipped,omitempty"`
}

// ProgressFunc observes sync progress. It is invoked after each catalog
// row's disposition is finalized and must not assume it runs on any
// particular goroutine.
type ProgressFunc func(processed, total, indexed, removed int)
