// Package searcher turns chunk-level FTS matches into book-level search
// hits: normalize the query, oversample, deduplicate per book, cache.
package searcher
