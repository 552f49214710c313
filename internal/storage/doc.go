// Package storage owns the persisted index schema: a book_meta
// fingerprint table and a book_fts FTS5 virtual table of text chunks.
// All multi-statement writes are transactional; a book's chunk set and
// fingerprint always change together. The ranked match primitive lives
// here too, as SearchRaw.
package storage
