// Package chunker splits extracted document text into bounded chunks
// suitable for full-text indexing.
package chunker
