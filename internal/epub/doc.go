// Package epub extracts searchable plain text and section titles from
// EPUB archives.
//
// An EPUB is a zip container whose META-INF/container.xml points at an
// OPF package document; the package's manifest maps item ids to files
// and its spine declares the linear reading order. Extraction walks the
// spine, parses each HTML content document leniently, and emits
// (title, chunk) pairs in reading order. Extraction is best-effort by
// contract: a corrupt archive or package yields zero sections, never an
// error the caller has to branch on.
package epub
