//go:build !cgo_sqlite
// +build !cgo_sqlite

package storage

// This file is compiled for the default pure Go build. FTS5, bm25() and
// snippet() are built into the modernc translation, so no C toolchain is
// needed.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
