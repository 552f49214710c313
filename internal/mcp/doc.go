// Package mcp exposes the index over the Model Context Protocol on
// stdio: sync_index, search_books, and index_stats.
package mcp
