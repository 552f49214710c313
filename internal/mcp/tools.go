package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dhowland/epubfts/internal/syncer"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32001 // Query parameter is empty
	ErrorCodeSyncFailed    = -32002 // Synchronization failed
)

// handleSyncIndex handles the sync_index tool invocation
func (s *Server) handleSyncIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	force := getBoolDefault(args, "force", false)
	workers := getIntDefault(args, "workers", 1)
	if workers < 1 || workers > 16 {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must be between 1 and 16", map[string]interface{}{
			"param": "workers",
			"value": workers,
		})
	}

	rows, err := s.catalog.Rows(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeSyncFailed, "failed to read catalog", map[string]interface{}{
			"error": err.Error(),
		})
	}

	result, err := s.service.Sync(ctx, rows, syncer.Options{Force: force, Workers: workers})
	if err != nil {
		return nil, newMCPError(ErrorCodeSyncFailed, "sync failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"skipped": result.Skipped,
		"seen":    result.Seen,
		"indexed": result.Indexed,
		"removed": result.Removed,
	}
	if result.Skipped {
		response["message"] = "A sync completed recently; pass force to override."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchBooks handles the search_books tool invocation
func (s *Server) handleSearchBooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 20)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	hits, err := s.service.Search(ctx, query, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		entry := map[string]interface{}{
			"book_id": hit.BookID,
			"section": hit.Section,
			"snippet": hit.Snippet,
			"rank":    hit.Rank,
		}
		if title, author, err := s.catalog.BookInfo(ctx, hit.BookID); err == nil {
			entry["title"] = title
			entry["author"] = author
		}
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexStats handles the index_stats tool invocation
func (s *Server) handleIndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.service.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read index stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"books_indexed":            stats.BooksIndexed,
		"chunks_indexed":           stats.ChunksIndexed,
		"avg_chunks_per_book":      fmt.Sprintf("%.1f", stats.AvgChunksPerBook),
		"total_indexed_characters": stats.TotalCharacters,
		"db_size_bytes":            stats.DBSizeBytes,
		"last_indexed_at":          stats.LastIndexedAt,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
