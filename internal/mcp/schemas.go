package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// syncIndexTool returns the tool definition for sync_index
func syncIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_index",
		Description: "Synchronize the full-text index with the book library, indexing new and changed EPUBs and removing vanished ones",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index every book ignoring file fingerprints (full rebuild)",
					"default":     false,
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Number of parallel extraction workers",
					"default":     1,
					"minimum":     1,
					"maximum":     16,
				},
			},
		},
	}
}

// searchBooksTool returns the tool definition for search_books
func searchBooksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_books",
		Description: "Full-text search over indexed book contents, returning the best-matching passage per book",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms; plain words or FTS5 match syntax",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of books to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexStatsTool returns the tool definition for index_stats
func indexStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_stats",
		Description: "Report statistics about the full-text index",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
