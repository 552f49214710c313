package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dhowland/epubfts/internal/catalog"
	"github.com/dhowland/epubfts/internal/index"
	"github.com/dhowland/epubfts/internal/logger"
)

const (
	// ServerName is the MCP server name
	ServerName = "epubfts"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	service *index.Service
	catalog *catalog.Catalog
	log     logger.Logger
}

// NewServer creates a new MCP server over an opened index service and
// catalog. The server owns both and closes them when serving ends.
func NewServer(service *index.Service, cat *catalog.Catalog, log logger.Logger) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		service: service,
		catalog: cat,
		log:     log,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.catalog.Close()
		_ = s.service.Close()
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(syncIndexTool(), s.handleSyncIndex)
	s.mcp.AddTool(searchBooksTool(), s.handleSearchBooks)
	s.mcp.AddTool(indexStatsTool(), s.handleIndexStats)
}
