package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// serverInstructions primes MCP clients on how the surface fits together
// before any tool call is made.
const serverInstructions = "Connect to Azure Kusto, explore schemas, and run KQL queries. " +
	"Use the connect tool to bind a cluster and database, execute_query to run KQL, " +
	"analyze_data for statistical summaries, and optimize_query for textual query review. " +
	"Table schemas are exposed as kusto:// resources and guided analyses as prompts."

// Server wraps the mcp-go MCPServer behind a single registration surface.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance with tool, resource, and
// prompt capabilities.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithInstructions(serverInstructions),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool, resource, and prompt
// registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio runs the server over stdin/stdout until the client hangs up.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
