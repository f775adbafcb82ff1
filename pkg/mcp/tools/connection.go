package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// ConnectionService is the connection lifecycle surface the tools call.
type ConnectionService interface {
	Connect(ctx context.Context, clusterURL, database string) (kusto.Connection, error)
	Status() kusto.Connection
}

var _ ConnectionService = (*kusto.ConnectionManager)(nil)

// ConnectionToolDeps contains dependencies for connection tools.
type ConnectionToolDeps struct {
	Connections ConnectionService
	Logger      *zap.Logger
}

// RegisterConnectionTools registers the connect and connection_status tools.
func RegisterConnectionTools(s *server.MCPServer, deps *ConnectionToolDeps) {
	registerConnectTool(s, deps)
	registerConnectionStatusTool(s, deps)
}

func registerConnectTool(s *server.MCPServer, deps *ConnectionToolDeps) {
	tool := mcp.NewTool(
		"connect",
		mcp.WithDescription(
			"Connect to an Azure Data Explorer cluster and database. "+
				"Replaces any existing connection. The binding is verified with a "+
				"schema probe before it is reported as connected.",
		),
		mcp.WithString(
			"cluster_url",
			mcp.Required(),
			mcp.Description("Cluster URL, e.g. https://help.kusto.windows.net"),
		),
		mcp.WithString(
			"database",
			mcp.Required(),
			mcp.Description("Database name, e.g. Samples"),
		),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clusterURL, err := req.RequireString("cluster_url")
		if err != nil {
			return NewErrorResult(CodeValidation, err.Error()), nil
		}
		database, err := req.RequireString("database")
		if err != nil {
			return NewErrorResult(CodeValidation, err.Error()), nil
		}

		conn, err := deps.Connections.Connect(ctx, clusterURL, database)
		if err != nil {
			logToolError(deps.Logger, "connect", err)
			return ErrorResult(err), nil
		}

		deps.Logger.Info("connection established",
			zap.String("cluster", logging.SanitizeConnectionString(conn.ClusterURL)),
			zap.String("database", conn.Database))
		return marshalResult(conn)
	})
}

func registerConnectionStatusTool(s *server.MCPServer, deps *ConnectionToolDeps) {
	tool := mcp.NewTool(
		"connection_status",
		mcp.WithDescription(
			"Report the current cluster connection: status, bound cluster and "+
				"database, and the last error if the previous connect attempt failed.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return marshalResult(deps.Connections.Status())
	})
}
