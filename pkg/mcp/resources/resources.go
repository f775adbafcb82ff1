// Package resources exposes the catalog and connection state as MCP
// resources. Resources are read-only views; anything that mutates
// state lives in the tools package.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// Resource URIs.
const (
	TablesURI         = "kusto://tables"
	SchemaTemplateURI = "kusto://schema/{table_name}"
	SampleURI         = "kusto://sample"
	ConnectionURI     = "kusto://connection"

	schemaURIPrefix = "kusto://schema/"
)

// CatalogService is the schema surface the resources read.
type CatalogService interface {
	ListTables(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, table string) (*kusto.TableSchema, error)
}

// ConnectionService reports the current cluster binding.
type ConnectionService interface {
	Status() kusto.Connection
}

var (
	_ CatalogService    = (*kusto.Catalog)(nil)
	_ ConnectionService = (*kusto.ConnectionManager)(nil)
)

// ResourceDeps contains dependencies for the kusto:// resources.
type ResourceDeps struct {
	Catalog     CatalogService
	Connections ConnectionService
	Logger      *zap.Logger
}

// RegisterResources registers all kusto:// resources with the MCP server.
func RegisterResources(s *server.MCPServer, deps *ResourceDeps) {
	registerTablesResource(s, deps)
	registerSchemaResource(s, deps)
	registerSampleResource(s)
	registerConnectionResource(s, deps)
}

func registerTablesResource(s *server.MCPServer, deps *ResourceDeps) {
	resource := mcp.NewResource(
		TablesURI,
		"Available tables",
		mcp.WithResourceDescription("All tables in the connected Kusto database"),
		mcp.WithMIMEType("text/markdown"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tables, err := deps.Catalog.ListTables(ctx)
		if err != nil {
			// A missing connection is guidance, not a failure.
			if errors.Is(err, apperrors.ErrNotConnected) {
				return markdownContents(req.Params.URI, notConnectedTablesText), nil
			}
			deps.Logger.Warn("tables resource failed", zap.String("error", logging.SanitizeError(err)))
			return nil, err
		}
		return markdownContents(req.Params.URI, renderTableList(tables)), nil
	})
}

const notConnectedTablesText = "No tables available. Connect to a Kusto database with the `connect` tool first."

func renderTableList(tables []string) string {
	if len(tables) == 0 {
		return notConnectedTablesText
	}

	var b strings.Builder
	b.WriteString("# Available Kusto Tables\n\n")
	for _, table := range tables {
		fmt.Fprintf(&b, "- %s\n", table)
	}
	b.WriteString("\nTo view a table schema, read `kusto://schema/{table_name}`.\n")
	return b.String()
}

func registerSchemaResource(s *server.MCPServer, deps *ResourceDeps) {
	template := mcp.NewResourceTemplate(
		SchemaTemplateURI,
		"Table schema",
		mcp.WithTemplateDescription("Column names, types, and descriptions for one table"),
		mcp.WithTemplateMIMEType("text/markdown"),
	)

	s.AddResourceTemplate(template, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		table := strings.TrimPrefix(req.Params.URI, schemaURIPrefix)

		schema, err := deps.Catalog.GetSchema(ctx, table)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrValidation):
				text := fmt.Sprintf("Schema for table %q not found or not accessible.", table)
				return markdownContents(req.Params.URI, text), nil
			case errors.Is(err, apperrors.ErrNotConnected):
				text := "Not connected to a Kusto database. Use the `connect` tool first."
				return markdownContents(req.Params.URI, text), nil
			}
			deps.Logger.Warn("schema resource failed",
				zap.String("table", table),
				zap.String("error", logging.SanitizeError(err)))
			return nil, err
		}
		return markdownContents(req.Params.URI, renderSchema(schema)), nil
	})
}

func renderSchema(schema *kusto.TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Schema for Kusto Table: %s\n\n", schema.Table)
	b.WriteString("## Columns\n\n")
	b.WriteString("| Name | Type | Description |\n")
	b.WriteString("| ---- | ---- | ----------- |\n")
	for _, col := range schema.Columns {
		desc := strings.ReplaceAll(col.Description, "\n", " ")
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", col.Name, col.Type, desc)
	}
	return b.String()
}

// sampleDocument is a worked KQL example served as a static resource so
// clients can learn the query shape without a connection.
type sampleDocument struct {
	Query           string           `json:"query"`
	Explanation     string           `json:"explanation"`
	QueryParts      []queryPart      `json:"queryParts"`
	CommonOperators []commonOperator `json:"commonOperators"`
}

type queryPart struct {
	Part        string `json:"part"`
	Explanation string `json:"explanation"`
}

type commonOperator struct {
	Operator    string `json:"operator"`
	Description string `json:"description"`
}

var kqlSample = sampleDocument{
	Query: "StormEvents | where StartTime >= datetime(2007-11-01) and StartTime < datetime(2007-12-01) | where State == 'FLORIDA' | count",
	Explanation: "This query filters the StormEvents table to find events in Florida during " +
		"November 2007, then counts the total number of matching events.",
	QueryParts: []queryPart{
		{Part: "StormEvents", Explanation: "The source table containing storm data"},
		{Part: "where StartTime >= datetime(2007-11-01) and StartTime < datetime(2007-12-01)", Explanation: "Filters events to a specific date range"},
		{Part: "where State == 'FLORIDA'", Explanation: "Further filters to only include events in Florida"},
		{Part: "count", Explanation: "Counts the total number of matching records"},
	},
	CommonOperators: []commonOperator{
		{Operator: "where", Description: "Filters a table to the subset of rows that satisfy a predicate"},
		{Operator: "summarize", Description: "Produces a table that aggregates the content of the input table"},
		{Operator: "join", Description: "Merges the rows of two tables to form a new table"},
		{Operator: "project", Description: "Selects a subset of columns to include in results"},
	},
}

func registerSampleResource(s *server.MCPServer) {
	resource := mcp.NewResource(
		SampleURI,
		"Sample KQL query",
		mcp.WithResourceDescription("A worked KQL example with a part-by-part explanation"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.MarshalIndent(kqlSample, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sample: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerConnectionResource(s *server.MCPServer, deps *ResourceDeps) {
	resource := mcp.NewResource(
		ConnectionURI,
		"Connection information",
		mcp.WithResourceDescription("The currently bound cluster and database"),
		mcp.WithMIMEType("text/markdown"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return markdownContents(req.Params.URI, renderConnection(deps.Connections.Status())), nil
	})
}

func renderConnection(conn kusto.Connection) string {
	if conn.Status != kusto.StatusConnected {
		text := "Not connected to any Kusto cluster. Use the `connect` tool to establish a connection.\n"
		if conn.Status == kusto.StatusFailed && conn.LastError != "" {
			text += fmt.Sprintf("\nThe last connect attempt failed: %s\n", conn.LastError)
		}
		return text
	}

	return fmt.Sprintf(`# Kusto Connection Information

- **Cluster:** %s
- **Database:** %s

To change the connection, use the `+"`connect`"+` tool.
`, conn.ClusterURL, conn.Database)
}

func markdownContents(uri, text string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     text,
		},
	}
}
