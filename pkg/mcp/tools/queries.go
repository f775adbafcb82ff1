package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/advisor"
	"github.com/kusto-mcp/kusto-engine/pkg/analysis"
	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// QueryService executes query text against the bound database.
type QueryService interface {
	Execute(ctx context.Context, query string) (*kusto.QueryResult, error)
	ExecuteAll(ctx context.Context, query string) (*kusto.QueryResult, error)
}

// AnalysisService computes statistical reports over query results.
type AnalysisService interface {
	Analyze(result *kusto.QueryResult, kind analysis.Kind) (*analysis.Report, error)
}

// AdvisorService evaluates optimization rules against query text.
type AdvisorService interface {
	Suggest(query string) []advisor.Suggestion
}

var (
	_ QueryService    = (*kusto.Executor)(nil)
	_ AnalysisService = (*analysis.Engine)(nil)
	_ AdvisorService  = (*advisor.Advisor)(nil)
)

// QueryToolDeps contains dependencies for query tools.
type QueryToolDeps struct {
	Queries  QueryService
	Analyzer AnalysisService
	Advisor  AdvisorService
	Logger   *zap.Logger
}

// RegisterQueryTools registers the execute_query, analyze_data, and
// optimize_query tools.
func RegisterQueryTools(s *server.MCPServer, deps *QueryToolDeps) {
	registerExecuteQueryTool(s, deps)
	registerAnalyzeDataTool(s, deps)
	registerOptimizeQueryTool(s, deps)
}

// executeQueryResult is the response structure for execute_query.
type executeQueryResult struct {
	Columns         []kusto.ColumnSchema `json:"columns"`
	Rows            [][]kusto.Value      `json:"rows"`
	RowCount        int                  `json:"row_count"`
	TotalRowCount   int                  `json:"total_row_count"`
	Truncated       bool                 `json:"truncated"`
	ExecutionTimeMS int64                `json:"execution_time_ms"`
}

func registerExecuteQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"execute_query",
		mcp.WithDescription(
			"Execute a KQL query against the connected database. The query runs "+
				"verbatim; commands starting with a dot route to the management "+
				"endpoint. Results beyond 100 rows return only the first 10, with "+
				"total_row_count carrying the full size and truncated set to true. "+
				"Include ordering in the query when a deterministic top-N matters.",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("KQL query text, e.g. StormEvents | where State == 'FLORIDA' | take 10"),
		),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return NewErrorResult(CodeValidation, err.Error()), nil
		}

		start := time.Now()
		res, err := deps.Queries.Execute(ctx, query)
		if err != nil {
			logToolError(deps.Logger, "execute_query", err)
			return ErrorResult(err), nil
		}

		deps.Logger.Debug("execute_query completed",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.Int("rows", res.TotalRowCount),
			zap.Bool("truncated", res.Truncated))
		return marshalResult(executeQueryResult{
			Columns:         res.Columns,
			Rows:            res.Rows,
			RowCount:        len(res.Rows),
			TotalRowCount:   res.TotalRowCount,
			Truncated:       res.Truncated,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		})
	})
}

func registerAnalyzeDataTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"analyze_data",
		mcp.WithDescription(
			"Run a KQL query and compute statistics over the full result. "+
				"analysis_type selects the report: summary (per-column metrics), "+
				"stats (summary plus a Pearson correlation matrix over numeric "+
				"columns), or plot_ready (column classification plus chart "+
				"suggestions).",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("KQL query producing the data to analyze"),
		),
		mcp.WithString(
			"analysis_type",
			mcp.Description("summary, stats, or plot_ready (default summary)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return NewErrorResult(CodeValidation, err.Error()), nil
		}

		// Reject a bad analysis_type before paying for the query.
		kind, err := analysis.ParseKind(getOptionalString(req, "analysis_type"))
		if err != nil {
			return ErrorResult(err), nil
		}

		res, err := deps.Queries.ExecuteAll(ctx, query)
		if err != nil {
			logToolError(deps.Logger, "analyze_data", err)
			return ErrorResult(err), nil
		}

		report, err := deps.Analyzer.Analyze(res, kind)
		if err != nil {
			logToolError(deps.Logger, "analyze_data", err)
			return ErrorResult(err), nil
		}

		deps.Logger.Debug("analyze_data completed",
			zap.String("kind", string(kind)),
			zap.Int("rows", report.RowCount))
		return marshalResult(report)
	})
}

// optimizeQueryResult is the response structure for optimize_query.
type optimizeQueryResult struct {
	Query         string               `json:"query"`
	Suggestions   []advisor.Suggestion `json:"suggestions"`
	BestPractices []string             `json:"best_practices"`
}

// bestPractices travels with every optimize_query response so generic
// guidance is available even when no rule fires.
var bestPractices = []string{
	"Filter early: put 'where' clauses on time and high-selectivity columns before joins and aggregations.",
	"Bound time windows with ago() or between() instead of scanning full retention.",
	"Project only the columns you need; unprojected wide results are expensive to serialize.",
	"Use 'take' or 'top' while exploring so intermediate results stay small.",
	"Aggregate on the cluster with 'summarize' rather than pulling raw rows.",
	"Reuse filtered subsets with 'let' and materialize() instead of repeating the same scan.",
}

func registerOptimizeQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"optimize_query",
		mcp.WithDescription(
			"Analyze KQL query text for common performance problems and suggest "+
				"rewrites. Purely textual: nothing is executed and no connection "+
				"is required.",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("KQL query text to analyze"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return NewErrorResult(CodeValidation, err.Error()), nil
		}

		suggestions := deps.Advisor.Suggest(query)
		if suggestions == nil {
			suggestions = []advisor.Suggestion{}
		}

		return marshalResult(optimizeQueryResult{
			Query:         query,
			Suggestions:   suggestions,
			BestPractices: bestPractices,
		})
	})
}
