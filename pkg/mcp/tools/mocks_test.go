package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/kusto-mcp/kusto-engine/pkg/advisor"
	"github.com/kusto-mcp/kusto-engine/pkg/analysis"
	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
)

// mockConnectionService implements ConnectionService for testing.
type mockConnectionService struct {
	conn         kusto.Connection
	err          error
	connectCalls []connectCall
}

type connectCall struct {
	clusterURL string
	database   string
}

func (m *mockConnectionService) Connect(ctx context.Context, clusterURL, database string) (kusto.Connection, error) {
	m.connectCalls = append(m.connectCalls, connectCall{clusterURL: clusterURL, database: database})
	if m.err != nil {
		return kusto.Connection{Status: kusto.StatusFailed, LastError: m.err.Error()}, m.err
	}
	return m.conn, nil
}

func (m *mockConnectionService) Status() kusto.Connection {
	return m.conn
}

// mockQueryService implements QueryService for testing.
type mockQueryService struct {
	result    *kusto.QueryResult
	allResult *kusto.QueryResult
	err       error
	executed  []string
	fullScans []string
}

func (m *mockQueryService) Execute(ctx context.Context, query string) (*kusto.QueryResult, error) {
	m.executed = append(m.executed, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockQueryService) ExecuteAll(ctx context.Context, query string) (*kusto.QueryResult, error) {
	m.fullScans = append(m.fullScans, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.allResult, nil
}

// mockAnalysisService implements AnalysisService for testing.
type mockAnalysisService struct {
	report   *analysis.Report
	err      error
	gotKind  analysis.Kind
	gotRows  int
	analyzed bool
}

func (m *mockAnalysisService) Analyze(result *kusto.QueryResult, kind analysis.Kind) (*analysis.Report, error) {
	m.analyzed = true
	m.gotKind = kind
	if result != nil {
		m.gotRows = len(result.Rows)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

// mockAdvisorService implements AdvisorService for testing.
type mockAdvisorService struct {
	suggestions []advisor.Suggestion
	queries     []string
}

func (m *mockAdvisorService) Suggest(query string) []advisor.Suggestion {
	m.queries = append(m.queries, query)
	return m.suggestions
}

func newToolServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}

// callTool executes an MCP tool via the server's HandleMessage method.
func callTool(t *testing.T, s *server.MCPServer, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()

	callReq := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}

	reqBytes, err := json.Marshal(callReq)
	require.NoError(t, err)

	result := s.HandleMessage(context.Background(), reqBytes)

	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result *mcp.CallToolResult `json:"result,omitempty"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	err = json.Unmarshal(resultBytes, &response)
	require.NoError(t, err)

	if response.Error != nil {
		return nil, &rpcError{Code: response.Error.Code, Message: response.Error.Message}
	}

	return response.Result, nil
}

// rpcError represents an MCP JSON-RPC error.
type rpcError struct {
	Code    int
	Message string
}

func (e *rpcError) Error() string {
	return e.Message
}

// listTools returns the registered tool names via tools/list.
func listTools(t *testing.T, s *server.MCPServer) map[string]bool {
	t.Helper()

	result := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))

	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	err = json.Unmarshal(resultBytes, &response)
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		found[tool.Name] = true
	}
	return found
}

// resultText returns the first text content block of a tool result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content should be text")
	return text.Text
}

// decodeError unmarshals a tool error result into an ErrorResponse.
func decodeError(t *testing.T, result *mcp.CallToolResult) ErrorResponse {
	t.Helper()
	require.True(t, result.IsError, "expected an error result")
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	return resp
}
