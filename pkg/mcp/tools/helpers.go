package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// marshalResult encodes a payload as a JSON text result.
func marshalResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// logToolError records a tool failure, at debug level for user errors.
func logToolError(logger *zap.Logger, tool string, err error) {
	fields := []zap.Field{
		zap.String("tool", tool),
		zap.String("error", logging.SanitizeError(err)),
	}
	if IsUserError(err) {
		logger.Debug("tool failed", fields...)
		return
	}
	logger.Error("tool failed", fields...)
}
