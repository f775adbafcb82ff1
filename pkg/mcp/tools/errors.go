package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// Failures return as successful tool results with IsError set, so the
// client sees actionable details instead of a bare protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes surfaced to the client, one per failure class.
const (
	CodeValidation   = "validation_error"
	CodeAuth         = "auth_error"
	CodeConnection   = "connection_error"
	CodeNotConnected = "not_connected"
	CodeTimeout      = "timeout"
	CodeQuery        = "query_error"
	CodeEmptyResult  = "empty_result"
	CodeNotFound     = "not_found"
	CodeInternal     = "internal_error"
)

// ErrorCode maps an error to its taxonomy code. Unclassified errors
// report as internal_error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return CodeValidation
	case errors.Is(err, apperrors.ErrAuth):
		return CodeAuth
	case errors.Is(err, apperrors.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, apperrors.ErrConnection):
		return CodeConnection
	case errors.Is(err, apperrors.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, apperrors.ErrEmptyResult):
		return CodeEmptyResult
	case errors.Is(err, apperrors.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, apperrors.ErrQuery):
		return CodeQuery
	default:
		return CodeInternal
	}
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewErrorResultWithDetails creates an error result with additional
// context the client can act on.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorResult folds an error into a structured result under its taxonomy
// code. The message passes through sanitization so credential material
// never reaches the client.
func ErrorResult(err error) *mcp.CallToolResult {
	return NewErrorResult(ErrorCode(err), logging.SanitizeError(err))
}

// IsUserError reports whether the failure was caused by the caller's
// input or missing setup rather than a server fault. User errors are
// expected traffic and log at debug level.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrNotConnected) ||
		errors.Is(err, apperrors.ErrQuery) ||
		errors.Is(err, apperrors.ErrEmptyResult) ||
		errors.Is(err, apperrors.ErrNotFound)
}
