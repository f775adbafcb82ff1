package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a KQL query to log before truncation.
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

// Patterns are compiled once at package load. Kusto connection strings carry
// AAD application keys, and transport errors can echo Authorization headers.
var (
	passwordPattern   = regexp.MustCompile(`(?i)(password|pwd|pass|appkey)=[^;&\s]+`)
	bearerPattern     = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)
	apiKeyPattern     = regexp.MustCompile(`(?i)(api[_-]?key|key)=[A-Za-z0-9-_]{20,}`)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^:/\s]+`)
)

// SanitizeConnectionString redacts credentials embedded in a connection
// string or cluster URL before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	result := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	result = connStringPattern.ReplaceAllString(result, "://"+RedactedText+"@"+RedactedText)
	return result
}

// SanitizeError redacts sensitive material from an error message. Azure
// credential errors in particular can include raw bearer tokens.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = passwordPattern.ReplaceAllString(msg, "${1}="+RedactedText)
	msg = bearerPattern.ReplaceAllString(msg, "Bearer "+RedactedText)
	msg = apiKeyPattern.ReplaceAllString(msg, "${1}="+RedactedText)
	msg = connStringPattern.ReplaceAllString(msg, "://"+RedactedText+"@"+RedactedText)
	return msg
}

// SanitizeQuery prepares a KQL query for logging: redacts anything that looks
// like a credential and truncates to MaxQueryLogLength.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	result := passwordPattern.ReplaceAllString(query, "${1}="+RedactedText)
	return TruncateString(result, MaxQueryLogLength)
}

// TruncateString shortens s to maxLen bytes, appending "..." when truncated.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
