package kusto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

const (
	queryPath = "/v1/rest/query"
	mgmtPath  = "/v1/rest/mgmt"

	// DefaultTimeout is the transport-level backstop when the caller
	// supplies no timeout.
	DefaultTimeout = 60 * time.Second

	// maxErrorBodyLength bounds how much of an error body is carried into
	// error messages and logs.
	maxErrorBodyLength = 512
)

// TokenProvider supplies a bearer token for cluster requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// QueryClient is the transport seam between the connection manager and the
// REST client, replaced by fakes in tests.
type QueryClient interface {
	Query(ctx context.Context, database, query string) (*QueryResult, error)
	Mgmt(ctx context.Context, database, command string) (*QueryResult, error)
}

// ClientFactory builds a QueryClient for one cluster URL.
type ClientFactory func(clusterURL string) (QueryClient, error)

// IsControlCommand reports whether the text is a management command, which
// must be routed to the mgmt endpoint. Control commands start with a dot.
func IsControlCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), ".")
}

// ClusterError is a non-2xx answer from the cluster carrying Kusto's error
// envelope. It unwraps to apperrors.ErrQuery.
type ClusterError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ClusterError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *ClusterError) Unwrap() error { return apperrors.ErrQuery }

// NotFound reports whether the cluster rejected the request because a named
// entity such as a table does not exist.
func (e *ClusterError) NotFound() bool {
	return strings.Contains(e.Code, "EntityNotFound") ||
		strings.Contains(e.Message, "could not be resolved") ||
		strings.Contains(strings.ToLower(e.Message), "not found")
}

// Client talks to a single cluster over the v1 REST API.
type Client struct {
	clusterURL string
	httpClient *http.Client
	tokens     TokenProvider
	logger     *zap.Logger
}

// NewClient builds a client for one cluster. timeout is a transport-level
// backstop; per-request deadlines come from the caller's context.
func NewClient(clusterURL string, tokens TokenProvider, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		clusterURL: strings.TrimRight(clusterURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger.Named("kusto"),
	}
}

// NewClientFactory returns a ClientFactory closing over shared credentials,
// timeout, and logging.
func NewClientFactory(tokens TokenProvider, timeout time.Duration, logger *zap.Logger) ClientFactory {
	return func(clusterURL string) (QueryClient, error) {
		return NewClient(clusterURL, tokens, timeout, logger), nil
	}
}

// Query runs a KQL query against the given database and returns its primary
// result.
func (c *Client) Query(ctx context.Context, database, query string) (*QueryResult, error) {
	return c.execute(ctx, queryPath, database, query)
}

// Mgmt runs a control command against the given database and returns its
// primary result.
func (c *Client) Mgmt(ctx context.Context, database, command string) (*QueryResult, error) {
	return c.execute(ctx, mgmtPath, database, command)
}

type restRequest struct {
	DB  string `json:"db"`
	CSL string `json:"csl"`
}

type v1Column struct {
	ColumnName string `json:"ColumnName"`
	DataType   string `json:"DataType"`
	ColumnType string `json:"ColumnType"`
}

type v1Table struct {
	TableName string     `json:"TableName"`
	Columns   []v1Column `json:"Columns"`
	Rows      [][]any    `json:"Rows"`
}

type v1Response struct {
	Tables     []v1Table `json:"Tables"`
	Exceptions []string  `json:"Exceptions"`
}

type errorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		Description string `json:"@message"`
	} `json:"error"`
}

func (c *Client) execute(ctx context.Context, endpoint, database, csl string) (*QueryResult, error) {
	body, err := json.Marshal(restRequest{DB: database, CSL: csl})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clusterURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ms-client-request-id", "KMCP.execute;"+uuid.NewString())
	req.Header.Set("x-ms-app", "kusto-engine")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", apperrors.ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := classifyStatus(resp.StatusCode, data)
		c.logger.Debug("cluster request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	var decoded v1Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", apperrors.ErrConnection, err)
	}
	if len(decoded.Exceptions) > 0 {
		return nil, &ClusterError{StatusCode: resp.StatusCode, Message: strings.Join(decoded.Exceptions, "; ")}
	}

	result := buildResult(primaryTable(&decoded))
	c.logger.Debug("cluster round trip",
		zap.String("endpoint", endpoint),
		zap.Duration("duration", time.Since(start)),
		zap.Int("rows", result.TotalRowCount))
	return result, nil
}

// classifyTransportError maps request failures onto the error taxonomy.
// Caller cancellation passes through untouched.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: cluster did not answer before the deadline", apperrors.ErrTimeout)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: cluster did not answer before the deadline", apperrors.ErrTimeout)
	}
	return fmt.Errorf("%w: %s", apperrors.ErrConnection, logging.SanitizeError(err))
}

// classifyStatus maps a non-2xx response onto the error taxonomy. 401 means
// the credential was rejected; everything else, including permission
// denials, is a cluster-side query failure.
func classifyStatus(status int, body []byte) error {
	code, message := parseErrorBody(body)
	if message == "" {
		message = logging.TruncateString(strings.TrimSpace(string(body)), maxErrorBodyLength)
	}
	if message == "" {
		message = http.StatusText(status)
	}

	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: cluster rejected credentials: %s", apperrors.ErrAuth, message)
	}
	return &ClusterError{StatusCode: status, Code: code, Message: message}
}

func parseErrorBody(body []byte) (code, message string) {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}
	message = envelope.Error.Description
	if message == "" {
		message = envelope.Error.Message
	}
	return envelope.Error.Code, message
}

// primaryTable selects the primary result from a v1 response. Responses
// with more than two tables end in a table of contents whose PrimaryResult
// row names the ordinal of the data table.
func primaryTable(resp *v1Response) *v1Table {
	if len(resp.Tables) == 0 {
		return nil
	}
	if len(resp.Tables) <= 2 {
		return &resp.Tables[0]
	}

	toc := &resp.Tables[len(resp.Tables)-1]
	nameIdx, ordinalIdx := -1, -1
	for i, col := range toc.Columns {
		switch col.ColumnName {
		case "Name":
			nameIdx = i
		case "Ordinal":
			ordinalIdx = i
		}
	}
	if nameIdx < 0 || ordinalIdx < 0 {
		return &resp.Tables[0]
	}

	for _, row := range toc.Rows {
		if nameIdx >= len(row) || ordinalIdx >= len(row) {
			continue
		}
		if name, _ := row[nameIdx].(string); name != "PrimaryResult" {
			continue
		}
		if ordinal, ok := row[ordinalIdx].(float64); ok {
			if i := int(ordinal); i >= 0 && i < len(resp.Tables) {
				return &resp.Tables[i]
			}
		}
	}
	return &resp.Tables[0]
}

// buildResult decodes a wire table, coercing each cell by its column's
// declared type. ColumnType (the CSL name) wins over DataType (the CLR
// name) when both are present.
func buildResult(t *v1Table) *QueryResult {
	if t == nil {
		return &QueryResult{Columns: []ColumnSchema{}, Rows: [][]Value{}}
	}

	columns := make([]ColumnSchema, len(t.Columns))
	declared := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		typ := col.ColumnType
		if typ == "" {
			typ = col.DataType
		}
		declared[i] = typ
		columns[i] = ColumnSchema{
			Name:  col.ColumnName,
			Type:  normalizeTypeName(typ),
			Class: ClassifyColumnType(typ),
		}
	}

	rows := make([][]Value, len(t.Rows))
	for i, wireRow := range t.Rows {
		row := make([]Value, len(columns))
		for j := range columns {
			if j < len(wireRow) {
				row[j] = coerceValue(wireRow[j], declared[j])
			} else {
				row[j] = NullValue()
			}
		}
		rows[i] = row
	}

	return &QueryResult{Columns: columns, Rows: rows, TotalRowCount: len(rows)}
}
