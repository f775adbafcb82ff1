package kusto

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// Truncation policy: results beyond truncateThreshold rows return only the
// first truncateKeep rows, with TotalRowCount still reporting the full size.
const (
	truncateThreshold = 100
	truncateKeep      = 10
)

// Executor runs query text against whatever binding the manager holds.
// Text starting with a dot routes to the management endpoint, everything
// else to the query endpoint. The text itself is forwarded verbatim: no
// rewriting, no implicit ordering, no automatic retries.
type Executor struct {
	manager *ConnectionManager
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecutor creates an executor. timeout bounds each execution; zero
// means DefaultTimeout.
func NewExecutor(manager *ConnectionManager, timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		manager: manager,
		timeout: timeout,
		logger:  logger.Named("executor"),
	}
}

// Execute runs the query and applies the truncation policy to the result.
func (e *Executor) Execute(ctx context.Context, query string) (*QueryResult, error) {
	res, err := e.run(ctx, query)
	if err != nil {
		return nil, err
	}
	truncate(res)
	return res, nil
}

// ExecuteAll runs the query and returns every row, for callers that
// aggregate over the full result.
func (e *Executor) ExecuteAll(ctx context.Context, query string) (*QueryResult, error) {
	return e.run(ctx, query)
}

func (e *Executor) run(ctx context.Context, query string) (*QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", apperrors.ErrValidation)
	}

	client, conn, err := e.manager.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	var res *QueryResult
	if IsControlCommand(query) {
		res, err = client.Mgmt(execCtx, conn.Database, query)
	} else {
		res, err = client.Query(execCtx, conn.Database, query)
	}
	if err != nil {
		e.logger.Debug("query failed",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	e.logger.Info("query executed",
		zap.String("query", logging.SanitizeQuery(query)),
		zap.Duration("duration", time.Since(start)),
		zap.Int("rows", res.TotalRowCount))
	return res, nil
}

// truncate applies the row policy in place.
func truncate(res *QueryResult) {
	if res.TotalRowCount > truncateThreshold {
		res.Rows = res.Rows[:truncateKeep]
		res.Truncated = true
	}
}
