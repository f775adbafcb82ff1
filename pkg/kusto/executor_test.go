package kusto

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
)

func TestExecutor_EmptyQuery(t *testing.T) {
	fc := &fakeClient{}
	exec := NewExecutor(connectedManager(t, fc), time.Second, zap.NewNop())

	_, err := exec.Execute(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Zero(t, fc.queryCount())
	assert.Zero(t, fc.mgmtCount())
}

func TestExecutor_RoutesByLeadingDot(t *testing.T) {
	fc := &fakeClient{}
	exec := NewExecutor(connectedManager(t, fc), time.Second, zap.NewNop())

	_, err := exec.Execute(context.Background(), "StormEvents | take 10")
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), ".show tables")
	require.NoError(t, err)

	assert.Equal(t, []string{"StormEvents | take 10"}, fc.queryCalls)
	assert.Equal(t, []string{".show tables"}, fc.mgmtCalls)
}

func TestExecutor_ForwardsQueryVerbatim(t *testing.T) {
	fc := &fakeClient{}
	exec := NewExecutor(connectedManager(t, fc), time.Second, zap.NewNop())

	query := "StormEvents | where State == 'FLORIDA'  \n| summarize count() by EventType"
	_, err := exec.Execute(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, []string{query}, fc.queryCalls)
}

func TestExecutor_TruncatesLargeResults(t *testing.T) {
	fc := &fakeClient{
		queryFn: func(ctx context.Context, database, query string) (*QueryResult, error) {
			return numberRowsResult(150), nil
		},
	}
	exec := NewExecutor(connectedManager(t, fc), time.Second, zap.NewNop())

	res, err := exec.Execute(context.Background(), "T")
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 150, res.TotalRowCount)
	require.Len(t, res.Rows, 10)
	// First rows survive in order.
	assert.Equal(t, NumberValue(0), res.Rows[0][0])
	assert.Equal(t, NumberValue(9), res.Rows[9][0])
}

func TestExecutor_ThresholdIsExclusive(t *testing.T) {
	fc := &fakeClient{
		queryFn: func(ctx context.Context, database, query string) (*QueryResult, error) {
			return numberRowsResult(100), nil
		},
	}
	exec := NewExecutor(connectedManager(t, fc), time.Second, zap.NewNop())

	res, err := exec.Execute(context.Background(), "T")
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, 100, res.TotalRowCount)
	assert.Len(t, res.Rows, 100)
}

func TestExecutor_ExecuteAllNeverTruncates(t *testing.T) {
	fc := &fakeClient{
		queryFn: func(ctx context.Context, database, query string) (*QueryResult, error) {
			return numberRowsResult(5000), nil
		},
	}
	exec := NewExecutor(connectedManager(t, fc), time.Second, zap.NewNop())

	res, err := exec.ExecuteAll(context.Background(), "T")
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Rows, 5000)
}

func TestExecutor_NotConnected(t *testing.T) {
	_, factory := newRecordingFactory(nil)
	m := NewConnectionManager(factory, ManagerConfig{}, zap.NewNop())
	exec := NewExecutor(m, time.Second, zap.NewNop())

	_, err := exec.Execute(context.Background(), "StormEvents | take 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestExecutor_ConnectsWithDefaultsOnFirstUse(t *testing.T) {
	rec, factory := newRecordingFactory(nil)
	m := NewConnectionManager(factory, ManagerConfig{
		DefaultClusterURL: "https://help.kusto.windows.net",
		DefaultDatabase:   "Samples",
	}, zap.NewNop())
	exec := NewExecutor(m, time.Second, zap.NewNop())

	_, err := exec.Execute(context.Background(), "StormEvents | take 1")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, m.Status().Status)
	assert.Equal(t, "https://help.kusto.windows.net", m.Status().ClusterURL)

	_, err = exec.Execute(context.Background(), "StormEvents | take 1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 2, rec.last().queryCount())
}

func TestExecutor_ErrorsPassThrough(t *testing.T) {
	fc := &fakeClient{
		queryFn: func(ctx context.Context, database, query string) (*QueryResult, error) {
			return nil, &ClusterError{StatusCode: 400, Code: "BadRequest_SyntaxError", Message: "Syntax error"}
		},
	}
	exec := NewExecutor(connectedManager(t, fc), time.Second, zap.NewNop())

	_, err := exec.Execute(context.Background(), "StormEvents |")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuery)

	var clusterErr *ClusterError
	assert.ErrorAs(t, err, &clusterErr)
}
