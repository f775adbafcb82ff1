package kusto

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient implements QueryClient for manager, catalog, and executor
// tests. Calls are recorded; behavior is injected per test.
type fakeClient struct {
	clusterURL string

	mu         sync.Mutex
	queryCalls []string
	mgmtCalls  []string

	queryFn func(ctx context.Context, database, query string) (*QueryResult, error)
	mgmtFn  func(ctx context.Context, database, command string) (*QueryResult, error)
}

func (f *fakeClient) Query(ctx context.Context, database, query string) (*QueryResult, error) {
	f.mu.Lock()
	f.queryCalls = append(f.queryCalls, query)
	f.mu.Unlock()
	if f.queryFn != nil {
		return f.queryFn(ctx, database, query)
	}
	return emptyResult(), nil
}

func (f *fakeClient) Mgmt(ctx context.Context, database, command string) (*QueryResult, error) {
	f.mu.Lock()
	f.mgmtCalls = append(f.mgmtCalls, command)
	f.mu.Unlock()
	if f.mgmtFn != nil {
		return f.mgmtFn(ctx, database, command)
	}
	return emptyResult(), nil
}

func (f *fakeClient) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queryCalls)
}

func (f *fakeClient) mgmtCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mgmtCalls)
}

func (f *fakeClient) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls = nil
	f.mgmtCalls = nil
}

// fakeStore records saved bindings.
type fakeStore struct {
	mu    sync.Mutex
	saved []Connection
	err   error
}

func (s *fakeStore) Save(clusterURL, database string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, Connection{ClusterURL: clusterURL, Database: database})
	return nil
}

func emptyResult() *QueryResult {
	return &QueryResult{Columns: []ColumnSchema{}, Rows: [][]Value{}}
}

// connectedManager binds a manager to the given fakeClient and clears the
// probe call from its recorder, so tests count only their own traffic.
func connectedManager(t *testing.T, fc *fakeClient) *ConnectionManager {
	t.Helper()
	m := NewConnectionManager(func(clusterURL string) (QueryClient, error) {
		fc.clusterURL = clusterURL
		return fc, nil
	}, ManagerConfig{}, zap.NewNop())
	_, err := m.Connect(context.Background(), "https://cluster.kusto.windows.net", "Samples")
	require.NoError(t, err)
	fc.resetCalls()
	return m
}

// stringTableResult builds a single-column string result, the shape of
// ".show tables | project TableName".
func stringTableResult(column string, values ...string) *QueryResult {
	rows := make([][]Value, len(values))
	for i, v := range values {
		rows[i] = []Value{StringValue(v)}
	}
	return &QueryResult{
		Columns:       []ColumnSchema{{Name: column, Type: "string", Class: ClassCategorical}},
		Rows:          rows,
		TotalRowCount: len(rows),
	}
}

// numberRowsResult builds an n-row single numeric column result.
func numberRowsResult(n int) *QueryResult {
	rows := make([][]Value, n)
	for i := range rows {
		rows[i] = []Value{NumberValue(float64(i))}
	}
	return &QueryResult{
		Columns:       []ColumnSchema{{Name: "x", Type: "long", Class: ClassNumeric}},
		Rows:          rows,
		TotalRowCount: n,
	}
}
