package kusto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

func newTestClient(url string) *Client {
	return NewClient(url, staticTokens{token: "tok-123"}, 5*time.Second, zap.NewNop())
}

func TestClient_QuerySendsV1Request(t *testing.T) {
	var gotPath, gotAuth, gotRequestID string
	var gotBody restRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("x-ms-client-request-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Tables":[{"TableName":"Table_0","Columns":[{"ColumnName":"State","DataType":"String","ColumnType":"string"}],"Rows":[["FLORIDA"]]}]}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Query(context.Background(), "Samples", "StormEvents | take 1")
	require.NoError(t, err)

	assert.Equal(t, "/v1/rest/query", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "Samples", gotBody.DB)
	assert.Equal(t, "StormEvents | take 1", gotBody.CSL)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, StringValue("FLORIDA"), res.Rows[0][0])
	assert.Equal(t, ClassCategorical, res.Columns[0].Class)
	assert.Equal(t, 1, res.TotalRowCount)
	assert.False(t, res.Truncated)
}

func TestClient_MgmtUsesMgmtEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"Tables":[{"TableName":"Table_0","Columns":[{"ColumnName":"TableName","DataType":"String"}],"Rows":[["StormEvents"]]}]}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Mgmt(context.Background(), "Samples", ".show tables | project TableName")
	require.NoError(t, err)

	assert.Equal(t, "/v1/rest/mgmt", gotPath)
	assert.Equal(t, []string{"StormEvents"}, res.ColumnStrings("TableName"))
}

func TestClient_CoercesCellsByDeclaredType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Tables":[{"TableName":"Table_0","Columns":[
			{"ColumnName":"Count","DataType":"Int64","ColumnType":"long"},
			{"ColumnName":"Price","DataType":"Decimal","ColumnType":"decimal"},
			{"ColumnName":"Seen","DataType":"DateTime","ColumnType":"datetime"},
			{"ColumnName":"Active","DataType":"SByte","ColumnType":"bool"},
			{"ColumnName":"Tags","DataType":"Object","ColumnType":"dynamic"}
		],"Rows":[[7,"19.99","2024-05-01T10:00:00Z",1,{"env":"prod"}],[null,null,null,null,null]]}]}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Query(context.Background(), "db", "T")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	first := res.Rows[0]
	assert.Equal(t, NumberValue(7), first[0])
	assert.Equal(t, NumberValue(19.99), first[1])
	assert.Equal(t, KindTime, first[2].Kind)
	assert.Equal(t, BoolValue(true), first[3])
	assert.Equal(t, KindOther, first[4].Kind)

	for _, cell := range res.Rows[1] {
		assert.True(t, cell.IsNull())
	}

	classes := make([]ColumnClass, len(res.Columns))
	for i, c := range res.Columns {
		classes[i] = c.Class
	}
	assert.Equal(t, []ColumnClass{ClassNumeric, ClassNumeric, ClassTemporal, ClassBoolean, ClassOther}, classes)
}

func TestClient_SelectsPrimaryResultFromTOC(t *testing.T) {
	// Four tables: properties, the actual data, status, and the trailing
	// table of contents pointing PrimaryResult at ordinal 1.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Tables":[
			{"TableName":"@ExtendedProperties","Columns":[{"ColumnName":"Value","DataType":"String"}],"Rows":[["{}"]]},
			{"TableName":"Table_1","Columns":[{"ColumnName":"State","DataType":"String","ColumnType":"string"}],"Rows":[["TEXAS"],["FLORIDA"]]},
			{"TableName":"QueryStatus","Columns":[{"ColumnName":"Severity","DataType":"Int32"}],"Rows":[[4]]},
			{"TableName":"TOC","Columns":[
				{"ColumnName":"Ordinal","DataType":"Int64"},
				{"ColumnName":"Kind","DataType":"String"},
				{"ColumnName":"Name","DataType":"String"},
				{"ColumnName":"Id","DataType":"String"}
			],"Rows":[
				[0,"QueryProperties","@ExtendedProperties","0"],
				[1,"QueryResult","PrimaryResult","1"],
				[2,"QueryStatus","QueryStatus","2"]
			]}
		]}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Query(context.Background(), "db", "T")
	require.NoError(t, err)

	assert.Equal(t, []string{"TEXAS", "FLORIDA"}, res.ColumnStrings("State"))
	assert.Equal(t, 2, res.TotalRowCount)
}

func TestClient_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Tables":[]}`)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Query(context.Background(), "db", "T")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Columns)
	assert.Equal(t, 0, res.TotalRowCount)
}

func TestClient_ClusterErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"BadRequest_SyntaxError","message":"Request is invalid","@message":"Syntax error: missing operator"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Query(context.Background(), "db", "StormEvents |")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuery)

	var clusterErr *ClusterError
	require.ErrorAs(t, err, &clusterErr)
	assert.Equal(t, http.StatusBadRequest, clusterErr.StatusCode)
	assert.Equal(t, "BadRequest_SyntaxError", clusterErr.Code)
	assert.Equal(t, "Syntax error: missing operator", clusterErr.Message)
	assert.False(t, clusterErr.NotFound())
}

func TestClient_EntityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"BadRequest_EntityNotFound","@message":"'NoSuchTable' was not found"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Mgmt(context.Background(), "db", ".show table NoSuchTable schema as json")
	require.Error(t, err)

	var clusterErr *ClusterError
	require.ErrorAs(t, err, &clusterErr)
	assert.True(t, clusterErr.NotFound())
}

func TestClient_PermissionDenialIsQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":"Forbidden","@message":"Principal 'aaduser' is not authorized"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Query(context.Background(), "db", "T")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuery)
	assert.NotErrorIs(t, err, apperrors.ErrAuth)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestClient_UnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `token expired`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Query(context.Background(), "db", "T")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuth)
}

func TestClient_TokenFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the cluster without a token")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticTokens{err: fmt.Errorf("%w: no source", apperrors.ErrAuth)}, time.Second, zap.NewNop())
	_, err := client.Query(context.Background(), "db", "T")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuth)
}

func TestClient_UnreachableClusterIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Query(context.Background(), "db", "T")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
}

func TestClient_DeadlineIsTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Query(ctx, "db", "T")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestClient_PartialFailureExceptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Tables":[],"Exceptions":["Query execution has exceeded the allowed limits"]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Query(context.Background(), "db", "T")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuery)
	assert.Contains(t, err.Error(), "exceeded the allowed limits")
}

func TestIsControlCommand(t *testing.T) {
	assert.True(t, IsControlCommand(".show tables"))
	assert.True(t, IsControlCommand("  .show database schema | limit 1"))
	assert.False(t, IsControlCommand("StormEvents | take 10"))
	assert.False(t, IsControlCommand(""))
}
