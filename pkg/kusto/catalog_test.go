package kusto

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
)

const stormEventsSchemaDoc = `{
	"Name": "StormEvents",
	"OrderedColumns": [
		{"Name": "StartTime", "Type": "System.DateTime", "CslType": "datetime"},
		{"Name": "State", "Type": "System.String", "CslType": "string", "DocString": "US state name"},
		{"Name": "DamageProperty", "Type": "System.Int64", "CslType": "long"},
		{"Name": "Duration", "Type": "System.TimeSpan", "CslType": "timespan"}
	]
}`

// schemaResult wraps a schema document in the shape of
// ".show table T schema as json".
func schemaResult(doc string) *QueryResult {
	return &QueryResult{
		Columns: []ColumnSchema{
			{Name: "TableName", Type: "string", Class: ClassCategorical},
			{Name: "Schema", Type: "string", Class: ClassCategorical},
			{Name: "DatabaseName", Type: "string", Class: ClassCategorical},
		},
		Rows: [][]Value{
			{StringValue("StormEvents"), StringValue(doc), StringValue("Samples")},
		},
		TotalRowCount: 1,
	}
}

func TestCatalog_ListTablesCaches(t *testing.T) {
	fc := &fakeClient{
		mgmtFn: func(ctx context.Context, database, command string) (*QueryResult, error) {
			return stringTableResult("TableName", "StormEvents", "PopulationData"), nil
		},
	}
	catalog := NewCatalog(connectedManager(t, fc), zap.NewNop())

	tables, err := catalog.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"StormEvents", "PopulationData"}, tables)
	assert.Equal(t, 1, fc.mgmtCount())
	assert.Equal(t, []string{".show tables | project TableName"}, fc.mgmtCalls)

	tables, err = catalog.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"StormEvents", "PopulationData"}, tables)
	assert.Equal(t, 1, fc.mgmtCount())
}

func TestCatalog_GetSchemaParsesDocument(t *testing.T) {
	fc := &fakeClient{
		mgmtFn: func(ctx context.Context, database, command string) (*QueryResult, error) {
			return schemaResult(stormEventsSchemaDoc), nil
		},
	}
	catalog := NewCatalog(connectedManager(t, fc), zap.NewNop())

	schema, err := catalog.GetSchema(context.Background(), "StormEvents")
	require.NoError(t, err)
	assert.Equal(t, []string{".show table StormEvents schema as json"}, fc.mgmtCalls)

	assert.Equal(t, "StormEvents", schema.Table)
	require.Len(t, schema.Columns, 4)
	assert.Equal(t, ColumnSchema{Name: "StartTime", Type: "datetime", Class: ClassTemporal}, schema.Columns[0])
	assert.Equal(t, ColumnSchema{Name: "State", Type: "string", Class: ClassCategorical, Description: "US state name"}, schema.Columns[1])
	assert.Equal(t, ColumnSchema{Name: "DamageProperty", Type: "long", Class: ClassNumeric}, schema.Columns[2])
	assert.Equal(t, ColumnSchema{Name: "Duration", Type: "timespan", Class: ClassNumeric}, schema.Columns[3])

	_, err = catalog.GetSchema(context.Background(), "StormEvents")
	require.NoError(t, err)
	assert.Equal(t, 1, fc.mgmtCount())
}

func TestCatalog_GetSchemaCachesPerTable(t *testing.T) {
	fc := &fakeClient{
		mgmtFn: func(ctx context.Context, database, command string) (*QueryResult, error) {
			return schemaResult(stormEventsSchemaDoc), nil
		},
	}
	catalog := NewCatalog(connectedManager(t, fc), zap.NewNop())

	_, err := catalog.GetSchema(context.Background(), "StormEvents")
	require.NoError(t, err)
	_, err = catalog.GetSchema(context.Background(), "PopulationData")
	require.NoError(t, err)
	assert.Equal(t, 2, fc.mgmtCount())

	_, err = catalog.GetSchema(context.Background(), "PopulationData")
	require.NoError(t, err)
	assert.Equal(t, 2, fc.mgmtCount())
}

func TestCatalog_GetSchemaNotFound(t *testing.T) {
	fc := &fakeClient{
		mgmtFn: func(ctx context.Context, database, command string) (*QueryResult, error) {
			return nil, &ClusterError{StatusCode: 400, Code: "BadRequest_EntityNotFound", Message: "'NoSuchTable' was not found"}
		},
	}
	catalog := NewCatalog(connectedManager(t, fc), zap.NewNop())

	_, err := catalog.GetSchema(context.Background(), "NoSuchTable")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "NoSuchTable")
}

func TestCatalog_GetSchemaRejectsHostileNames(t *testing.T) {
	fc := &fakeClient{}
	catalog := NewCatalog(connectedManager(t, fc), zap.NewNop())

	for _, name := range []string{
		"",
		"   ",
		"StormEvents | take 1",
		"T; .drop table T",
		"T\nextend x=1",
	} {
		_, err := catalog.GetSchema(context.Background(), name)
		require.Error(t, err, "name %q", name)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "name %q", name)
	}
	assert.Zero(t, fc.mgmtCount())

	// Bracket-quoted names with spaces are legal table names.
	fc.mgmtFn = func(ctx context.Context, database, command string) (*QueryResult, error) {
		return schemaResult(stormEventsSchemaDoc), nil
	}
	_, err := catalog.GetSchema(context.Background(), "['Storm Events']")
	require.NoError(t, err)
}

func TestCatalog_GetSchemaUnexpectedPayload(t *testing.T) {
	fc := &fakeClient{
		mgmtFn: func(ctx context.Context, database, command string) (*QueryResult, error) {
			return stringTableResult("TableName", "StormEvents"), nil
		},
	}
	catalog := NewCatalog(connectedManager(t, fc), zap.NewNop())

	_, err := catalog.GetSchema(context.Background(), "StormEvents")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuery)
	assert.Contains(t, err.Error(), "unexpected schema payload")
}

func TestCatalog_NotConnected(t *testing.T) {
	_, factory := newRecordingFactory(nil)
	m := NewConnectionManager(factory, ManagerConfig{}, zap.NewNop())
	catalog := NewCatalog(m, zap.NewNop())

	_, err := catalog.ListTables(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)

	_, err = catalog.GetSchema(context.Background(), "StormEvents")
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestCatalog_RebindFlushesCache(t *testing.T) {
	_, factory := newRecordingFactory(func(fc *fakeClient) {
		fc.mgmtFn = func(ctx context.Context, database, command string) (*QueryResult, error) {
			if command != listTablesCommand {
				return emptyResult(), nil
			}
			if fc.clusterURL == "https://first.kusto.windows.net" {
				return stringTableResult("TableName", "OldTable"), nil
			}
			return stringTableResult("TableName", "NewTable"), nil
		}
	})
	m := NewConnectionManager(factory, ManagerConfig{}, zap.NewNop())
	catalog := NewCatalog(m, zap.NewNop())

	_, err := m.Connect(context.Background(), "https://first.kusto.windows.net", "DbA")
	require.NoError(t, err)

	tables, err := catalog.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"OldTable"}, tables)

	_, err = m.Connect(context.Background(), "https://second.kusto.windows.net", "DbB")
	require.NoError(t, err)

	tables, err = catalog.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"NewTable"}, tables)
}

func TestCatalog_FailedRebindFlushesCache(t *testing.T) {
	_, factory := newRecordingFactory(func(fc *fakeClient) {
		fc.mgmtFn = func(ctx context.Context, database, command string) (*QueryResult, error) {
			if fc.clusterURL == "https://bad.kusto.windows.net" {
				return nil, fmt.Errorf("%w: dial tcp: connection refused", apperrors.ErrConnection)
			}
			if command == listTablesCommand {
				return stringTableResult("TableName", "StormEvents"), nil
			}
			return emptyResult(), nil
		}
	})
	m := NewConnectionManager(factory, ManagerConfig{}, zap.NewNop())
	catalog := NewCatalog(m, zap.NewNop())

	_, err := m.Connect(context.Background(), "https://good.kusto.windows.net", "Samples")
	require.NoError(t, err)
	_, err = catalog.ListTables(context.Background())
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), "https://bad.kusto.windows.net", "Samples")
	require.Error(t, err)

	// No stale listing may survive the failed rebind.
	_, err = catalog.ListTables(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}
