package kusto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
)

const (
	listTablesCommand  = ".show tables | project TableName"
	tableSchemaCommand = ".show table %s schema as json"
)

// tableNamePattern rejects names that could smuggle extra pipeline stages
// into the schema command. Bracket-quoted names with spaces stay allowed.
var tableNamePattern = regexp.MustCompile(`^[\w\-. \[\]']+$`)

// Catalog caches table listings and schemas for the active binding. Entries
// are tagged with the manager's state epoch, so any transition (rebind,
// failure, disconnect) makes old entries unreachable.
type Catalog struct {
	manager *ConnectionManager
	logger  *zap.Logger

	mu        sync.Mutex
	epoch     uint64
	tables    []string
	hasTables bool
	schemas   map[string]*TableSchema
}

// NewCatalog creates an empty catalog bound to the manager.
func NewCatalog(manager *ConnectionManager, logger *zap.Logger) *Catalog {
	return &Catalog{
		manager: manager,
		logger:  logger.Named("catalog"),
		schemas: make(map[string]*TableSchema),
	}
}

// reconcileLocked drops cached entries when the binding epoch has moved.
func (c *Catalog) reconcileLocked(epoch uint64) {
	if epoch == c.epoch {
		return
	}
	c.epoch = epoch
	c.tables = nil
	c.hasTables = false
	c.schemas = make(map[string]*TableSchema)
}

// ListTables returns the table names of the bound database in cluster
// order. The first call hits the cluster; later calls serve from cache
// until the binding changes.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	client, conn, epoch, err := c.manager.activeClientWithEpoch()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcileLocked(epoch)

	if c.hasTables {
		return c.tables, nil
	}

	res, err := client.Mgmt(ctx, conn.Database, listTablesCommand)
	if err != nil {
		return nil, err
	}

	c.tables = res.ColumnStrings("TableName")
	c.hasTables = true
	c.logger.Debug("cached table list",
		zap.String("database", conn.Database),
		zap.Int("tables", len(c.tables)))
	return c.tables, nil
}

// GetSchema returns the schema of one table, serving repeats from cache.
// Unknown tables map to ErrNotFound.
func (c *Catalog) GetSchema(ctx context.Context, table string) (*TableSchema, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("%w: table name cannot be empty", apperrors.ErrValidation)
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", apperrors.ErrValidation, table)
	}

	client, conn, epoch, err := c.manager.activeClientWithEpoch()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcileLocked(epoch)

	if schema, ok := c.schemas[table]; ok {
		return schema, nil
	}

	res, err := client.Mgmt(ctx, conn.Database, fmt.Sprintf(tableSchemaCommand, table))
	if err != nil {
		var clusterErr *ClusterError
		if errors.As(err, &clusterErr) && clusterErr.NotFound() {
			return nil, fmt.Errorf("%w: table %q", apperrors.ErrNotFound, table)
		}
		return nil, err
	}

	schema, err := parseTableSchema(table, res)
	if err != nil {
		return nil, err
	}

	c.schemas[table] = schema
	c.logger.Debug("cached table schema",
		zap.String("table", table),
		zap.Int("columns", len(schema.Columns)))
	return schema, nil
}

// tableSchemaDoc mirrors the JSON payload of ".show table T schema as json".
type tableSchemaDoc struct {
	Name           string `json:"Name"`
	OrderedColumns []struct {
		Name      string `json:"Name"`
		Type      string `json:"Type"`
		CslType   string `json:"CslType"`
		DocString string `json:"DocString"`
	} `json:"OrderedColumns"`
}

func parseTableSchema(table string, res *QueryResult) (*TableSchema, error) {
	idx := res.ColumnIndex("Schema")
	if idx < 0 || len(res.Rows) == 0 || res.Rows[0][idx].Kind != KindString {
		return nil, fmt.Errorf("%w: unexpected schema payload for table %q", apperrors.ErrQuery, table)
	}

	var doc tableSchemaDoc
	if err := json.Unmarshal([]byte(res.Rows[0][idx].String), &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing schema for table %q: %v", apperrors.ErrQuery, table, err)
	}

	columns := make([]ColumnSchema, 0, len(doc.OrderedColumns))
	for _, col := range doc.OrderedColumns {
		typ := col.CslType
		if typ == "" {
			typ = col.Type
		}
		columns = append(columns, ColumnSchema{
			Name:        col.Name,
			Type:        normalizeTypeName(typ),
			Class:       ClassifyColumnType(typ),
			Description: col.DocString,
		})
	}

	name := doc.Name
	if name == "" {
		name = table
	}
	return &TableSchema{Table: name, Columns: columns}, nil
}
