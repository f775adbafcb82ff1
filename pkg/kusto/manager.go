package kusto

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// Status is the lifecycle state of the cluster binding.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

// Connection is an immutable snapshot of the binding.
type Connection struct {
	ClusterURL string `json:"cluster_url"`
	Database   string `json:"database"`
	Status     Status `json:"status"`
	LastError  string `json:"last_error,omitempty"`
}

// probeQuery verifies a fresh binding end to end: reachability, credential,
// and database access in one metadata round trip.
const probeQuery = ".show database schema | limit 1"

const defaultProbeTimeout = 30 * time.Second

// ConnectionStore persists a successful binding for later sessions.
// Implemented by config.ConnectionFile.
type ConnectionStore interface {
	Save(clusterURL, database string) error
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	// DefaultClusterURL and DefaultDatabase let the first query connect
	// implicitly when no explicit connect has happened.
	DefaultClusterURL string
	DefaultDatabase   string

	// ProbeTimeout bounds the connect-time verification round trip.
	// Zero means defaultProbeTimeout.
	ProbeTimeout time.Duration

	// Store, when set, records each successful binding.
	Store ConnectionStore
}

// ConnectionManager owns the single active cluster binding.
//
// Connect attempts are serialized: mu is held for the whole attempt,
// including the network probe. Callers that need the client handle
// (ActiveClient, Ensure) share mu and therefore wait for an in-flight
// connect to resolve, guaranteeing the handle they get matches the binding
// they see. Status reads only the snapshot under stateMu and never blocks
// on a probe.
type ConnectionManager struct {
	mu     sync.Mutex
	client QueryClient

	stateMu sync.RWMutex
	conn    Connection
	epoch   uint64

	newClient ClientFactory
	cfg       ManagerConfig
	logger    *zap.Logger
}

// NewConnectionManager creates a manager in the disconnected state.
func NewConnectionManager(factory ClientFactory, cfg ManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &ConnectionManager{
		newClient: factory,
		cfg:       cfg,
		logger:    logger.Named("connection"),
		conn:      Connection{Status: StatusDisconnected},
	}
}

// Connect validates the binding, opens a client, and verifies it with a
// metadata probe. On success any previous binding is replaced. On probe
// failure no live handle remains and LastError records the cause.
//
// Validation failures leave the current binding untouched.
func (m *ConnectionManager) Connect(ctx context.Context, clusterURL, database string) (Connection, error) {
	clusterURL = strings.TrimSpace(clusterURL)
	database = strings.TrimSpace(database)
	if err := validateClusterURL(clusterURL); err != nil {
		return m.Status(), err
	}
	if database == "" {
		return m.Status(), fmt.Errorf("%w: database name cannot be empty", apperrors.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx, clusterURL, database)
}

func (m *ConnectionManager) connectLocked(ctx context.Context, clusterURL, database string) (Connection, error) {
	m.client = nil
	m.setState(Connection{ClusterURL: clusterURL, Database: database, Status: StatusConnecting})

	client, err := m.newClient(clusterURL)
	if err != nil {
		return m.failLocked(clusterURL, database, fmt.Errorf("%w: %v", apperrors.ErrConnection, err))
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	if _, err := client.Mgmt(probeCtx, database, probeQuery); err != nil {
		return m.failLocked(clusterURL, database, classifyProbeError(err))
	}

	m.client = client
	m.setState(Connection{ClusterURL: clusterURL, Database: database, Status: StatusConnected})

	if m.cfg.Store != nil {
		if err := m.cfg.Store.Save(clusterURL, database); err != nil {
			m.logger.Warn("failed to save connection", zap.Error(err))
		}
	}

	m.logger.Info("connected",
		zap.String("cluster", logging.SanitizeConnectionString(clusterURL)),
		zap.String("database", database))
	return m.Status(), nil
}

// failLocked records a failed attempt. A new binding tears down the old one
// even on failure: no live handle remains.
func (m *ConnectionManager) failLocked(clusterURL, database string, err error) (Connection, error) {
	m.client = nil
	m.setState(Connection{
		ClusterURL: clusterURL,
		Database:   database,
		Status:     StatusFailed,
		LastError:  logging.SanitizeError(err),
	})
	m.logger.Warn("connect failed",
		zap.String("cluster", logging.SanitizeConnectionString(clusterURL)),
		zap.String("database", database),
		zap.String("error", logging.SanitizeError(err)))
	return m.Status(), err
}

// classifyProbeError folds probe failures into connect's error surface:
// credential failures stay AuthError, everything else, including
// cluster-side rejections of the probe, reports as a connection failure.
func classifyProbeError(err error) error {
	if errors.Is(err, apperrors.ErrAuth) || errors.Is(err, apperrors.ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: probe failed: %v", apperrors.ErrConnection, err)
}

// Status returns a consistent snapshot without blocking on an in-flight
// connect.
func (m *ConnectionManager) Status() Connection {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.conn
}

// Epoch increments on every state transition. The schema catalog compares
// epochs to drop cached entries after rebinds and failures.
func (m *ConnectionManager) Epoch() uint64 {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.epoch
}

func (m *ConnectionManager) setState(c Connection) {
	m.stateMu.Lock()
	m.conn = c
	m.epoch++
	m.stateMu.Unlock()
}

// ActiveClient returns the live client and the binding it serves. The pair
// is consistent: both come from the same resolved connect. Blocks while a
// connect is in flight.
func (m *ConnectionManager) ActiveClient() (QueryClient, Connection, error) {
	client, conn, _, err := m.activeClientWithEpoch()
	return client, conn, err
}

// activeClientWithEpoch additionally reports the state epoch the handle
// belongs to, letting the catalog tag cache entries consistently.
func (m *ConnectionManager) activeClientWithEpoch() (QueryClient, Connection, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateMu.RLock()
	conn, epoch := m.conn, m.epoch
	m.stateMu.RUnlock()

	if m.client == nil {
		return nil, conn, epoch, notConnectedError(conn)
	}
	return m.client, conn, epoch, nil
}

// Ensure returns the live client, performing an implicit connect with the
// configured defaults when nothing is bound yet. A Failed binding is not
// retried implicitly; only an explicit connect leaves Failed.
func (m *ConnectionManager) Ensure(ctx context.Context) (QueryClient, Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, m.Status(), nil
	}

	st := m.Status()
	if st.Status == StatusFailed {
		return nil, st, notConnectedError(st)
	}
	if m.cfg.DefaultClusterURL == "" || m.cfg.DefaultDatabase == "" {
		return nil, st, fmt.Errorf("%w: no cluster binding and no configured defaults", apperrors.ErrNotConnected)
	}
	if err := validateClusterURL(m.cfg.DefaultClusterURL); err != nil {
		return nil, st, err
	}

	m.logger.Info("no active binding, connecting with configured defaults",
		zap.String("cluster", logging.SanitizeConnectionString(m.cfg.DefaultClusterURL)),
		zap.String("database", m.cfg.DefaultDatabase))
	if _, err := m.connectLocked(ctx, m.cfg.DefaultClusterURL, m.cfg.DefaultDatabase); err != nil {
		return nil, m.Status(), err
	}
	return m.client, m.Status(), nil
}

// Close releases the binding. Safe to call multiple times.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil && m.Status().Status == StatusDisconnected {
		return
	}
	m.client = nil
	m.setState(Connection{Status: StatusDisconnected})
	m.logger.Info("disconnected")
}

func notConnectedError(st Connection) error {
	if st.Status == StatusFailed && st.LastError != "" {
		return fmt.Errorf("%w: last connect attempt failed: %s", apperrors.ErrNotConnected, st.LastError)
	}
	return fmt.Errorf("%w: use the connect tool to bind a cluster and database", apperrors.ErrNotConnected)
}

// validateClusterURL enforces an absolute http(s) URL with a host.
func validateClusterURL(clusterURL string) error {
	if clusterURL == "" {
		return fmt.Errorf("%w: cluster URL cannot be empty", apperrors.ErrValidation)
	}
	u, err := url.Parse(clusterURL)
	if err != nil {
		return fmt.Errorf("%w: invalid cluster URL: %v", apperrors.ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: cluster URL must use http or https, got %q", apperrors.ErrValidation, clusterURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: cluster URL missing host: %q", apperrors.ErrValidation, clusterURL)
	}
	return nil
}
