package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/config"
	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
)

// ConnectionReporter reports the current cluster binding.
type ConnectionReporter interface {
	Status() kusto.Connection
}

var _ ConnectionReporter = (*kusto.ConnectionManager)(nil)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Service    string            `json:"service"`
	GoVersion  string            `json:"go_version"`
	Hostname   string            `json:"hostname"`
	Transport  string            `json:"transport"`
	Connection *kusto.Connection `json:"connection,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg         *config.Config
	connections ConnectionReporter
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. connections may be nil, in
// which case ping omits the cluster binding.
func NewHealthHandler(cfg *config.Config, connections ConnectionReporter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, connections: connections, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health handles GET /health requests.
// Returns a simple "ok" status for container health checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and the current
// cluster binding.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to get hostname")
		return
	}

	response := PingResponse{
		Status:    "ok",
		Version:   h.cfg.Version,
		Service:   "kusto-mcp",
		GoVersion: runtime.Version(),
		Hostname:  hostname,
		Transport: h.cfg.Transport,
	}
	if h.connections != nil {
		conn := h.connections.Status()
		response.Connection = &conn
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
