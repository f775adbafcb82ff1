package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/advisor"
	"github.com/kusto-mcp/kusto-engine/pkg/analysis"
	"github.com/kusto-mcp/kusto-engine/pkg/config"
	"github.com/kusto-mcp/kusto-engine/pkg/handlers"
	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
	"github.com/kusto-mcp/kusto-engine/pkg/mcp"
	"github.com/kusto-mcp/kusto-engine/pkg/mcp/prompts"
	"github.com/kusto-mcp/kusto-engine/pkg/mcp/resources"
	"github.com/kusto-mcp/kusto-engine/pkg/mcp/tools"
	"github.com/kusto-mcp/kusto-engine/pkg/middleware"
)

// Version is set at build time via ldflags
var Version = "dev"

const serverName = "Kusto MCP Server"

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("transport", cfg.Transport),
		zap.String("log_level", cfg.LogLevel),
		zap.Int("query_timeout_seconds", cfg.QueryTimeoutSeconds),
		zap.Bool("default_binding", cfg.HasDefaultBinding()))

	tokens, err := kusto.NewAzureTokenProvider(logger)
	if err != nil {
		logger.Fatal("Failed to build Azure credential", zap.Error(err))
	}

	// The factory resolves localhost to the Docker host gateway so a
	// containerized server can reach an emulator on the host. The binding
	// keeps the URL the caller gave; only the transport sees the rewrite.
	baseFactory := kusto.NewClientFactory(tokens, cfg.QueryTimeout(), logger)
	factory := func(clusterURL string) (kusto.QueryClient, error) {
		return baseFactory(config.ResolveClusterURL(clusterURL))
	}

	connFile := config.DefaultConnectionFile()
	defaults := cfg.Kusto
	if !cfg.HasDefaultBinding() {
		saved, err := connFile.Load()
		if err != nil {
			logger.Warn("ignoring saved connection", zap.Error(err))
		} else if saved != nil {
			logger.Info("using saved connection as default binding",
				zap.String("database", saved.Database))
			defaults = config.KustoConfig{ClusterURL: saved.ClusterURL, Database: saved.Database}
		}
	}

	manager := kusto.NewConnectionManager(factory, kusto.ManagerConfig{
		DefaultClusterURL: defaults.ClusterURL,
		DefaultDatabase:   defaults.Database,
		Store:             connFile,
	}, logger)
	defer manager.Close()

	executor := kusto.NewExecutor(manager, cfg.QueryTimeout(), logger)
	catalog := kusto.NewCatalog(manager, logger)
	engine := analysis.NewEngine(logger)
	adv := advisor.NewAdvisor(logger)

	mcpServer := mcp.NewServer(serverName, cfg.Version, logger)
	tools.RegisterConnectionTools(mcpServer.MCP(), &tools.ConnectionToolDeps{
		Connections: manager,
		Logger:      logger,
	})
	tools.RegisterQueryTools(mcpServer.MCP(), &tools.QueryToolDeps{
		Queries:  executor,
		Analyzer: engine,
		Advisor:  adv,
		Logger:   logger,
	})
	resources.RegisterResources(mcpServer.MCP(), &resources.ResourceDeps{
		Catalog:     catalog,
		Connections: manager,
		Logger:      logger,
	})
	prompts.RegisterPrompts(mcpServer.MCP(), &prompts.PromptDeps{
		Logger: logger,
	})

	switch cfg.Transport {
	case config.TransportHTTP:
		if err := serveHTTP(cfg, mcpServer, manager, logger); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	default:
		if err := mcpServer.ServeStdio(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}
}

// serveHTTP exposes the MCP server over streamable HTTP alongside health
// endpoints, and shuts down cleanly on SIGINT or SIGTERM.
func serveHTTP(cfg *config.Config, mcpServer *mcp.Server, manager *kusto.ConnectionManager, logger *zap.Logger) error {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, manager, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", zap.String("addr", cfg.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
