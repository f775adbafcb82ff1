package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const configFile = "config.yaml"

// Transport values accepted by the server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all configuration for the server.
// Configuration can come from a YAML file (config.yaml in the working
// directory) or environment variables. The file is optional: a stdio MCP
// server is typically launched by a client from an arbitrary directory, so
// missing config.yaml falls back to environment-only loading.
type Config struct {
	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"KUSTO_MCP_LOG_LEVEL" env-default:"info"`

	// Transport selects how the MCP server is exposed: stdio or http.
	Transport string `yaml:"transport" env:"KUSTO_MCP_TRANSPORT" env-default:"stdio"`

	// Addr is the listen address for the http transport.
	Addr string `yaml:"addr" env:"KUSTO_MCP_ADDR" env-default:":8080"`

	// QueryTimeoutSeconds bounds a single cluster round trip.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"KUSTO_MCP_QUERY_TIMEOUT" env-default:"60"`

	// Kusto holds the default cluster binding used for implicit connects.
	Kusto KustoConfig `yaml:"kusto"`

	Version string `yaml:"-"` // Set at load time, not from config
}

// KustoConfig carries the default cluster binding. When both fields are set
// the first query can connect implicitly without a prior connect call.
type KustoConfig struct {
	ClusterURL string `yaml:"cluster_url" env:"AZURE_KUSTO_CLUSTER" env-default:""`
	Database   string `yaml:"database" env:"AZURE_KUSTO_DATABASE" env-default:""`
}

// Load reads configuration from config.yaml (when present) and the
// environment, stamps version, and validates the result.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(configFile); err == nil {
		if err := cleanenv.ReadConfig(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unsupported transport %q (expected %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("query timeout must be positive, got %d", c.QueryTimeoutSeconds)
	}
	return nil
}

// QueryTimeout returns the per-query deadline as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// HasDefaultBinding reports whether configuration supplies a complete
// cluster binding for implicit connects.
func (c *Config) HasDefaultBinding() bool {
	return c.Kusto.ClusterURL != "" && c.Kusto.Database != ""
}
