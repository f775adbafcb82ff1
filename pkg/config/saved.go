package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SavedConnectionFileName is written to the user's home directory after a
// successful connect so later sessions can rebind without re-entering the
// cluster URL and database.
const SavedConnectionFileName = ".kusto-mcp.yaml"

// SavedConnection is the on-disk record of the last successful binding.
type SavedConnection struct {
	ClusterURL string `yaml:"cluster_url"`
	Database   string `yaml:"database"`
}

// ConnectionFile reads and writes the saved connection record.
type ConnectionFile struct {
	path string
}

// DefaultConnectionFile locates the record under the user's home directory.
// When no home directory is available the file is disabled: Load returns
// nothing and Save is a no-op.
func DefaultConnectionFile() *ConnectionFile {
	home, err := os.UserHomeDir()
	if err != nil {
		return &ConnectionFile{}
	}
	return &ConnectionFile{path: filepath.Join(home, SavedConnectionFileName)}
}

// NewConnectionFile uses an explicit path instead of the home directory.
func NewConnectionFile(path string) *ConnectionFile {
	return &ConnectionFile{path: path}
}

// Load returns the saved record. A missing file yields (nil, nil). A file
// that cannot be parsed or lacks either field yields an error; callers warn
// and proceed as if nothing was saved.
func (f *ConnectionFile) Load() (*SavedConnection, error) {
	if f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	var saved SavedConnection
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if saved.ClusterURL == "" || saved.Database == "" {
		return nil, fmt.Errorf("incomplete saved connection in %s", f.path)
	}
	return &saved, nil
}

// Save writes the record with owner-only permissions.
func (f *ConnectionFile) Save(clusterURL, database string) error {
	if f.path == "" {
		return nil
	}
	data, err := yaml.Marshal(SavedConnection{ClusterURL: clusterURL, Database: database})
	if err != nil {
		return fmt.Errorf("failed to marshal saved connection: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}
