// Package config loads the YAML configuration a host application supplies
// to construct a syncmanager.Manager: server address, the budget file and
// sync group to operate on, an optional clock node id override, the local
// SQLite replica path, and the sync cycle interval.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultSyncInterval is used when the config file omits syncIntervalSeconds.
const defaultSyncInterval = 30 * time.Second

// ClientConfig is the on-disk shape of a replica's configuration file.
type ClientConfig struct {
	ServerURL           string `yaml:"serverUrl"`
	FileID              string `yaml:"fileId"`
	GroupID             string `yaml:"groupId"`
	NodeID              string `yaml:"nodeId"`
	SQLitePath          string `yaml:"sqlitePath"`
	SyncIntervalSeconds int    `yaml:"syncIntervalSeconds"`
}

// SyncInterval returns the configured sync cycle interval, or
// defaultSyncInterval if unset.
func (c ClientConfig) SyncInterval() time.Duration {
	if c.SyncIntervalSeconds <= 0 {
		return defaultSyncInterval
	}
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// Validate checks that the fields a Manager cannot run without are present.
func (c ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("config: serverUrl is required")
	}
	if c.FileID == "" {
		return fmt.Errorf("config: fileId is required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("config: groupId is required")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("config: sqlitePath is required")
	}
	return nil
}

// Load reads and parses a ClientConfig from path.
func Load(path string) (ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a ClientConfig from raw YAML bytes.
func Parse(data []byte) (ClientConfig, error) {
	var c ClientConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return ClientConfig{}, fmt.Errorf("config: parsing yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return c, nil
}
