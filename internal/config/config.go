// Package config provides configuration management for dirsync.
// It supports a YAML configuration file, environment variables, and sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klauern/dirsync/internal/util"
)

// Config represents the complete dirsync configuration. It covers the tool
// itself, not the endpoints: per-endpoint behavior lives in the settings file
// under each endpoint's control directory.
type Config struct {
	// Transfer configures the external transfer engine invocation
	Transfer TransferConfig `yaml:"transfer"`

	// Remote configures the remote shell used for probes and initialization
	Remote RemoteConfig `yaml:"remote"`

	// History configures the audit trail kept under each control directory
	History HistoryConfig `yaml:"history"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output"`
}

// TransferConfig holds transfer-engine settings.
type TransferConfig struct {
	// Rsync is the rsync binary to invoke
	Rsync string `yaml:"rsync"`
	// ExtraArgs are appended to every rsync invocation
	ExtraArgs []string `yaml:"extra_args,omitempty"`
	// Timeout is the per-invocation network timeout
	Timeout time.Duration `yaml:"timeout"`
}

// RemoteConfig holds remote-shell settings.
type RemoteConfig struct {
	// Shell is the remote shell binary (assumed pre-authenticated)
	Shell string `yaml:"shell"`
}

// HistoryConfig holds audit-trail settings.
type HistoryConfig struct {
	// Keep is the number of committed passes to retain in the history and
	// backup subtrees. Zero keeps everything.
	Keep int `yaml:"keep"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Transfer: TransferConfig{
			Rsync:   "rsync",
			Timeout: 5 * time.Minute,
		},
		Remote: RemoteConfig{
			Shell: "ssh",
		},
		History: HistoryConfig{
			Keep: 0,
		},
		Output: OutputConfig{
			Color:   "auto",
			Verbose: false,
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(util.DirsyncConfigPath(), configFileName)
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	configPath := FilePath()
	// #nosec G304 - configPath is constructed from trusted config directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	// Parse YAML over defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvironment()

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	configPath := FilePath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(configPath, data, 0o644)
}

// applyEnvironment applies environment variable overrides.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("DIRSYNC_RSYNC"); v != "" {
		c.Transfer.Rsync = v
	}
	if v := os.Getenv("DIRSYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Transfer.Timeout = d
		}
	}
	if v := os.Getenv("DIRSYNC_SSH"); v != "" {
		c.Remote.Shell = v
	}
	if v := os.Getenv("DIRSYNC_HISTORY_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.History.Keep = n
		}
	}
	if v := os.Getenv("DIRSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("DIRSYNC_OUTPUT_VERBOSE"); v != "" {
		c.Output.Verbose = parseBool(v)
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
