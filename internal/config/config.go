// Package config holds the tradebot configuration and its YAML loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete tradebot configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pool     PoolConfig     `yaml:"pool"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`      // Listen address (default ":8080")
	LogLevel  string `yaml:"logLevel"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"logFormat"` // Log format: text, json
	DBPath    string `yaml:"dbPath"`    // SQLite history path (default ~/.tradebot/history.db, ":memory:" for testing)
}

// PoolConfig configures the distribution pool.
type PoolConfig struct {
	DistributeFolder     string   `yaml:"distributeFolder"`     // Root folder scanned for records
	DistributeShuffled   bool     `yaml:"distributeShuffled"`   // Reshuffle every time the cursor wraps
	ResetTransferTracker bool     `yaml:"resetTransferTracker"` // Zero the transfer tracker of loaded records
	Legality             []string `yaml:"legality"`             // Legality expressions added to the built-in rules
}

// DispatchConfig configures the routines that drain the request queue.
type DispatchConfig struct {
	Routines        int           `yaml:"routines"`        // Number of concurrent routines
	PollInterval    time.Duration `yaml:"pollInterval"`    // Idle wait between queue polls
	SearchTimeout   time.Duration `yaml:"searchTimeout"`   // Upper bound for a partner search
	InboxFolder     string        `yaml:"inboxFolder"`     // Folder besides the pool that source_path may point into
	ProcessedFolder string        `yaml:"processedFolder"` // Destination for relocated request files, empty disables
	StatusRetention time.Duration `yaml:"statusRetention"` // How long a finished requester's status is kept
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		DistributeFolder:   "distribute",
		DistributeShuffled: true,
	}
}

// DefaultDispatchConfig returns sensible defaults.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Routines:        1,
		PollInterval:    time.Second,
		SearchTimeout:   45 * time.Second,
		StatusRetention: time.Hour,
	}
}

// Default returns a Config with every section at its defaults.
func Default() Config {
	return Config{
		Server:   DefaultServerConfig(),
		Pool:     DefaultPoolConfig(),
		Dispatch: DefaultDispatchConfig(),
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that have no usable fallback.
func (c Config) Validate() error {
	if c.Dispatch.Routines < 0 {
		return fmt.Errorf("dispatch.routines must be >= 0, got %d", c.Dispatch.Routines)
	}
	if c.Dispatch.PollInterval < 0 {
		return fmt.Errorf("dispatch.pollInterval must be >= 0, got %s", c.Dispatch.PollInterval)
	}
	if c.Dispatch.StatusRetention < 0 {
		return fmt.Errorf("dispatch.statusRetention must be >= 0, got %s", c.Dispatch.StatusRetention)
	}
	return nil
}
