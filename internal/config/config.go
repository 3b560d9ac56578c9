// Package config provides tarmount data paths and user configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultCheckpointSpacing is the distance in decompressed bytes between two
// recorded seek points in a compressed archive. Smaller spacings make random
// reads more responsive but grow the index.
const DefaultCheckpointSpacing = 16 * 1024 * 1024

// Config carries user-settable defaults loaded from ~/.tarmount/config.yaml.
// Command-line flags override all of these.
type Config struct {
	// CheckpointSpacing is the seek point distance in bytes for compressed
	// archives. Zero means DefaultCheckpointSpacing.
	CheckpointSpacing int64 `yaml:"checkpoint_spacing"`
	// FuseOptions is a comma separated list passed to the FUSE mount,
	// same format as the -o flag.
	FuseOptions string `yaml:"fuse_options"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Load reads the user configuration file if it exists. A missing file yields
// the zero Config and no error.
func Load() (Config, error) {
	var cfg Config
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Spacing returns the configured checkpoint spacing, falling back to the
// default when unset.
func (c Config) Spacing() int64 {
	if c.CheckpointSpacing <= 0 {
		return DefaultCheckpointSpacing
	}
	return c.CheckpointSpacing
}
