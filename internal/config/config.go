// Package config loads bookkeepd's runtime configuration: which storage
// backend to bind, how the cache in front of it is sized, and the
// defaults applied to rollup scheduling. Structure and loading style
// follow Viper/TOML the way the rest of this module's ambient stack does.
package config

import "fmt"

// Config is bookkeepd's complete runtime configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Storage StorageConfig `toml:"storage" mapstructure:"storage"`
	Cache   CacheConfig   `toml:"cache" mapstructure:"cache"`
	Rollup  RollupConfig  `toml:"rollup" mapstructure:"rollup"`

	configPath string `toml:"-" mapstructure:"-"`
}

// ServerConfig controls the gRPC listener.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr" mapstructure:"listen_addr"`
}

// StorageConfig selects and parameterizes the storage.Backend bookkeepd
// opens at startup. Backend is one of "memory", "postgres", "sqlite", or
// "pebble"; DSN/Path are interpreted according to Backend.
type StorageConfig struct {
	Backend string `toml:"backend" mapstructure:"backend"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
	Path    string `toml:"path" mapstructure:"path"`
}

// CacheConfig sizes the LRU read-through cache fronting account lookups.
type CacheConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
	Size    int  `toml:"size" mapstructure:"size"`
}

// RollupConfig holds rollup scheduling settings. BatchSize is the number of
// transactions the "bookkeepd rollup" command folds when --batch is not
// given; IntervalSeconds is validated but not read by any command.
type RollupConfig struct {
	IntervalSeconds int `toml:"interval_seconds" mapstructure:"interval_seconds"`
	BatchSize       int `toml:"batch_size" mapstructure:"batch_size"`
}

// GetConfigPath returns the path the configuration was loaded from.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// Validate checks the loaded configuration for internally-inconsistent
// values LoadConfig's defaults/env overlay might have introduced.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "postgres", "sqlite", "pebble":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for the postgres backend")
	}
	if (c.Storage.Backend == "sqlite" || c.Storage.Backend == "pebble") && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive when cache.enabled is true")
	}
	if c.Rollup.IntervalSeconds <= 0 {
		return fmt.Errorf("rollup.interval_seconds must be positive")
	}
	if c.Rollup.BatchSize <= 0 {
		return fmt.Errorf("rollup.batch_size must be positive")
	}
	return nil
}
