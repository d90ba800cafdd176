// Package config loads idxstore settings from YAML or JSON files and the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/idxstore"
	"github.com/hupe1980/idxstore/engine"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the settings of one idxstore database.
type Config struct {
	// Store configuration
	Store StoreConfig `json:"store" yaml:"store"`

	// Cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Commit configuration
	Commit CommitConfig `json:"commit" yaml:"commit"`

	// Migration configuration
	Migration MigrationConfig `json:"migration" yaml:"migration"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// StoreConfig holds store configuration.
type StoreConfig struct {
	// Backend is the store type: file, pebble, memory
	Backend string `json:"backend" yaml:"backend"`

	// Path is the log file (file) or directory (pebble)
	Path string `json:"path" yaml:"path"`

	// Compression of file records: none, snappy, zstd, lz4
	Compression string `json:"compression" yaml:"compression"`

	// Sync forces an fsync after every append
	Sync bool `json:"sync" yaml:"sync"`
}

// CacheConfig holds decoded part cache configuration.
type CacheConfig struct {
	// Size is the number of decoded parts kept in memory
	Size int `json:"size" yaml:"size"`
}

// CommitConfig holds commit configuration.
type CommitConfig struct {
	// EncodeWorkers bounds parallel part encoding (0 = GOMAXPROCS)
	EncodeWorkers int `json:"encode_workers" yaml:"encode_workers"`
}

// MigrationConfig holds migration configuration.
type MigrationConfig struct {
	// IOLimitBytesPerSec throttles migration reads (0 = unlimited)
	IOLimitBytesPerSec int64 `json:"io_limit_bytes_per_sec" yaml:"io_limit_bytes_per_sec"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:     string(idxstore.BackendFile),
			Path:        "./data/catalog.ixs",
			Compression: "none",
		},
		Cache: CacheConfig{
			Size: engine.DefaultCacheSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	backend, err := idxstore.ParseBackend(c.Store.Backend)
	if err != nil {
		return err
	}
	if backend != idxstore.BackendMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s backend", backend)
	}
	if _, err := idxstore.ParseCompression(c.Store.Compression); err != nil {
		return fmt.Errorf("store.compression: %w", err)
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size)
	}
	if c.Commit.EncodeWorkers < 0 {
		return fmt.Errorf("commit.encode_workers must not be negative, got %d", c.Commit.EncodeWorkers)
	}
	if c.Migration.IOLimitBytesPerSec < 0 {
		return fmt.Errorf("migration.io_limit_bytes_per_sec must not be negative, got %d", c.Migration.IOLimitBytesPerSec)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
	return level, nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() (*idxstore.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	if c.Log.Format == FormatJSON {
		return idxstore.NewJSONLogger(level), nil
	}
	return idxstore.NewTextLogger(level), nil
}

// Options converts the configuration into idxstore options. The
// configuration is validated first.
func (c *Config) Options() ([]idxstore.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	backend, _ := idxstore.ParseBackend(c.Store.Backend)
	compression, _ := idxstore.ParseCompression(c.Store.Compression)
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	return []idxstore.Option{
		idxstore.WithBackend(backend),
		idxstore.WithCompression(compression),
		idxstore.WithSync(c.Store.Sync),
		idxstore.WithCacheSize(c.Cache.Size),
		idxstore.WithEncodeWorkers(c.Commit.EncodeWorkers),
		idxstore.WithMigrationIOLimit(c.Migration.IOLimitBytesPerSec),
		idxstore.WithLogger(logger),
	}, nil
}

// Load reads configuration from a YAML or JSON file, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := gojson.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the IDXSTORE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("IDXSTORE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("IDXSTORE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("IDXSTORE_STORE_COMPRESSION"); v != "" {
		cfg.Store.Compression = v
	}
	if v := os.Getenv("IDXSTORE_STORE_SYNC"); v != "" {
		cfg.Store.Sync = v == "true" || v == "1"
	}
	if v := os.Getenv("IDXSTORE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Size = n
		}
	}
	if v := os.Getenv("IDXSTORE_COMMIT_ENCODE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Commit.EncodeWorkers = n
		}
	}
	if v := os.Getenv("IDXSTORE_MIGRATION_IO_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Migration.IOLimitBytesPerSec = n
		}
	}
	if v := os.Getenv("IDXSTORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("IDXSTORE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
