package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/idxstore"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "idxstore.yaml", `
store:
  backend: pebble
  path: /var/lib/idxstore
  sync: true
commit:
  encode_workers: 4
migration:
  io_limit_bytes_per_sec: 1048576
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pebble", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/idxstore", cfg.Store.Path)
	assert.True(t, cfg.Store.Sync)
	assert.Equal(t, "none", cfg.Store.Compression)
	assert.Equal(t, 4, cfg.Commit.EncodeWorkers)
	assert.Equal(t, int64(1<<20), cfg.Migration.IOLimitBytesPerSec)
	assert.Equal(t, DefaultConfig().Cache.Size, cfg.Cache.Size)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "idxstore.json", `{"store": {"backend": "file", "path": "catalog.ixs", "compression": "zstd"}, "cache": {"size": 16}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "zstd", cfg.Store.Compression)
	assert.Equal(t, 16, cfg.Cache.Size)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeFile(t, "idxstore.toml", "x = 1")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported config file format")
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeFile(t, "idxstore.yml", "store:\n  path: from-file.ixs\n")
	t.Setenv("IDXSTORE_STORE_PATH", "from-env.ixs")
	t.Setenv("IDXSTORE_STORE_COMPRESSION", "lz4")
	t.Setenv("IDXSTORE_CACHE_SIZE", "64")
	t.Setenv("IDXSTORE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.ixs", cfg.Store.Path)
	assert.Equal(t, "lz4", cfg.Store.Compression)
	assert.Equal(t, 64, cfg.Cache.Size)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "tape" }, "unknown store backend"},
		{"missing path", func(c *Config) { c.Store.Path = "" }, "store.path is required"},
		{"memory needs no path", func(c *Config) { c.Store.Backend = "memory"; c.Store.Path = "" }, ""},
		{"bad compression", func(c *Config) { c.Store.Compression = "brotli" }, "store.compression"},
		{"cache size", func(c *Config) { c.Cache.Size = 0 }, "cache.size"},
		{"workers", func(c *Config) { c.Commit.EncodeWorkers = -1 }, "commit.encode_workers"},
		{"io limit", func(c *Config) { c.Migration.IOLimitBytesPerSec = -1 }, "io_limit_bytes_per_sec"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestOptionsOpenDatabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "catalog.ixs")
	cfg.Store.Compression = "snappy"
	cfg.Log.Level = "error"

	opts, err := cfg.Options()
	require.NoError(t, err)
	db, err := idxstore.Open(context.Background(), cfg.Store.Path, opts...)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Commit.EncodeWorkers = 3
	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := writeFile(t, "out.yaml", string(data))
	back, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
