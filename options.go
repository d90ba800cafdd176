package idxstore

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/idxstore/codec"
	"github.com/hupe1980/idxstore/engine"
	"github.com/hupe1980/idxstore/internal/compress"
	"github.com/hupe1980/idxstore/store"
	"github.com/hupe1980/idxstore/value"
)

// Backend selects the store implementation opened by Open.
type Backend string

const (
	// BackendFile is a single append-only log file with CRC32C framing.
	BackendFile Backend = "file"
	// BackendPebble keeps parts in a Pebble LSM directory.
	BackendPebble Backend = "pebble"
	// BackendMemory keeps parts in process memory. The path is ignored.
	BackendMemory Backend = "memory"
)

// ParseBackend resolves a backend by name. The empty string means
// BackendFile.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(name)); b {
	case "":
		return BackendFile, nil
	case BackendFile, BackendPebble, BackendMemory:
		return b, nil
	default:
		return "", &ErrUnknownBackend{Backend: b}
	}
}

// Compression is the record compression of the file backend.
type Compression = compress.Algorithm

// Supported record compressions.
const (
	CompressionNone   = compress.None
	CompressionSnappy = compress.Snappy
	CompressionZstd   = compress.ZSTD
	CompressionLZ4    = compress.LZ4
)

// ParseCompression resolves a compression by name ("none", "snappy",
// "zstd", "lz4").
func ParseCompression(name string) (Compression, error) {
	return compress.Parse(name)
}

type options struct {
	backend          Backend
	store            store.Store
	compression      Compression
	sync             bool
	cacheSize        int
	encodeWorkers    int
	migrationIOLimit int64
	valueCodec       value.Codec
	registry         *codec.Registry
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open.
type Option func(*options)

// WithBackend selects the store backend. Defaults to BackendFile.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithStore uses st instead of opening a backend. The database takes
// ownership and closes st on Close.
func WithStore(st store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithCompression configures the record compression of the file backend.
//
// Example:
//
//	db, _ := idxstore.Open(ctx, "./catalog.ixs", idxstore.WithCompression(idxstore.CompressionZstd))
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSync forces an fsync after every append.
func WithSync(sync bool) Option {
	return func(o *options) {
		o.sync = sync
	}
}

// WithCacheSize sets the number of decoded parts kept in memory.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithEncodeWorkers bounds the number of parts encoded in parallel by a
// commit. Zero means GOMAXPROCS.
func WithEncodeWorkers(n int) Option {
	return func(o *options) {
		o.encodeWorkers = n
	}
}

// WithMigrationIOLimit throttles the bytes per second read by Migrate.
// Zero disables the limit.
func WithMigrationIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.migrationIOLimit = bytesPerSec
	}
}

// WithValueCodec configures the codec that turns TypeAny values into
// opaque bytes. If nil is passed, value.DefaultCodec is used.
func WithValueCodec(c value.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = value.DefaultCodec
		}
		o.valueCodec = c
	}
}

// WithRegistry replaces the codec registry, e.g. to add legacy decoders
// for custom layouts.
func WithRegistry(r *codec.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &idxstore.BasicMetricsCollector{}
//	db, _ := idxstore.Open(ctx, path, idxstore.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Commits: %d, Avg latency: %dns\n", stats.CommitCount, stats.CommitAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := idxstore.NewJSONLogger(slog.LevelInfo)
//	db, _ := idxstore.Open(ctx, path, idxstore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		backend:          BackendFile,
		cacheSize:        engine.DefaultCacheSize,
		valueCodec:       value.DefaultCodec,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o *options) validate() error {
	switch {
	case o.cacheSize < 1:
		return fmt.Errorf("%w: cache size %d", ErrInvalidOption, o.cacheSize)
	case o.encodeWorkers < 0:
		return fmt.Errorf("%w: encode workers %d", ErrInvalidOption, o.encodeWorkers)
	case o.migrationIOLimit < 0:
		return fmt.Errorf("%w: migration io limit %d", ErrInvalidOption, o.migrationIOLimit)
	}
	if _, err := ParseBackend(string(o.backend)); err != nil {
		return err
	}
	return nil
}
