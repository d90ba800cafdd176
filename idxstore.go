package idxstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/idxstore/engine"
	"github.com/hupe1980/idxstore/internal/resource"
	"github.com/hupe1980/idxstore/store"
	"github.com/hupe1980/idxstore/value"
)

// DB is an opened catalog together with its store. Scopes, sessions and
// snapshots are reached through the embedded engine.Catalog.
type DB struct {
	*engine.Catalog

	path   string
	opts   options
	logger *Logger
}

// Open opens the catalog stored at path, creating it when it does not
// exist. Legacy parts stay readable; see DB.Migrate.
func Open(ctx context.Context, path string, optFns ...Option) (*DB, error) {
	start := time.Now()
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}
	logger := o.logger.WithPath(path)

	st, err := openStore(path, &o)
	if err != nil {
		logger.LogOpenFailure(ctx, time.Since(start), err)
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		EncodeWorkers:      int64(o.encodeWorkers),
		IOLimitBytesPerSec: o.migrationIOLimit,
	})
	engineOpts := []engine.Option{
		engine.WithLogger(logger.Logger),
		engine.WithMetricsObserver(&observer{collector: o.metricsCollector, logger: logger}),
		engine.WithResourceController(rc),
		engine.WithCacheSize(o.cacheSize),
	}
	if o.registry != nil {
		engineOpts = append(engineOpts, engine.WithRegistry(o.registry))
	}

	cat, err := engine.Open(ctx, st, engineOpts...)
	if err != nil {
		if IsFatal(err) {
			logger.LogCorruption(ctx, "catalog", err)
		}
		_ = st.Close()
		return nil, err
	}

	return &DB{Catalog: cat, path: path, opts: o, logger: logger}, nil
}

func openStore(path string, o *options) (store.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	switch o.backend {
	case BackendMemory:
		return store.NewMemoryStore(), nil
	case BackendPebble:
		return store.OpenPebbleStore(path, func(po *store.PebbleOptions) {
			po.Sync = o.sync
		})
	case BackendFile:
		return store.OpenFileStore(path, func(fo *store.FileOptions) {
			fo.Compression = o.compression
			fo.Sync = o.sync
		})
	default:
		return nil, &ErrUnknownBackend{Backend: o.backend}
	}
}

// Path returns the location the database was opened from.
func (db *DB) Path() string { return db.path }

// Logger returns the logger of the database.
func (db *DB) Logger() *Logger { return db.logger }

// Migrate rewrites every part stored in a legacy layout in the current
// format.
func (db *DB) Migrate(ctx context.Context) (engine.MigrationReport, error) {
	report, err := db.Catalog.Migrate(ctx)
	if err != nil {
		if IsFatal(err) {
			db.logger.LogCorruption(ctx, "migration", err)
		}
		return report, fmt.Errorf("migrate %s: %w", db.path, err)
	}
	return report, nil
}

// Normalize converts v to the canonical representation of t. TypeAny
// values are encoded with the configured value codec.
func (db *DB) Normalize(t value.Type, v any) (any, error) {
	return value.NormalizeWith(db.opts.valueCodec, t, v)
}

// DecodeOpaque decodes a TypeAny value with the configured value codec.
func (db *DB) DecodeOpaque(o value.Opaque) (any, error) {
	return db.opts.valueCodec.DecodeValue(o.Bytes(), value.TypeAny)
}

// Close releases the store. The database must not be used afterwards.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	return db.Catalog.Close()
}
