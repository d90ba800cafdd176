// Package idxstore is the persistence and indexing core of an entity
// database. It keeps in-memory index structures per entity scope (filter,
// range, sort, unique, chain, cardinality, hierarchy and facet indexes),
// serializes them as versioned storage parts and appends them to a store.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, err := idxstore.Open(ctx, "./data/catalog.ixs",
//	    idxstore.WithCompression(idxstore.CompressionZstd),
//	    idxstore.WithLogger(idxstore.NewTextLogger(slog.LevelInfo)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	scope, err := db.CreateScope(ctx, "product", entity.Global())
//	if err != nil {
//	    return err
//	}
//	sess, err := scope.Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sess.Discard()
//
//	code := keys.AttributeIndexKey{AttributeName: "code"}
//	f, err := sess.Filter(ctx, code, value.TypeString)
//	if err != nil {
//	    return err
//	}
//	if err := f.AddRecord("A-1", 7); err != nil {
//	    return err
//	}
//	return sess.Commit(ctx)
//
// # Backends
//
// Parts are appended to a file store by default. BackendPebble keeps them
// in a Pebble LSM and BackendMemory in process memory. WithStore accepts
// any store.Store.
//
// # Legacy Data
//
// Parts written in older layouts stay readable. DB.PendingMigration
// reports how many parts still use them and DB.Migrate rewrites them in
// the current format.
//
// # Key Features
//
//   - Roaring bitmap posting lists
//   - Copy-on-write write sessions with atomic snapshot publication
//   - Lock-free snapshot reads
//   - Parallel part encoding, unchanged parts are never re-appended
//   - Snappy, zstd and LZ4 record compression
//   - Structured logging (slog) and Prometheus metrics
package idxstore
