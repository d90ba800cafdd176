// Package engine keeps the in-memory index structures of a catalog in
// sync with an append-only store.
//
// # Scopes and snapshots
//
// A catalog is divided into scopes. Scope 0 holds catalog wide parts (the
// key dictionary, the catalog registry and global unique indexes); every
// other scope is one entity index together with its attribute, chain,
// cardinality, hierarchy and facet indexes.
//
// Each scope publishes an immutable Snapshot through an atomic pointer.
// Readers call Scope.Snapshot and never block.
//
// # Sessions
//
// Scope.Begin acquires the single writer slot of a scope and returns a
// Session. Accessors clone a structure the first time it is touched, so
// the base snapshot is never mutated. Commit encodes the touched parts in
// parallel, appends them to the store and publishes the next snapshot.
// Discard drops the overlay.
//
//	sess, err := scope.Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sess.Discard()
//
//	f, err := sess.Filter(ctx, keys.AttributeIndexKey{AttributeName: "code"}, value.TypeString)
//	if err != nil {
//	    return err
//	}
//	if err := f.AddRecord("A-1", 7); err != nil {
//	    return err
//	}
//	return sess.Commit(ctx)
//
// # Loading
//
// Parts are materialized lazily on first access and cached by store
// offset. A part that fails to decode marks its scope unusable. Parts
// stored under a legacy codec version stay readable; Catalog.Migrate
// rewrites them in the current format.
package engine
