package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/index/cardinality"
	"github.com/hupe1980/idxstore/index/chain"
	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/index/facet"
	"github.com/hupe1980/idxstore/index/hierarchy"
	"github.com/hupe1980/idxstore/index/price"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/store"
)

// entry is the state of one part inside a snapshot. Entries are never
// mutated once published.
type entry struct {
	loc store.Location
	// part pins an in-memory version that differs from the stored one.
	part storagepart.Part
	// sum is the xxhash of the stored bytes, 0 if unknown.
	sum uint64
	// stale lists legacy addresses this part supersedes.
	stale []storagepart.ID
	// dirty parts are rewritten by the next migration.
	dirty bool
}

func (e *entry) persisted() bool { return e.loc.Offset != 0 }

// Snapshot is an immutable view of the parts of a scope.
type Snapshot struct {
	scope   *Scope
	version uint64
	parts   map[storagepart.ID]*entry
}

func newSnapshot(sc *Scope, version uint64, parts map[storagepart.ID]*entry) *Snapshot {
	if parts == nil {
		parts = make(map[storagepart.ID]*entry)
	}
	return &Snapshot{scope: sc, version: version, parts: parts}
}

// next returns a copy of s that the caller may modify before publishing.
func (s *Snapshot) next() *Snapshot {
	return &Snapshot{scope: s.scope, version: s.version + 1, parts: maps.Clone(s.parts)}
}

// ScopeID returns the id of the scope the snapshot belongs to.
func (s *Snapshot) ScopeID() int32 { return s.scope.ID() }

// Version is incremented by every published commit.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of parts.
func (s *Snapshot) Len() int { return len(s.parts) }

// IDs returns the part ids ordered by type and primary key.
func (s *Snapshot) IDs() []storagepart.ID {
	ids := slices.Collect(maps.Keys(s.parts))
	slices.SortFunc(ids, store.CompareIDs)
	return ids
}

// Location returns the store location of a part.
func (s *Snapshot) Location(id storagepart.ID) (store.Location, bool) {
	e, ok := s.parts[id]
	if !ok || !e.persisted() {
		return store.Location{}, false
	}
	return e.loc, true
}

// Part returns the part stored under id. The result is shared with other
// readers and must not be modified.
func (s *Snapshot) Part(ctx context.Context, id storagepart.ID) (storagepart.Part, error) {
	if err := s.scope.usable(); err != nil {
		return nil, err
	}
	e, ok := s.parts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartNotFound, id)
	}
	return s.scope.catalog.materialize(ctx, s.scope, id, e)
}

func (s *Snapshot) keyed(ctx context.Context, t storagepart.Type, k keys.Key) (storagepart.Part, error) {
	keyID, ok := s.scope.catalog.keys.IDIfExists(k)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrPartNotFound, t, k)
	}
	return s.Part(ctx, s.scope.partID(t, keyID))
}

func as[P storagepart.Part](p storagepart.Part, err error) (P, error) {
	var zero P
	if err != nil {
		return zero, err
	}
	out, ok := p.(P)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %T", ErrTypeMismatch, p)
	}
	return out, nil
}

// EntityIndex returns the registry of an entity scope.
func (s *Snapshot) EntityIndex(ctx context.Context) (*entity.Index, error) {
	p, err := as[*storagepart.EntityIndex](s.Part(ctx, s.scope.partID(storagepart.TypeEntityIndex, keys.NoKey)))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

// Catalog returns the catalog registry. Only the catalog scope holds it.
func (s *Snapshot) Catalog(ctx context.Context) (*entity.Catalog, error) {
	p, err := as[*storagepart.CatalogIndex](s.Part(ctx, s.scope.partID(storagepart.TypeCatalogIndex, keys.NoKey)))
	if err != nil {
		return nil, err
	}
	return p.Catalog, nil
}

func (s *Snapshot) Filter(ctx context.Context, key keys.AttributeIndexKey) (*attribute.FilterIndex, error) {
	p, err := as[*storagepart.Filter](s.keyed(ctx, storagepart.TypeFilter, key))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) Sort(ctx context.Context, key keys.AttributeIndexKey) (*attribute.SortIndex, error) {
	p, err := as[*storagepart.Sort](s.keyed(ctx, storagepart.TypeSort, key))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) Unique(ctx context.Context, key keys.AttributeIndexKey) (*attribute.UniqueIndex, error) {
	p, err := as[*storagepart.Unique](s.keyed(ctx, storagepart.TypeUnique, key))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) Chain(ctx context.Context, key keys.AttributeIndexKey) (*chain.Index, error) {
	p, err := as[*storagepart.Chain](s.keyed(ctx, storagepart.TypeChain, key))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) AttributeCardinality(ctx context.Context, key keys.AttributeIndexKey) (*cardinality.AttributeIndex, error) {
	p, err := as[*storagepart.AttributeCardinality](s.keyed(ctx, storagepart.TypeAttributeCardinality, key))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) ReferenceCardinality(ctx context.Context, reference string) (*cardinality.ReferenceTypeIndex, error) {
	p, err := as[*storagepart.ReferenceCardinality](s.keyed(ctx, storagepart.TypeReferenceCardinality, keys.ReferenceNameKey{Name: reference}))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) Facet(ctx context.Context, reference string) (*facet.Index, error) {
	p, err := as[*storagepart.Facet](s.keyed(ctx, storagepart.TypeFacet, keys.ReferenceNameKey{Name: reference}))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) Price(ctx context.Context, key keys.PriceIndexKey) (*price.Index, error) {
	p, err := as[*storagepart.Price](s.keyed(ctx, storagepart.TypePrice, key))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

func (s *Snapshot) Hierarchy(ctx context.Context) (*hierarchy.Index, error) {
	p, err := as[*storagepart.Hierarchy](s.Part(ctx, s.scope.partID(storagepart.TypeHierarchy, keys.NoKey)))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}

// GlobalUnique returns a catalog wide unique index. Only the catalog scope
// holds them.
func (s *Snapshot) GlobalUnique(ctx context.Context, key keys.AttributeIndexKey) (*attribute.GlobalUniqueIndex, error) {
	p, err := as[*storagepart.GlobalUnique](s.keyed(ctx, storagepart.TypeGlobalUnique, key))
	if err != nil {
		return nil, err
	}
	return p.Index, nil
}
