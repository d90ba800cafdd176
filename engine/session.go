package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/index/cardinality"
	"github.com/hupe1980/idxstore/index/chain"
	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/index/facet"
	"github.com/hupe1980/idxstore/index/hierarchy"
	"github.com/hupe1980/idxstore/index/price"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/value"
)

// Session is a copy-on-write overlay over the snapshot a scope had when
// the session began. Structures returned by its accessors belong to the
// session and may be mutated until Commit or Discard.
//
// A Session is not safe for concurrent use.
type Session struct {
	id      uuid.UUID
	scope   *Scope
	base    *Snapshot
	touched map[storagepart.ID]storagepart.Part
	deleted map[storagepart.ID]struct{}
	refs    []referenceCheck
	done    bool
}

type referenceCheck struct {
	pk     int32
	usages []cardinality.Usage
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Scope returns the scope the session writes to.
func (s *Session) Scope() *Scope { return s.scope }

// Base returns the snapshot the session started from.
func (s *Session) Base() *Snapshot { return s.base }

// Touched returns the number of parts the session has modified or created.
func (s *Session) Touched() int { return len(s.touched) }

func (s *Session) finish() {
	if s.done {
		return
	}
	s.done = true
	s.touched, s.deleted, s.refs = nil, nil, nil
	s.scope.release()
}

// Discard drops the overlay and releases the scope. It is safe to call
// after Commit.
func (s *Session) Discard() {
	if !s.done {
		s.scope.catalog.logger.Debug("session discarded", "scope", s.scope.String(), "session", s.id)
	}
	s.finish()
}

// touch returns the session copy of id, cloning it from the base snapshot
// on first access. create builds a missing part; nil means the part must
// exist.
func (s *Session) touch(ctx context.Context, id storagepart.ID, create func() storagepart.Part) (storagepart.Part, error) {
	if s.done {
		return nil, ErrSessionClosed
	}
	if p, ok := s.touched[id]; ok {
		return p, nil
	}
	if _, gone := s.deleted[id]; !gone {
		p, err := s.base.Part(ctx, id)
		if err == nil {
			cp := clonePart(p)
			s.touched[id] = cp
			return cp, nil
		}
		if !errors.Is(err, ErrPartNotFound) {
			return nil, err
		}
	}
	if create == nil {
		return nil, fmt.Errorf("%w: %s", ErrPartNotFound, id)
	}
	p := create()
	s.touched[id] = p
	delete(s.deleted, id)
	return p, nil
}

func (s *Session) requireEntityScope() error {
	if s.scope.IsCatalog() {
		return ErrWrongScope
	}
	return nil
}

// EntityIndex returns the registry of an entity scope.
func (s *Session) EntityIndex(ctx context.Context) (*entity.Index, error) {
	if err := s.requireEntityScope(); err != nil {
		return nil, err
	}
	ref := s.scope.ref
	p, err := s.touch(ctx, s.scope.partID(storagepart.TypeEntityIndex, keys.NoKey), func() storagepart.Part {
		return storagepart.NewEntityIndex(entity.NewIndex(ref.ScopeID, ref.EntityType, ref.Discriminator))
	})
	if err != nil {
		return nil, err
	}
	return p.(*storagepart.EntityIndex).Index, nil
}

// register records a sub-index in the entity index, touching it only when
// the registration is new.
func (s *Session) register(ctx context.Context, kind entity.IndexKind, keyID int32) error {
	eid := s.scope.partID(storagepart.TypeEntityIndex, keys.NoKey)
	if _, ok := s.touched[eid]; !ok {
		if x, err := s.base.EntityIndex(ctx); err == nil && x.Has(kind, keyID) {
			return nil
		}
	}
	x, err := s.EntityIndex(ctx)
	if err != nil {
		return err
	}
	x.Register(kind, keyID)
	return nil
}

// subIndex resolves key and returns the session copy of a keyed entity
// scope part, creating and registering it when missing.
func (s *Session) subIndex(ctx context.Context, t storagepart.Type, k keys.Key, create func(scope, keyID int32) storagepart.Part) (storagepart.Part, error) {
	if err := s.requireEntityScope(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, ErrSessionClosed
	}
	keyID := s.scope.catalog.keys.ID(k)
	scope := s.scope.ID()
	created := false
	p, err := s.touch(ctx, s.scope.partID(t, keyID), func() storagepart.Part {
		created = true
		return create(scope, keyID)
	})
	if err != nil {
		return nil, err
	}
	if kind, ok := registrationKind(t); ok && created {
		if err := s.register(ctx, kind, keyID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Filter returns the filter index of key, creating it for values of type t.
func (s *Session) Filter(ctx context.Context, key keys.AttributeIndexKey, t value.Type) (*attribute.FilterIndex, error) {
	p, err := s.subIndex(ctx, storagepart.TypeFilter, key, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewFilter(scope, keyID, attribute.NewFilterIndex(t))
	})
	if err != nil {
		return nil, err
	}
	x := p.(*storagepart.Filter).Index
	if x.ValueType() != t {
		return nil, fmt.Errorf("%w: filter %s holds %s, not %s", ErrTypeMismatch, key, x.ValueType(), t)
	}
	return x, nil
}

// Sort returns the sort index of key, creating it with axes.
func (s *Session) Sort(ctx context.Context, key keys.AttributeIndexKey, axes ...attribute.SortAxis) (*attribute.SortIndex, error) {
	fresh, err := attribute.NewSortIndex(axes...)
	if err != nil {
		return nil, err
	}
	p, err := s.subIndex(ctx, storagepart.TypeSort, key, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewSort(scope, keyID, fresh)
	})
	if err != nil {
		return nil, err
	}
	x := p.(*storagepart.Sort).Index
	if !slices.Equal(x.Axes(), axes) {
		return nil, fmt.Errorf("%w: sort %s axes %v, not %v", ErrTypeMismatch, key, x.Axes(), axes)
	}
	return x, nil
}

// Unique returns the unique index of key.
func (s *Session) Unique(ctx context.Context, key keys.AttributeIndexKey, t value.Type) (*attribute.UniqueIndex, error) {
	p, err := s.subIndex(ctx, storagepart.TypeUnique, key, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewUnique(scope, keyID, attribute.NewUniqueIndex(key.AttributeName, t))
	})
	if err != nil {
		return nil, err
	}
	x := p.(*storagepart.Unique).Index
	if x.ValueType() != t {
		return nil, fmt.Errorf("%w: unique %s holds %s, not %s", ErrTypeMismatch, key, x.ValueType(), t)
	}
	return x, nil
}

// Chain returns the chain index of key.
func (s *Session) Chain(ctx context.Context, key keys.AttributeIndexKey) (*chain.Index, error) {
	p, err := s.subIndex(ctx, storagepart.TypeChain, key, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewChain(scope, keyID, chain.New())
	})
	if err != nil {
		return nil, err
	}
	return p.(*storagepart.Chain).Index, nil
}

// AttributeCardinality returns the value cardinality index of key.
func (s *Session) AttributeCardinality(ctx context.Context, key keys.AttributeIndexKey, t value.Type) (*cardinality.AttributeIndex, error) {
	p, err := s.subIndex(ctx, storagepart.TypeAttributeCardinality, key, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewAttributeCardinality(scope, keyID, cardinality.NewAttributeIndex(t))
	})
	if err != nil {
		return nil, err
	}
	x := p.(*storagepart.AttributeCardinality).Index
	if x.ValueType() != t {
		return nil, fmt.Errorf("%w: cardinality %s holds %s, not %s", ErrTypeMismatch, key, x.ValueType(), t)
	}
	return x, nil
}

// ReferenceCardinality returns the reference count index of a reference.
func (s *Session) ReferenceCardinality(ctx context.Context, reference string) (*cardinality.ReferenceTypeIndex, error) {
	p, err := s.subIndex(ctx, storagepart.TypeReferenceCardinality, keys.ReferenceNameKey{Name: reference}, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewReferenceCardinality(scope, keyID, cardinality.NewReferenceTypeIndex())
	})
	if err != nil {
		return nil, err
	}
	return p.(*storagepart.ReferenceCardinality).Index, nil
}

// Facet returns the facet index of a reference.
func (s *Session) Facet(ctx context.Context, reference string) (*facet.Index, error) {
	p, err := s.subIndex(ctx, storagepart.TypeFacet, keys.ReferenceNameKey{Name: reference}, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewFacet(scope, keyID, facet.New())
	})
	if err != nil {
		return nil, err
	}
	return p.(*storagepart.Facet).Index, nil
}

// Price returns the price index of a price list and currency.
func (s *Session) Price(ctx context.Context, key keys.PriceIndexKey) (*price.Index, error) {
	p, err := s.subIndex(ctx, storagepart.TypePrice, key, func(scope, keyID int32) storagepart.Part {
		return storagepart.NewPrice(scope, keyID, price.New())
	})
	if err != nil {
		return nil, err
	}
	return p.(*storagepart.Price).Index, nil
}

// Hierarchy returns the hierarchy index of the scope.
func (s *Session) Hierarchy(ctx context.Context) (*hierarchy.Index, error) {
	if err := s.requireEntityScope(); err != nil {
		return nil, err
	}
	scope := s.scope.ID()
	created := false
	p, err := s.touch(ctx, s.scope.partID(storagepart.TypeHierarchy, keys.NoKey), func() storagepart.Part {
		created = true
		return storagepart.NewHierarchy(scope, hierarchy.New())
	})
	if err != nil {
		return nil, err
	}
	if created {
		x, err := s.EntityIndex(ctx)
		if err != nil {
			return nil, err
		}
		x.SetHierarchy(true)
	}
	return p.(*storagepart.Hierarchy).Index, nil
}

// GlobalUnique returns a catalog wide unique index. Only sessions of the
// catalog scope can write them.
func (s *Session) GlobalUnique(ctx context.Context, key keys.AttributeIndexKey, t value.Type) (*attribute.GlobalUniqueIndex, error) {
	if !s.scope.IsCatalog() {
		return nil, ErrWrongScope
	}
	if s.done {
		return nil, ErrSessionClosed
	}
	keyID := s.scope.catalog.keys.ID(key)
	created := false
	p, err := s.touch(ctx, s.scope.partID(storagepart.TypeGlobalUnique, keyID), func() storagepart.Part {
		created = true
		return storagepart.NewGlobalUnique(keyID, attribute.NewGlobalUniqueIndex(key.AttributeName, t))
	})
	if err != nil {
		return nil, err
	}
	if created {
		registry, err := s.catalogIndex(ctx)
		if err != nil {
			return nil, err
		}
		registry.AddUniqueKey(keyID)
	}
	x := p.(*storagepart.GlobalUnique).Index
	if x.ValueType() != t {
		return nil, fmt.Errorf("%w: global unique %s holds %s, not %s", ErrTypeMismatch, key, x.ValueType(), t)
	}
	return x, nil
}

// catalogIndex returns the session copy of the catalog registry.
func (s *Session) catalogIndex(ctx context.Context) (*entity.Catalog, error) {
	if !s.scope.IsCatalog() {
		return nil, ErrWrongScope
	}
	p, err := s.touch(ctx, s.scope.partID(storagepart.TypeCatalogIndex, keys.NoKey), func() storagepart.Part {
		return storagepart.NewCatalogIndex(entity.NewCatalog())
	})
	if err != nil {
		return nil, err
	}
	return p.(*storagepart.CatalogIndex).Catalog, nil
}

// Drop removes the part of type t and key from the scope.
func (s *Session) Drop(ctx context.Context, t storagepart.Type, k keys.Key) error {
	if s.done {
		return ErrSessionClosed
	}
	keyID := keys.NoKey
	if k != nil {
		id, ok := s.scope.catalog.keys.IDIfExists(k)
		if !ok {
			return nil
		}
		keyID = id
	}
	return s.drop(ctx, s.scope.partID(t, keyID))
}

func (s *Session) drop(ctx context.Context, id storagepart.ID) error {
	if id.Type == storagepart.TypeEntityIndex || id.Type == storagepart.TypeCatalogIndex || id.Type == storagepart.TypeKeyDictionary {
		return fmt.Errorf("%w: %s cannot be dropped", ErrWrongScope, id.Type)
	}
	delete(s.touched, id)
	s.deleted[id] = struct{}{}

	_, keyID := storagepart.SplitPK(id.PK)
	switch {
	case id.Type == storagepart.TypeGlobalUnique:
		registry, err := s.catalogIndex(ctx)
		if err != nil {
			return err
		}
		registry.RemoveUniqueKey(keyID)
	case id.Type == storagepart.TypeHierarchy:
		x, err := s.EntityIndex(ctx)
		if err != nil {
			return err
		}
		x.SetHierarchy(false)
	default:
		if kind, ok := registrationKind(id.Type); ok {
			x, err := s.EntityIndex(ctx)
			if err != nil {
				return err
			}
			x.Unregister(kind, keyID)
		}
	}
	return nil
}

// prune drops touched parts that became empty.
func (s *Session) prune(ctx context.Context) error {
	var empty []storagepart.ID
	for id, p := range s.touched {
		if isEmpty(p) {
			empty = append(empty, id)
		}
	}
	for _, id := range empty {
		if err := s.drop(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RequireReferences records the references entity pk holds once the
// session's changes apply. Commit checks them against their declared
// cardinalities and fails with every violation found, leaving the scope
// unchanged.
func (s *Session) RequireReferences(pk int32, usages ...cardinality.Usage) error {
	if s.done {
		return ErrSessionClosed
	}
	if err := s.requireEntityScope(); err != nil {
		return err
	}
	s.refs = append(s.refs, referenceCheck{pk: pk, usages: slices.Clone(usages)})
	return nil
}

func (s *Session) validate() error {
	for id, p := range s.touched {
		if c, ok := p.(*storagepart.Chain); ok {
			if err := c.Index.Verify(); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
		}
	}
	var result *multierror.Error
	for _, r := range s.refs {
		if err := cardinality.Validate(s.scope.EntityType(), r.pk, r.usages); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Commit persists the touched parts and publishes the next snapshot. The
// session is closed afterwards, whether or not Commit succeeds.
func (s *Session) Commit(ctx context.Context) error {
	if s.done {
		return ErrSessionClosed
	}
	defer s.finish()

	c := s.scope.catalog
	start := time.Now()
	stats, err := s.commit(ctx)
	c.metrics.OnCommit(time.Since(start), stats.appended, stats.bytes, err)
	if err != nil {
		c.logger.Error("commit failed", "scope", s.scope.String(), "session", s.id, "error", err)
		return err
	}
	c.logger.Debug("session committed",
		"scope", s.scope.String(),
		"session", s.id,
		"appended", stats.appended,
		"skipped", stats.skipped,
		"deleted", stats.deleted,
		"bytes", stats.bytes,
		"duration", time.Since(start),
	)
	return nil
}

func (s *Session) commit(ctx context.Context) (commitStats, error) {
	c := s.scope.catalog
	if c.closed.Load() {
		return commitStats{}, ErrClosed
	}
	if err := s.scope.usable(); err != nil {
		return commitStats{}, err
	}
	if err := s.prune(ctx); err != nil {
		return commitStats{}, err
	}
	if err := s.validate(); err != nil {
		return commitStats{}, err
	}
	if len(s.touched) == 0 && len(s.deleted) == 0 {
		return commitStats{}, nil
	}
	next, stats, err := c.commit(ctx, s.scope, s.base, s.touched, s.deleted)
	if err != nil {
		return stats, err
	}
	s.scope.current.Store(next)
	return stats, nil
}

func registrationKind(t storagepart.Type) (entity.IndexKind, bool) {
	switch t {
	case storagepart.TypeFilter:
		return entity.KindFilter, true
	case storagepart.TypeUnique:
		return entity.KindUnique, true
	case storagepart.TypeSort:
		return entity.KindSort, true
	case storagepart.TypeChain:
		return entity.KindChain, true
	case storagepart.TypeAttributeCardinality:
		return entity.KindCardinality, true
	case storagepart.TypeReferenceCardinality:
		return entity.KindReferenceCardinality, true
	case storagepart.TypeFacet:
		return entity.KindFacet, true
	case storagepart.TypePrice:
		return entity.KindPrice, true
	}
	return 0, false
}

func isEmpty(p storagepart.Part) bool {
	switch p := p.(type) {
	case *storagepart.Filter:
		return p.Index.IsEmpty()
	case *storagepart.Sort:
		return p.Index.IsEmpty()
	case *storagepart.Unique:
		return p.Index.Len() == 0
	case *storagepart.GlobalUnique:
		return p.Index.Len() == 0
	case *storagepart.Chain:
		return p.Index.IsEmpty()
	case *storagepart.AttributeCardinality:
		return p.Index.IsEmpty()
	case *storagepart.ReferenceCardinality:
		return p.Index.IsEmpty()
	case *storagepart.Hierarchy:
		return p.Index.IsEmpty()
	case *storagepart.Facet:
		return p.Index.IsEmpty()
	case *storagepart.Price:
		return p.Index.IsEmpty()
	}
	return false
}

func clonePart(p storagepart.Part) storagepart.Part {
	switch p := p.(type) {
	case *storagepart.KeyDictionary:
		return storagepart.NewKeyDictionary(slices.Clone(p.Entries))
	case *storagepart.CatalogIndex:
		return storagepart.NewCatalogIndex(p.Catalog.Clone())
	case *storagepart.EntityIndex:
		return storagepart.NewEntityIndex(p.Index.Clone())
	case *storagepart.Filter:
		return storagepart.NewFilter(p.ScopeID(), p.KeyID(), p.Index.Clone())
	case *storagepart.Sort:
		return storagepart.NewSort(p.ScopeID(), p.KeyID(), p.Index.Clone())
	case *storagepart.Unique:
		return storagepart.NewUnique(p.ScopeID(), p.KeyID(), p.Index.Clone())
	case *storagepart.GlobalUnique:
		return storagepart.NewGlobalUnique(p.KeyID(), p.Index.Clone())
	case *storagepart.Chain:
		return storagepart.NewChain(p.ScopeID(), p.KeyID(), p.Index.Clone())
	case *storagepart.AttributeCardinality:
		return storagepart.NewAttributeCardinality(p.ScopeID(), p.KeyID(), p.Index.Clone())
	case *storagepart.ReferenceCardinality:
		return storagepart.NewReferenceCardinality(p.ScopeID(), p.KeyID(), p.Index.Clone())
	case *storagepart.Hierarchy:
		return storagepart.NewHierarchy(p.ScopeID(), p.Index.Clone())
	case *storagepart.Facet:
		return storagepart.NewFacet(p.ScopeID(), p.KeyID(), p.Index.Clone())
	case *storagepart.Price:
		return storagepart.NewPrice(p.ScopeID(), p.KeyID(), p.Index.Clone())
	}
	panic(fmt.Sprintf("engine: cannot clone %T", p))
}
