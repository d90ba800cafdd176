// Package entity holds the registries that tell which sub-indexes exist in
// a scope and which scopes exist in a catalog.
package entity

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/idxstore/bitmap"
)

// ErrCorrupted is returned when a restored registry is invalid.
var ErrCorrupted = errors.New("corrupted entity index")

// ScopeKind discriminates the entity index of a collection from indexes
// reduced to one referenced entity.
type ScopeKind uint8

const (
	ScopeGlobal ScopeKind = iota + 1
	ScopeReferenced
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeReferenced:
		return "referenced"
	default:
		return fmt.Sprintf("ScopeKind(%d)", uint8(k))
	}
}

// Discriminator identifies an entity index within its collection.
type Discriminator struct {
	Kind          ScopeKind
	ReferenceName string
	ReferencedPK  int32
}

// Global returns the discriminator of a collection wide index.
func Global() Discriminator { return Discriminator{Kind: ScopeGlobal} }

// Referenced returns the discriminator of an index reduced to one
// referenced entity.
func Referenced(name string, pk int32) Discriminator {
	return Discriminator{Kind: ScopeReferenced, ReferenceName: name, ReferencedPK: pk}
}

func (d Discriminator) String() string {
	if d.Kind == ScopeReferenced {
		return fmt.Sprintf("%s:%d", d.ReferenceName, d.ReferencedPK)
	}
	return d.Kind.String()
}

// IndexKind names a family of sub-indexes.
type IndexKind uint8

const (
	KindFilter IndexKind = iota + 1
	KindUnique
	KindSort
	KindChain
	KindCardinality
	KindFacet
	KindReferenceCardinality
	KindPrice
)

var kindNames = map[IndexKind]string{
	KindFilter:               "filter",
	KindUnique:               "unique",
	KindSort:                 "sort",
	KindChain:                "chain",
	KindCardinality:          "cardinality",
	KindFacet:                "facet",
	KindReferenceCardinality: "reference-cardinality",
	KindPrice:                "price",
}

func (k IndexKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("IndexKind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k IndexKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Index is the registry of one entity index scope.
type Index struct {
	ScopeID       int32
	EntityType    string
	Discriminator Discriminator

	records   *bitmap.Bitmap
	subs      map[IndexKind]*bitmap.Bitmap
	hierarchy bool
}

// NewIndex creates an empty registry for scope.
func NewIndex(scopeID int32, entityType string, d Discriminator) *Index {
	return &Index{
		ScopeID:       scopeID,
		EntityType:    entityType,
		Discriminator: d,
		records:       bitmap.New(),
		subs:          make(map[IndexKind]*bitmap.Bitmap),
	}
}

// AddRecord registers rec in the scope.
func (x *Index) AddRecord(rec int32) (bool, error) {
	if err := bitmap.CheckID(rec); err != nil {
		return false, err
	}
	return x.records.CheckedAdd(rec), nil
}

// RemoveRecord unregisters rec.
func (x *Index) RemoveRecord(rec int32) bool { return x.records.CheckedRemove(rec) }

// AllRecords returns a copy of the scope's records.
func (x *Index) AllRecords() *bitmap.Bitmap { return x.records.Clone() }

// Register records that a sub-index of kind exists under keyID.
func (x *Index) Register(kind IndexKind, keyID int32) bool {
	bm, ok := x.subs[kind]
	if !ok {
		bm = bitmap.New()
		x.subs[kind] = bm
	}
	return bm.CheckedAdd(keyID)
}

// Unregister removes a sub-index registration.
func (x *Index) Unregister(kind IndexKind, keyID int32) bool {
	bm, ok := x.subs[kind]
	if !ok || !bm.CheckedRemove(keyID) {
		return false
	}
	if bm.IsEmpty() {
		delete(x.subs, kind)
	}
	return true
}

// Has reports whether a sub-index of kind is registered under keyID.
func (x *Index) Has(kind IndexKind, keyID int32) bool {
	return x.subs[kind].Contains(keyID)
}

// Keys returns the key ids registered for kind in ascending order.
func (x *Index) Keys(kind IndexKind) []int32 {
	return x.subs[kind].ToArray()
}

// Kinds returns the kinds with at least one registration.
func (x *Index) Kinds() []IndexKind {
	return slices.Sorted(maps.Keys(x.subs))
}

// HasHierarchy reports whether the scope carries a hierarchy index.
func (x *Index) HasHierarchy() bool { return x.hierarchy }

// SetHierarchy marks the presence of a hierarchy index.
func (x *Index) SetHierarchy(present bool) { x.hierarchy = present }

// Clone returns an independent copy.
func (x *Index) Clone() *Index {
	c := NewIndex(x.ScopeID, x.EntityType, x.Discriminator)
	c.records = x.records.Clone()
	c.hierarchy = x.hierarchy
	for k, v := range x.subs {
		c.subs[k] = v.Clone()
	}
	return c
}

// Equals reports whether both registries are identical.
func (x *Index) Equals(o *Index) bool {
	if x.ScopeID != o.ScopeID || x.EntityType != o.EntityType ||
		x.Discriminator != o.Discriminator || x.hierarchy != o.hierarchy ||
		!x.records.Equals(o.records) || len(x.subs) != len(o.subs) {
		return false
	}
	for k, v := range x.subs {
		if !v.Equals(o.subs[k]) {
			return false
		}
	}
	return true
}

// Registration is a serializable sub-index registration set.
type Registration struct {
	Kind IndexKind
	Keys *bitmap.Bitmap
}

// Registrations lists the sub-index registrations ordered by kind.
func (x *Index) Registrations() []Registration {
	out := make([]Registration, 0, len(x.subs))
	for _, k := range x.Kinds() {
		out = append(out, Registration{Kind: k, Keys: x.subs[k]})
	}
	return out
}

// RestoreIndex rebuilds a registry from decoded state.
func RestoreIndex(scopeID int32, entityType string, d Discriminator, records *bitmap.Bitmap, regs []Registration, hierarchy bool) (*Index, error) {
	if scopeID <= 0 {
		return nil, fmt.Errorf("%w: entity scope id %d", ErrCorrupted, scopeID)
	}
	if d.Kind != ScopeGlobal && d.Kind != ScopeReferenced {
		return nil, fmt.Errorf("%w: scope kind %d", ErrCorrupted, d.Kind)
	}
	x := NewIndex(scopeID, entityType, d)
	x.records = records.Clone()
	x.hierarchy = hierarchy
	for _, r := range regs {
		if !r.Kind.Valid() || r.Keys.IsEmpty() {
			return nil, fmt.Errorf("%w: registration of kind %s", ErrCorrupted, r.Kind)
		}
		if _, dup := x.subs[r.Kind]; dup {
			return nil, fmt.Errorf("%w: duplicate registration of kind %s", ErrCorrupted, r.Kind)
		}
		x.subs[r.Kind] = r.Keys.Clone()
	}
	return x, nil
}
