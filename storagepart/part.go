// Package storagepart wraps index structures into identified units that
// are encoded and appended to a store.
package storagepart

import (
	"fmt"
	"strings"

	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/index/cardinality"
	"github.com/hupe1980/idxstore/index/chain"
	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/index/facet"
	"github.com/hupe1980/idxstore/index/hierarchy"
	"github.com/hupe1980/idxstore/index/price"
	"github.com/hupe1980/idxstore/keys"
)

// CatalogScope is the scope of catalog wide parts.
const CatalogScope int32 = 0

// Type identifies the structure held by a part.
type Type uint8

const (
	TypeKeyDictionary Type = iota + 1
	TypeCatalogIndex
	TypeEntityIndex
	TypeFilter
	TypeSort
	TypeUnique
	TypeGlobalUnique
	TypeChain
	TypeAttributeCardinality
	TypeReferenceCardinality
	TypeHierarchy
	TypeFacet
	TypePrice
)

var typeNames = [...]string{
	TypeKeyDictionary:        "key-dictionary",
	TypeCatalogIndex:         "catalog-index",
	TypeEntityIndex:          "entity-index",
	TypeFilter:               "filter",
	TypeSort:                 "sort",
	TypeUnique:               "unique",
	TypeGlobalUnique:         "global-unique",
	TypeChain:                "chain",
	TypeAttributeCardinality: "attribute-cardinality",
	TypeReferenceCardinality: "reference-cardinality",
	TypeHierarchy:            "hierarchy",
	TypeFacet:                "facet",
	TypePrice:                "price",
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is a known part type.
func (t Type) Valid() bool {
	return t >= TypeKeyDictionary && t <= TypePrice
}

// Types lists all part types.
func Types() []Type {
	out := make([]Type, 0, len(typeNames)-1)
	for t := TypeKeyDictionary; t <= TypePrice; t++ {
		out = append(out, t)
	}
	return out
}

// ParseType resolves a type by name.
func ParseType(name string) (Type, error) {
	for _, t := range Types() {
		if strings.EqualFold(typeNames[t], name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown storage part type %q", name)
}

// ComputePK derives the physical slot id of a part from its identity.
func ComputePK(scope, keyID int32) int64 {
	return int64(scope)<<32 | int64(uint32(keyID))
}

// SplitPK reverses ComputePK.
func SplitPK(pk int64) (scope, keyID int32) {
	return int32(pk >> 32), int32(uint32(pk))
}

// Part is an identified, encodable index structure.
type Part interface {
	Type() Type
	ScopeID() int32
	KeyID() int32
	PK() int64
}

// Header carries the identity of a part. The PK is derived once.
type Header struct {
	scope int32
	keyID int32
	pk    int64
}

// NewHeader creates the identity of a part.
func NewHeader(scope, keyID int32) Header {
	return Header{scope: scope, keyID: keyID, pk: ComputePK(scope, keyID)}
}

func (h Header) ScopeID() int32 { return h.scope }
func (h Header) KeyID() int32   { return h.keyID }
func (h Header) PK() int64      { return h.pk }

// ID is the store address of a part.
type ID struct {
	Type Type
	PK   int64
}

// IDOf returns the store address of p.
func IDOf(p Part) ID { return ID{Type: p.Type(), PK: p.PK()} }

func (id ID) String() string {
	scope, key := SplitPK(id.PK)
	return fmt.Sprintf("%s/%d/%d", id.Type, scope, key)
}

// KeyDictionary persists the key compressor of a catalog.
type KeyDictionary struct {
	Header
	Entries []keys.Entry
}

// NewKeyDictionary wraps compressor entries.
func NewKeyDictionary(entries []keys.Entry) *KeyDictionary {
	return &KeyDictionary{Header: NewHeader(CatalogScope, keys.NoKey), Entries: entries}
}

func (*KeyDictionary) Type() Type { return TypeKeyDictionary }

// CatalogIndex persists the catalog registry.
type CatalogIndex struct {
	Header
	Catalog *entity.Catalog
}

// NewCatalogIndex wraps a catalog registry.
func NewCatalogIndex(c *entity.Catalog) *CatalogIndex {
	return &CatalogIndex{Header: NewHeader(CatalogScope, keys.NoKey), Catalog: c}
}

func (*CatalogIndex) Type() Type { return TypeCatalogIndex }

// EntityIndex persists the registry of one entity index scope.
type EntityIndex struct {
	Header
	Index *entity.Index
}

// NewEntityIndex wraps a scope registry.
func NewEntityIndex(x *entity.Index) *EntityIndex {
	return &EntityIndex{Header: NewHeader(x.ScopeID, keys.NoKey), Index: x}
}

func (*EntityIndex) Type() Type { return TypeEntityIndex }

// Filter persists a filter index of one attribute key.
type Filter struct {
	Header
	Index *attribute.FilterIndex
}

// NewFilter wraps a filter index.
func NewFilter(scope, keyID int32, x *attribute.FilterIndex) *Filter {
	return &Filter{Header: NewHeader(scope, keyID), Index: x}
}

func (*Filter) Type() Type { return TypeFilter }

// Sort persists a sort index of one attribute key.
type Sort struct {
	Header
	Index *attribute.SortIndex
}

// NewSort wraps a sort index.
func NewSort(scope, keyID int32, x *attribute.SortIndex) *Sort {
	return &Sort{Header: NewHeader(scope, keyID), Index: x}
}

func (*Sort) Type() Type { return TypeSort }

// Unique persists a unique index of one attribute key.
type Unique struct {
	Header
	Index *attribute.UniqueIndex
}

// NewUnique wraps a unique index.
func NewUnique(scope, keyID int32, x *attribute.UniqueIndex) *Unique {
	return &Unique{Header: NewHeader(scope, keyID), Index: x}
}

func (*Unique) Type() Type { return TypeUnique }

// GlobalUnique persists a catalog wide unique index.
type GlobalUnique struct {
	Header
	Index *attribute.GlobalUniqueIndex
}

// NewGlobalUnique wraps a catalog wide unique index.
func NewGlobalUnique(keyID int32, x *attribute.GlobalUniqueIndex) *GlobalUnique {
	return &GlobalUnique{Header: NewHeader(CatalogScope, keyID), Index: x}
}

func (*GlobalUnique) Type() Type { return TypeGlobalUnique }

// Chain persists a chain index of one attribute key.
type Chain struct {
	Header
	Index *chain.Index
}

// NewChain wraps a chain index.
func NewChain(scope, keyID int32, x *chain.Index) *Chain {
	return &Chain{Header: NewHeader(scope, keyID), Index: x}
}

func (*Chain) Type() Type { return TypeChain }

// AttributeCardinality persists value cardinalities of one attribute key.
type AttributeCardinality struct {
	Header
	Index *cardinality.AttributeIndex
}

// NewAttributeCardinality wraps an attribute cardinality index.
func NewAttributeCardinality(scope, keyID int32, x *cardinality.AttributeIndex) *AttributeCardinality {
	return &AttributeCardinality{Header: NewHeader(scope, keyID), Index: x}
}

func (*AttributeCardinality) Type() Type { return TypeAttributeCardinality }

// ReferenceCardinality persists reference counts of one reference name.
type ReferenceCardinality struct {
	Header
	Index *cardinality.ReferenceTypeIndex
}

// NewReferenceCardinality wraps a reference cardinality index.
func NewReferenceCardinality(scope, keyID int32, x *cardinality.ReferenceTypeIndex) *ReferenceCardinality {
	return &ReferenceCardinality{Header: NewHeader(scope, keyID), Index: x}
}

func (*ReferenceCardinality) Type() Type { return TypeReferenceCardinality }

// Hierarchy persists the hierarchy of a scope.
type Hierarchy struct {
	Header
	Index *hierarchy.Index
}

// NewHierarchy wraps a hierarchy index.
func NewHierarchy(scope int32, x *hierarchy.Index) *Hierarchy {
	return &Hierarchy{Header: NewHeader(scope, keys.NoKey), Index: x}
}

func (*Hierarchy) Type() Type { return TypeHierarchy }

// Facet persists the facet index of one reference name.
type Facet struct {
	Header
	Index *facet.Index
}

// NewFacet wraps a facet index.
func NewFacet(scope, keyID int32, x *facet.Index) *Facet {
	return &Facet{Header: NewHeader(scope, keyID), Index: x}
}

func (*Facet) Type() Type { return TypeFacet }

// Price persists the price index of one price list and currency.
type Price struct {
	Header
	Index *price.Index
}

// NewPrice wraps a price index.
func NewPrice(scope, keyID int32, x *price.Index) *Price {
	return &Price{Header: NewHeader(scope, keyID), Index: x}
}

func (*Price) Type() Type { return TypePrice }
