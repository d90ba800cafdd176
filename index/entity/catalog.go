package entity

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/idxstore/bitmap"
)

// ScopeRef describes one entity index scope registered in a catalog.
type ScopeRef struct {
	ScopeID       int32
	EntityType    string
	Discriminator Discriminator
}

// Catalog is the registry of the catalog scope: global unique attribute
// keys and the entity index scopes.
type Catalog struct {
	uniqueKeys *bitmap.Bitmap
	scopes     map[int32]ScopeRef
	lastScope  int32
}

// NewCatalog creates an empty catalog registry.
func NewCatalog() *Catalog {
	return &Catalog{uniqueKeys: bitmap.New(), scopes: make(map[int32]ScopeRef)}
}

// AddUniqueKey registers a global unique attribute key id.
func (c *Catalog) AddUniqueKey(keyID int32) bool { return c.uniqueKeys.CheckedAdd(keyID) }

// RemoveUniqueKey unregisters a global unique attribute key id.
func (c *Catalog) RemoveUniqueKey(keyID int32) bool { return c.uniqueKeys.CheckedRemove(keyID) }

// UniqueKeys returns the registered global unique attribute key ids.
func (c *Catalog) UniqueKeys() []int32 { return c.uniqueKeys.ToArray() }

// Allocate reserves a new scope id for an entity index and registers it.
func (c *Catalog) Allocate(entityType string, d Discriminator) ScopeRef {
	c.lastScope++
	ref := ScopeRef{ScopeID: c.lastScope, EntityType: entityType, Discriminator: d}
	c.scopes[ref.ScopeID] = ref
	return ref
}

// Find returns the scope registered for entityType and d.
func (c *Catalog) Find(entityType string, d Discriminator) (ScopeRef, bool) {
	for _, ref := range c.scopes {
		if ref.EntityType == entityType && ref.Discriminator == d {
			return ref, true
		}
	}
	return ScopeRef{}, false
}

// Scope returns the reference of scope id.
func (c *Catalog) Scope(id int32) (ScopeRef, bool) {
	ref, ok := c.scopes[id]
	return ref, ok
}

// Drop unregisters a scope. Scope ids are never reused.
func (c *Catalog) Drop(id int32) bool {
	if _, ok := c.scopes[id]; !ok {
		return false
	}
	delete(c.scopes, id)
	return true
}

// Scopes returns all scope references ordered by id.
func (c *Catalog) Scopes() []ScopeRef {
	out := make([]ScopeRef, 0, len(c.scopes))
	for _, id := range slices.Sorted(maps.Keys(c.scopes)) {
		out = append(out, c.scopes[id])
	}
	return out
}

// LastScope returns the highest scope id ever allocated.
func (c *Catalog) LastScope() int32 { return c.lastScope }

// Clone returns an independent copy.
func (c *Catalog) Clone() *Catalog {
	return &Catalog{uniqueKeys: c.uniqueKeys.Clone(), scopes: maps.Clone(c.scopes), lastScope: c.lastScope}
}

// Equals reports whether both registries are identical.
func (c *Catalog) Equals(o *Catalog) bool {
	return c.lastScope == o.lastScope && c.uniqueKeys.Equals(o.uniqueKeys) && maps.Equal(c.scopes, o.scopes)
}

// RestoreCatalog rebuilds a catalog registry.
func RestoreCatalog(uniqueKeys *bitmap.Bitmap, scopes []ScopeRef, lastScope int32) (*Catalog, error) {
	c := NewCatalog()
	c.uniqueKeys = uniqueKeys.Clone()
	c.lastScope = lastScope
	for _, ref := range scopes {
		if ref.ScopeID <= 0 || ref.ScopeID > lastScope {
			return nil, fmt.Errorf("%w: scope id %d outside 1..%d", ErrCorrupted, ref.ScopeID, lastScope)
		}
		if _, dup := c.scopes[ref.ScopeID]; dup {
			return nil, fmt.Errorf("%w: duplicate scope %d", ErrCorrupted, ref.ScopeID)
		}
		c.scopes[ref.ScopeID] = ref
	}
	return c, nil
}
