package entity

import (
	"testing"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRegistrations(t *testing.T) {
	x := NewIndex(3, "product", Global())
	added, err := x.AddRecord(1)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = x.AddRecord(1)
	require.NoError(t, err)
	assert.False(t, added)
	_, err = x.AddRecord(-1)
	require.ErrorIs(t, err, bitmap.ErrNegativeID)
	assert.True(t, x.Register(KindFilter, 5))
	assert.True(t, x.Register(KindFilter, 2))
	assert.False(t, x.Register(KindFilter, 2))
	assert.True(t, x.Register(KindSort, 5))

	assert.Equal(t, []int32{2, 5}, x.Keys(KindFilter))
	assert.Equal(t, []IndexKind{KindFilter, KindSort}, x.Kinds())
	assert.True(t, x.Has(KindSort, 5))
	assert.False(t, x.Has(KindChain, 5))
	assert.Nil(t, x.Keys(KindChain))

	assert.True(t, x.Unregister(KindSort, 5))
	assert.False(t, x.Unregister(KindSort, 5))
	assert.Equal(t, []IndexKind{KindFilter}, x.Kinds())
}

func TestIndexRestore(t *testing.T) {
	x := NewIndex(4, "product", Referenced("brand", 7))
	x.AddRecord(10)
	x.Register(KindFacet, 1)
	x.SetHierarchy(true)

	r, err := RestoreIndex(x.ScopeID, x.EntityType, x.Discriminator, x.AllRecords(), x.Registrations(), x.HasHierarchy())
	require.NoError(t, err)
	assert.True(t, r.Equals(x))
	assert.Equal(t, "brand:7", r.Discriminator.String())

	_, err = RestoreIndex(0, "product", Global(), bitmap.New(), nil, false)
	assert.ErrorIs(t, err, ErrCorrupted)

	_, err = RestoreIndex(1, "product", Global(), bitmap.New(), []Registration{{Kind: KindFilter, Keys: bitmap.New()}}, false)
	assert.ErrorIs(t, err, ErrCorrupted)

	_, err = RestoreIndex(1, "product", Discriminator{}, bitmap.New(), nil, false)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestIndexCloneIsIndependent(t *testing.T) {
	x := NewIndex(1, "product", Global())
	x.Register(KindUnique, 1)
	c := x.Clone()
	c.Register(KindUnique, 2)
	c.AddRecord(3)

	assert.Equal(t, []int32{1}, x.Keys(KindUnique))
	assert.True(t, x.AllRecords().IsEmpty())
	assert.False(t, c.Equals(x))
}

func TestCatalogScopes(t *testing.T) {
	c := NewCatalog()
	a := c.Allocate("product", Global())
	b := c.Allocate("product", Referenced("brand", 1))
	assert.Equal(t, int32(1), a.ScopeID)
	assert.Equal(t, int32(2), b.ScopeID)

	found, ok := c.Find("product", Referenced("brand", 1))
	require.True(t, ok)
	assert.Equal(t, b, found)

	assert.True(t, c.Drop(1))
	assert.False(t, c.Drop(1))
	next := c.Allocate("category", Global())
	assert.Equal(t, int32(3), next.ScopeID)
	assert.Equal(t, []ScopeRef{b, next}, c.Scopes())

	c.AddUniqueKey(9)
	r, err := RestoreCatalog(bitmap.New(c.UniqueKeys()...), c.Scopes(), c.LastScope())
	require.NoError(t, err)
	assert.True(t, r.Equals(c))

	_, err = RestoreCatalog(bitmap.New(), []ScopeRef{{ScopeID: 5}}, 3)
	assert.ErrorIs(t, err, ErrCorrupted)
}
