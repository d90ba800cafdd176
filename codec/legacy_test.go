package codec

import (
	"testing"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/index/chain"
	"github.com/hupe1980/idxstore/index/hierarchy"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The writers below produce the version 1 layouts. They exist only to
// build fixtures; the library never writes these formats.

func legacyFilterFixture(scope int32, k keys.AttributeKey, t value.Type, points []attribute.ValuePoint) []byte {
	w := wire.NewWriter(64)
	w.WriteVarint(scope)
	w.WriteVarlong(int64(scope)<<32 | 77)
	w.WriteString(k.Name)
	w.WriteString(k.Locale)
	value.WriteType(w, t)
	writeValuePoints(w, t, points)
	return w.Bytes()
}

func legacySortFixture(scope, keyID int32, t value.Type, records []int32, values []any) []byte {
	w := wire.NewWriter(64)
	writeHeader(w, storagepart.NewSort(scope, keyID, nil))
	value.WriteType(w, t)
	w.WriteInt32s(records)
	for _, v := range values {
		value.Write(w, t, v)
	}
	return w.Bytes()
}

func legacyChainFixture(scope, keyID int32, seqs [][]int32) []byte {
	w := wire.NewWriter(64)
	writeHeader(w, storagepart.NewChain(scope, keyID, nil))
	writeSequences(w, seqs)
	return w.Bytes()
}

func legacyHierarchyFixture(scope int32, nodes []hierarchy.Node) []byte {
	w := wire.NewWriter(64)
	writeHeader(w, storagepart.NewHierarchy(scope, nil))
	writeNodes(w, nodes)
	return w.Bytes()
}

func legacyDictionaryFixture(entries []keys.Entry) []byte {
	w := wire.NewWriter(64)
	w.WriteCount(len(entries))
	for _, e := range entries {
		w.WriteVarint(e.ID)
		keys.Write(w, e.Key)
	}
	return w.Bytes()
}

func TestLegacyFilterUpgradesKey(t *testing.T) {
	ctx := &Context{Keys: keys.NewCompressor()}
	ctx.Keys.ID(keys.ReferenceNameKey{Name: "brand"})

	data := legacyFilterFixture(3, keys.AttributeKey{Name: "code", Locale: "en"}, value.TypeString, []attribute.ValuePoint{
		{Value: "a", Records: bitmap.New(1, 4)},
		{Value: "b", Records: bitmap.New(2)},
	})
	p, err := Default().Decode(storagepart.TypeFilter, Version1, data, ctx)
	require.NoError(t, err)

	want := attribute.NewFilterIndex(value.TypeString)
	require.NoError(t, want.AddRecord("a", 1))
	require.NoError(t, want.AddRecord("b", 2))
	require.NoError(t, want.AddRecord("a", 4))

	f := p.(*storagepart.Filter)
	assert.True(t, f.Index.Equals(want))
	assert.Equal(t, int32(3), f.ScopeID())
	id, ok := ctx.Keys.IDIfExists(keys.AttributeIndexKey{AttributeName: "code", Locale: "en"})
	require.True(t, ok)
	assert.Equal(t, id, f.KeyID())
	assert.Equal(t, storagepart.ComputePK(3, id), f.PK())

	version, _, err := Default().Encode(f, nil)
	require.NoError(t, err)
	assert.Equal(t, Version2, version)
}

func TestLegacyFilterNeedsCompressor(t *testing.T) {
	data := legacyFilterFixture(1, keys.AttributeKey{Name: "code"}, value.TypeInt, nil)
	_, err := Default().Decode(storagepart.TypeFilter, Version1, data, nil)
	assert.ErrorIs(t, err, errNoKeys)
}

func TestLegacyFilterRecomputesRanges(t *testing.T) {
	data := legacyFilterFixture(1, keys.AttributeKey{Name: "validity"}, value.TypeRange, []attribute.ValuePoint{
		{Value: value.Range{From: 1, To: 5}, Records: bitmap.New(1)},
		{Value: value.Range{From: 3, To: 9}, Records: bitmap.New(2)},
	})
	p, err := Default().Decode(storagepart.TypeFilter, Version1, data, &Context{Keys: keys.NewCompressor()})
	require.NoError(t, err)
	got, err := p.(*storagepart.Filter).Index.RecordsValidIn(4)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, got.ToArray())
}

func TestLegacySortMatchesDirectMutation(t *testing.T) {
	data := legacySortFixture(1, 5, value.TypeInt, []int32{3, 1, 2}, []any{int64(1), int64(4), int64(4)})
	p, err := Default().Decode(storagepart.TypeSort, Version1, data, nil)
	require.NoError(t, err)

	want, err := attribute.NewSortIndex(attribute.SortAxis{Type: value.TypeInt})
	require.NoError(t, err)
	require.NoError(t, want.Insert(int64(4), 2))
	require.NoError(t, want.Insert(int64(1), 3))
	require.NoError(t, want.Insert(int64(4), 1))

	s := p.(*storagepart.Sort)
	assert.True(t, s.Index.Equals(want))
	assert.Equal(t, 2, s.Index.Cardinality(int64(4)))
}

func TestLegacySortRejectsUnorderedRecords(t *testing.T) {
	data := legacySortFixture(1, 5, value.TypeInt, []int32{1, 2}, []any{int64(9), int64(1)})
	_, err := Default().Decode(storagepart.TypeSort, Version1, data, nil)
	assert.ErrorIs(t, err, attribute.ErrInconsistent)
}

func TestLegacyChainMatchesDirectMutation(t *testing.T) {
	data := legacyChainFixture(2, 4, [][]int32{{5, 3}, {8, 1, 2}})
	p, err := Default().Decode(storagepart.TypeChain, Version1, data, nil)
	require.NoError(t, err)

	want := chain.New()
	require.NoError(t, want.InsertAfter(8, chain.Head))
	require.NoError(t, want.InsertAfter(2, 8))
	require.NoError(t, want.InsertAfter(1, 8))
	require.NoError(t, want.InsertAfter(5, chain.Head))
	require.NoError(t, want.InsertAfter(3, 5))

	c := p.(*storagepart.Chain)
	assert.True(t, c.Index.Equals(want))
	assert.Equal(t, [][]int32{{8, 1, 2}, {5, 3}}, c.Index.Chains())
}

func TestLegacyHierarchyMatchesDirectMutation(t *testing.T) {
	nodes := []hierarchy.Node{
		{ID: 1, Parent: hierarchy.NoParent},
		{ID: 2, Parent: 1, Order: 2},
		{ID: 3, Parent: 1, Order: 1},
		{ID: 4, Parent: 7},
	}
	p, err := Default().Decode(storagepart.TypeHierarchy, Version1, legacyHierarchyFixture(1, nodes), nil)
	require.NoError(t, err)

	want := hierarchy.New()
	one, seven := int32(1), int32(7)
	require.NoError(t, want.SetParent(4, &seven, 0))
	require.NoError(t, want.SetParent(2, &one, 2))
	require.NoError(t, want.SetParent(1, nil, 0))
	require.NoError(t, want.SetParent(3, &one, 1))

	h := p.(*storagepart.Hierarchy)
	assert.True(t, h.Index.Equals(want))
	assert.Equal(t, []int32{3, 2}, h.Index.Children(1))
	assert.Equal(t, []int32{4}, h.Index.Orphans())
}

func TestLegacyDictionaryUpgradesKeys(t *testing.T) {
	data := legacyDictionaryFixture([]keys.Entry{
		{ID: 1, Key: keys.AttributeKey{Name: "code"}},
		{ID: 2, Key: keys.ReferenceNameKey{Name: "brand"}},
	})
	p, err := Default().Decode(storagepart.TypeKeyDictionary, Version1, data, nil)
	require.NoError(t, err)

	d := p.(*storagepart.KeyDictionary)
	assert.Equal(t, []keys.Entry{
		{ID: 1, Key: keys.AttributeIndexKey{AttributeName: "code"}},
		{ID: 2, Key: keys.ReferenceNameKey{Name: "brand"}},
	}, d.Entries)
	assert.Equal(t, storagepart.ComputePK(0, 0), d.PK())
}

func TestCurrentDictionaryRejectsLegacyKeys(t *testing.T) {
	w := wire.NewWriter(32)
	writeHeader(w, storagepart.NewKeyDictionary(nil))
	w.WriteCount(1)
	w.WriteVarint(1)
	keys.Write(w, keys.AttributeKey{Name: "code"})
	_, err := Default().Decode(storagepart.TypeKeyDictionary, Version2, w.Bytes(), nil)
	assert.ErrorIs(t, err, wire.ErrCorrupted)
}
