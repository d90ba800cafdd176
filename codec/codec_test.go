package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/index/cardinality"
	"github.com/hupe1980/idxstore/index/chain"
	"github.com/hupe1980/idxstore/index/entity"
	"github.com/hupe1980/idxstore/index/facet"
	"github.com/hupe1980/idxstore/index/hierarchy"
	"github.com/hupe1980/idxstore/index/price"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, reg *Registry, p storagepart.Part) storagepart.Part {
	t.Helper()
	version, data, err := reg.Encode(p, nil)
	require.NoError(t, err)
	cur, ok := reg.CurrentVersion(p.Type())
	require.True(t, ok)
	assert.Equal(t, cur, version)

	got, err := reg.Decode(p.Type(), version, data, &Context{Keys: keys.NewCompressor()})
	require.NoError(t, err)
	assert.Equal(t, p.PK(), got.PK())
	assert.Equal(t, p.ScopeID(), got.ScopeID())
	assert.Equal(t, p.KeyID(), got.KeyID())
	return got
}

func TestRoundTripFilter(t *testing.T) {
	reg := Default()

	f := attribute.NewFilterIndex(value.TypeInt)
	for rec, v := range []int64{1, 5, 5, 9} {
		require.NoError(t, f.AddRecord(v, int32(rec+1)))
	}
	got := roundTrip(t, reg, storagepart.NewFilter(2, 7, f)).(*storagepart.Filter)
	assert.True(t, got.Index.Equals(f))
	assert.Equal(t, []int32{2, 3}, got.Index.RecordsEqual(int64(5)).ToArray())
	assert.Equal(t, []int32{2, 3}, got.Index.RecordsBetween(int64(2), int64(8)).ToArray())

	rf := attribute.NewFilterIndex(value.TypeRange)
	require.NoError(t, rf.AddRecord(value.Range{From: 1, To: 10}, 1))
	require.NoError(t, rf.AddRecord(value.Range{From: 5, To: 6}, 2))
	got = roundTrip(t, reg, storagepart.NewFilter(2, 8, rf)).(*storagepart.Filter)
	assert.True(t, got.Index.Equals(rf))
	overlap, err := got.Index.RecordsOverlapping(6, 8)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, overlap.ToArray())
}

func TestRoundTripSort(t *testing.T) {
	s, err := attribute.NewSortIndex(
		attribute.SortAxis{Type: value.TypeString},
		attribute.SortAxis{Type: value.TypeDate, Direction: attribute.Descending, Nulls: attribute.NullsFirst},
	)
	require.NoError(t, err)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(value.Tuple{"b", day}, 1))
	require.NoError(t, s.Insert(value.Tuple{"a", nil}, 2))
	require.NoError(t, s.Insert(value.Tuple{"a", day}, 3))
	require.NoError(t, s.Insert(value.Tuple{"b", day}, 4))

	got := roundTrip(t, Default(), storagepart.NewSort(1, 3, s)).(*storagepart.Sort)
	assert.True(t, got.Index.Equals(s))
	assert.Equal(t, s.SortedRecords(), got.Index.SortedRecords())
	assert.Equal(t, 2, got.Index.Cardinality(value.Tuple{"b", day}))
}

func TestRoundTripOtherParts(t *testing.T) {
	reg := Default()

	u := attribute.NewUniqueIndex("code", value.TypeString)
	require.NoError(t, u.Insert(1, "a"))
	require.NoError(t, u.Insert(2, "b"))
	gotU := roundTrip(t, reg, storagepart.NewUnique(1, 4, u)).(*storagepart.Unique)
	assert.True(t, gotU.Index.Equals(u))
	assert.Equal(t, "code", gotU.Index.Name())

	g := attribute.NewGlobalUniqueIndex("url", value.TypeString)
	require.NoError(t, g.Register(1, 10, "en", "/a"))
	require.NoError(t, g.Register(2, 11, "", "/b"))
	gotG := roundTrip(t, reg, storagepart.NewGlobalUnique(5, g)).(*storagepart.GlobalUnique)
	assert.True(t, gotG.Index.Equals(g))

	c := chain.New()
	require.NoError(t, c.InsertAfter(4, chain.Head))
	require.NoError(t, c.InsertAfter(2, 4))
	require.NoError(t, c.InsertAfter(9, chain.Head))
	gotC := roundTrip(t, reg, storagepart.NewChain(1, 6, c)).(*storagepart.Chain)
	assert.True(t, gotC.Index.Equals(c))
	assert.Equal(t, c.Chains(), gotC.Index.Chains())

	ac := cardinality.NewAttributeIndex(value.TypeInt)
	_, err := ac.Increment(int64(3), 1)
	require.NoError(t, err)
	_, err = ac.Increment(int64(3), 1)
	require.NoError(t, err)
	gotAC := roundTrip(t, reg, storagepart.NewAttributeCardinality(1, 2, ac)).(*storagepart.AttributeCardinality)
	assert.True(t, gotAC.Index.Equals(ac))

	rc := cardinality.NewReferenceTypeIndex()
	rc.Increment(3)
	rc.Increment(3)
	rc.Increment(4)
	gotRC := roundTrip(t, reg, storagepart.NewReferenceCardinality(1, 9, rc)).(*storagepart.ReferenceCardinality)
	assert.True(t, gotRC.Index.Equals(rc))

	h := hierarchy.New()
	require.NoError(t, h.SetParent(1, nil, 0))
	parent := int32(1)
	require.NoError(t, h.SetParent(2, &parent, 0))
	missing := int32(40)
	require.NoError(t, h.SetParent(3, &missing, 0))
	gotH := roundTrip(t, reg, storagepart.NewHierarchy(1, h)).(*storagepart.Hierarchy)
	assert.True(t, gotH.Index.Equals(h))
	assert.Equal(t, []int32{3}, gotH.Index.Orphans())

	fi := facet.New()
	group := int32(2)
	fi.Add(nil, 1, 10)
	fi.Add(&group, 1, 11)
	gotF := roundTrip(t, reg, storagepart.NewFacet(1, 3, fi)).(*storagepart.Facet)
	assert.True(t, gotF.Index.Equals(fi))

	ei := entity.NewIndex(1, "product", entity.Referenced("brand", 4))
	ei.AddRecord(10)
	ei.Register(entity.KindFilter, 7)
	ei.SetHierarchy(true)
	gotE := roundTrip(t, reg, storagepart.NewEntityIndex(ei)).(*storagepart.EntityIndex)
	assert.True(t, gotE.Index.Equals(ei))

	cat := entity.NewCatalog()
	cat.Allocate("product", entity.Global())
	cat.AddUniqueKey(5)
	gotCat := roundTrip(t, reg, storagepart.NewCatalogIndex(cat)).(*storagepart.CatalogIndex)
	assert.True(t, gotCat.Catalog.Equals(cat))

	dict := storagepart.NewKeyDictionary([]keys.Entry{
		{ID: 1, Key: keys.AttributeIndexKey{AttributeName: "code"}},
		{ID: 2, Key: keys.PriceIndexKey{PriceList: "basic", Currency: "EUR"}},
	})
	gotD := roundTrip(t, reg, dict).(*storagepart.KeyDictionary)
	assert.Equal(t, dict.Entries, gotD.Entries)
}

func TestRoundTripPrice(t *testing.T) {
	reg := Default()

	x := price.New()
	require.NoError(t, x.Add(price.Record{InternalID: 1, PriceID: 10, EntityPK: 100, WithoutTax: 820, WithTax: 1000, Validity: price.Always()}))
	require.NoError(t, x.Add(price.Record{InternalID: 2, PriceID: 11, EntityPK: 100, WithoutTax: 410, WithTax: 500, Validity: price.Validity{From: -5, To: 20}}))
	require.NoError(t, x.Add(price.Record{InternalID: 3, PriceID: 10, EntityPK: 200, InnerRecordID: 4, WithoutTax: 82, WithTax: 100, Validity: price.Always()}))

	got := roundTrip(t, reg, storagepart.NewPrice(1, 6, x)).(*storagepart.Price)
	assert.True(t, got.Index.Equals(x))
	assert.Equal(t, []int32{1, 3}, got.Index.ValidAt(21).ToArray())
	assert.Equal(t, []int32{2, 3}, got.Index.Between(0, 500).ToArray())
}

func TestPriceRejectsDuplicateRecords(t *testing.T) {
	w := wire.NewWriter(32)
	writeHeader(w, storagepart.NewPrice(1, 1, price.New()))
	w.WriteCount(2)
	for _, id := range []int32{1, 2} {
		w.WriteVarint(id)
		w.WriteVarint(10) // same price id
		w.WriteVarint(100)
		w.WriteVarint(0)
		w.WriteVarlong(5)
		w.WriteVarlong(6)
		w.WriteBool(false)
	}
	_, err := Default().Decode(storagepart.TypePrice, Version1, w.Bytes(), nil)
	var ce *CorruptionError
	assert.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, price.ErrDuplicatePrice)
}

func TestDecodeUnknownVersion(t *testing.T) {
	_, err := Default().Decode(storagepart.TypeFilter, 9, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestLegacyCodecCannotEncode(t *testing.T) {
	reg := Default()
	var legacy Codec
	for _, c := range reg.Codecs() {
		if c.Legacy() {
			legacy = c
			break
		}
	}
	require.NotNil(t, legacy)
	_, err := legacy.Encode(storagepart.NewKeyDictionary(nil), nil)
	assert.ErrorIs(t, err, ErrWriteForbidden)
	assert.True(t, reg.IsLegacy(storagepart.TypeFilter, Version1))
	assert.False(t, reg.IsLegacy(storagepart.TypeFilter, Version2))
}

func TestRegisterRejectsConflicts(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Current(storagepart.TypeFilter, Version2, encodeFilter, decodeFilter)))
	assert.ErrorIs(t, reg.Register(Current(storagepart.TypeFilter, Version2, encodeFilter, decodeFilter)), ErrInvalidRegistration)
	assert.ErrorIs(t, reg.Register(Current(storagepart.TypeFilter, 3, encodeFilter, decodeFilter)), ErrInvalidRegistration)
	assert.ErrorIs(t, reg.Register(Legacy(storagepart.TypeFilter, 3, decodeFilterV1)), ErrInvalidRegistration)
	require.NoError(t, reg.Register(Legacy(storagepart.TypeFilter, Version1, decodeFilterV1)))

	_, _, err := reg.Encode(storagepart.NewHierarchy(1, hierarchy.New()), nil)
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestEncodeRejectsMismatchedPart(t *testing.T) {
	c := Current(storagepart.TypeFilter, Version2, encodeFilter, decodeFilter)
	_, err := c.Encode(storagepart.NewHierarchy(1, hierarchy.New()), nil)
	assert.ErrorIs(t, err, ErrPartMismatch)
}

func TestCorruptionIsReported(t *testing.T) {
	reg := Default()
	f := attribute.NewFilterIndex(value.TypeString)
	require.NoError(t, f.AddRecord("x", 1))
	version, data, err := reg.Encode(storagepart.NewFilter(1, 1, f), nil)
	require.NoError(t, err)

	cases := map[string][]byte{
		"truncated": data[:len(data)-2],
		"trailing":  append(append([]byte{}, data...), 0),
		"empty":     nil,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Decode(storagepart.TypeFilter, version, in, nil)
			var ce *CorruptionError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, storagepart.TypeFilter, ce.Type)
			assert.ErrorIs(t, err, wire.ErrCorrupted)
		})
	}
}

func TestHeaderPKMismatchIsCorruption(t *testing.T) {
	w := wire.NewWriter(16)
	w.WriteVarint(1)
	w.WriteVarlong(12345)
	w.WriteVarint(2)
	w.WriteCount(0)
	_, err := Default().Decode(storagepart.TypeFacet, Version1, w.Bytes(), nil)
	var ce *CorruptionError
	assert.ErrorAs(t, err, &ce)
}

func TestHierarchyVerifiesStoredState(t *testing.T) {
	w := wire.NewWriter(32)
	writeHeader(w, storagepart.NewHierarchy(1, hierarchy.New()))
	writeNodes(w, []hierarchy.Node{{ID: 1, Parent: hierarchy.NoParent}, {ID: 2, Parent: 1}})
	w.WriteInt32s([]int32{1})
	w.WriteCount(1)
	w.WriteVarint(1)
	w.WriteInt32s([]int32{2})
	w.WriteInt32s([]int32{2}) // 2 is not an orphan
	_, err := Default().Decode(storagepart.TypeHierarchy, Version2, w.Bytes(), nil)
	assert.ErrorIs(t, err, hierarchy.ErrCorrupted)
}

func TestChainVerifiesStoredChains(t *testing.T) {
	w := wire.NewWriter(32)
	writeHeader(w, storagepart.NewChain(1, 1, chain.New()))
	w.WriteCount(2)
	for _, e := range []chain.Element{
		{Record: 1, Head: 1, Predecessor: chain.Head, State: chain.StateHead},
		{Record: 2, Head: 1, Predecessor: 1, State: chain.StateTail},
	} {
		w.WriteVarint(e.Record)
		w.WriteVarint(e.Head)
		w.WriteVarint(e.Predecessor)
		_ = w.WriteByte(byte(e.State))
	}
	writeSequences(w, [][]int32{{2, 1}})
	_, err := Default().Decode(storagepart.TypeChain, Version2, w.Bytes(), nil)
	assert.ErrorIs(t, err, chain.ErrCorrupted)
}

func TestFilterRejectsForgedRangeIndex(t *testing.T) {
	f := attribute.NewFilterIndex(value.TypeRange)
	require.NoError(t, f.AddRecord(value.Range{From: 1, To: 2}, 1))
	w := wire.NewWriter(32)
	writeHeader(w, storagepart.NewFilter(1, 1, f))
	value.WriteType(w, value.TypeRange)
	writeValuePoints(w, value.TypeRange, f.Points())
	w.WriteBool(true)
	w.WriteCount(1)
	w.WriteVarlong(1)
	bitmap.Write(w, bitmap.New(1))
	bitmap.Write(w, bitmap.New(1))
	_, err := Default().Decode(storagepart.TypeFilter, Version2, w.Bytes(), nil)
	var ce *CorruptionError
	assert.ErrorAs(t, err, &ce)
}
