package keys

import (
	"sync"
	"testing"

	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorAssignsMonotonicIDs(t *testing.T) {
	c := NewCompressor()

	a := c.ID(AttributeIndexKey{AttributeName: "code"})
	b := c.ID(PriceIndexKey{PriceList: "basic", Currency: "EUR"})
	again := c.ID(AttributeIndexKey{AttributeName: "code"})

	assert.Equal(t, int32(1), a)
	assert.Equal(t, int32(2), b)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, c.Len())
}

func TestCompressorLookup(t *testing.T) {
	c := NewCompressor()
	key := ReferenceNameKey{Name: "brand"}
	id := c.ID(key)

	got, err := c.KeyForID(id)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = c.KeyForID(99)
	require.ErrorIs(t, err, ErrUnknownKeyID)

	_, ok := c.IDIfExists(ReferenceNameKey{Name: "other"})
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCompressorDirtyAndHook(t *testing.T) {
	var seen []Entry
	c := NewCompressor(WithOnNewKey(func(k Key, id int32) {
		seen = append(seen, Entry{ID: id, Key: k})
	}))
	assert.False(t, c.Dirty())

	c.ID(EntityTypeKey{EntityType: "product"})
	assert.True(t, c.Dirty())
	c.MarkClean()

	c.ID(EntityTypeKey{EntityType: "product"})
	assert.False(t, c.Dirty())
	assert.Equal(t, []Entry{{ID: 1, Key: EntityTypeKey{EntityType: "product"}}}, seen)
}

func TestCompressorConcurrentAssignment(t *testing.T) {
	c := NewCompressor()
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	results := make([][]int32, 16)
	for g := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, n := range names {
				results[g] = append(results[g], c.ID(AttributeIndexKey{AttributeName: n}))
			}
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	entries := c.Entries()
	require.Len(t, entries, len(names))
	for i, e := range entries {
		assert.Equal(t, int32(i+1), e.ID)
	}
}

func TestRestore(t *testing.T) {
	c := NewCompressor()
	c.ID(AttributeIndexKey{AttributeName: "name", Locale: "en"})
	c.ID(ReferenceNameKey{Name: "tags"})

	restored, err := Restore(c.Entries())
	require.NoError(t, err)
	assert.Equal(t, c.Entries(), restored.Entries())
	assert.False(t, restored.Dirty())
	assert.Equal(t, int32(3), restored.ID(EntityTypeKey{EntityType: "x"}))
}

func TestRestoreRejectsNonBijective(t *testing.T) {
	_, err := Restore([]Entry{
		{ID: 1, Key: ReferenceNameKey{Name: "a"}},
		{ID: 2, Key: ReferenceNameKey{Name: "a"}},
	})
	require.ErrorIs(t, err, ErrInvalidDictionary)

	_, err = Restore([]Entry{
		{ID: 1, Key: ReferenceNameKey{Name: "a"}},
		{ID: 1, Key: ReferenceNameKey{Name: "b"}},
	})
	require.ErrorIs(t, err, ErrInvalidDictionary)

	_, err = Restore([]Entry{{ID: 0, Key: ReferenceNameKey{Name: "a"}}})
	require.ErrorIs(t, err, ErrInvalidDictionary)
}

func TestKeyWireRoundTrip(t *testing.T) {
	all := []Key{
		AttributeKey{Name: "code", Locale: "cs"},
		AttributeIndexKey{ReferenceName: "brand", AttributeName: "order"},
		PriceIndexKey{PriceList: "vip", Currency: "CZK", InnerRecordHandling: InnerRecordSum},
		ReferenceNameKey{Name: "tags"},
		EntityTypeKey{EntityType: "product"},
	}

	w := wire.NewWriter(64)
	for _, k := range all {
		Write(w, k)
	}
	require.NoError(t, w.Err())

	r := wire.NewReader(w.Bytes())
	for _, k := range all {
		assert.Equal(t, k, Read(r))
	}
	r.ExpectEnd()
	require.NoError(t, r.Err())
}

func TestKeyReadUnknownKind(t *testing.T) {
	r := wire.NewReader([]byte{0x42})
	assert.Nil(t, Read(r))
	require.ErrorIs(t, r.Err(), wire.ErrCorrupted)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "brand.order:en", AttributeIndexKey{ReferenceName: "brand", AttributeName: "order", Locale: "en"}.String())
	assert.Equal(t, "code", AttributeKey{Name: "code"}.String())
	assert.Equal(t, "basic/EUR/NONE", PriceIndexKey{PriceList: "basic", Currency: "EUR"}.String())
}
