package cardinality

import (
	"testing"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeIndexCounting(t *testing.T) {
	x := NewAttributeIndex(value.TypeString)

	first, err := x.Increment("red", 1)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = x.Increment("red", 1)
	require.NoError(t, err)
	assert.False(t, first)

	_, err = x.Increment("red", 2)
	require.NoError(t, err)

	assert.Equal(t, 3, x.Cardinality("red"))
	assert.Equal(t, 2, x.CardinalityOf("red", 1))
	assert.Equal(t, []int32{1, 2}, x.Records("red").ToArray())

	removed, err := x.Decrement("red", 1)
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = x.Decrement("red", 1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []int32{2}, x.Records("red").ToArray())

	_, err = x.Decrement("red", 1)
	require.ErrorIs(t, err, ErrNotCounted)

	removed, err = x.Decrement("red", 2)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, x.IsEmpty())
	assert.Equal(t, 0, x.Cardinality("red"))
}

func TestAttributeIndexTypeMismatch(t *testing.T) {
	x := NewAttributeIndex(value.TypeString)
	_, err := x.Increment(int64(1), 1)
	require.ErrorIs(t, err, value.ErrTypeMismatch)
	assert.True(t, x.IsEmpty())
}

func TestAttributeIndexRestore(t *testing.T) {
	x := NewAttributeIndex(value.TypeInt)
	for _, rec := range []int32{3, 1, 3} {
		_, err := x.Increment(int64(7), rec)
		require.NoError(t, err)
	}
	_, err := x.Increment(int64(2), 5)
	require.NoError(t, err)

	entries := x.Entries()
	assert.Equal(t, []AttributeEntry{
		{Value: int64(2), Record: 5, Count: 1},
		{Value: int64(7), Record: 1, Count: 1},
		{Value: int64(7), Record: 3, Count: 2},
	}, entries)

	restored, err := RestoreAttributeIndex(value.TypeInt, entries)
	require.NoError(t, err)
	assert.True(t, x.Equals(restored))
	assert.Equal(t, 3, restored.Cardinality(int64(7)))

	_, err = RestoreAttributeIndex(value.TypeInt, []AttributeEntry{{Value: int64(1), Record: 1, Count: 0}})
	require.ErrorIs(t, err, ErrInconsistent)
}

func TestReferenceTypeIndex(t *testing.T) {
	x := NewReferenceTypeIndex()
	for _, tt := range []struct {
		record int32
		first  bool
	}{{4, true}, {4, false}, {2, true}} {
		first, err := x.Increment(tt.record)
		require.NoError(t, err)
		assert.Equal(t, tt.first, first)
	}
	_, err := x.Increment(-1)
	require.ErrorIs(t, err, bitmap.ErrNegativeID)
	assert.Equal(t, 2, x.Count(4))
	assert.Equal(t, []int32{2, 4}, x.AllRecords().ToArray())
	assert.Equal(t, []RecordCount{{Record: 2, Count: 1}, {Record: 4, Count: 2}}, x.Entries())

	restored, err := RestoreReferenceTypeIndex(x.Entries())
	require.NoError(t, err)
	assert.True(t, x.Equals(restored))

	gone, err := x.Decrement(4)
	require.NoError(t, err)
	assert.False(t, gone)
	gone, err = x.Decrement(4)
	require.NoError(t, err)
	assert.True(t, gone)
	assert.Equal(t, []int32{2}, x.AllRecords().ToArray())

	_, err = x.Decrement(4)
	require.ErrorIs(t, err, ErrNotCounted)
}

func TestCloneIsolation(t *testing.T) {
	x := NewAttributeIndex(value.TypeInt)
	_, err := x.Increment(int64(1), 1)
	require.NoError(t, err)

	c := x.Clone()
	_, err = c.Increment(int64(1), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, x.Cardinality(int64(1)))
	assert.Equal(t, 2, c.Cardinality(int64(1)))

	r := NewReferenceTypeIndex()
	r.Increment(1)
	rc := r.Clone()
	rc.Increment(2)
	assert.Equal(t, []int32{1}, r.AllRecords().ToArray())
}
