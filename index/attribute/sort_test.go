package attribute

import (
	"math"
	"slices"
	"testing"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/value"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortIndexSingleAxis(t *testing.T) {
	s, err := NewSortIndex(SortAxis{Type: value.TypeString})
	require.NoError(t, err)

	require.NoError(t, s.Insert("c", 1))
	require.NoError(t, s.Insert("a", 2))
	require.NoError(t, s.Insert("b", 3))
	require.NoError(t, s.Insert("a", 4))

	assert.Equal(t, []int32{2, 4, 3, 1}, s.SortedRecords())
	assert.Equal(t, []int32{4, 3}, s.SortedRange(1, 2))
	assert.Equal(t, []int32{1}, s.SortedRange(3, 10))
	assert.Empty(t, s.SortedRange(4, 10))
	assert.Equal(t, []int32{1, 3}, s.SortedRangeReversed(0, 2))
	assert.Equal(t, 2, s.Cardinality("a"))

	eq, err := s.RecordsEqual("a")
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 4}, eq.ToArray())

	v, ok := s.ValueOf(3)
	require.True(t, ok)
	assert.Equal(t, value.Tuple{"b"}, v)

	assert.Equal(t, []ValueCount{
		{Value: value.Tuple{"a"}, Count: 2},
		{Value: value.Tuple{"b"}, Count: 1},
		{Value: value.Tuple{"c"}, Count: 1},
	}, s.DistinctValues())
}

func TestSortIndexRemovePrunesCardinality(t *testing.T) {
	s, err := NewSortIndex(SortAxis{Type: value.TypeInt})
	require.NoError(t, err)
	require.NoError(t, s.Insert(int64(1), 1))
	require.NoError(t, s.Insert(int64(1), 2))

	require.NoError(t, s.Remove(int64(1), 1))
	assert.Equal(t, 1, s.Cardinality(int64(1)))
	require.NoError(t, s.Remove(int64(1), 2))
	assert.Equal(t, 0, s.Cardinality(int64(1)))
	assert.Empty(t, s.DistinctValues())
	assert.True(t, s.IsEmpty())

	err = s.Remove(int64(1), 2)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSortIndexRejectsDuplicatesAndMismatches(t *testing.T) {
	s, err := NewSortIndex(SortAxis{Type: value.TypeInt})
	require.NoError(t, err)
	require.NoError(t, s.Insert(int64(1), 1))

	require.ErrorIs(t, s.Insert(int64(2), 1), ErrDuplicateRecord)
	require.ErrorIs(t, s.Insert("x", 2), value.ErrTypeMismatch)
	assert.Equal(t, 1, s.Len())

	require.ErrorIs(t, s.Insert(int64(2), -1), bitmap.ErrNegativeID)
	assert.Equal(t, 1, s.Len())

	_, err = NewSortIndex()
	require.Error(t, err)
}

func TestSortIndexNegativeZero(t *testing.T) {
	s, err := NewSortIndex(SortAxis{Type: value.TypeFloat})
	require.NoError(t, err)
	require.NoError(t, s.Insert(0.0, 1))
	require.NoError(t, s.Insert(math.Copysign(0, -1), 2))

	assert.Equal(t, 2, s.Cardinality(0.0))
	assert.Equal(t, 2, s.Cardinality(math.Copysign(0, -1)))
	assert.Equal(t, []ValueCount{{Value: value.Tuple{0.0}, Count: 2}}, s.DistinctValues())

	require.NoError(t, s.Remove(0.0, 2))
	assert.Equal(t, 1, s.Cardinality(0.0))
	require.ErrorIs(t, s.Insert(math.NaN(), 3), value.ErrTypeMismatch)
}

func TestSortIndexCompositeAxes(t *testing.T) {
	s, err := NewSortIndex(
		SortAxis{Type: value.TypeString, Direction: Ascending, Nulls: NullsFirst},
		SortAxis{Type: value.TypeInt, Direction: Descending, Nulls: NullsLast},
	)
	require.NoError(t, err)

	require.NoError(t, s.Insert(value.Tuple{"b", int64(1)}, 1))
	require.NoError(t, s.Insert(value.Tuple{"a", int64(1)}, 2))
	require.NoError(t, s.Insert(value.Tuple{"a", int64(5)}, 3))
	require.NoError(t, s.Insert(value.Tuple{nil, int64(0)}, 4))
	require.NoError(t, s.Insert(value.Tuple{"a", nil}, 5))

	assert.Equal(t, []int32{4, 3, 2, 5, 1}, s.SortedRecords())

	require.ErrorIs(t, s.Insert("a", 6), value.ErrTypeMismatch)
	require.ErrorIs(t, s.Insert(value.Tuple{"a"}, 6), value.ErrTypeMismatch)
}

func TestRestoreSortIndex(t *testing.T) {
	axes := []SortAxis{{Type: value.TypeInt}}
	s, err := NewSortIndex(axes...)
	require.NoError(t, err)
	for i, v := range []int64{3, 1, 2, 1} {
		require.NoError(t, s.Insert(v, int32(i+1)))
	}

	restored, err := RestoreSortIndex(axes, s.SortedRecords(), s.SortedValues(), s.DistinctValues())
	require.NoError(t, err)
	assert.True(t, s.Equals(restored))

	recomputed, err := RestoreSortIndex(axes, s.SortedRecords(), s.SortedValues(), nil)
	require.NoError(t, err)
	assert.Equal(t, s.DistinctValues(), recomputed.DistinctValues())

	_, err = RestoreSortIndex(axes, []int32{1}, nil, nil)
	require.ErrorIs(t, err, ErrInconsistent)

	_, err = RestoreSortIndex(axes, []int32{1, 2}, []value.Tuple{{int64(5)}, {int64(1)}}, nil)
	require.ErrorIs(t, err, ErrInconsistent)

	_, err = RestoreSortIndex(axes, s.SortedRecords(), s.SortedValues(), []ValueCount{{Value: value.Tuple{int64(1)}, Count: 7}})
	require.ErrorIs(t, err, ErrInconsistent)
}

func TestSortIndexClone(t *testing.T) {
	s, err := NewSortIndex(SortAxis{Type: value.TypeInt})
	require.NoError(t, err)
	require.NoError(t, s.Insert(int64(1), 1))

	c := s.Clone()
	require.NoError(t, c.Insert(int64(1), 2))
	assert.Equal(t, 1, s.Cardinality(int64(1)))
	assert.Equal(t, 2, c.Cardinality(int64(1)))
}

func TestProperty_SortIndexInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("records stay sorted and cardinalities stay positive", prop.ForAll(
		func(ops []int) bool {
			s, err := NewSortIndex(SortAxis{Type: value.TypeInt, Direction: Descending})
			if err != nil {
				return false
			}
			present := map[int32]int64{}
			for _, op := range ops {
				rec := int32(op % 20)
				v := int64(op % 5)
				if old, ok := present[rec]; ok {
					if s.Remove(old, rec) != nil {
						return false
					}
					delete(present, rec)
					continue
				}
				if s.Insert(v, rec) != nil {
					return false
				}
				present[rec] = v
			}
			records := s.SortedRecords()
			values := s.SortedValues()
			if len(records) != len(values) || len(records) != len(present) {
				return false
			}
			for i := 1; i < len(records); i++ {
				a, b := values[i-1][0].(int64), values[i][0].(int64)
				if a < b || (a == b && records[i-1] > records[i]) {
					return false
				}
			}
			total := 0
			for _, vc := range s.DistinctValues() {
				if vc.Count <= 0 {
					return false
				}
				total += vc.Count
			}
			return total == len(records) && slices.IsSortedFunc(s.DistinctValues(), func(a, b ValueCount) int {
				return value.Compare(b.Value[0], a.Value[0])
			})
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
