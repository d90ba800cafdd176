package attribute

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/value"
)

// Direction is the sort order of an axis.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Nulls places absent axis values before or after present ones.
type Nulls uint8

const (
	NullsLast Nulls = iota
	NullsFirst
)

func (n Nulls) String() string {
	if n == NullsFirst {
		return "NULLS_FIRST"
	}
	return "NULLS_LAST"
}

// SortAxis describes one element of a (possibly composite) sort value.
type SortAxis struct {
	Type      value.Type
	Direction Direction
	Nulls     Nulls
}

// ValueCount is the number of records sharing one sort value.
type ValueCount struct {
	Value value.Tuple
	Count int
}

// SortIndex keeps records ordered by their sort value. Values are held as
// tuples with one element per axis; records with equal values are ordered
// by record id.
type SortIndex struct {
	axes   []SortAxis
	types  []value.Type
	single bool

	records []int32
	values  []value.Tuple

	byRecord      map[int32]value.Tuple
	cardinalities map[string]*ValueCount
}

// NewSortIndex creates an empty sort index over the given axes.
func NewSortIndex(axes ...SortAxis) (*SortIndex, error) {
	if len(axes) == 0 {
		return nil, errors.New("sort index requires at least one axis")
	}
	types := make([]value.Type, len(axes))
	for i, a := range axes {
		if !a.Type.Valid() {
			return nil, fmt.Errorf("%w: axis %d", value.ErrUnknownType, i)
		}
		types[i] = a.Type
	}
	return &SortIndex{
		axes:          slices.Clone(axes),
		types:         types,
		single:        len(axes) == 1,
		byRecord:      make(map[int32]value.Tuple),
		cardinalities: make(map[string]*ValueCount),
	}, nil
}

// RestoreSortIndex rebuilds a sort index from co-sorted arrays. When
// counts is nil the value cardinalities are recomputed; otherwise they must
// match the arrays.
func RestoreSortIndex(axes []SortAxis, records []int32, values []value.Tuple, counts []ValueCount) (*SortIndex, error) {
	s, err := NewSortIndex(axes...)
	if err != nil {
		return nil, err
	}
	if len(records) != len(values) {
		return nil, fmt.Errorf("%w: %d records but %d values", ErrInconsistent, len(records), len(values))
	}
	for i, rec := range records {
		if err := s.checkTuple(values[i]); err != nil {
			return nil, err
		}
		if i > 0 && s.compare(values[i-1], records[i-1], values[i], rec) >= 0 {
			return nil, fmt.Errorf("%w: record %d out of order", ErrInconsistent, rec)
		}
		if _, dup := s.byRecord[rec]; dup {
			return nil, fmt.Errorf("%w: record %d indexed twice", ErrInconsistent, rec)
		}
		s.byRecord[rec] = values[i]
		s.incr(values[i])
	}
	s.records, s.values = records, values

	if counts != nil {
		if len(counts) != len(s.cardinalities) {
			return nil, fmt.Errorf("%w: %d stored cardinalities, %d distinct values", ErrInconsistent, len(counts), len(s.cardinalities))
		}
		for _, c := range counts {
			got, ok := s.cardinalities[value.TupleKey(s.types, c.Value)]
			if !ok || got.Count != c.Count {
				return nil, fmt.Errorf("%w: cardinality of %s", ErrInconsistent, c.Value)
			}
		}
	}
	return s, nil
}

// Axes returns the comparator base.
func (s *SortIndex) Axes() []SortAxis { return slices.Clone(s.axes) }

// Len returns the number of indexed records.
func (s *SortIndex) Len() int { return len(s.records) }

// IsEmpty reports whether no record is indexed.
func (s *SortIndex) IsEmpty() bool { return len(s.records) == 0 }

// Insert indexes record with value v. For single axis indexes v may be a
// scalar; composite indexes take a value.Tuple.
func (s *SortIndex) Insert(v any, record int32) error {
	if err := bitmap.CheckID(record); err != nil {
		return err
	}
	t, err := s.tuple(v)
	if err != nil {
		return err
	}
	if _, dup := s.byRecord[record]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateRecord, record)
	}
	i, _ := s.position(t, record)
	s.records = slices.Insert(s.records, i, record)
	s.values = slices.Insert(s.values, i, t)
	s.byRecord[record] = t
	s.incr(t)
	return nil
}

// Remove removes record indexed under v.
func (s *SortIndex) Remove(v any, record int32) error {
	t, err := s.tuple(v)
	if err != nil {
		return err
	}
	i, found := s.position(t, record)
	if !found {
		return fmt.Errorf("%w: %d with value %s", ErrRecordNotFound, record, t)
	}
	s.records = slices.Delete(s.records, i, i+1)
	s.values = slices.Delete(s.values, i, i+1)
	delete(s.byRecord, record)
	s.decr(t)
	return nil
}

// SortedRecords returns all records in sort order.
func (s *SortIndex) SortedRecords() []int32 {
	return slices.Clone(s.records)
}

// SortedValues returns the values parallel to SortedRecords.
func (s *SortIndex) SortedValues() []value.Tuple {
	return slices.Clone(s.values)
}

// SortedRange returns at most limit records starting at offset.
func (s *SortIndex) SortedRange(offset, limit int) []int32 {
	if offset < 0 || limit <= 0 || offset >= len(s.records) {
		return []int32{}
	}
	end := min(offset+limit, len(s.records))
	return slices.Clone(s.records[offset:end])
}

// SortedRangeReversed is SortedRange over the reversed order.
func (s *SortIndex) SortedRangeReversed(offset, limit int) []int32 {
	n := len(s.records)
	if offset < 0 || limit <= 0 || offset >= n {
		return []int32{}
	}
	out := make([]int32, 0, min(limit, n-offset))
	for i := n - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out
}

// ValueOf returns the value a record is indexed under.
func (s *SortIndex) ValueOf(record int32) (value.Tuple, bool) {
	t, ok := s.byRecord[record]
	return t, ok
}

// RecordsEqual returns the records indexed under v.
func (s *SortIndex) RecordsEqual(v any) (*bitmap.Bitmap, error) {
	t, err := s.tuple(v)
	if err != nil {
		return nil, err
	}
	from, _ := s.position(t, -1)
	out := bitmap.New()
	for i := from; i < len(s.values) && s.compareValues(s.values[i], t) == 0; i++ {
		out.Add(s.records[i])
	}
	return out, nil
}

// Cardinality returns how many records share v.
func (s *SortIndex) Cardinality(v any) int {
	t, err := s.tuple(v)
	if err != nil {
		return 0
	}
	if c, ok := s.cardinalities[value.TupleKey(s.types, t)]; ok {
		return c.Count
	}
	return 0
}

// DistinctValues returns every distinct value with its count in sort order.
func (s *SortIndex) DistinctValues() []ValueCount {
	out := make([]ValueCount, 0, len(s.cardinalities))
	for i := 0; i < len(s.values); {
		c := s.cardinalities[value.TupleKey(s.types, s.values[i])]
		out = append(out, *c)
		i += c.Count
	}
	return out
}

// Clone returns a copy that can be mutated independently.
func (s *SortIndex) Clone() *SortIndex {
	c := &SortIndex{
		axes:          s.axes,
		types:         s.types,
		single:        s.single,
		records:       slices.Clone(s.records),
		values:        slices.Clone(s.values),
		byRecord:      make(map[int32]value.Tuple, len(s.byRecord)),
		cardinalities: make(map[string]*ValueCount, len(s.cardinalities)),
	}
	for k, v := range s.byRecord {
		c.byRecord[k] = v
	}
	for k, v := range s.cardinalities {
		vc := *v
		c.cardinalities[k] = &vc
	}
	return c
}

// Equals reports whether both indexes hold the same ordering.
func (s *SortIndex) Equals(other *SortIndex) bool {
	return slices.Equal(s.axes, other.axes) &&
		slices.Equal(s.records, other.records) &&
		slices.EqualFunc(s.values, other.values, func(a, b value.Tuple) bool {
			return value.TupleKey(s.types, a) == value.TupleKey(other.types, b)
		})
}

func (s *SortIndex) tuple(v any) (value.Tuple, error) {
	t, ok := v.(value.Tuple)
	if !ok {
		if !s.single {
			return nil, fmt.Errorf("%w: composite sort index expects a tuple, got %T", value.ErrTypeMismatch, v)
		}
		t = value.Tuple{v}
	}
	if err := s.checkTuple(t); err != nil {
		return nil, err
	}
	out := make(value.Tuple, len(t))
	for i, e := range t {
		n, err := value.Normalize(s.axes[i].Type, e)
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

func (s *SortIndex) checkTuple(t value.Tuple) error {
	if len(t) != len(s.axes) {
		return fmt.Errorf("%w: tuple has %d elements, want %d", value.ErrTypeMismatch, len(t), len(s.axes))
	}
	for i, v := range t {
		if v == nil {
			continue
		}
		if err := checkType(s.axes[i].Type, v); err != nil {
			return fmt.Errorf("axis %d: %w", i, err)
		}
	}
	return nil
}

// position finds where (t, record) is or would be inserted.
func (s *SortIndex) position(t value.Tuple, record int32) (int, bool) {
	lo, hi := 0, len(s.records)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		c := s.compare(s.values[mid], s.records[mid], t, record)
		if c == 0 {
			return mid, true
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false
}

func (s *SortIndex) compare(a value.Tuple, ra int32, b value.Tuple, rb int32) int {
	if c := s.compareValues(a, b); c != 0 {
		return c
	}
	return cmp.Compare(ra, rb)
}

func (s *SortIndex) compareValues(a, b value.Tuple) int {
	for i, axis := range s.axes {
		x, y := a[i], b[i]
		switch {
		case x == nil && y == nil:
			continue
		case x == nil || y == nil:
			c := 1
			if x == nil {
				c = -1
			}
			if axis.Nulls == NullsLast {
				c = -c
			}
			return c
		}
		c := value.Compare(x, y)
		if axis.Direction == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func (s *SortIndex) incr(t value.Tuple) {
	key := value.TupleKey(s.types, t)
	if c, ok := s.cardinalities[key]; ok {
		c.Count++
		return
	}
	s.cardinalities[key] = &ValueCount{Value: t, Count: 1}
}

func (s *SortIndex) decr(t value.Tuple) {
	key := value.TupleKey(s.types, t)
	c, ok := s.cardinalities[key]
	if !ok {
		return
	}
	c.Count--
	if c.Count <= 0 {
		delete(s.cardinalities, key)
	}
}
