package attribute

import (
	"fmt"
	"slices"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/index/rangeindex"
	"github.com/hupe1980/idxstore/value"
)

// ValuePoint is one distinct value with the records holding it.
type ValuePoint struct {
	Value   any
	Records *bitmap.Bitmap
}

// FilterIndex maps distinct values to posting lists. Range typed indexes
// additionally maintain a rangeindex.Index over the interval bounds.
type FilterIndex struct {
	valueType value.Type
	points    []ValuePoint
	ranges    *rangeindex.Index
}

// NewFilterIndex creates an empty filter index for values of type t.
func NewFilterIndex(t value.Type) *FilterIndex {
	f := &FilterIndex{valueType: t}
	if t == value.TypeRange {
		f.ranges = rangeindex.New()
	}
	return f
}

// RestoreFilterIndex rebuilds a filter index from decoded state. ranges may
// be nil for range typed indexes, in which case it is recomputed.
func RestoreFilterIndex(t value.Type, points []ValuePoint, ranges *rangeindex.Index) (*FilterIndex, error) {
	for i, p := range points {
		if err := checkType(t, p.Value); err != nil {
			return nil, err
		}
		if p.Records.IsEmpty() {
			return nil, fmt.Errorf("%w: empty posting list for %v", ErrInconsistent, p.Value)
		}
		if i > 0 && value.Compare(points[i-1].Value, p.Value) >= 0 {
			return nil, fmt.Errorf("%w: values not ascending at %v", ErrInconsistent, p.Value)
		}
	}
	f := &FilterIndex{valueType: t, points: points}
	switch {
	case t != value.TypeRange && ranges != nil:
		return nil, fmt.Errorf("%w: range index on %s attribute", ErrInconsistent, t)
	case t == value.TypeRange && ranges == nil:
		f.ranges = rangeindex.New()
		for _, p := range points {
			r := p.Value.(value.Range)
			for id := range p.Records.All() {
				if err := f.ranges.AddRecord(r.From, r.To, id); err != nil {
					return nil, err
				}
			}
		}
	default:
		f.ranges = ranges
	}
	return f, nil
}

// ValueType returns the type of the indexed values.
func (f *FilterIndex) ValueType() value.Type { return f.valueType }

// Len returns the number of distinct values.
func (f *FilterIndex) Len() int { return len(f.points) }

// IsEmpty reports whether no record is indexed.
func (f *FilterIndex) IsEmpty() bool { return len(f.points) == 0 }

// Points returns the distinct values in ascending order. The posting lists
// are shared and must not be modified.
func (f *FilterIndex) Points() []ValuePoint { return slices.Clone(f.points) }

// RangeIndex returns the interval index or nil for non range attributes.
func (f *FilterIndex) RangeIndex() *rangeindex.Index { return f.ranges }

// Values returns the distinct values in ascending order.
func (f *FilterIndex) Values() []any {
	out := make([]any, len(f.points))
	for i, p := range f.points {
		out[i] = p.Value
	}
	return out
}

// AddRecord indexes record under v. For range attributes the interval is
// rejected when it overlaps or touches another interval of the record.
func (f *FilterIndex) AddRecord(v any, record int32) error {
	if err := bitmap.CheckID(record); err != nil {
		return err
	}
	if err := checkType(f.valueType, v); err != nil {
		return err
	}
	if r, ok := v.(value.Range); ok && r.From > r.To {
		return fmt.Errorf("%w: %s", rangeindex.ErrInvalidRange, r)
	}
	i, ok := f.search(v)
	if ok && f.points[i].Records.Contains(record) {
		return nil
	}
	if f.ranges != nil {
		r := v.(value.Range)
		if err := f.ranges.AddRecord(r.From, r.To, record); err != nil {
			return err
		}
	}
	if !ok {
		f.points = slices.Insert(f.points, i, ValuePoint{Value: v, Records: bitmap.New()})
	}
	f.points[i].Records.Add(record)
	return nil
}

// RemoveRecord removes record from the posting list of v.
func (f *FilterIndex) RemoveRecord(v any, record int32) error {
	if err := checkType(f.valueType, v); err != nil {
		return err
	}
	i, ok := f.search(v)
	if !ok || !f.points[i].Records.CheckedRemove(record) {
		return fmt.Errorf("%w: %d does not hold %v", ErrRecordNotFound, record, v)
	}
	if f.points[i].Records.IsEmpty() {
		f.points = slices.Delete(f.points, i, i+1)
	}
	if f.ranges != nil {
		r := v.(value.Range)
		f.ranges.RemoveRecord(r.From, r.To, record)
	}
	return nil
}

// RecordsEqual returns the records holding exactly v.
func (f *FilterIndex) RecordsEqual(v any) *bitmap.Bitmap {
	if i, ok := f.search(v); ok {
		return f.points[i].Records.Clone()
	}
	return bitmap.New()
}

// RecordsIn returns the records holding any of the values.
func (f *FilterIndex) RecordsIn(values ...any) *bitmap.Bitmap {
	parts := make([]*bitmap.Bitmap, 0, len(values))
	for _, v := range values {
		if i, ok := f.search(v); ok {
			parts = append(parts, f.points[i].Records)
		}
	}
	return bitmap.Or(parts...)
}

// RecordsBetween returns the records with a value in [lower, upper]. A nil
// bound is open.
func (f *FilterIndex) RecordsBetween(lower, upper any) *bitmap.Bitmap {
	return f.collect(f.lowerIndex(lower, true), f.upperIndex(upper, true))
}

// RecordsGreaterThan returns the records with a value > v.
func (f *FilterIndex) RecordsGreaterThan(v any) *bitmap.Bitmap {
	return f.collect(f.lowerIndex(v, false), len(f.points))
}

// RecordsGreaterThanEq returns the records with a value >= v.
func (f *FilterIndex) RecordsGreaterThanEq(v any) *bitmap.Bitmap {
	return f.collect(f.lowerIndex(v, true), len(f.points))
}

// RecordsLessThan returns the records with a value < v.
func (f *FilterIndex) RecordsLessThan(v any) *bitmap.Bitmap {
	return f.collect(0, f.upperIndex(v, false))
}

// RecordsLessThanEq returns the records with a value <= v.
func (f *FilterIndex) RecordsLessThanEq(v any) *bitmap.Bitmap {
	return f.collect(0, f.upperIndex(v, true))
}

// RecordsValidIn returns the records whose interval contains point.
func (f *FilterIndex) RecordsValidIn(point int64) (*bitmap.Bitmap, error) {
	if f.ranges == nil {
		return nil, ErrNoRangeIndex
	}
	return f.ranges.RecordsEnveloping(point), nil
}

// RecordsOverlapping returns the records whose interval shares a value with
// [from, to].
func (f *FilterIndex) RecordsOverlapping(from, to int64) (*bitmap.Bitmap, error) {
	if f.ranges == nil {
		return nil, ErrNoRangeIndex
	}
	return f.ranges.RecordsOverlapping(from, to), nil
}

// AllRecords returns every indexed record.
func (f *FilterIndex) AllRecords() *bitmap.Bitmap {
	return f.collect(0, len(f.points))
}

// Clone returns a copy that can be mutated independently.
func (f *FilterIndex) Clone() *FilterIndex {
	c := &FilterIndex{valueType: f.valueType, points: make([]ValuePoint, len(f.points))}
	for i, p := range f.points {
		c.points[i] = ValuePoint{Value: p.Value, Records: p.Records.Clone()}
	}
	if f.ranges != nil {
		c.ranges = f.ranges.Clone()
	}
	return c
}

// Equals reports whether both indexes hold the same state.
func (f *FilterIndex) Equals(other *FilterIndex) bool {
	if f.valueType != other.valueType {
		return false
	}
	if !slices.EqualFunc(f.points, other.points, func(a, b ValuePoint) bool {
		return value.Equal(a.Value, b.Value) && a.Records.Equals(b.Records)
	}) {
		return false
	}
	if f.ranges == nil || other.ranges == nil {
		return f.ranges == nil && other.ranges == nil
	}
	return f.ranges.Equals(other.ranges)
}

func (f *FilterIndex) search(v any) (int, bool) {
	return slices.BinarySearchFunc(f.points, v, func(p ValuePoint, v any) int {
		return value.Compare(p.Value, v)
	})
}

// lowerIndex returns the first position whose value is above the bound.
func (f *FilterIndex) lowerIndex(bound any, inclusive bool) int {
	if bound == nil {
		return 0
	}
	i, found := f.search(bound)
	if found && !inclusive {
		i++
	}
	return i
}

// upperIndex returns the position after the last value below the bound.
func (f *FilterIndex) upperIndex(bound any, inclusive bool) int {
	if bound == nil {
		return len(f.points)
	}
	i, found := f.search(bound)
	if found && inclusive {
		i++
	}
	return i
}

func (f *FilterIndex) collect(from, to int) *bitmap.Bitmap {
	if from >= to {
		return bitmap.New()
	}
	parts := make([]*bitmap.Bitmap, 0, to-from)
	for _, p := range f.points[from:to] {
		parts = append(parts, p.Records)
	}
	return bitmap.Or(parts...)
}
