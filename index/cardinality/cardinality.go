// Package cardinality counts how often a record uses a value or a
// reference and validates reference cardinality constraints.
package cardinality

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/value"
)

var (
	// ErrNotCounted is returned when decrementing an absent entry.
	ErrNotCounted = errors.New("entry not counted")
	// ErrInconsistent is returned when restored counters are invalid.
	ErrInconsistent = errors.New("inconsistent cardinality index")
)

// AttributeEntry is the occurrence count of a value within one record.
type AttributeEntry struct {
	Value  any
	Record int32
	Count  int
}

type valueCounts struct {
	value   any
	records map[int32]int
	total   int
}

// AttributeIndex counts (value, record) occurrences of a multi-valued
// attribute that may be contributed by several references.
type AttributeIndex struct {
	valueType value.Type
	values    map[string]*valueCounts
}

// NewAttributeIndex creates an empty counter index.
func NewAttributeIndex(t value.Type) *AttributeIndex {
	return &AttributeIndex{valueType: t, values: make(map[string]*valueCounts)}
}

// RestoreAttributeIndex rebuilds an index from decoded entries.
func RestoreAttributeIndex(t value.Type, entries []AttributeEntry) (*AttributeIndex, error) {
	x := NewAttributeIndex(t)
	for _, e := range entries {
		if value.TypeOf(e.Value) != t {
			return nil, fmt.Errorf("%w: %T is not %s", value.ErrTypeMismatch, e.Value, t)
		}
		if e.Count <= 0 {
			return nil, fmt.Errorf("%w: count %d for %v/%d", ErrInconsistent, e.Count, e.Value, e.Record)
		}
		vc := x.entry(e.Value, true)
		if _, dup := vc.records[e.Record]; dup {
			return nil, fmt.Errorf("%w: %v/%d stored twice", ErrInconsistent, e.Value, e.Record)
		}
		vc.records[e.Record] = e.Count
		vc.total += e.Count
	}
	return x, nil
}

// ValueType returns the type of the counted values.
func (x *AttributeIndex) ValueType() value.Type { return x.valueType }

// IsEmpty reports whether nothing is counted.
func (x *AttributeIndex) IsEmpty() bool { return len(x.values) == 0 }

// Increment counts one more occurrence of v in record and reports whether
// it is the first one.
func (x *AttributeIndex) Increment(v any, record int32) (bool, error) {
	if err := bitmap.CheckID(record); err != nil {
		return false, err
	}
	if value.TypeOf(v) != x.valueType {
		return false, fmt.Errorf("%w: %T is not %s", value.ErrTypeMismatch, v, x.valueType)
	}
	vc := x.entry(v, true)
	vc.records[record]++
	vc.total++
	return vc.records[record] == 1, nil
}

// Decrement removes one occurrence of v in record and reports whether the
// entry reached zero and was removed.
func (x *AttributeIndex) Decrement(v any, record int32) (bool, error) {
	vc := x.entry(v, false)
	if vc == nil || vc.records[record] == 0 {
		return false, fmt.Errorf("%w: %v/%d", ErrNotCounted, v, record)
	}
	vc.records[record]--
	vc.total--
	if vc.records[record] > 0 {
		return false, nil
	}
	delete(vc.records, record)
	if len(vc.records) == 0 {
		delete(x.values, value.Key(x.valueType, v))
	}
	return true, nil
}

// Cardinality returns the total occurrences of v across all records.
func (x *AttributeIndex) Cardinality(v any) int {
	if vc := x.entry(v, false); vc != nil {
		return vc.total
	}
	return 0
}

// CardinalityOf returns the occurrences of v in record.
func (x *AttributeIndex) CardinalityOf(v any, record int32) int {
	if vc := x.entry(v, false); vc != nil {
		return vc.records[record]
	}
	return 0
}

// Records returns the records using v at least once.
func (x *AttributeIndex) Records(v any) *bitmap.Bitmap {
	out := bitmap.New()
	if vc := x.entry(v, false); vc != nil {
		for rec := range vc.records {
			out.Add(rec)
		}
	}
	return out
}

// Entries returns all counters ordered by value and record.
func (x *AttributeIndex) Entries() []AttributeEntry {
	var out []AttributeEntry
	for _, vc := range x.values {
		for rec, n := range vc.records {
			out = append(out, AttributeEntry{Value: vc.value, Record: rec, Count: n})
		}
	}
	slices.SortFunc(out, func(a, b AttributeEntry) int {
		if c := value.Compare(a.Value, b.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Record, b.Record)
	})
	return out
}

// Clone returns a copy that can be mutated independently.
func (x *AttributeIndex) Clone() *AttributeIndex {
	c := &AttributeIndex{valueType: x.valueType, values: make(map[string]*valueCounts, len(x.values))}
	for k, vc := range x.values {
		c.values[k] = &valueCounts{value: vc.value, records: maps.Clone(vc.records), total: vc.total}
	}
	return c
}

// Equals reports whether both indexes hold the same counters.
func (x *AttributeIndex) Equals(other *AttributeIndex) bool {
	if x.valueType != other.valueType || len(x.values) != len(other.values) {
		return false
	}
	for k, vc := range x.values {
		o, ok := other.values[k]
		if !ok || !maps.Equal(vc.records, o.records) {
			return false
		}
	}
	return true
}

func (x *AttributeIndex) entry(v any, create bool) *valueCounts {
	key := value.Key(x.valueType, v)
	vc, ok := x.values[key]
	if !ok && create {
		vc = &valueCounts{value: v, records: make(map[int32]int)}
		x.values[key] = vc
	}
	return vc
}

// RecordCount is the number of references a record holds.
type RecordCount struct {
	Record int32
	Count  int
}

// ReferenceTypeIndex counts how many references of one type each record
// holds.
type ReferenceTypeIndex struct {
	counts map[int32]int
	all    *bitmap.Bitmap
}

// NewReferenceTypeIndex creates an empty reference counter.
func NewReferenceTypeIndex() *ReferenceTypeIndex {
	return &ReferenceTypeIndex{counts: make(map[int32]int), all: bitmap.New()}
}

// RestoreReferenceTypeIndex rebuilds an index from decoded entries.
func RestoreReferenceTypeIndex(entries []RecordCount) (*ReferenceTypeIndex, error) {
	x := NewReferenceTypeIndex()
	for _, e := range entries {
		if e.Count <= 0 {
			return nil, fmt.Errorf("%w: count %d for %d", ErrInconsistent, e.Count, e.Record)
		}
		if _, dup := x.counts[e.Record]; dup {
			return nil, fmt.Errorf("%w: %d stored twice", ErrInconsistent, e.Record)
		}
		x.counts[e.Record] = e.Count
		x.all.Add(e.Record)
	}
	return x, nil
}

// Increment counts one more reference of record and reports whether it is
// the first one.
func (x *ReferenceTypeIndex) Increment(record int32) (bool, error) {
	if err := bitmap.CheckID(record); err != nil {
		return false, err
	}
	x.counts[record]++
	if x.counts[record] == 1 {
		x.all.Add(record)
		return true, nil
	}
	return false, nil
}

// Decrement removes one reference of record and reports whether the record
// holds none afterwards.
func (x *ReferenceTypeIndex) Decrement(record int32) (bool, error) {
	n, ok := x.counts[record]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotCounted, record)
	}
	if n > 1 {
		x.counts[record] = n - 1
		return false, nil
	}
	delete(x.counts, record)
	x.all.Remove(record)
	return true, nil
}

// Count returns the number of references record holds.
func (x *ReferenceTypeIndex) Count(record int32) int {
	return x.counts[record]
}

// AllRecords returns every record holding at least one reference.
func (x *ReferenceTypeIndex) AllRecords() *bitmap.Bitmap {
	return x.all.Clone()
}

// IsEmpty reports whether nothing is counted.
func (x *ReferenceTypeIndex) IsEmpty() bool { return len(x.counts) == 0 }

// Entries returns all counters ordered by record.
func (x *ReferenceTypeIndex) Entries() []RecordCount {
	out := make([]RecordCount, 0, len(x.counts))
	for id := range x.all.All() {
		out = append(out, RecordCount{Record: id, Count: x.counts[id]})
	}
	return out
}

// Clone returns a copy that can be mutated independently.
func (x *ReferenceTypeIndex) Clone() *ReferenceTypeIndex {
	return &ReferenceTypeIndex{counts: maps.Clone(x.counts), all: x.all.Clone()}
}

// Equals reports whether both indexes hold the same counters.
func (x *ReferenceTypeIndex) Equals(other *ReferenceTypeIndex) bool {
	return maps.Equal(x.counts, other.counts)
}
