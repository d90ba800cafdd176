package attribute

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/value"
)

// UniqueEntry is one value with its owning record.
type UniqueEntry struct {
	Value  any
	Record int32
}

// UniqueIndex maps each value to exactly one record of a scope.
type UniqueIndex struct {
	name      string
	valueType value.Type
	byValue   map[string]UniqueEntry
	held      map[int32]int
}

// NewUniqueIndex creates an empty unique index. name is only used in
// violation reports.
func NewUniqueIndex(name string, t value.Type) *UniqueIndex {
	return &UniqueIndex{
		name:      name,
		valueType: t,
		byValue:   make(map[string]UniqueEntry),
		held:      make(map[int32]int),
	}
}

// RestoreUniqueIndex rebuilds a unique index from decoded entries.
func RestoreUniqueIndex(name string, t value.Type, entries []UniqueEntry) (*UniqueIndex, error) {
	u := NewUniqueIndex(name, t)
	for _, e := range entries {
		if err := checkType(t, e.Value); err != nil {
			return nil, err
		}
		key := value.Key(t, e.Value)
		if _, dup := u.byValue[key]; dup {
			return nil, fmt.Errorf("%w: value %v stored twice", ErrInconsistent, e.Value)
		}
		u.byValue[key] = e
		u.held[e.Record]++
	}
	return u, nil
}

// Name returns the attribute name.
func (u *UniqueIndex) Name() string { return u.name }

// ValueType returns the type of the indexed values.
func (u *UniqueIndex) ValueType() value.Type { return u.valueType }

// Len returns the number of values.
func (u *UniqueIndex) Len() int { return len(u.byValue) }

// Insert maps every value in vs to record. If any value is held by another
// record nothing is changed.
func (u *UniqueIndex) Insert(record int32, vs ...any) error {
	if err := bitmap.CheckID(record); err != nil {
		return err
	}
	for _, v := range vs {
		if err := checkType(u.valueType, v); err != nil {
			return err
		}
		if e, ok := u.byValue[value.Key(u.valueType, v)]; ok && e.Record != record {
			return &UniqueViolationError{
				Attribute: u.name,
				Value:     v,
				Existing:  "record " + strconv.Itoa(int(e.Record)),
				Requested: "record " + strconv.Itoa(int(record)),
			}
		}
	}
	for _, v := range vs {
		key := value.Key(u.valueType, v)
		if _, ok := u.byValue[key]; !ok {
			u.held[record]++
		}
		u.byValue[key] = UniqueEntry{Value: v, Record: record}
	}
	return nil
}

// Remove unmaps every value in vs, which must all belong to record.
func (u *UniqueIndex) Remove(record int32, vs ...any) error {
	for _, v := range vs {
		if err := checkType(u.valueType, v); err != nil {
			return err
		}
		e, ok := u.byValue[value.Key(u.valueType, v)]
		if !ok {
			return fmt.Errorf("%w: no record holds %v", ErrRecordNotFound, v)
		}
		if e.Record != record {
			return fmt.Errorf("%w: %v belongs to %d, not %d", ErrNotOwner, v, e.Record, record)
		}
	}
	for _, v := range vs {
		key := value.Key(u.valueType, v)
		if _, ok := u.byValue[key]; !ok {
			continue
		}
		delete(u.byValue, key)
		u.held[record]--
		if u.held[record] == 0 {
			delete(u.held, record)
		}
	}
	return nil
}

// Lookup returns the record holding v.
func (u *UniqueIndex) Lookup(v any) (int32, bool) {
	e, ok := u.byValue[value.Key(u.valueType, v)]
	return e.Record, ok
}

// Records returns every record holding a value.
func (u *UniqueIndex) Records() *bitmap.Bitmap {
	out := bitmap.New()
	for rec := range u.held {
		out.Add(rec)
	}
	return out
}

// Entries returns all mappings ordered by value.
func (u *UniqueIndex) Entries() []UniqueEntry {
	out := make([]UniqueEntry, 0, len(u.byValue))
	for _, e := range u.byValue {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b UniqueEntry) int { return value.Compare(a.Value, b.Value) })
	return out
}

// Clone returns a copy that can be mutated independently.
func (u *UniqueIndex) Clone() *UniqueIndex {
	c := &UniqueIndex{
		name:      u.name,
		valueType: u.valueType,
		byValue:   maps.Clone(u.byValue),
		held:      maps.Clone(u.held),
	}
	return c
}

// Equals reports whether both indexes hold the same mappings.
func (u *UniqueIndex) Equals(other *UniqueIndex) bool {
	if u.valueType != other.valueType || len(u.byValue) != len(other.byValue) {
		return false
	}
	for k, e := range u.byValue {
		if o, ok := other.byValue[k]; !ok || o.Record != e.Record {
			return false
		}
	}
	return true
}
