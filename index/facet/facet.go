// Package facet indexes records by facet id, optionally grouped.
package facet

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/idxstore/bitmap"
)

// ErrCorrupted is returned when restored buckets are invalid.
var ErrCorrupted = errors.New("corrupted facet index")

// Bucket is the posting list of one facet in one group.
type Bucket struct {
	Grouped bool
	Group   int32
	Facet   int32
	Records *bitmap.Bitmap
}

type facets map[int32]*bitmap.Bitmap

// Index maps (group, facet) to records. Facets without group live in a
// bucket separate from all groups.
type Index struct {
	ungrouped facets
	groups    map[int32]facets
}

// New creates an empty facet index.
func New() *Index {
	return &Index{
		ungrouped: make(facets),
		groups:    make(map[int32]facets),
	}
}

func (x *Index) bucket(group *int32, create bool) facets {
	if group == nil {
		return x.ungrouped
	}
	f, ok := x.groups[*group]
	if !ok && create {
		f = make(facets)
		x.groups[*group] = f
	}
	return f
}

// Add indexes rec under facet in group (nil for no group). It reports
// whether the record was newly added.
func (x *Index) Add(group *int32, facet, rec int32) (bool, error) {
	if err := bitmap.CheckID(rec); err != nil {
		return false, err
	}
	f := x.bucket(group, true)
	bm, ok := f[facet]
	if !ok {
		bm = bitmap.New()
		f[facet] = bm
	}
	return bm.CheckedAdd(rec), nil
}

// Remove drops rec from facet in group. Empty buckets and groups are
// pruned. It reports whether the record was present.
func (x *Index) Remove(group *int32, facet, rec int32) bool {
	f := x.bucket(group, false)
	bm, ok := f[facet]
	if !ok || !bm.CheckedRemove(rec) {
		return false
	}
	if bm.IsEmpty() {
		delete(f, facet)
		if group != nil && len(f) == 0 {
			delete(x.groups, *group)
		}
	}
	return true
}

// Records returns a copy of the records of facet in group.
func (x *Index) Records(group *int32, facet int32) *bitmap.Bitmap {
	if bm, ok := x.bucket(group, false)[facet]; ok {
		return bm.Clone()
	}
	return bitmap.New()
}

// GroupRecords returns the union of all facets in group.
func (x *Index) GroupRecords(group *int32) *bitmap.Bitmap {
	f := x.bucket(group, false)
	return bitmap.Or(slices.Collect(maps.Values(f))...)
}

// Groups returns the group ids in ascending order.
func (x *Index) Groups() []int32 {
	return slices.Sorted(maps.Keys(x.groups))
}

// Facets returns the facet ids of group in ascending order.
func (x *Index) Facets(group *int32) []int32 {
	return slices.Sorted(maps.Keys(x.bucket(group, false)))
}

// IsEmpty reports whether no record is indexed.
func (x *Index) IsEmpty() bool {
	return len(x.ungrouped) == 0 && len(x.groups) == 0
}

// Buckets lists all buckets, ungrouped first, then by group and facet.
func (x *Index) Buckets() []Bucket {
	var out []Bucket
	for _, facet := range x.Facets(nil) {
		out = append(out, Bucket{Facet: facet, Records: x.ungrouped[facet]})
	}
	for _, g := range x.Groups() {
		for _, facet := range slices.Sorted(maps.Keys(x.groups[g])) {
			out = append(out, Bucket{Grouped: true, Group: g, Facet: facet, Records: x.groups[g][facet]})
		}
	}
	return out
}

// Restore rebuilds an index from its buckets.
func Restore(buckets []Bucket) (*Index, error) {
	x := New()
	for _, b := range buckets {
		if b.Records.IsEmpty() {
			return nil, fmt.Errorf("%w: empty bucket for facet %d", ErrCorrupted, b.Facet)
		}
		var group *int32
		if b.Grouped {
			group = &b.Group
		}
		f := x.bucket(group, true)
		if _, dup := f[b.Facet]; dup {
			return nil, fmt.Errorf("%w: duplicate facet %d", ErrCorrupted, b.Facet)
		}
		f[b.Facet] = b.Records.Clone()
	}
	return x, nil
}

// Clone returns a copy sharing posting list containers copy-on-write.
func (x *Index) Clone() *Index {
	c := New()
	for k, v := range x.ungrouped {
		c.ungrouped[k] = v.Clone()
	}
	for g, f := range x.groups {
		cf := make(facets, len(f))
		for k, v := range f {
			cf[k] = v.Clone()
		}
		c.groups[g] = cf
	}
	return c
}

// Equals reports whether both indexes hold the same buckets.
func (x *Index) Equals(other *Index) bool {
	return slices.EqualFunc(x.Buckets(), other.Buckets(), func(a, b Bucket) bool {
		return a.Grouped == b.Grouped && a.Group == b.Group && a.Facet == b.Facet && a.Records.Equals(b.Records)
	})
}
