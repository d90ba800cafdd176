// Package price indexes the prices of one price list and currency.
//
// Every price carries an internal id unique within the index. Validity and
// amounts are kept in range indexes over internal ids so that a moment or
// an amount window resolves to price ids first and to entities second.
package price

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/index/rangeindex"
)

var (
	// ErrDuplicatePrice is returned when a price id is already indexed.
	ErrDuplicatePrice = errors.New("price already indexed")
	// ErrCorrupted is returned when restored records are invalid.
	ErrCorrupted = errors.New("corrupted price index")
)

// Validity is the closed interval of instants a price applies to.
type Validity struct {
	From int64
	To   int64
}

// Always is the validity of prices without a time restriction.
func Always() Validity {
	return Validity{From: math.MinInt64, To: math.MaxInt64}
}

// Bounded reports whether the validity restricts time at all.
func (v Validity) Bounded() bool {
	return v != Always()
}

// Record is one indexed price. Amounts are scaled integers.
type Record struct {
	InternalID    int32
	PriceID       int32
	EntityPK      int32
	InnerRecordID int32
	WithoutTax    int64
	WithTax       int64
	Validity      Validity
}

type entityPrice struct {
	priceID int32
	inner   int32
}

// Index holds the prices of one price list and currency. It is not safe
// for concurrent mutation.
type Index struct {
	records  []Record
	entities map[int32][]int32
	known    map[int32]map[entityPrice]struct{}
	validity *rangeindex.Index
	amounts  *rangeindex.Index
}

// New creates an empty price index.
func New() *Index {
	return &Index{
		entities: make(map[int32][]int32),
		known:    make(map[int32]map[entityPrice]struct{}),
		validity: rangeindex.New(),
		amounts:  rangeindex.New(),
	}
}

func (x *Index) find(internalID int32) (int, bool) {
	return slices.BinarySearchFunc(x.records, internalID, func(r Record, id int32) int {
		switch {
		case r.InternalID < id:
			return -1
		case r.InternalID > id:
			return 1
		}
		return 0
	})
}

// Add indexes r. An internal id or an entity price id (per inner record)
// may be indexed only once.
func (x *Index) Add(r Record) error {
	if err := bitmap.CheckID(r.InternalID); err != nil {
		return err
	}
	if err := bitmap.CheckID(r.EntityPK); err != nil {
		return err
	}
	if r.Validity.From > r.Validity.To {
		return fmt.Errorf("%w: validity [%d,%d]", rangeindex.ErrInvalidRange, r.Validity.From, r.Validity.To)
	}
	i, ok := x.find(r.InternalID)
	if ok {
		return fmt.Errorf("%w: internal id %d", ErrDuplicatePrice, r.InternalID)
	}
	ep := entityPrice{priceID: r.PriceID, inner: r.InnerRecordID}
	if _, dup := x.known[r.EntityPK][ep]; dup {
		return fmt.Errorf("%w: price %d of entity %d", ErrDuplicatePrice, r.PriceID, r.EntityPK)
	}

	if err := x.validity.AddRecord(r.Validity.From, r.Validity.To, r.InternalID); err != nil {
		return err
	}
	if err := x.amounts.AddRecord(r.WithTax, r.WithTax, r.InternalID); err != nil {
		x.validity.RemoveRecord(r.Validity.From, r.Validity.To, r.InternalID)
		return err
	}
	x.records = slices.Insert(x.records, i, r)

	ids := x.entities[r.EntityPK]
	j, _ := slices.BinarySearch(ids, r.InternalID)
	x.entities[r.EntityPK] = slices.Insert(ids, j, r.InternalID)
	if x.known[r.EntityPK] == nil {
		x.known[r.EntityPK] = make(map[entityPrice]struct{})
	}
	x.known[r.EntityPK][ep] = struct{}{}
	return nil
}

// Remove drops the price with internalID and returns it.
func (x *Index) Remove(internalID int32) (Record, bool) {
	i, ok := x.find(internalID)
	if !ok {
		return Record{}, false
	}
	r := x.records[i]
	x.records = slices.Delete(x.records, i, i+1)
	x.validity.RemoveRecord(r.Validity.From, r.Validity.To, internalID)
	x.amounts.RemoveRecord(r.WithTax, r.WithTax, internalID)

	ids := x.entities[r.EntityPK]
	if j, found := slices.BinarySearch(ids, internalID); found {
		ids = slices.Delete(ids, j, j+1)
	}
	if len(ids) == 0 {
		delete(x.entities, r.EntityPK)
		delete(x.known, r.EntityPK)
	} else {
		x.entities[r.EntityPK] = ids
		delete(x.known[r.EntityPK], entityPrice{priceID: r.PriceID, inner: r.InnerRecordID})
	}
	return r, true
}

// Record returns the price with internalID.
func (x *Index) Record(internalID int32) (Record, bool) {
	if i, ok := x.find(internalID); ok {
		return x.records[i], true
	}
	return Record{}, false
}

// Records returns all prices ordered by internal id.
func (x *Index) Records() []Record {
	return slices.Clone(x.records)
}

// Len returns the number of indexed prices.
func (x *Index) Len() int { return len(x.records) }

// IsEmpty reports whether no price is indexed.
func (x *Index) IsEmpty() bool { return len(x.records) == 0 }

// EntityPrices returns the prices of entity pk ordered by internal id.
func (x *Index) EntityPrices(pk int32) []Record {
	ids := x.entities[pk]
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, _ := x.Record(id)
		out = append(out, r)
	}
	return out
}

// EntityIDs returns the entities holding at least one price.
func (x *Index) EntityIDs() *bitmap.Bitmap {
	out := bitmap.New()
	for pk := range x.entities {
		out.Add(pk)
	}
	return out
}

// PriceIDs returns the internal ids of all prices.
func (x *Index) PriceIDs() *bitmap.Bitmap {
	ids := make([]int32, len(x.records))
	for i, r := range x.records {
		ids[i] = r.InternalID
	}
	return bitmap.FromSorted(ids)
}

// ValidAt returns the internal ids of prices valid at moment.
func (x *Index) ValidAt(moment int64) *bitmap.Bitmap {
	return x.validity.RecordsEnveloping(moment)
}

// Between returns the internal ids of prices whose amount with tax lies in
// [from, to].
func (x *Index) Between(from, to int64) *bitmap.Bitmap {
	return x.amounts.RecordsOverlapping(from, to)
}

// Entities maps internal price ids to the entities owning them.
func (x *Index) Entities(priceIDs *bitmap.Bitmap) *bitmap.Bitmap {
	out := bitmap.New()
	for id := range priceIDs.All() {
		if r, ok := x.Record(id); ok {
			out.Add(r.EntityPK)
		}
	}
	return out
}

// Lowest returns the cheapest price of entity pk valid at moment.
func (x *Index) Lowest(pk int32, moment int64) (Record, bool) {
	var (
		best  Record
		found bool
	)
	for _, id := range x.entities[pk] {
		r, _ := x.Record(id)
		if r.Validity.From > moment || r.Validity.To < moment {
			continue
		}
		if !found || r.WithTax < best.WithTax {
			best, found = r, true
		}
	}
	return best, found
}

// Restore rebuilds an index from its records.
func Restore(records []Record) (*Index, error) {
	x := New()
	for i, r := range records {
		if i > 0 && records[i-1].InternalID >= r.InternalID {
			return nil, fmt.Errorf("%w: internal id %d after %d", ErrCorrupted, r.InternalID, records[i-1].InternalID)
		}
		if err := x.Add(r); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
		}
	}
	return x, nil
}

// Clone returns a copy that can be mutated independently.
func (x *Index) Clone() *Index {
	c := &Index{
		records:  slices.Clone(x.records),
		entities: make(map[int32][]int32, len(x.entities)),
		known:    make(map[int32]map[entityPrice]struct{}, len(x.known)),
		validity: x.validity.Clone(),
		amounts:  x.amounts.Clone(),
	}
	for pk, ids := range x.entities {
		c.entities[pk] = slices.Clone(ids)
	}
	for pk, m := range x.known {
		c.known[pk] = maps.Clone(m)
	}
	return c
}

// Equals reports whether both indexes hold the same prices.
func (x *Index) Equals(other *Index) bool {
	return slices.Equal(x.records, other.records)
}
