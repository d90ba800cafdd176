package bitmap

import (
	"errors"
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	gojson "github.com/goccy/go-json"
)

var (
	// ErrCorrupted is returned when a serialized bitmap cannot be decoded.
	ErrCorrupted = errors.New("corrupted bitmap")
	// ErrNegativeID is returned for record ids a bitmap cannot hold.
	ErrNegativeID = errors.New("negative record id")
)

// CheckID returns ErrNegativeID when id cannot be stored. Index entry points
// call it before mutating anything.
func CheckID(id int32) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeID, id)
	}
	return nil
}

// Bitmap is a compressed set of record ids.
// The zero value is not usable; use New.
type Bitmap struct {
	rb *roaring.Bitmap
}

func newRoaring() *roaring.Bitmap {
	rb := roaring.New()
	rb.SetCopyOnWrite(true)
	return rb
}

// New creates a bitmap holding the given ids.
func New(ids ...int32) *Bitmap {
	b := &Bitmap{rb: newRoaring()}
	for _, id := range ids {
		b.Add(id)
	}
	return b
}

// FromSorted creates a bitmap from ids that are already ascending.
func FromSorted(ids []int32) *Bitmap {
	b := &Bitmap{rb: newRoaring()}
	u := make([]uint32, len(ids))
	for i, id := range ids {
		u[i] = uint32(id)
	}
	b.rb.AddMany(u)
	return b
}

// Add adds id to the bitmap. Ids must be non-negative.
func (b *Bitmap) Add(id int32) {
	if id < 0 {
		panic(fmt.Sprintf("bitmap: negative record id %d", id))
	}
	b.rb.Add(uint32(id))
}

// CheckedAdd adds id and reports whether it was absent.
func (b *Bitmap) CheckedAdd(id int32) bool {
	if id < 0 {
		panic(fmt.Sprintf("bitmap: negative record id %d", id))
	}
	return b.rb.CheckedAdd(uint32(id))
}

// Remove removes id from the bitmap.
func (b *Bitmap) Remove(id int32) {
	if id < 0 {
		return
	}
	b.rb.Remove(uint32(id))
}

// CheckedRemove removes id and reports whether it was present.
func (b *Bitmap) CheckedRemove(id int32) bool {
	if id < 0 {
		return false
	}
	return b.rb.CheckedRemove(uint32(id))
}

// Contains reports whether id is in the bitmap.
func (b *Bitmap) Contains(id int32) bool {
	if b == nil || id < 0 {
		return false
	}
	return b.rb.Contains(uint32(id))
}

// IsEmpty returns true if the bitmap holds no ids.
func (b *Bitmap) IsEmpty() bool {
	return b == nil || b.rb.IsEmpty()
}

// Cardinality returns the number of ids in the bitmap.
func (b *Bitmap) Cardinality() int {
	if b == nil {
		return 0
	}
	return int(b.rb.GetCardinality())
}

// First returns the smallest id.
func (b *Bitmap) First() (int32, bool) {
	if b.IsEmpty() {
		return 0, false
	}
	return int32(b.rb.Minimum()), true
}

// ToArray returns the ids in ascending order.
func (b *Bitmap) ToArray() []int32 {
	if b == nil {
		return nil
	}
	out := make([]int32, 0, b.rb.GetCardinality())
	it := b.rb.Iterator()
	for it.HasNext() {
		out = append(out, int32(it.Next()))
	}
	return out
}

// All iterates the ids in ascending order.
func (b *Bitmap) All() iter.Seq[int32] {
	return func(yield func(int32) bool) {
		if b == nil {
			return
		}
		it := b.rb.Iterator()
		for it.HasNext() {
			if !yield(int32(it.Next())) {
				return
			}
		}
	}
}

// Clone returns a copy sharing containers until either side is modified.
func (b *Bitmap) Clone() *Bitmap {
	if b == nil {
		return New()
	}
	c := b.rb.Clone()
	c.SetCopyOnWrite(true)
	return &Bitmap{rb: c}
}

// Equals reports whether both bitmaps hold the same ids.
func (b *Bitmap) Equals(other *Bitmap) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return b.IsEmpty() && other.IsEmpty()
	}
	return b.rb.Equals(other.rb)
}

// GetSizeInBytes returns the estimated serialized size.
func (b *Bitmap) GetSizeInBytes() uint64 {
	return b.rb.GetSerializedSizeInBytes()
}

func (b *Bitmap) String() string {
	return fmt.Sprint(b.ToArray())
}

// Or returns the union of the bitmaps.
func Or(bitmaps ...*Bitmap) *Bitmap {
	rbs := make([]*roaring.Bitmap, 0, len(bitmaps))
	for _, b := range bitmaps {
		if !b.IsEmpty() {
			rbs = append(rbs, b.rb)
		}
	}
	switch len(rbs) {
	case 0:
		return New()
	case 1:
		return (&Bitmap{rb: rbs[0]}).Clone()
	}
	out := roaring.FastOr(rbs...)
	out.SetCopyOnWrite(true)
	return &Bitmap{rb: out}
}

// And returns the intersection of the bitmaps.
func And(bitmaps ...*Bitmap) *Bitmap {
	if len(bitmaps) == 0 {
		return New()
	}
	rbs := make([]*roaring.Bitmap, 0, len(bitmaps))
	for _, b := range bitmaps {
		if b.IsEmpty() {
			return New()
		}
		rbs = append(rbs, b.rb)
	}
	if len(rbs) == 1 {
		return (&Bitmap{rb: rbs[0]}).Clone()
	}
	out := roaring.FastAnd(rbs...)
	out.SetCopyOnWrite(true)
	return &Bitmap{rb: out}
}

// AndNot returns the ids of a that are not in b.
func AndNot(a, b *Bitmap) *Bitmap {
	if a.IsEmpty() {
		return New()
	}
	if b.IsEmpty() {
		return a.Clone()
	}
	out := roaring.AndNot(a.rb, b.rb)
	out.SetCopyOnWrite(true)
	return &Bitmap{rb: out}
}

// MarshalBinary encodes the bitmap in the portable Roaring format.
// Run containers are introduced where they are smaller.
func (b *Bitmap) MarshalBinary() ([]byte, error) {
	if b == nil {
		return New().MarshalBinary()
	}
	rb := b.rb.Clone()
	rb.RunOptimize()
	return rb.ToBytes()
}

// UnmarshalBinary decodes a bitmap written by MarshalBinary.
func (b *Bitmap) UnmarshalBinary(data []byte) (err error) {
	defer func() {
		// roaring panics on some malformed container headers
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCorrupted, r)
		}
	}()
	rb := roaring.New()
	if _, err := rb.FromUnsafeBytes(append([]byte(nil), data...)); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	if rb.GetCardinality() > 0 && rb.Maximum() > 1<<31-1 {
		return fmt.Errorf("%w: record id %d out of range", ErrCorrupted, rb.Maximum())
	}
	rb.SetCopyOnWrite(true)
	b.rb = rb
	return nil
}

// MarshalJSON encodes the bitmap as a sorted array of record ids.
func (b *Bitmap) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return gojson.Marshal(b.ToArray())
}

// UnmarshalJSON decodes an array of record ids.
func (b *Bitmap) UnmarshalJSON(data []byte) error {
	var ids []int32
	if err := gojson.Unmarshal(data, &ids); err != nil {
		return err
	}
	b.rb = newRoaring()
	for _, id := range ids {
		if id < 0 {
			return fmt.Errorf("%w: negative record id %d", ErrCorrupted, id)
		}
		b.rb.Add(uint32(id))
	}
	return nil
}
