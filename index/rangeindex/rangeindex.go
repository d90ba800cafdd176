// Package rangeindex indexes records by closed int64 intervals.
//
// The index is a list of points ordered by threshold. Each point holds the
// records whose interval starts at the threshold and the records whose
// interval ends there. A record may own several intervals as long as they
// neither overlap nor share a border; AddRecord rejects any that would.
package rangeindex

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/hupe1980/idxstore/bitmap"
)

var (
	// ErrInvalidRange is returned for intervals with from > to.
	ErrInvalidRange = errors.New("invalid range")
	// ErrNotMonotonic is returned when restored thresholds are not strictly increasing.
	ErrNotMonotonic = errors.New("range thresholds are not strictly increasing")
	// ErrOverlap is returned when a record would own two intervals that
	// overlap or share a border.
	ErrOverlap = errors.New("overlapping intervals")
)

// Interval is a closed range [From, To].
type Interval struct {
	From int64
	To   int64
}

// Point is one threshold of the index.
type Point struct {
	Threshold int64
	Starts    *bitmap.Bitmap
	Ends      *bitmap.Bitmap
}

func (p Point) empty() bool {
	return p.Starts.IsEmpty() && p.Ends.IsEmpty()
}

// Index is the interval index. It is not safe for concurrent mutation.
type Index struct {
	points []Point
}

// New creates an empty index.
func New() *Index {
	return &Index{}
}

// FromPoints restores an index from decoded points.
func FromPoints(points []Point) (*Index, error) {
	for i, p := range points {
		if i > 0 && points[i-1].Threshold >= p.Threshold {
			return nil, fmt.Errorf("%w: %d after %d", ErrNotMonotonic, p.Threshold, points[i-1].Threshold)
		}
		if p.empty() {
			return nil, fmt.Errorf("rangeindex: empty point at %d", p.Threshold)
		}
	}
	return &Index{points: points}, nil
}

// Points returns the points in ascending threshold order. The bitmaps are
// shared and must not be modified.
func (x *Index) Points() []Point {
	return slices.Clone(x.points)
}

// Len returns the number of points.
func (x *Index) Len() int {
	return len(x.points)
}

// AddRecord registers the interval [from, to] for record.
func (x *Index) AddRecord(from, to int64, record int32) error {
	if err := bitmap.CheckID(record); err != nil {
		return err
	}
	if from > to {
		return fmt.Errorf("%w: [%d,%d]", ErrInvalidRange, from, to)
	}
	for _, iv := range x.Intervals(record) {
		if iv.From <= to && from <= iv.To {
			return fmt.Errorf("%w: record %d holds [%d,%d], cannot add [%d,%d]", ErrOverlap, record, iv.From, iv.To, from, to)
		}
	}
	x.point(from).Starts.Add(record)
	x.point(to).Ends.Add(record)
	return nil
}

// RemoveRecord unregisters the interval [from, to] of record and reports
// whether record held it.
func (x *Index) RemoveRecord(from, to int64, record int32) bool {
	if !slices.Contains(x.Intervals(record), Interval{From: from, To: to}) {
		return false
	}
	if i, ok := x.find(from); ok {
		x.points[i].Starts.Remove(record)
		x.prune(i)
	}
	if i, ok := x.find(to); ok {
		x.points[i].Ends.Remove(record)
		x.prune(i)
	}
	return true
}

// Intervals returns the intervals of record in ascending order.
func (x *Index) Intervals(record int32) []Interval {
	var (
		out  []Interval
		from int64
		open bool
	)
	for _, p := range x.points {
		if p.Starts.Contains(record) {
			from, open = p.Threshold, true
		}
		if open && p.Ends.Contains(record) {
			out = append(out, Interval{From: from, To: p.Threshold})
			open = false
		}
	}
	return out
}

// Contains reports whether record has any interval in the index.
func (x *Index) Contains(record int32) bool {
	for _, p := range x.points {
		if p.Starts.Contains(record) || p.Ends.Contains(record) {
			return true
		}
	}
	return false
}

// AllRecords returns every record that owns an interval.
func (x *Index) AllRecords() *bitmap.Bitmap {
	starts := make([]*bitmap.Bitmap, len(x.points))
	for i, p := range x.points {
		starts[i] = p.Starts
	}
	return bitmap.Or(starts...)
}

// RecordsOverlapping returns records with an interval sharing at least one
// value with [from, to]. Both bounds are inclusive.
func (x *Index) RecordsOverlapping(from, to int64) *bitmap.Bitmap {
	if from > to {
		return bitmap.New()
	}
	lo := sort.Search(len(x.points), func(i int) bool { return x.points[i].Threshold >= from })
	hi := sort.Search(len(x.points), func(i int) bool { return x.points[i].Threshold > to })

	// intervals started before from and still open at from
	open := bitmap.New()
	for _, p := range x.points[:lo] {
		for id := range p.Starts.All() {
			open.Add(id)
		}
		for id := range p.Ends.All() {
			open.Remove(id)
		}
	}

	parts := []*bitmap.Bitmap{open}
	for _, p := range x.points[lo:hi] {
		parts = append(parts, p.Starts, p.Ends)
	}
	return bitmap.Or(parts...)
}

// RecordsFrom returns records with an interval reaching threshold or beyond.
func (x *Index) RecordsFrom(threshold int64) *bitmap.Bitmap {
	return x.RecordsOverlapping(threshold, math.MaxInt64)
}

// RecordsTo returns records with an interval reaching threshold or below.
func (x *Index) RecordsTo(threshold int64) *bitmap.Bitmap {
	return x.RecordsOverlapping(math.MinInt64, threshold)
}

// RecordsEnveloping returns records with an interval containing threshold.
func (x *Index) RecordsEnveloping(threshold int64) *bitmap.Bitmap {
	return x.RecordsOverlapping(threshold, threshold)
}

// Clone returns a copy that can be mutated independently.
func (x *Index) Clone() *Index {
	points := make([]Point, len(x.points))
	for i, p := range x.points {
		points[i] = Point{Threshold: p.Threshold, Starts: p.Starts.Clone(), Ends: p.Ends.Clone()}
	}
	return &Index{points: points}
}

// Equals reports whether both indexes hold the same points.
func (x *Index) Equals(other *Index) bool {
	return slices.EqualFunc(x.points, other.points, func(a, b Point) bool {
		return a.Threshold == b.Threshold && a.Starts.Equals(b.Starts) && a.Ends.Equals(b.Ends)
	})
}

func (x *Index) find(threshold int64) (int, bool) {
	return slices.BinarySearchFunc(x.points, threshold, func(p Point, t int64) int {
		switch {
		case p.Threshold < t:
			return -1
		case p.Threshold > t:
			return 1
		}
		return 0
	})
}

func (x *Index) point(threshold int64) *Point {
	i, ok := x.find(threshold)
	if !ok {
		x.points = slices.Insert(x.points, i, Point{
			Threshold: threshold,
			Starts:    bitmap.New(),
			Ends:      bitmap.New(),
		})
	}
	return &x.points[i]
}

func (x *Index) prune(i int) {
	if x.points[i].empty() {
		x.points = slices.Delete(x.points, i, i+1)
	}
}
