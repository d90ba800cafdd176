package codec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/index/rangeindex"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/migration"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/value"
)

var errNoKeys = errors.New("legacy decoding needs a key compressor")

func encodeFilter(p storagepart.Part, _ *Context) ([]byte, error) {
	f := p.(*storagepart.Filter)
	w := wire.NewWriter(64)
	writeHeader(w, f)
	t := f.Index.ValueType()
	value.WriteType(w, t)
	writeValuePoints(w, t, f.Index.Points())

	ri := f.Index.RangeIndex()
	w.WriteBool(ri != nil)
	if ri != nil {
		points := ri.Points()
		w.WriteCount(len(points))
		for _, pt := range points {
			w.WriteVarlong(pt.Threshold)
			bitmap.Write(w, pt.Starts)
			bitmap.Write(w, pt.Ends)
		}
	}
	return encoded(w)
}

func decodeFilter(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	t := value.ReadType(r)
	points := readValuePoints(r, t)

	var stored []rangeindex.Point
	hasRanges := r.ReadBool()
	if hasRanges {
		n := readLen(r)
		stored = make([]rangeindex.Point, 0, n)
		for range n {
			stored = append(stored, rangeindex.Point{
				Threshold: r.ReadVarlong(),
				Starts:    bitmap.Read(r),
				Ends:      bitmap.Read(r),
			})
		}
	}
	if err := finish(r); err != nil {
		return nil, err
	}

	idx, err := attribute.RestoreFilterIndex(t, points, nil)
	if err != nil {
		return nil, err
	}
	if hasRanges != (t == value.TypeRange) {
		return nil, fmt.Errorf("range index presence does not match %s values", t)
	}
	if hasRanges {
		ranges, err := rangeindex.FromPoints(stored)
		if err != nil {
			return nil, err
		}
		if !ranges.Equals(idx.RangeIndex()) {
			return nil, fmt.Errorf("stored range index differs from values")
		}
	}
	return &storagepart.Filter{Header: h, Index: idx}, nil
}

// decodeFilterV1 reads filter parts keyed by a bare attribute key written
// inline instead of a compressed key id. The range index was not
// persisted.
func decodeFilterV1(data []byte, ctx *Context) (storagepart.Part, error) {
	if ctx == nil || ctx.Keys == nil {
		return nil, errNoKeys
	}
	r := wire.NewReader(data)
	scope := r.ReadVarint()
	_ = r.ReadVarlong() // pk of the legacy identity
	legacy := keys.AttributeKey{Name: r.ReadString(), Locale: r.ReadString()}
	t := value.ReadType(r)
	points := readValuePoints(r, t)
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := attribute.RestoreFilterIndex(t, points, nil)
	if err != nil {
		return nil, err
	}
	return storagepart.NewFilter(scope, migration.AttributeKeyID(ctx.Keys, legacy), idx), nil
}

func writeValuePoints(w *wire.Writer, t value.Type, points []attribute.ValuePoint) {
	w.WriteCount(len(points))
	for _, pt := range points {
		value.Write(w, t, pt.Value)
		bitmap.Write(w, pt.Records)
	}
}

func readValuePoints(r *wire.Reader, t value.Type) []attribute.ValuePoint {
	n := readLen(r)
	points := make([]attribute.ValuePoint, 0, n)
	for range n {
		v := value.Read(r, t)
		points = append(points, attribute.ValuePoint{Value: v, Records: bitmap.Read(r)})
	}
	return points
}
