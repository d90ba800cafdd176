package codec

import (
	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/migration"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/value"
)

func encodeSort(p storagepart.Part, _ *Context) ([]byte, error) {
	s := p.(*storagepart.Sort)
	axes := s.Index.Axes()
	types := axisTypes(axes)

	w := wire.NewWriter(64)
	writeHeader(w, s)
	w.WriteCount(len(axes))
	for _, a := range axes {
		value.WriteType(w, a.Type)
		_ = w.WriteByte(byte(a.Direction))
		_ = w.WriteByte(byte(a.Nulls))
	}
	w.WriteInt32s(s.Index.SortedRecords())
	for _, t := range s.Index.SortedValues() {
		value.WriteTuple(w, types, t)
	}
	counts := s.Index.DistinctValues()
	w.WriteCount(len(counts))
	for _, c := range counts {
		value.WriteTuple(w, types, c.Value)
		w.WriteCount(c.Count)
	}
	return encoded(w)
}

func decodeSort(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	n := readLen(r)
	axes := make([]attribute.SortAxis, 0, n)
	for range n {
		t := value.ReadType(r)
		dir, _ := r.ReadByte()
		nulls, _ := r.ReadByte()
		if dir > byte(attribute.Descending) || nulls > byte(attribute.NullsFirst) {
			r.Failf("invalid sort axis %d/%d", dir, nulls)
		}
		axes = append(axes, attribute.SortAxis{Type: t, Direction: attribute.Direction(dir), Nulls: attribute.Nulls(nulls)})
	}
	types := axisTypes(axes)
	records := r.ReadInt32s()
	values := make([]value.Tuple, 0, len(records))
	for range records {
		values = append(values, value.ReadTuple(r, types))
	}
	m := readLen(r)
	counts := make([]attribute.ValueCount, 0, m)
	for range m {
		counts = append(counts, attribute.ValueCount{Value: value.ReadTuple(r, types), Count: r.ReadCount()})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := attribute.RestoreSortIndex(axes, records, values, counts)
	if err != nil {
		return nil, err
	}
	return &storagepart.Sort{Header: h, Index: idx}, nil
}

// decodeSortV1 reads single-attribute sort parts: one type tag, the sorted
// records and their non-null values. Cardinalities are recomputed.
func decodeSortV1(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	t := value.ReadType(r)
	records := r.ReadInt32s()
	values := make([]value.Tuple, 0, len(records))
	for range records {
		values = append(values, value.Tuple{value.Read(r, t)})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := attribute.RestoreSortIndex([]attribute.SortAxis{migration.LegacySortAxis(t)}, records, values, nil)
	if err != nil {
		return nil, err
	}
	return &storagepart.Sort{Header: h, Index: idx}, nil
}

func axisTypes(axes []attribute.SortAxis) []value.Type {
	types := make([]value.Type, len(axes))
	for i, a := range axes {
		types[i] = a.Type
	}
	return types
}
