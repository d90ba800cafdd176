package codec

import (
	"github.com/hupe1980/idxstore/index/cardinality"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/value"
)

func encodeAttributeCardinality(p storagepart.Part, _ *Context) ([]byte, error) {
	c := p.(*storagepart.AttributeCardinality)
	t := c.Index.ValueType()
	entries := c.Index.Entries()

	w := wire.NewWriter(16 + 16*len(entries))
	writeHeader(w, c)
	value.WriteType(w, t)
	w.WriteCount(len(entries))
	for _, e := range entries {
		value.Write(w, t, e.Value)
		w.WriteVarint(e.Record)
		w.WriteCount(e.Count)
	}
	return encoded(w)
}

func decodeAttributeCardinality(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	t := value.ReadType(r)
	n := readLen(r)
	entries := make([]cardinality.AttributeEntry, 0, n)
	for range n {
		v := value.Read(r, t)
		entries = append(entries, cardinality.AttributeEntry{Value: v, Record: r.ReadVarint(), Count: r.ReadCount()})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := cardinality.RestoreAttributeIndex(t, entries)
	if err != nil {
		return nil, err
	}
	return &storagepart.AttributeCardinality{Header: h, Index: idx}, nil
}

func encodeReferenceCardinality(p storagepart.Part, _ *Context) ([]byte, error) {
	c := p.(*storagepart.ReferenceCardinality)
	entries := c.Index.Entries()

	w := wire.NewWriter(16 + 8*len(entries))
	writeHeader(w, c)
	w.WriteCount(len(entries))
	for _, e := range entries {
		w.WriteVarint(e.Record)
		w.WriteCount(e.Count)
	}
	return encoded(w)
}

func decodeReferenceCardinality(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	n := readLen(r)
	entries := make([]cardinality.RecordCount, 0, n)
	for range n {
		entries = append(entries, cardinality.RecordCount{Record: r.ReadVarint(), Count: r.ReadCount()})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := cardinality.RestoreReferenceTypeIndex(entries)
	if err != nil {
		return nil, err
	}
	return &storagepart.ReferenceCardinality{Header: h, Index: idx}, nil
}
