package codec

import (
	"maps"
	"slices"

	"github.com/hupe1980/idxstore/index/attribute"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/value"
)

func encodeUnique(p storagepart.Part, _ *Context) ([]byte, error) {
	u := p.(*storagepart.Unique)
	t := u.Index.ValueType()
	entries := u.Index.Entries()

	w := wire.NewWriter(32 + 16*len(entries))
	writeHeader(w, u)
	w.WriteString(u.Index.Name())
	value.WriteType(w, t)
	w.WriteCount(len(entries))
	for _, e := range entries {
		value.Write(w, t, e.Value)
		w.WriteVarint(e.Record)
	}
	return encoded(w)
}

func decodeUnique(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	name := r.ReadString()
	t := value.ReadType(r)
	n := readLen(r)
	entries := make([]attribute.UniqueEntry, 0, n)
	for range n {
		v := value.Read(r, t)
		entries = append(entries, attribute.UniqueEntry{Value: v, Record: r.ReadVarint()})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := attribute.RestoreUniqueIndex(name, t, entries)
	if err != nil {
		return nil, err
	}
	return &storagepart.Unique{Header: h, Index: idx}, nil
}

func encodeGlobalUnique(p storagepart.Part, _ *Context) ([]byte, error) {
	g := p.(*storagepart.GlobalUnique)
	t := g.Index.ValueType()
	locales := g.Index.LocaleIndex()
	entries := g.Index.Entries()

	w := wire.NewWriter(32 + 24*len(entries))
	writeHeader(w, g)
	w.WriteString(g.Index.Name())
	value.WriteType(w, t)
	w.WriteCount(len(locales))
	for _, id := range slices.Sorted(maps.Keys(locales)) {
		w.WriteVarint(id)
		w.WriteString(string(locales[id]))
	}
	w.WriteCount(len(entries))
	for _, e := range entries {
		value.Write(w, t, e.Value)
		w.WriteVarint(e.Record.EntityType)
		w.WriteVarint(e.Record.PK)
		w.WriteVarint(e.Record.LocaleID)
	}
	return encoded(w)
}

func decodeGlobalUnique(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	name := r.ReadString()
	t := value.ReadType(r)
	nl := readLen(r)
	locales := make(map[int32]value.Locale, nl)
	for range nl {
		id := r.ReadVarint()
		if _, dup := locales[id]; dup {
			r.Failf("locale id %d stored twice", id)
		}
		locales[id] = value.Locale(r.ReadString())
	}
	n := readLen(r)
	entries := make([]attribute.GlobalEntry, 0, n)
	for range n {
		v := value.Read(r, t)
		entries = append(entries, attribute.GlobalEntry{Value: v, Record: attribute.GlobalRecord{
			EntityType: r.ReadVarint(),
			PK:         r.ReadVarint(),
			LocaleID:   r.ReadVarint(),
		}})
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := attribute.RestoreGlobalUniqueIndex(name, t, entries, locales)
	if err != nil {
		return nil, err
	}
	return &storagepart.GlobalUnique{Header: h, Index: idx}, nil
}
