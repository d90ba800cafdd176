package codec

import (
	"github.com/hupe1980/idxstore/bitmap"
	"github.com/hupe1980/idxstore/index/facet"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
)

func encodeFacet(p storagepart.Part, _ *Context) ([]byte, error) {
	f := p.(*storagepart.Facet)
	buckets := f.Index.Buckets()

	w := wire.NewWriter(16 + 32*len(buckets))
	writeHeader(w, f)
	w.WriteCount(len(buckets))
	for _, b := range buckets {
		w.WriteBool(b.Grouped)
		if b.Grouped {
			w.WriteVarint(b.Group)
		}
		w.WriteVarint(b.Facet)
		bitmap.Write(w, b.Records)
	}
	return encoded(w)
}

func decodeFacet(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	n := readLen(r)
	buckets := make([]facet.Bucket, 0, n)
	for range n {
		var b facet.Bucket
		b.Grouped = r.ReadBool()
		if b.Grouped {
			b.Group = r.ReadVarint()
		}
		b.Facet = r.ReadVarint()
		b.Records = bitmap.Read(r)
		buckets = append(buckets, b)
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := facet.Restore(buckets)
	if err != nil {
		return nil, err
	}
	return &storagepart.Facet{Header: h, Index: idx}, nil
}
