package codec

import (
	"github.com/hupe1980/idxstore/index/price"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
)

func encodePrice(p storagepart.Part, _ *Context) ([]byte, error) {
	x := p.(*storagepart.Price)
	records := x.Index.Records()

	w := wire.NewWriter(16 + 24*len(records))
	writeHeader(w, x)
	w.WriteCount(len(records))
	for _, r := range records {
		w.WriteVarint(r.InternalID)
		w.WriteVarint(r.PriceID)
		w.WriteVarint(r.EntityPK)
		w.WriteVarint(r.InnerRecordID)
		w.WriteVarlong(r.WithoutTax)
		w.WriteVarlong(r.WithTax)
		bounded := r.Validity.Bounded()
		w.WriteBool(bounded)
		if bounded {
			w.WriteVarlong(r.Validity.From)
			w.WriteVarlong(r.Validity.To)
		}
	}
	return encoded(w)
}

func decodePrice(data []byte, _ *Context) (storagepart.Part, error) {
	r := wire.NewReader(data)
	h := readHeader(r)
	n := readLen(r)
	records := make([]price.Record, 0, n)
	for range n {
		rec := price.Record{
			InternalID:    r.ReadVarint(),
			PriceID:       r.ReadVarint(),
			EntityPK:      r.ReadVarint(),
			InnerRecordID: r.ReadVarint(),
			WithoutTax:    r.ReadVarlong(),
			WithTax:       r.ReadVarlong(),
			Validity:      price.Always(),
		}
		if r.ReadBool() {
			rec.Validity = price.Validity{From: r.ReadVarlong(), To: r.ReadVarlong()}
		}
		records = append(records, rec)
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	idx, err := price.Restore(records)
	if err != nil {
		return nil, err
	}
	return &storagepart.Price{Header: h, Index: idx}, nil
}
