package bitmap

import "github.com/hupe1980/idxstore/internal/wire"

// Write appends b as a length-prefixed portable Roaring payload.
func Write(w *wire.Writer, b *Bitmap) {
	data, err := b.MarshalBinary()
	if err != nil {
		w.Fail(err)
		return
	}
	w.WriteBytes(data)
}

// Read decodes a bitmap written by Write. Failures are recorded on r.
func Read(r *wire.Reader) *Bitmap {
	data := r.ReadBytes()
	if r.Err() != nil {
		return New()
	}
	b := &Bitmap{}
	if err := b.UnmarshalBinary(data); err != nil {
		r.Fail(err)
		return New()
	}
	return b
}
