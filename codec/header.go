package codec

import (
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
)

func writeHeader(w *wire.Writer, p storagepart.Part) {
	w.WriteVarint(p.ScopeID())
	w.WriteVarlong(p.PK())
	w.WriteVarint(p.KeyID())
}

// readHeader decodes a part identity and checks that the stored PK is the
// one derived from it.
func readHeader(r *wire.Reader) storagepart.Header {
	scope := r.ReadVarint()
	pk := r.ReadVarlong()
	keyID := r.ReadVarint()
	if r.Err() != nil {
		return storagepart.Header{}
	}
	if scope < 0 || keyID < 0 {
		r.Failf("negative part identity %d/%d", scope, keyID)
	}
	h := storagepart.NewHeader(scope, keyID)
	if h.PK() != pk {
		r.Failf("stored part pk %d does not match identity %d/%d", pk, scope, keyID)
	}
	return h
}

func encoded(w *wire.Writer) ([]byte, error) {
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// finish checks that r was fully consumed without errors.
func finish(r *wire.Reader) error {
	r.ExpectEnd()
	return r.Err()
}

// readLen reads a count bounded by the remaining input, assuming every
// element takes at least one byte.
func readLen(r *wire.Reader) int {
	n := r.ReadCount()
	if n > r.Remaining() {
		r.Failf("%d elements exceed remaining %d bytes", n, r.Remaining())
		return 0
	}
	return n
}
