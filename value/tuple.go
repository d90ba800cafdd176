package value

import (
	"fmt"
	"strings"

	"github.com/hupe1980/idxstore/internal/wire"
)

// Tuple is a composite value with one element per sort axis.
// Elements may be nil.
type Tuple []any

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		if v == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// WriteTuple encodes a tuple element by element with null markers.
func WriteTuple(w *wire.Writer, types []Type, t Tuple) {
	if len(t) != len(types) {
		w.Fail(fmt.Errorf("%w: tuple has %d elements, want %d", ErrTypeMismatch, len(t), len(types)))
		return
	}
	for i, typ := range types {
		WriteNullable(w, typ, t[i])
	}
}

// ReadTuple decodes a tuple written by WriteTuple.
func ReadTuple(r *wire.Reader, types []Type) Tuple {
	t := make(Tuple, len(types))
	for i, typ := range types {
		t[i] = ReadNullable(r, typ)
	}
	return t
}

// TupleKey returns a map key for a tuple.
func TupleKey(types []Type, t Tuple) string {
	w := wire.NewWriter(16 * len(types))
	WriteTuple(w, types, t)
	return string(w.Bytes())
}
