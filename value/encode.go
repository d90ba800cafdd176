package value

import (
	"fmt"
	"time"

	"github.com/hupe1980/idxstore/internal/wire"
)

// Write encodes a non-nil canonical value of type t without a type tag.
func Write(w *wire.Writer, t Type, v any) {
	switch t {
	case TypeInt:
		x, ok := v.(int64)
		if !ok {
			break
		}
		w.WriteVarlong(x)
		return
	case TypeFloat:
		x, ok := v.(float64)
		if !ok {
			break
		}
		if x == 0 {
			x = 0 // -0 and +0 encode alike
		}
		w.WriteFloat64(x)
		return
	case TypeString:
		x, ok := v.(string)
		if !ok {
			break
		}
		w.WriteString(x)
		return
	case TypeBool:
		x, ok := v.(bool)
		if !ok {
			break
		}
		w.WriteBool(x)
		return
	case TypeDate:
		x, ok := v.(time.Time)
		if !ok {
			break
		}
		w.WriteVarlong(x.Unix())
		w.WriteVarint(int32(x.Nanosecond()))
		return
	case TypeEnum:
		x, ok := v.(Enum)
		if !ok {
			break
		}
		w.WriteString(string(x))
		return
	case TypeRange:
		x, ok := v.(Range)
		if !ok {
			break
		}
		w.WriteVarlong(x.From)
		w.WriteVarlong(x.To)
		return
	case TypeLocale:
		x, ok := v.(Locale)
		if !ok {
			break
		}
		w.WriteString(string(x))
		return
	case TypeAny:
		x, ok := v.(Opaque)
		if !ok {
			break
		}
		w.WriteString(string(x))
		return
	default:
		w.Fail(fmt.Errorf("%w: %s", ErrUnknownType, t))
		return
	}
	w.Fail(fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, t))
}

// Read decodes a value of type t written by Write.
func Read(r *wire.Reader, t Type) any {
	switch t {
	case TypeInt:
		return r.ReadVarlong()
	case TypeFloat:
		return r.ReadFloat64()
	case TypeString:
		return r.ReadString()
	case TypeBool:
		return r.ReadBool()
	case TypeDate:
		sec := r.ReadVarlong()
		nsec := r.ReadVarint()
		if nsec < 0 || nsec >= 1e9 {
			r.Failf("date nanoseconds %d out of range", nsec)
			return nil
		}
		return time.Unix(sec, int64(nsec)).UTC()
	case TypeEnum:
		return Enum(r.ReadString())
	case TypeRange:
		from := r.ReadVarlong()
		to := r.ReadVarlong()
		if r.Err() == nil && from > to {
			r.Failf("inverted range [%d,%d]", from, to)
		}
		return Range{From: from, To: to}
	case TypeLocale:
		return Locale(r.ReadString())
	case TypeAny:
		return Opaque(r.ReadString())
	}
	r.Failf("unknown value type %d", t)
	return nil
}

// WriteType writes a type tag.
func WriteType(w *wire.Writer, t Type) {
	_ = w.WriteByte(byte(t))
}

// ReadType reads a type tag and validates it.
func ReadType(r *wire.Reader) Type {
	b, err := r.ReadByte()
	if err != nil {
		return TypeUnknown
	}
	t := Type(b)
	if !t.Valid() {
		r.Failf("unknown value type %d", b)
		return TypeUnknown
	}
	return t
}

// WriteNullable writes a presence marker followed by v if it is non-nil.
func WriteNullable(w *wire.Writer, t Type, v any) {
	w.WriteBool(v != nil)
	if v != nil {
		Write(w, t, v)
	}
}

// ReadNullable reads a value written by WriteNullable.
func ReadNullable(r *wire.Reader, t Type) any {
	if !r.ReadBool() {
		return nil
	}
	return Read(r, t)
}

// Key returns a string usable as a map key that is equal for equal values.
func Key(t Type, v any) string {
	w := wire.NewWriter(16)
	WriteNullable(w, t, v)
	return string(w.Bytes())
}
