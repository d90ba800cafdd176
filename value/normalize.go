package value

import (
	"fmt"
	"math"
	"time"
)

// Normalize converts v into the canonical representation for t using the
// default codec for opaque values. A nil v stays nil.
func Normalize(t Type, v any) (any, error) {
	return NormalizeWith(DefaultCodec, t, v)
}

// NormalizeWith is Normalize with an explicit codec for TypeAny values.
func NormalizeWith(codec Codec, t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInt:
		if i, ok := toInt64(v); ok {
			return i, nil
		}
	case TypeFloat:
		x, ok := toFloat64(v)
		if !ok {
			break
		}
		if math.IsNaN(x) {
			return nil, fmt.Errorf("%w: NaN is not indexable", ErrTypeMismatch)
		}
		if x == 0 {
			return 0.0, nil // -0
		}
		return x, nil
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeDate:
		if d, ok := v.(time.Time); ok {
			return d.UTC().Round(0), nil
		}
	case TypeEnum:
		switch x := v.(type) {
		case Enum:
			return x, nil
		case string:
			return Enum(x), nil
		case fmt.Stringer:
			return Enum(x.String()), nil
		}
	case TypeRange:
		if r, ok := v.(Range); ok {
			if r.From > r.To {
				return nil, fmt.Errorf("%w: inverted range %s", ErrTypeMismatch, r)
			}
			return r, nil
		}
	case TypeLocale:
		switch x := v.(type) {
		case Locale:
			return x, nil
		case string:
			return Locale(x), nil
		}
	case TypeAny:
		if o, ok := v.(Opaque); ok {
			return o, nil
		}
		data, err := codec.EncodeValue(v)
		if err != nil {
			return nil, err
		}
		return Opaque(data), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return nil, fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, t)
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), true
		}
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), true
		}
	}
	return 0, false
}

// TypeOf infers the type of a canonical value.
func TypeOf(v any) Type {
	switch v.(type) {
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case string:
		return TypeString
	case bool:
		return TypeBool
	case time.Time:
		return TypeDate
	case Enum:
		return TypeEnum
	case Range:
		return TypeRange
	case Locale:
		return TypeLocale
	case Opaque:
		return TypeAny
	}
	return TypeUnknown
}
