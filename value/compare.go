package value

import (
	"cmp"
	"strings"
	"time"
)

// Compare orders two canonical values of the same type.
// nil sorts before every non-nil value. Values of different types are
// ordered by their type tag.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case Enum:
		if y, ok := b.(Enum); ok {
			return strings.Compare(string(x), string(y))
		}
	case Range:
		if y, ok := b.(Range); ok {
			if c := cmp.Compare(x.From, y.From); c != 0 {
				return c
			}
			return cmp.Compare(x.To, y.To)
		}
	case Locale:
		if y, ok := b.(Locale); ok {
			return strings.Compare(string(x), string(y))
		}
	case Opaque:
		if y, ok := b.(Opaque); ok {
			return strings.Compare(string(x), string(y))
		}
	case Tuple:
		if y, ok := b.(Tuple); ok {
			return compareTuples(x, y)
		}
	}
	return cmp.Compare(TypeOf(a), TypeOf(b))
}

// Equal reports whether a and b are the same canonical value.
func Equal(a, b any) bool {
	return Compare(a, b) == 0 && TypeOf(a) == TypeOf(b)
}

func compareTuples(a, b Tuple) int {
	for i := range min(len(a), len(b)) {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}
