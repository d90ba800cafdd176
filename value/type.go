// Package value defines the attribute value types the indexes understand,
// their total ordering and their binary encoding.
//
// Every indexed value is held as one of a small set of canonical Go types:
//
//	TypeInt     int64
//	TypeFloat   float64
//	TypeString  string
//	TypeBool    bool
//	TypeDate    time.Time (UTC, no monotonic reading)
//	TypeEnum    Enum
//	TypeRange   Range
//	TypeLocale  Locale
//	TypeAny     Opaque (bytes produced by a Codec)
//
// Normalize converts caller supplied values into the canonical form.
package value

import (
	"errors"
	"fmt"
)

// Type is the value type tag written in front of encoded values.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
	TypeDate
	TypeEnum
	TypeRange
	TypeLocale
	TypeAny
)

var typeNames = [...]string{
	TypeUnknown: "unknown",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeBool:    "bool",
	TypeDate:    "date",
	TypeEnum:    "enum",
	TypeRange:   "range",
	TypeLocale:  "locale",
	TypeAny:     "any",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Valid reports whether t is a known, concrete type.
func (t Type) Valid() bool {
	return t > TypeUnknown && t <= TypeAny
}

// ParseType returns the type with the given name.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name && Type(i) != TypeUnknown {
			return Type(i), nil
		}
	}
	return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

var (
	// ErrUnknownType is returned for unregistered type tags.
	ErrUnknownType = errors.New("unknown value type")
	// ErrTypeMismatch is returned when a value does not fit the declared type.
	ErrTypeMismatch = errors.New("value type mismatch")
)

// Enum is an enumeration constant stored by name.
type Enum string

// Locale is a BCP 47 language tag.
type Locale string

// Range is a closed interval of int64 bounds.
type Range struct {
	From int64
	To   int64
}

// Contains reports whether x lies within the range.
func (r Range) Contains(x int64) bool {
	return r.From <= x && x <= r.To
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.From, r.To)
}

// Opaque is a value the index layer only compares and stores.
// It holds the bytes produced by a Codec.
type Opaque string

// Bytes returns the encoded payload.
func (o Opaque) Bytes() []byte { return []byte(o) }
