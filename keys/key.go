// Package keys holds the structured keys that identify index structures and
// the Compressor that maps them to small stable integer ids.
package keys

import (
	"errors"
	"fmt"

	"github.com/hupe1980/idxstore/internal/wire"
)

// Kind discriminates key variants on the wire.
type Kind uint8

const (
	// KindAttribute is the bare attribute key written by old formats.
	KindAttribute Kind = iota + 1
	KindAttributeIndex
	KindPriceIndex
	KindReferenceName
	KindEntityType
)

func (k Kind) String() string {
	switch k {
	case KindAttribute:
		return "attribute"
	case KindAttributeIndex:
		return "attribute-index"
	case KindPriceIndex:
		return "price-index"
	case KindReferenceName:
		return "reference-name"
	case KindEntityType:
		return "entity-type"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Key is a structured key. All implementations are comparable values.
type Key interface {
	Kind() Kind
	String() string
	write(w *wire.Writer)
}

// AttributeKey is an attribute name with an optional locale. It is only
// produced when decoding legacy data; current structures are keyed by
// AttributeIndexKey.
type AttributeKey struct {
	Name   string
	Locale string
}

func (AttributeKey) Kind() Kind { return KindAttribute }

func (k AttributeKey) String() string {
	if k.Locale == "" {
		return k.Name
	}
	return k.Name + ":" + k.Locale
}

func (k AttributeKey) write(w *wire.Writer) {
	w.WriteString(k.Name)
	w.WriteString(k.Locale)
}

// AttributeIndexKey identifies an attribute index. ReferenceName is empty
// for entity attributes and names the reference for reference attributes.
type AttributeIndexKey struct {
	ReferenceName string
	AttributeName string
	Locale        string
}

func (AttributeIndexKey) Kind() Kind { return KindAttributeIndex }

func (k AttributeIndexKey) String() string {
	s := k.AttributeName
	if k.ReferenceName != "" {
		s = k.ReferenceName + "." + s
	}
	if k.Locale != "" {
		s += ":" + k.Locale
	}
	return s
}

func (k AttributeIndexKey) write(w *wire.Writer) {
	w.WriteString(k.ReferenceName)
	w.WriteString(k.AttributeName)
	w.WriteString(k.Locale)
}

// InnerRecordHandling controls how prices of inner records are combined.
type InnerRecordHandling uint8

const (
	InnerRecordNone InnerRecordHandling = iota
	InnerRecordLowestPrice
	InnerRecordSum
	InnerRecordUnknown
)

func (h InnerRecordHandling) String() string {
	switch h {
	case InnerRecordNone:
		return "NONE"
	case InnerRecordLowestPrice:
		return "LOWEST_PRICE"
	case InnerRecordSum:
		return "SUM"
	}
	return "UNKNOWN"
}

// PriceIndexKey identifies a price index.
type PriceIndexKey struct {
	PriceList           string
	Currency            string
	InnerRecordHandling InnerRecordHandling
}

func (PriceIndexKey) Kind() Kind { return KindPriceIndex }

func (k PriceIndexKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.PriceList, k.Currency, k.InnerRecordHandling)
}

func (k PriceIndexKey) write(w *wire.Writer) {
	w.WriteString(k.PriceList)
	w.WriteString(k.Currency)
	_ = w.WriteByte(byte(k.InnerRecordHandling))
}

// ReferenceNameKey identifies per-reference structures.
type ReferenceNameKey struct {
	Name string
}

func (ReferenceNameKey) Kind() Kind { return KindReferenceName }

func (k ReferenceNameKey) String() string { return "ref:" + k.Name }

func (k ReferenceNameKey) write(w *wire.Writer) { w.WriteString(k.Name) }

// EntityTypeKey identifies an entity collection.
type EntityTypeKey struct {
	EntityType string
}

func (EntityTypeKey) Kind() Kind { return KindEntityType }

func (k EntityTypeKey) String() string { return "type:" + k.EntityType }

func (k EntityTypeKey) write(w *wire.Writer) { w.WriteString(k.EntityType) }

// Write encodes k with its kind tag.
func Write(w *wire.Writer, k Key) {
	if k == nil {
		w.Fail(errNilKey)
		return
	}
	_ = w.WriteByte(byte(k.Kind()))
	k.write(w)
}

// Read decodes a key written by Write.
func Read(r *wire.Reader) Key {
	b, err := r.ReadByte()
	if err != nil {
		return nil
	}
	switch Kind(b) {
	case KindAttribute:
		return AttributeKey{Name: r.ReadString(), Locale: r.ReadString()}
	case KindAttributeIndex:
		return AttributeIndexKey{
			ReferenceName: r.ReadString(),
			AttributeName: r.ReadString(),
			Locale:        r.ReadString(),
		}
	case KindPriceIndex:
		k := PriceIndexKey{PriceList: r.ReadString(), Currency: r.ReadString()}
		h, _ := r.ReadByte()
		if h > byte(InnerRecordUnknown) {
			r.Failf("invalid inner record handling %d", h)
		}
		k.InnerRecordHandling = InnerRecordHandling(h)
		return k
	case KindReferenceName:
		return ReferenceNameKey{Name: r.ReadString()}
	case KindEntityType:
		return EntityTypeKey{EntityType: r.ReadString()}
	}
	r.Failf("unknown key kind %d", b)
	return nil
}

var errNilKey = errors.New("keys: nil key")
