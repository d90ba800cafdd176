package value

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts arbitrary values to and from bytes. Indexes use it for
// TypeAny attributes and never look inside the encoded form.
type Codec interface {
	EncodeValue(v any) ([]byte, error)
	DecodeValue(data []byte, t Type) (any, error)
}

// DefaultCodec is the msgpack based codec.
var DefaultCodec Codec = MsgpackCodec{}

// MsgpackCodec encodes values with msgpack. Map keys are sorted so equal
// values always produce equal bytes.
type MsgpackCodec struct{}

// EncodeValue implements Codec.
func (MsgpackCodec) EncodeValue(v any) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeValue implements Codec. Non-opaque types are normalized after
// decoding.
func (c MsgpackCodec) DecodeValue(data []byte, t Type) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if t == TypeAny || v == nil {
		return v, nil
	}
	return NormalizeWith(c, t, v)
}
