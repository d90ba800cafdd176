// Package codec encodes storage parts to bytes and back.
//
// Every part type has exactly one current codec, used for all writes, and
// any number of legacy codecs that only decode. Legacy codecs bridge old
// layouts into current structures; bytes written by them are never
// produced again.
package codec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/idxstore/keys"
	"github.com/hupe1980/idxstore/storagepart"
)

var (
	// ErrUnknownVersion is returned when no codec is registered for a
	// declared format version.
	ErrUnknownVersion = errors.New("unknown storage part version")
	// ErrWriteForbidden is returned when encoding through a legacy codec.
	ErrWriteForbidden = errors.New("legacy codec cannot encode")
	// ErrPartMismatch is returned when a codec receives a part of another type.
	ErrPartMismatch = errors.New("storage part type mismatch")
)

// CorruptionError reports bytes that do not decode into a valid part.
type CorruptionError struct {
	Type    storagepart.Type
	Version uint16
	Err     error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("codec: corrupted %s part (version %d): %v", e.Type, e.Version, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Context carries the shared collaborators a codec needs.
type Context struct {
	// Keys resolves and registers compressed keys. Legacy decoders that
	// upgrade keys assign new ids through it.
	Keys *keys.Compressor
}

// Codec encodes and decodes one part type at one format version.
type Codec interface {
	Type() storagepart.Type
	Version() uint16
	// Legacy reports whether the codec is decode-only.
	Legacy() bool
	Encode(p storagepart.Part, ctx *Context) ([]byte, error)
	Decode(data []byte, ctx *Context) (storagepart.Part, error)
}

type (
	encodeFunc func(p storagepart.Part, ctx *Context) ([]byte, error)
	decodeFunc func(data []byte, ctx *Context) (storagepart.Part, error)
)

type currentCodec struct {
	typ     storagepart.Type
	version uint16
	encode  encodeFunc
	decode  decodeFunc
}

// Current builds a codec that encodes and decodes.
func Current(t storagepart.Type, version uint16, enc encodeFunc, dec decodeFunc) Codec {
	return &currentCodec{typ: t, version: version, encode: enc, decode: dec}
}

func (c *currentCodec) Type() storagepart.Type { return c.typ }
func (c *currentCodec) Version() uint16        { return c.version }
func (c *currentCodec) Legacy() bool           { return false }

func (c *currentCodec) Encode(p storagepart.Part, ctx *Context) ([]byte, error) {
	if p.Type() != c.typ {
		return nil, fmt.Errorf("%w: %s codec got %s", ErrPartMismatch, c.typ, p.Type())
	}
	return c.encode(p, ctx)
}

func (c *currentCodec) Decode(data []byte, ctx *Context) (storagepart.Part, error) {
	return c.decode(data, ctx)
}

type legacyCodec struct {
	typ     storagepart.Type
	version uint16
	decode  decodeFunc
}

// Legacy builds a decode-only codec.
func Legacy(t storagepart.Type, version uint16, dec decodeFunc) Codec {
	return &legacyCodec{typ: t, version: version, decode: dec}
}

func (c *legacyCodec) Type() storagepart.Type { return c.typ }
func (c *legacyCodec) Version() uint16        { return c.version }
func (c *legacyCodec) Legacy() bool           { return true }

func (c *legacyCodec) Encode(storagepart.Part, *Context) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s version %d", ErrWriteForbidden, c.typ, c.version)
}

func (c *legacyCodec) Decode(data []byte, ctx *Context) (storagepart.Part, error) {
	return c.decode(data, ctx)
}
