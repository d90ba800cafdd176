// Package compress frames store records with an optional block compression.
//
// A frame is [algorithm byte][uvarint raw length][payload]. Frames are
// self-describing, so readers do not need to know which algorithm the
// writer was configured with.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrCorrupted is returned when a frame cannot be decompressed.
var ErrCorrupted = errors.New("corrupted compressed frame")

// maxRawLength bounds the declared raw size of a frame.
const maxRawLength = 1 << 30

// Algorithm identifies a block compression.
type Algorithm uint8

const (
	None Algorithm = iota
	Snappy
	ZSTD
	LZ4
)

var names = [...]string{None: "none", Snappy: "snappy", ZSTD: "zstd", LZ4: "lz4"}

func (a Algorithm) String() string {
	if int(a) < len(names) {
		return names[a]
	}
	return fmt.Sprintf("Algorithm(%d)", uint8(a))
}

// Parse resolves an algorithm by name. The empty string means None.
func Parse(name string) (Algorithm, error) {
	if name == "" {
		return None, nil
	}
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return Algorithm(i), nil
		}
	}
	return None, fmt.Errorf("unknown compression %q", name)
}

var (
	zstdEncoders sync.Pool
	zstdDecoders sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoders.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoders.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxRawLength))
}

// Compress frames data with alg. Data that does not shrink is stored
// uncompressed.
func Compress(alg Algorithm, data []byte) ([]byte, error) {
	var payload []byte
	switch alg {
	case None:
	case Snappy:
		payload = snappy.Encode(nil, data)
	case ZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		payload = enc.EncodeAll(data, nil)
		zstdEncoders.Put(enc)
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			payload = buf[:n]
		}
	default:
		return nil, fmt.Errorf("unknown compression %s", alg)
	}
	if payload == nil || len(payload) >= len(data) {
		alg, payload = None, data
	}
	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	out = append(out, byte(alg))
	out = binary.AppendUvarint(out, uint64(len(data)))
	return append(out, payload...), nil
}

// Decompress reverses Compress.
func Decompress(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCorrupted)
	}
	alg := Algorithm(frame[0])
	raw, n := binary.Uvarint(frame[1:])
	if n <= 0 || raw > maxRawLength {
		return nil, fmt.Errorf("%w: invalid raw length", ErrCorrupted)
	}
	payload := frame[1+n:]

	var (
		out []byte
		err error
	)
	switch alg {
	case None:
		out = append([]byte(nil), payload...)
	case Snappy:
		out, err = snappy.Decode(nil, payload)
	case ZSTD:
		var dec *zstd.Decoder
		if dec, err = getZstdDecoder(); err == nil {
			out, err = dec.DecodeAll(payload, make([]byte, 0, raw))
			zstdDecoders.Put(dec)
		}
	case LZ4:
		out = make([]byte, raw)
		var m int
		m, err = lz4.UncompressBlock(payload, out)
		out = out[:max(m, 0)]
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrCorrupted, frame[0])
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, alg, err)
	}
	if uint64(len(out)) != raw {
		return nil, fmt.Errorf("%w: %s produced %d bytes, want %d", ErrCorrupted, alg, len(out), raw)
	}
	return out, nil
}
