package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrCorrupted is returned when the input cannot be decoded into a
// structurally valid value.
var ErrCorrupted = errors.New("corrupted wire data")

// maxLength bounds any length prefix read from untrusted input.
const maxLength = 1 << 30

// Writer appends encoded values to an in-memory buffer.
type Writer struct {
	buf []byte
	err error
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first error encountered while writing.
func (w *Writer) Err() error { return w.err }

// Fail records err unless an earlier error is already present.
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) WriteByte(b byte) error {
	if w.err != nil {
		return w.err
	}
	w.buf = append(w.buf, b)
	return nil
}

func (w *Writer) WriteBool(v bool) {
	if v {
		_ = w.WriteByte(1)
	} else {
		_ = w.WriteByte(0)
	}
}

func (w *Writer) WriteUvarint(v uint64) {
	if w.err != nil {
		return
	}
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *Writer) WriteVarint(v int32) {
	if w.err != nil {
		return
	}
	w.buf = binary.AppendVarint(w.buf, int64(v))
}

func (w *Writer) WriteVarlong(v int64) {
	if w.err != nil {
		return
	}
	w.buf = binary.AppendVarint(w.buf, v)
}

// WriteCount writes a non-negative length or count.
func (w *Writer) WriteCount(n int) {
	if n < 0 {
		w.Fail(fmt.Errorf("negative count: %d", n))
		return
	}
	w.WriteUvarint(uint64(n))
}

func (w *Writer) WriteInt32(v int32) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteInt64(v int64) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

func (w *Writer) WriteFloat64(v float64) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *Writer) WriteString(s string) {
	w.WriteCount(len(s))
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteBytes(b []byte) {
	w.WriteCount(len(b))
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

// WriteInt32s writes a length prefixed array of varints.
func (w *Writer) WriteInt32s(vs []int32) {
	w.WriteCount(len(vs))
	for _, v := range vs {
		w.WriteVarint(v)
	}
}

// Reader decodes values from a byte slice.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Err returns the first error encountered while reading.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Fail records err unless an earlier error is already present.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Failf records a formatted corruption error.
func (r *Reader) Failf(format string, args ...any) {
	r.Fail(fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...)))
}

func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.pos >= len(r.buf) {
		r.Fail(fmt.Errorf("%w: %w", ErrCorrupted, io.ErrUnexpectedEOF))
		return 0, r.err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadBool() bool {
	b, err := r.ReadByte()
	if err != nil {
		return false
	}
	switch b {
	case 0:
		return false
	case 1:
		return true
	default:
		r.Failf("invalid bool byte %d", b)
		return false
	}
}

func (r *Reader) ReadUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.Failf("invalid uvarint at offset %d", r.pos)
		return 0
	}
	r.pos += n
	return v
}

func (r *Reader) ReadVarlong() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		r.Failf("invalid varint at offset %d", r.pos)
		return 0
	}
	r.pos += n
	return v
}

func (r *Reader) ReadVarint() int32 {
	v := r.ReadVarlong()
	if v < math.MinInt32 || v > math.MaxInt32 {
		r.Failf("varint %d overflows int32", v)
		return 0
	}
	return int32(v)
}

// ReadCount reads a length or count written by WriteCount.
func (r *Reader) ReadCount() int {
	v := r.ReadUvarint()
	if v > maxLength {
		r.Failf("count %d exceeds limit", v)
		return 0
	}
	return int(v)
}

func (r *Reader) ReadInt32() int32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *Reader) ReadInt64() int64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *Reader) ReadFloat64() float64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *Reader) ReadString() string {
	n := r.ReadCount()
	b := r.next(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// ReadBytes returns a copy of the next length prefixed blob.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadCount()
	b := r.next(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *Reader) ReadInt32s() []int32 {
	n := r.ReadCount()
	if r.err != nil {
		return nil
	}
	if n > r.Remaining() {
		r.Failf("array of %d elements exceeds remaining %d bytes", n, r.Remaining())
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = r.ReadVarint()
	}
	if r.err != nil {
		return nil
	}
	return out
}

// ExpectEnd fails the reader if unread bytes remain.
func (r *Reader) ExpectEnd() {
	if r.err == nil && r.pos != len(r.buf) {
		r.Failf("%d trailing bytes", len(r.buf)-r.pos)
	}
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.Fail(fmt.Errorf("%w: %w", ErrCorrupted, io.ErrUnexpectedEOF))
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}
