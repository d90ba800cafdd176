// Package wire provides the low-level binary primitives shared by all
// storage part codecs.
//
// Writer and Reader carry a sticky error: once an operation fails every
// subsequent call is a no-op and the first error is reported by Err. This
// keeps codec bodies linear, mirroring the manifest payload buffer.
//
// # Encoding
//
//	counts, ids        varint / uvarint
//	storage part PKs   varlong (zig-zag varint64)
//	float64            8 bytes little endian
//	strings, blobs     uvarint length + raw bytes
package wire
