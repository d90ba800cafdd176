// Package bitmap implements the posting list used by every index structure:
// a compressed, ascending set of non-negative record ids.
//
// Bitmap wraps a Roaring bitmap with copy-on-write enabled, so Clone is cheap
// and containers are only copied when one of the clones is modified. This is
// what lets write sessions clone whole index structures on first touch while
// readers keep the committed version.
//
// The binary form is the portable Roaring format, run-length optimized before
// encoding.
package bitmap
