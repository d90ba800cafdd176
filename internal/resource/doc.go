// Package resource bounds the work a catalog does outside the caller's
// critical path.
//
//   - Encode workers: a weighted semaphore caps how many storage parts a
//     commit encodes in parallel.
//   - IO: a token bucket throttles background rewrites (migration) so
//     they do not starve foreground commits.
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
