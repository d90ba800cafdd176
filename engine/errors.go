package engine

import "errors"

var (
	// ErrClosed is returned when the catalog has been closed.
	ErrClosed = errors.New("engine: catalog closed")

	// ErrSessionClosed is returned when a committed or discarded session is used.
	ErrSessionClosed = errors.New("engine: session closed")

	// ErrScopeUnusable is returned by every operation on a scope after one
	// of its parts failed to load.
	ErrScopeUnusable = errors.New("engine: scope unusable")

	// ErrScopeNotFound is returned when no scope matches a lookup.
	ErrScopeNotFound = errors.New("engine: scope not found")

	// ErrPartNotFound is returned when a snapshot holds no part for a key.
	ErrPartNotFound = errors.New("engine: part not found")

	// ErrTypeMismatch is returned when an existing index disagrees with the
	// value type or axes requested by a session.
	ErrTypeMismatch = errors.New("engine: index type mismatch")

	// ErrWrongScope is returned when an accessor is used on a scope kind
	// that cannot hold the requested part.
	ErrWrongScope = errors.New("engine: part not available in this scope")
)
