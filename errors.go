package idxstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/idxstore/codec"
	"github.com/hupe1980/idxstore/engine"
	"github.com/hupe1980/idxstore/store"
)

var (
	// ErrClosed is returned when the database has been closed.
	ErrClosed = engine.ErrClosed

	// ErrScopeNotFound is returned when no scope matches a lookup.
	ErrScopeNotFound = engine.ErrScopeNotFound

	// ErrInvalidOption is returned when an option value is out of range.
	ErrInvalidOption = errors.New("idxstore: invalid option")
)

// ErrUnknownBackend indicates an unsupported store backend.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrUnknownBackend struct {
	Backend Backend
	cause   error
}

func (e *ErrUnknownBackend) Error() string {
	return fmt.Sprintf("unknown store backend: %q", string(e.Backend))
}

func (e *ErrUnknownBackend) Unwrap() error { return e.cause }

// IsFatal reports whether err means persisted data cannot be used without
// intervention. Retrying the operation does not help.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *codec.CorruptionError
	return errors.As(err, &ce) ||
		errors.Is(err, codec.ErrUnknownVersion) ||
		errors.Is(err, codec.ErrWriteForbidden) ||
		errors.Is(err, store.ErrCorrupted) ||
		errors.Is(err, engine.ErrScopeUnusable)
}
