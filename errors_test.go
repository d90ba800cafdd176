package idxstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/idxstore/codec"
	"github.com/hupe1980/idxstore/engine"
	"github.com/hupe1980/idxstore/storagepart"
	"github.com/hupe1980/idxstore/store"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("timeout"), false},
		{"closed", engine.ErrClosed, false},
		{"corruption", &codec.CorruptionError{Type: storagepart.TypeFilter, Version: 2, Err: errors.New("short")}, true},
		{"wrapped corruption", fmt.Errorf("load: %w", &codec.CorruptionError{Type: storagepart.TypeSort, Err: errors.New("x")}), true},
		{"unknown version", fmt.Errorf("decode: %w", codec.ErrUnknownVersion), true},
		{"write forbidden", codec.ErrWriteForbidden, true},
		{"store corrupted", store.ErrCorrupted, true},
		{"scope unusable", fmt.Errorf("%w: product", engine.ErrScopeUnusable), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestErrUnknownBackendUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := &ErrUnknownBackend{Backend: "tape", cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "tape")
}
