// Package store defines the append-only store that encoded storage parts
// are written to, together with memory, file and pebble backends.
//
// Every Append produces a new record addressed by an offset. The store
// keeps, per part id, the location of the latest record; older records
// stay readable by offset until the backend compacts them away.
package store

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/hupe1980/idxstore/storagepart"
)

var (
	// ErrNotFound is returned when no live record exists for a key or offset.
	ErrNotFound = errors.New("store: record not found")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store: closed")

	// ErrCorrupted is returned when a persisted record fails validation.
	ErrCorrupted = errors.New("store: corrupted record")
)

// Location addresses the latest record of a part.
type Location struct {
	Key     storagepart.ID
	Version uint16
	Offset  int64
	Size    int
}

// Record is a stored part payload.
type Record struct {
	Location
	Data []byte
}

// Store persists encoded storage parts.
type Store interface {
	// Append writes data as the latest record of key and returns its offset.
	Append(ctx context.Context, key storagepart.ID, version uint16, data []byte) (int64, error)
	// Delete removes key from the live set.
	Delete(ctx context.Context, key storagepart.ID) error
	// Read returns the record at offset.
	Read(ctx context.Context, offset int64) (Record, error)
	// Locate returns the latest record location of key.
	Locate(ctx context.Context, key storagepart.ID) (Location, error)
	// Scan visits the live locations ordered by key. Returning an error
	// from fn stops the scan.
	Scan(ctx context.Context, fn func(Location) error) error
	Close() error
}

// CompareIDs orders part ids by type, then by primary key.
func CompareIDs(a, b storagepart.ID) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.PK, b.PK)
}

// sortedLocations returns the values of index ordered by key.
func sortedLocations(index map[storagepart.ID]Location) []Location {
	out := make([]Location, 0, len(index))
	for _, loc := range index {
		out = append(out, loc)
	}
	slices.SortFunc(out, func(a, b Location) int { return CompareIDs(a.Key, b.Key) })
	return out
}

func scanLocations(ctx context.Context, locs []Location, fn func(Location) error) error {
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(loc); err != nil {
			return err
		}
	}
	return nil
}
