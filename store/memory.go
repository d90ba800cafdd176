package store

import (
	"context"
	"sync"

	"github.com/hupe1980/idxstore/storagepart"
)

// MemoryStore keeps every record in memory. Offsets are 1-based record
// sequence numbers.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	index   map[storagepart.ID]Location
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[storagepart.ID]Location)}
}

func (s *MemoryStore) Append(ctx context.Context, key storagepart.ID, version uint16, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	loc := Location{
		Key:     key,
		Version: version,
		Offset:  int64(len(s.records) + 1),
		Size:    len(data),
	}
	s.records = append(s.records, Record{Location: loc, Data: append([]byte(nil), data...)})
	s.index[key] = loc
	return loc.Offset, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key storagepart.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.index, key)
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, offset int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	if offset < 1 || offset > int64(len(s.records)) {
		return Record{}, ErrNotFound
	}
	rec := s.records[offset-1]
	rec.Data = append([]byte(nil), rec.Data...)
	return rec, nil
}

func (s *MemoryStore) Locate(ctx context.Context, key storagepart.ID) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Location{}, ErrClosed
	}
	loc, ok := s.index[key]
	if !ok {
		return Location{}, ErrNotFound
	}
	return loc, nil
}

func (s *MemoryStore) Scan(ctx context.Context, fn func(Location) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	locs := sortedLocations(s.index)
	s.mu.RUnlock()
	return scanLocations(ctx, locs, fn)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
