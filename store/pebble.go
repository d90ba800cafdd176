package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
)

// Key layout:
//
//	'r' seq(8, big endian)                 -> type, pk, version, payload
//	'k' type(1) pk(8, big endian, biased)  -> seq, version, size
const (
	prefixRecord byte = 'r'
	prefixIndex  byte = 'k'
)

// PebbleOptions configures a PebbleStore.
type PebbleOptions struct {
	// Sync commits every append durably.
	Sync bool
	// Pebble overrides the database options.
	Pebble *pebble.Options
}

// PebbleStore keeps records and the live index in a pebble database.
// Offsets are record sequence numbers.
type PebbleStore struct {
	mu     sync.Mutex
	db     *pebble.DB
	wo     *pebble.WriteOptions
	seq    int64
	closed bool
}

var _ Store = (*PebbleStore)(nil)

// OpenPebbleStore opens or creates a pebble backed store in dir.
func OpenPebbleStore(dir string, optFns ...func(o *PebbleOptions)) (*PebbleStore, error) {
	opts := PebbleOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	po := opts.Pebble
	if po == nil {
		po = &pebble.Options{}
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	s := &PebbleStore{db: db, wo: pebble.NoSync}
	if opts.Sync {
		s.wo = pebble.Sync
	}
	if err := s.loadSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PebbleStore) loadSequence() error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixRecord},
		UpperBound: []byte{prefixRecord + 1},
	})
	if err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	defer it.Close()
	if it.Last() {
		k := it.Key()
		if len(k) != 9 {
			return fmt.Errorf("%w: record key of length %d", ErrCorrupted, len(k))
		}
		s.seq = int64(binary.BigEndian.Uint64(k[1:]))
	}
	return it.Error()
}

func recordKey(seq int64) []byte {
	k := make([]byte, 9)
	k[0] = prefixRecord
	binary.BigEndian.PutUint64(k[1:], uint64(seq))
	return k
}

func indexKey(id storagepart.ID) []byte {
	k := make([]byte, 10)
	k[0] = prefixIndex
	k[1] = byte(id.Type)
	binary.BigEndian.PutUint64(k[2:], uint64(id.PK)^(1<<63))
	return k
}

func parseIndexKey(k []byte) (storagepart.ID, error) {
	if len(k) != 10 || k[0] != prefixIndex {
		return storagepart.ID{}, fmt.Errorf("%w: index key %x", ErrCorrupted, k)
	}
	return storagepart.ID{
		Type: storagepart.Type(k[1]),
		PK:   int64(binary.BigEndian.Uint64(k[2:]) ^ (1 << 63)),
	}, nil
}

func decodeLocation(id storagepart.ID, v []byte) (Location, error) {
	r := wire.NewReader(v)
	loc := Location{Key: id}
	loc.Offset = int64(r.ReadUvarint())
	loc.Version = uint16(r.ReadUvarint())
	loc.Size = r.ReadCount()
	r.ExpectEnd()
	if err := r.Err(); err != nil {
		return Location{}, fmt.Errorf("%w: location of %s: %w", ErrCorrupted, id, err)
	}
	return loc, nil
}

func (s *PebbleStore) Append(ctx context.Context, key storagepart.ID, version uint16, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	seq := s.seq + 1
	rec := wire.NewWriter(16 + len(data))
	_ = rec.WriteByte(byte(key.Type))
	rec.WriteVarlong(key.PK)
	rec.WriteUvarint(uint64(version))
	value := append(rec.Bytes(), data...)

	loc := wire.NewWriter(12)
	loc.WriteUvarint(uint64(seq))
	loc.WriteUvarint(uint64(version))
	loc.WriteCount(len(data))

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(recordKey(seq), value, nil); err != nil {
		return 0, err
	}
	if err := b.Set(indexKey(key), loc.Bytes(), nil); err != nil {
		return 0, err
	}
	if err := b.Commit(s.wo); err != nil {
		return 0, fmt.Errorf("commit record: %w", err)
	}
	s.seq = seq
	return seq, nil
}

func (s *PebbleStore) Delete(ctx context.Context, key storagepart.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Delete(indexKey(key), s.wo)
}

func (s *PebbleStore) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (s *PebbleStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *PebbleStore) Read(ctx context.Context, offset int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.isClosed() {
		return Record{}, ErrClosed
	}
	if offset < 1 {
		return Record{}, ErrNotFound
	}
	v, err := s.get(recordKey(offset))
	if err != nil {
		return Record{}, err
	}
	r := wire.NewReader(v)
	t, _ := r.ReadByte()
	id := storagepart.ID{Type: storagepart.Type(t), PK: r.ReadVarlong()}
	version := r.ReadUvarint()
	if err := r.Err(); err != nil || version > 0xFFFF {
		return Record{}, fmt.Errorf("%w: record %d", ErrCorrupted, offset)
	}
	data := v[len(v)-r.Remaining():]
	return Record{
		Location: Location{Key: id, Version: uint16(version), Offset: offset, Size: len(data)},
		Data:     data,
	}, nil
}

func (s *PebbleStore) Locate(ctx context.Context, key storagepart.ID) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if s.isClosed() {
		return Location{}, ErrClosed
	}
	v, err := s.get(indexKey(key))
	if err != nil {
		return Location{}, err
	}
	return decodeLocation(key, v)
}

func (s *PebbleStore) Scan(ctx context.Context, fn func(Location) error) error {
	if s.isClosed() {
		return ErrClosed
	}
	snap := s.db.NewSnapshot()
	defer snap.Close()
	it, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixIndex},
		UpperBound: []byte{prefixIndex + 1},
	})
	if err != nil {
		return err
	}
	defer it.Close()

	for ok := it.First(); ok; ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := parseIndexKey(it.Key())
		if err != nil {
			return err
		}
		loc, err := decodeLocation(id, it.Value())
		if err != nil {
			return err
		}
		if err := fn(loc); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Checkpoint writes a consistent copy of the database to the directory
// dst, which must not exist.
func (s *PebbleStore) Checkpoint(dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.Checkpoint(dst, pebble.WithFlushedWAL()); err != nil {
		return fmt.Errorf("pebble checkpoint: %w", err)
	}
	return nil
}
