package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/idxstore/internal/compress"
	"github.com/hupe1980/idxstore/storagepart"
)

func filterID(scope, key int32) storagepart.ID {
	return storagepart.ID{Type: storagepart.TypeFilter, PK: storagepart.ComputePK(scope, key)}
}

type backend struct {
	name string
	open func(t *testing.T, dir string) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, _ string) Store { return NewMemoryStore() }},
		{"file", func(t *testing.T, dir string) Store {
			s, err := OpenFileStore(dir+"/parts.log", func(o *FileOptions) {
				o.Compression = compress.Snappy
			})
			require.NoError(t, err)
			return s
		}},
		{"pebble", func(t *testing.T, dir string) Store {
			s, err := OpenPebbleStore(dir + "/db")
			require.NoError(t, err)
			return s
		}},
	}
}

func TestStoreConformance(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, t.TempDir())
			defer s.Close()

			a, c := filterID(1, 2), filterID(-3, 1)
			off1, err := s.Append(ctx, a, 1, []byte("first"))
			require.NoError(t, err)
			off2, err := s.Append(ctx, a, 2, []byte("second"))
			require.NoError(t, err)
			assert.NotEqual(t, off1, off2)
			_, err = s.Append(ctx, c, 2, []byte("other"))
			require.NoError(t, err)

			loc, err := s.Locate(ctx, a)
			require.NoError(t, err)
			assert.Equal(t, off2, loc.Offset)
			assert.Equal(t, uint16(2), loc.Version)
			assert.Equal(t, len("second"), loc.Size)

			rec, err := s.Read(ctx, off1)
			require.NoError(t, err)
			assert.Equal(t, []byte("first"), rec.Data)
			assert.Equal(t, a, rec.Key)
			assert.Equal(t, uint16(1), rec.Version)

			var seen []storagepart.ID
			require.NoError(t, s.Scan(ctx, func(l Location) error {
				seen = append(seen, l.Key)
				return nil
			}))
			assert.Equal(t, []storagepart.ID{c, a}, seen)

			require.NoError(t, s.Delete(ctx, a))
			_, err = s.Locate(ctx, a)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Locate(ctx, filterID(9, 9))
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Read(ctx, 1<<40)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, t.TempDir())
			require.NoError(t, s.Close())
			_, err := s.Append(ctx, filterID(1, 1), 1, nil)
			assert.ErrorIs(t, err, ErrClosed)
			_, err = s.Locate(ctx, filterID(1, 1))
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, s.Scan(ctx, func(Location) error { return nil }), ErrClosed)
		})
	}
}

func TestStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	_, err := s.Append(ctx, filterID(1, 1), 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPebbleStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenPebbleStore(dir, func(o *PebbleOptions) { o.Sync = true })
	require.NoError(t, err)
	off, err := s.Append(ctx, filterID(1, 1), 2, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()

	loc, err := s.Locate(ctx, filterID(1, 1))
	require.NoError(t, err)
	assert.Equal(t, off, loc.Offset)

	next, err := s.Append(ctx, filterID(1, 2), 2, []byte("more"))
	require.NoError(t, err)
	assert.Greater(t, next, off)
}

func TestCompareIDs(t *testing.T) {
	assert.Negative(t, CompareIDs(filterID(-1, 0), filterID(0, 0)))
	assert.Negative(t, CompareIDs(
		storagepart.ID{Type: storagepart.TypeKeyDictionary, PK: 5},
		storagepart.ID{Type: storagepart.TypeFilter, PK: 0},
	))
	assert.Zero(t, CompareIDs(filterID(2, 3), filterID(2, 3)))
}

func TestCheckpoint(t *testing.T) {
	ctx := context.Background()
	key := storagepart.ID{Type: storagepart.TypeFilter, PK: storagepart.ComputePK(1, 2)}

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		st, err := OpenFileStore(filepath.Join(dir, "a.ixs"))
		require.NoError(t, err)
		defer st.Close()
		_, err = st.Append(ctx, key, 1, []byte("payload"))
		require.NoError(t, err)

		dst := filepath.Join(dir, "b.ixs")
		require.NoError(t, st.Checkpoint(dst))

		cp, err := OpenFileStore(dst)
		require.NoError(t, err)
		defer cp.Close()
		loc, err := cp.Locate(ctx, key)
		require.NoError(t, err)
		rec, err := cp.Read(ctx, loc.Offset)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), rec.Data)
	})

	t.Run("pebble", func(t *testing.T) {
		dir := t.TempDir()
		st, err := OpenPebbleStore(filepath.Join(dir, "a"))
		require.NoError(t, err)
		defer st.Close()
		_, err = st.Append(ctx, key, 1, []byte("payload"))
		require.NoError(t, err)

		dst := filepath.Join(dir, "b")
		require.NoError(t, st.Checkpoint(dst))

		cp, err := OpenPebbleStore(dst)
		require.NoError(t, err)
		defer cp.Close()
		_, err = cp.Locate(ctx, key)
		require.NoError(t, err)
	})
}
