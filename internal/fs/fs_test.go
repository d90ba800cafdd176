package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parts.log")

	f, err := Default.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	require.NoError(t, Default.Truncate(path, 3))
	info, err := Default.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	moved := path + ".old"
	require.NoError(t, Default.Rename(path, moved))
	require.NoError(t, Default.Remove(moved))
	_, err = Default.Stat(moved)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSWriteLimit(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("parts.log", Fault{FailAfterBytes: 5})

	f, err := ffs.OpenFile(filepath.Join(dir, "parts.log"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Zero(t, n)

	// Files not matching a rule are untouched.
	other, err := ffs.OpenFile(filepath.Join(dir, "other"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = other.Write(make([]byte, 64))
	require.NoError(t, err)
	require.NoError(t, other.Close())
}

func TestFaultyFSSyncAndClose(t *testing.T) {
	injected := errors.New("io error")
	ffs := NewFaultyFS(OS{})
	ffs.AddRule("parts", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnClose: true, Err: injected})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "parts.log"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 1024))
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), injected)
	assert.ErrorIs(t, f.Close(), injected)
}
