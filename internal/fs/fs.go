package fs

import (
	"io"
	"os"
)

// File is an open file of the store log.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.Seeker
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem is the set of operations the store needs.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	Truncate(name string, size int64) error
}

// OS implements FileSystem with the os package.
type OS struct{}

func (OS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (OS) Remove(name string) error               { return os.Remove(name) }
func (OS) Rename(oldpath, newpath string) error   { return os.Rename(oldpath, newpath) }
func (OS) Stat(name string) (os.FileInfo, error)  { return os.Stat(name) }
func (OS) Truncate(name string, size int64) error { return os.Truncate(name, size) }

// Default is the filesystem used when none is configured.
var Default FileSystem = OS{}
