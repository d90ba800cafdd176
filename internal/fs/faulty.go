package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by a triggered Fault without its own error.
var ErrInjected = errors.New("injected fault")

// Fault describes how files matching a rule misbehave.
type Fault struct {
	// FailAfterBytes rejects writes once the file would exceed this many
	// written bytes. Negative disables the limit.
	FailAfterBytes int64
	FailOnSync     bool
	FailOnClose    bool
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS wraps a FileSystem and applies the first Fault whose pattern is
// contained in an opened file name.
type FaultyFS struct {
	FS FileSystem

	mu       sync.Mutex
	patterns []string
	faults   []Fault
}

// NewFaultyFS wraps fsys, or Default when fsys is nil.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys}
}

// AddRule registers fault for file names containing pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns = append(f.patterns, pattern)
	f.faults = append(f.faults, fault)
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.patterns {
		if strings.Contains(name, p) {
			return f.faults[i], true
		}
	}
	return Fault{}, false
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	fault, ok := f.match(name)
	if !ok {
		return file, nil
	}
	return &faultyFile{File: file, fault: fault}, nil
}

func (f *FaultyFS) Remove(name string) error               { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error   { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error)  { return f.FS.Stat(name) }
func (f *FaultyFS) Truncate(name string, size int64) error { return f.FS.Truncate(name, size) }

type faultyFile struct {
	File
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if ff.fault.FailAfterBytes >= 0 && ff.written+int64(len(p)) > ff.fault.FailAfterBytes {
		return 0, ff.fault.err()
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if ff.fault.FailOnClose {
		_ = ff.File.Close()
		return ff.fault.err()
	}
	return ff.File.Close()
}
