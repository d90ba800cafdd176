package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/idxstore/internal/compress"
	"github.com/hupe1980/idxstore/internal/fs"
	"github.com/hupe1980/idxstore/internal/hash"
	"github.com/hupe1980/idxstore/internal/wire"
	"github.com/hupe1980/idxstore/storagepart"
)

var (
	logMagic         = [4]byte{'I', 'X', 'S', '0'}
	logHeaderVersion = uint16(1)
)

const (
	logHeaderLen    = 8
	frameHeaderLen  = 8 // body length + crc32c
	maxRecordLength = 1 << 30

	recordPut    byte = 1
	recordDelete byte = 2
)

// FileOptions configures a FileStore.
type FileOptions struct {
	// FS is the file system the log lives on. Defaults to the local one.
	FS fs.FileSystem
	// Compression applied to record payloads.
	Compression compress.Algorithm
	// Sync forces an fsync after every append.
	Sync bool
}

// FileStore is a framed append-only log. Each frame carries the body
// length and its CRC32C; the live index is rebuilt by replaying the log
// when the store is opened. A torn frame at the tail is truncated.
type FileStore struct {
	mu        sync.RWMutex
	path      string
	opts      FileOptions
	file      fs.File
	size      int64
	index     map[storagepart.ID]Location
	truncated int64
	closed    bool
}

var _ Store = (*FileStore)(nil)

// OpenFileStore opens or creates the log at path.
func OpenFileStore(path string, optFns ...func(o *FileOptions)) (*FileStore, error) {
	opts := FileOptions{FS: fs.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}

	f, err := opts.FS.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store log: %w", err)
	}
	s := &FileStore{
		path:  path,
		opts:  opts,
		file:  f,
		index: make(map[storagepart.ID]Location),
	}
	if err := s.recover(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the log file path.
func (s *FileStore) Path() string { return s.path }

// Truncated returns the number of torn tail bytes dropped on open.
func (s *FileStore) Truncated() int64 { return s.truncated }

// Size returns the current log size in bytes.
func (s *FileStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *FileStore) recover() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat store log: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return s.writeHeader()
	}
	if err := s.readHeader(size); err != nil {
		return err
	}

	pos := int64(logHeaderLen)
	for pos < size {
		body, next, err := s.readFrame(pos, size)
		if errors.Is(err, errTornFrame) {
			break
		}
		if err != nil {
			return err
		}
		if err := s.apply(pos, body); err != nil {
			return err
		}
		pos = next
	}

	if pos < size {
		if err := s.opts.FS.Truncate(s.path, pos); err != nil {
			return fmt.Errorf("truncate torn tail: %w", err)
		}
		s.truncated = size - pos
	}
	if _, err := s.file.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek store log: %w", err)
	}
	s.size = pos
	return nil
}

func (s *FileStore) writeHeader() error {
	var buf [logHeaderLen]byte
	copy(buf[:4], logMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], logHeaderVersion)
	if _, err := s.file.Write(buf[:]); err != nil {
		return fmt.Errorf("write store header: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync store header: %w", err)
	}
	s.size = logHeaderLen
	return nil
}

func (s *FileStore) readHeader(size int64) error {
	if size < logHeaderLen {
		return fmt.Errorf("%w: short log header", ErrCorrupted)
	}
	var buf [logHeaderLen]byte
	if _, err := s.file.ReadAt(buf[:], 0); err != nil {
		return fmt.Errorf("read store header: %w", err)
	}
	if [4]byte(buf[:4]) != logMagic {
		return fmt.Errorf("%w: invalid log magic", ErrCorrupted)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != logHeaderVersion {
		return fmt.Errorf("%w: unsupported log version %d", ErrCorrupted, v)
	}
	return nil
}

var errTornFrame = errors.New("torn frame")

// readFrame reads and verifies the frame at pos. Frames that run past the
// end of the log, and a checksum failure of the very last frame, report
// errTornFrame.
func (s *FileStore) readFrame(pos, size int64) ([]byte, int64, error) {
	if pos+frameHeaderLen > size {
		return nil, 0, errTornFrame
	}
	var hdr [frameHeaderLen]byte
	if _, err := s.file.ReadAt(hdr[:], pos); err != nil {
		return nil, 0, fmt.Errorf("read frame at %d: %w", pos, err)
	}
	n := int64(binary.LittleEndian.Uint32(hdr[0:4]))
	sum := binary.LittleEndian.Uint32(hdr[4:8])
	if n == 0 || n > maxRecordLength {
		if pos+frameHeaderLen+n >= size {
			return nil, 0, errTornFrame
		}
		return nil, 0, fmt.Errorf("%w: frame at %d has length %d", ErrCorrupted, pos, n)
	}
	end := pos + frameHeaderLen + n
	if end > size {
		return nil, 0, errTornFrame
	}
	body := make([]byte, n)
	if _, err := s.file.ReadAt(body, pos+frameHeaderLen); err != nil {
		return nil, 0, fmt.Errorf("read frame at %d: %w", pos, err)
	}
	if hash.CRC32C(body) != sum {
		if end == size {
			return nil, 0, errTornFrame
		}
		return nil, 0, fmt.Errorf("%w: checksum mismatch at %d", ErrCorrupted, pos)
	}
	return body, end, nil
}

type frameBody struct {
	kind    byte
	key     storagepart.ID
	version uint16
	payload []byte
}

func decodeBody(body []byte) (frameBody, error) {
	r := wire.NewReader(body)
	var fb frameBody
	fb.kind, _ = r.ReadByte()
	t, _ := r.ReadByte()
	fb.key = storagepart.ID{Type: storagepart.Type(t), PK: r.ReadVarlong()}
	v := r.ReadUvarint()
	if r.Err() == nil && v > 0xFFFF {
		r.Failf("version %d out of range", v)
	}
	fb.version = uint16(v)
	switch fb.kind {
	case recordPut:
		fb.payload = body[len(body)-r.Remaining():]
	case recordDelete:
		r.ExpectEnd()
	default:
		r.Failf("unknown record kind %d", fb.kind)
	}
	if err := r.Err(); err != nil {
		return frameBody{}, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return fb, nil
}

func (s *FileStore) apply(pos int64, body []byte) error {
	fb, err := decodeBody(body)
	if err != nil {
		return fmt.Errorf("record at %d: %w", pos, err)
	}
	if fb.kind == recordDelete {
		delete(s.index, fb.key)
		return nil
	}
	raw, err := compress.Decompress(fb.payload)
	if err != nil {
		return fmt.Errorf("%w: record at %d: %w", ErrCorrupted, pos, err)
	}
	s.index[fb.key] = Location{Key: fb.key, Version: fb.version, Offset: pos, Size: len(raw)}
	return nil
}

func (s *FileStore) append(kind byte, key storagepart.ID, version uint16, payload []byte) (int64, error) {
	w := wire.NewWriter(16 + len(payload))
	_ = w.WriteByte(kind)
	_ = w.WriteByte(byte(key.Type))
	w.WriteVarlong(key.PK)
	w.WriteUvarint(uint64(version))
	body := append(w.Bytes(), payload...)
	if len(body) > maxRecordLength {
		return 0, fmt.Errorf("store: record of %d bytes exceeds limit", len(body))
	}

	frame := make([]byte, frameHeaderLen, frameHeaderLen+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(frame[4:8], hash.CRC32C(body))
	frame = append(frame, body...)

	offset := s.size
	if _, err := s.file.Write(frame); err != nil {
		s.rollback(offset)
		return 0, fmt.Errorf("append record: %w", err)
	}
	if s.opts.Sync {
		if err := s.file.Sync(); err != nil {
			s.rollback(offset)
			return 0, fmt.Errorf("sync store log: %w", err)
		}
	}
	s.size += int64(len(frame))
	return offset, nil
}

// rollback drops a partially written frame so the next append starts at
// offset.
func (s *FileStore) rollback(offset int64) {
	if err := s.opts.FS.Truncate(s.path, offset); err == nil {
		_, _ = s.file.Seek(offset, io.SeekStart)
	}
}

func (s *FileStore) Append(ctx context.Context, key storagepart.ID, version uint16, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	payload, err := compress.Compress(s.opts.Compression, data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	offset, err := s.append(recordPut, key, version, payload)
	if err != nil {
		return 0, err
	}
	s.index[key] = Location{Key: key, Version: version, Offset: offset, Size: len(data)}
	return offset, nil
}

func (s *FileStore) Delete(ctx context.Context, key storagepart.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.index[key]; !ok {
		return nil
	}
	if _, err := s.append(recordDelete, key, 0, nil); err != nil {
		return err
	}
	delete(s.index, key)
	return nil
}

func (s *FileStore) Read(ctx context.Context, offset int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	if offset < logHeaderLen || offset >= s.size {
		return Record{}, ErrNotFound
	}
	body, _, err := s.readFrame(offset, s.size)
	if errors.Is(err, errTornFrame) {
		return Record{}, fmt.Errorf("%w: frame at %d", ErrCorrupted, offset)
	}
	if err != nil {
		return Record{}, err
	}
	fb, err := decodeBody(body)
	if err != nil {
		return Record{}, err
	}
	if fb.kind != recordPut {
		return Record{}, ErrNotFound
	}
	data, err := compress.Decompress(fb.payload)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return Record{
		Location: Location{Key: fb.key, Version: fb.version, Offset: offset, Size: len(data)},
		Data:     data,
	}, nil
}

func (s *FileStore) Locate(ctx context.Context, key storagepart.ID) (Location, error) {
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

func (s *FileStore) Scan(ctx context.Context, fn func(Location) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	locs := sortedLocations(s.index)
	s.mu.RUnlock()
	return scanLocations(ctx, locs, fn)
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("sync store log: %w", err)
	}
	return s.file.Close()
}

// Checkpoint writes a consistent copy of the log to dst. Appends are
// blocked while the copy is taken. The copy is written to a temporary file
// and renamed into place.
func (s *FileStore) Checkpoint(dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync store log: %w", err)
	}

	tmp := dst + ".tmp"
	out, err := s.opts.FS.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	if _, err := io.Copy(out, io.NewSectionReader(s.file, 0, s.size)); err != nil {
		_ = out.Close()
		_ = s.opts.FS.Remove(tmp)
		return fmt.Errorf("copy checkpoint: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = s.opts.FS.Remove(tmp)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = s.opts.FS.Remove(tmp)
		return err
	}
	return s.opts.FS.Rename(tmp, dst)
}
