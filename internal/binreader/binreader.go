// Package binreader provides positioned, explicitly-failing I/O over an
// opened container file, modeled after the scoped file-handle wrappers used
// throughout the retrieved corpus's filesystem layer.
package binreader

import (
	"io"
	"os"

	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// Whence mirrors io.Seeker's origin values under names that read naturally
// at call sites in the container parser and restore engine.
type Whence int

const (
	Begin   Whence = Whence(io.SeekStart)
	Current Whence = Whence(io.SeekCurrent)
	End     Whence = Whence(io.SeekEnd)
)

// Reader wraps an *os.File with read/write operations that fail loudly
// instead of returning short-read sentinels the caller must probe for.
type Reader struct {
	file     *os.File
	readOnly bool
}

// Open opens path for positioned I/O. readOnly rejects subsequent writes.
func Open(path string, readOnly bool) (*Reader, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, restoreerr.Wrap(restoreerr.IoError, "open "+path, err)
	}
	return &Reader{file: f, readOnly: readOnly}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return restoreerr.Wrap(restoreerr.IoError, "close", err)
	}
	return nil
}

// Seek repositions the file offset.
func (r *Reader) Seek(offset int64, whence Whence) error {
	if _, err := r.file.Seek(offset, int(whence)); err != nil {
		return restoreerr.Wrap(restoreerr.IoError, "seek", err)
	}
	return nil
}

// Tell reports the current file offset.
func (r *Reader) Tell() (int64, error) {
	pos, err := r.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, restoreerr.Wrap(restoreerr.IoError, "tell", err)
	}
	return pos, nil
}

// ReadFull reads exactly len(dst) bytes; a short read at EOF is a failure.
func (r *Reader) ReadFull(dst []byte) error {
	if _, err := io.ReadFull(r.file, dst); err != nil {
		return restoreerr.Wrap(restoreerr.IoError, "read", err)
	}
	return nil
}

// WriteFull writes exactly len(src) bytes.
func (r *Reader) WriteFull(src []byte) error {
	if r.readOnly {
		return restoreerr.New(restoreerr.IoError, "write to read-only handle")
	}
	if _, err := r.file.Write(src); err != nil {
		return restoreerr.Wrap(restoreerr.IoError, "write", err)
	}
	return nil
}

// WriteAt writes src at an absolute offset without disturbing the current
// position tracked by the caller's subsequent sequential reads.
func (r *Reader) WriteAt(src []byte, offset int64) error {
	if r.readOnly {
		return restoreerr.New(restoreerr.IoError, "write to read-only handle")
	}
	if _, err := r.file.WriteAt(src, offset); err != nil {
		return restoreerr.Wrap(restoreerr.IoError, "write at offset", err)
	}
	return nil
}
