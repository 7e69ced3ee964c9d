package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// OpenMode selects how an existing file is opened.
type OpenMode int

const (
	ModeOpen OpenMode = iota
	ModeAppend
	ModeTruncate
)

// FileAccess selects the access mode of the descriptor. Write access
// implies silent creation with user read/write permission.
type FileAccess int

const (
	AccessRead FileAccess = iota
	AccessWrite
	AccessReadWrite
)

// DirectFile is a positional-I/O file handle opened with O_DIRECT where
// the filesystem supports it. Callers must keep buffer addresses, lengths
// and offsets aligned to the file's alignment; the handle is oblivious to
// any file layout above it.
type DirectFile struct {
	fd        int
	alignment int
	direct    bool
}

// OpenDirectFile opens path for direct positional I/O. On filesystems
// without O_DIRECT support (tmpfs among them) it degrades to buffered
// I/O; only the aligned flush size depends on the direct path, not
// correctness.
func OpenDirectFile(path string, mode OpenMode, access FileAccess, alignment int) (*DirectFile, error) {
	flags := unix.O_DIRECT
	switch mode {
	case ModeAppend:
		flags |= unix.O_APPEND
	case ModeTruncate:
		flags |= unix.O_TRUNC
	}

	var perm uint32
	switch access {
	case AccessRead:
		flags |= unix.O_RDONLY
	case AccessWrite:
		flags |= unix.O_WRONLY | unix.O_CREAT
		perm = unix.S_IRUSR | unix.S_IWUSR
	case AccessReadWrite:
		flags |= unix.O_RDWR | unix.O_CREAT
		perm = unix.S_IRUSR | unix.S_IWUSR
	}

	direct := true
	fd, err := openRetry(path, flags, perm)
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) {
		slog.Debug("dio: O_DIRECT unsupported, falling back to buffered I/O",
			"path", path)
		direct = false
		fd, err = openRetry(path, flags&^unix.O_DIRECT, perm)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &DirectFile{fd: fd, alignment: alignment, direct: direct}, nil
}

func openRetry(path string, flags int, perm uint32) (int, error) {
	for {
		fd, err := unix.Open(path, flags, perm)
		if err != unix.EINTR {
			return fd, err
		}
	}
}

// Alignment returns the alignment the handle was opened with.
func (f *DirectFile) Alignment() int {
	return f.alignment
}

// Pread reads len(buf) bytes at offset off, transparently retrying on
// EINTR. Returns the number of bytes read.
func (f *DirectFile) Pread(buf []byte, off int64) (int, error) {
	for {
		n, err := unix.Pread(f.fd, buf, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("pread at %d: %w", off, err)
		}
		return n, nil
	}
}

// Pwrite writes buf at offset off, transparently retrying on EINTR.
// Returns the number of bytes written.
func (f *DirectFile) Pwrite(buf []byte, off int64) (int, error) {
	for {
		n, err := unix.Pwrite(f.fd, buf, off)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("pwrite at %d: %w", off, err)
		}
		return n, nil
	}
}

// Size returns the current length of the file.
func (f *DirectFile) Size() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(f.fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	return st.Size, nil
}

// Truncate sets the length of the file.
func (f *DirectFile) Truncate(size int64) error {
	if err := unix.Ftruncate(f.fd, size); err != nil {
		return fmt.Errorf("ftruncate to %d: %w", size, err)
	}
	return nil
}

// Close releases the descriptor.
func (f *DirectFile) Close() error {
	if err := unix.Close(f.fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
