package engine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapShared maps length bytes of fd at offset into memory, shared with
// the underlying file. Offset must be page aligned.
func mapShared(fd int, offset int64, length int) ([]byte, error) {
	data, err := unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes at %d: %w", length, offset, err)
	}
	return data, nil
}

// syncShared flushes a shared mapping back to its file.
func syncShared(data []byte) error {
	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", err)
	}
	return nil
}

// unmapShared releases a mapping created by mapShared.
func unmapShared(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
