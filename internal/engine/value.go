package engine

import (
	"fmt"
	"sync"
)

// valueManager owns the value side of the store: a memory-mapped write
// buffer backed by the buffer file, the append position in the value
// file, and a single-page read cache.
//
// The cache is deliberately one page: point reads against a
// log-structured value stream have poor locality, and the direct I/O
// path leaves nothing for the OS cache to absorb, so one window over
// the last touched page is enough for repeated reads of nearby entries.
type valueManager struct {
	buf    []byte // mapped view of the buffer file, BufferSize long
	bufPos int    // next free byte in buf, multiple of ValueSize

	file    *DirectFile
	filePos int64 // next append offset in the value file

	cacheMu    sync.Mutex
	cachePage  []byte // aligned BlockAlign-byte page
	cacheStart int64
	cacheEnd   int64
	cacheValid bool
}

func newValueManager(buf []byte, bufPos int, file *DirectFile, filePos int64) *valueManager {
	return &valueManager{
		buf:       buf,
		bufPos:    bufPos,
		file:      file,
		filePos:   filePos,
		cachePage: alignedBlock(BlockAlign, BlockAlign),
	}
}

// write copies one value into the buffer and reports whether the buffer
// is now full and must be flushed. Returns ErrInvalidValueSize unless v
// is exactly ValueSize bytes.
func (m *valueManager) write(v []byte) (bool, error) {
	if len(v) != ValueSize {
		return false, fmt.Errorf("%d byte payload: %w", len(v), ErrInvalidValueSize)
	}
	copy(m.buf[m.bufPos:], v)
	m.bufPos += ValueSize
	return m.bufPos == BufferSize, nil
}

// flush writes the whole buffer to the value file at the append
// position, zero-fills the buffer and resets its cursor. The write is
// BufferSize long and therefore aligned; a short write leaves the store
// inconsistent with disk and is reported as fatal.
func (m *valueManager) flush() (int64, error) {
	n, err := m.file.Pwrite(m.buf, m.filePos)
	if err != nil {
		return m.filePos, fmt.Errorf("failed to flush buffer: %w", err)
	}
	if n != BufferSize {
		return m.filePos, fmt.Errorf("short flush: wrote %d of %d bytes", n, BufferSize)
	}
	m.filePos += int64(n)
	clear(m.buf)
	m.bufPos = 0
	return m.filePos, nil
}

// read returns the value at the given entry position, serving it from
// the write buffer when still unflushed, from the cache page otherwise.
func (m *valueManager) read(ventry uint32) (Value, error) {
	var v Value
	offset := int64(ventry) * ValueSize

	switch {
	case offset >= m.filePos+BufferSize:
		return v, fmt.Errorf("entry %d: %w", ventry, ErrOutOfIndex)
	case offset >= m.filePos:
		copy(v[:], m.buf[offset-m.filePos:])
		return v, nil
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if !m.cacheValid || offset < m.cacheStart || offset+ValueSize > m.cacheEnd {
		start := offset &^ (devicePage - 1)
		if offset+ValueSize > start+int64(len(m.cachePage)) {
			return v, fmt.Errorf("entry %d: %w", ventry, ErrCacheTooSmall)
		}
		n, err := m.file.Pread(m.cachePage, start)
		if err != nil {
			m.cacheValid = false
			return v, err
		}
		m.cacheStart = start
		m.cacheEnd = start + int64(n)
		m.cacheValid = true
		if offset+ValueSize > m.cacheEnd {
			return v, fmt.Errorf("entry %d: %w", ventry, ErrOutOfIndex)
		}
	}
	copy(v[:], m.cachePage[offset-m.cacheStart:])
	return v, nil
}
