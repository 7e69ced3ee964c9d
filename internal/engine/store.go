package engine

import (
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Store file names inside the data directory.
const (
	keyFileName    = "toy.k"
	valueFileName  = "toy.v"
	bufferFileName = "toy.b"
)

// Options tune a store at open time.
type Options struct {
	// BloomCapacity is the expected number of distinct keys used to
	// size the negative-lookup filter.
	BloomCapacity uint

	// BloomFPRate is the target false-positive rate of the filter.
	BloomFPRate float64
}

// DefaultOptions returns the options used by Open.
func DefaultOptions() Options {
	return Options{
		BloomCapacity: 1 << 20,
		BloomFPRate:   0.01,
	}
}

// Store is a single-writer key-value store over three files in one
// directory: key metadata, values and the write buffer. Reads may run
// concurrently with one writer; the store serialises them internally.
type Store struct {
	dir string

	mu     sync.RWMutex
	km     *keyManager
	vm     *valueManager
	filter *bloom.BloomFilter

	keyFile *os.File
	bufFile *os.File
	keysMap []byte
	bufMap  []byte
	chunk   int64 // current chunk ordinal
	closed  bool
}

// Open opens or creates the store in dir with default options.
func Open(dir string) (*Store, error) {
	return OpenWithOptions(dir, DefaultOptions())
}

// OpenWithOptions ensures the three store files exist with chunk-aligned
// sizes, rebuilds the in-memory index from the key file and positions
// the write cursor at the first free value slot.
func OpenWithOptions(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	keyPath := filepath.Join(dir, keyFileName)
	bufPath := filepath.Join(dir, bufferFileName)
	valPath := filepath.Join(dir, valueFileName)

	keyCursor, err := ensureSize(keyPath, KeyFileSize, RecordSize)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap key file: %w", err)
	}
	bufCursor, err := ensureSize(bufPath, BufferSize, ValueSize)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap buffer file: %w", err)
	}

	keyFile, err := os.OpenFile(keyPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	bufFile, err := os.OpenFile(bufPath, os.O_RDWR, 0o644)
	if err != nil {
		keyFile.Close()
		return nil, fmt.Errorf("failed to open buffer file: %w", err)
	}
	// The buffer file holds exactly one buffer. A full buffer only
	// persists when the previous process died between fill and flush;
	// ensureSize will have extended the file, so shrink it back and
	// flush the recovered buffer below.
	if st, err := bufFile.Stat(); err == nil && st.Size() > BufferSize {
		if err := bufFile.Truncate(BufferSize); err != nil {
			keyFile.Close()
			bufFile.Close()
			return nil, fmt.Errorf("failed to trim buffer file: %w", err)
		}
	}

	st, err := keyFile.Stat()
	if err != nil {
		keyFile.Close()
		bufFile.Close()
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}
	chunks := st.Size() / KeyFileSize
	chunkIdx := keyCursor / KeyFileSize

	region := make([]byte, KeyFileSize)
	var entries []keyEntry
	for c := int64(0); c < chunks; c++ {
		if _, err := keyFile.ReadAt(region, c*KeyFileSize); err != nil {
			keyFile.Close()
			bufFile.Close()
			return nil, fmt.Errorf("failed to read key chunk %d: %w", c, err)
		}
		chunkEntries, err := scanRecords(region)
		if err != nil {
			keyFile.Close()
			bufFile.Close()
			return nil, fmt.Errorf("failed to scan key chunk %d: %w", c, err)
		}
		entries = append(entries, chunkEntries...)
	}
	sortIndex(entries)

	keysMap, err := mapShared(int(keyFile.Fd()), chunkIdx*KeyFileSize, KeyFileSize)
	if err != nil {
		keyFile.Close()
		bufFile.Close()
		return nil, fmt.Errorf("failed to map key chunk: %w", err)
	}
	bufMap, err := mapShared(int(bufFile.Fd()), 0, BufferSize)
	if err != nil {
		unmapShared(keysMap)
		keyFile.Close()
		bufFile.Close()
		return nil, fmt.Errorf("failed to map buffer file: %w", err)
	}

	valFile, err := OpenDirectFile(valPath, ModeOpen, AccessReadWrite, BlockAlign)
	if err != nil {
		unmapShared(bufMap)
		unmapShared(keysMap)
		keyFile.Close()
		bufFile.Close()
		return nil, fmt.Errorf("failed to open value file: %w", err)
	}
	wantValueSize := (chunkIdx + 1) * ValueFileSize
	if size, err := valFile.Size(); err == nil && size < wantValueSize {
		err = valFile.Truncate(wantValueSize)
		if err != nil {
			valFile.Close()
			unmapShared(bufMap)
			unmapShared(keysMap)
			keyFile.Close()
			bufFile.Close()
			return nil, fmt.Errorf("failed to size value file: %w", err)
		}
	}

	// The value file cursor is derived, not stored: everything with a
	// key record but no buffer slot has been flushed.
	bufValues := bufCursor / ValueSize
	filePos := (int64(len(entries)) - bufValues) * ValueSize

	filter := bloom.NewWithEstimates(opts.BloomCapacity, opts.BloomFPRate)
	for i := range entries {
		filter.Add(entries[i].key[:])
	}

	s := &Store{
		dir:     dir,
		km:      newKeyManager(keysMap, entries, uint32(len(entries))),
		vm:      newValueManager(bufMap, int(bufCursor), valFile, filePos),
		filter:  filter,
		keyFile: keyFile,
		bufFile: bufFile,
		keysMap: keysMap,
		bufMap:  bufMap,
		chunk:   chunkIdx,
	}

	// A buffer recovered full is promoted right away; ensureSize has
	// already provisioned the next chunk, so no growth happens here.
	if s.vm.bufPos == BufferSize {
		if _, err := s.vm.flush(); err != nil {
			s.Close()
			return nil, err
		}
	}

	slog.Info("store: opened",
		"dir", dir,
		"keys", len(entries),
		"chunk", chunkIdx,
		"buffered", bufValues)
	return s, nil
}

// Get returns the value stored under key. The second return is false
// when the key was never written or its latest entry is a tombstone.
func (s *Store) Get(key Key) (Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero Value
	if s.closed {
		return zero, false, ErrStoreClosed
	}
	if !s.filter.Test(key[:]) {
		return zero, false, nil
	}
	entry, ok := s.km.find(key)
	if !ok {
		return zero, false, nil
	}
	v, err := s.vm.read(entry.ventry)
	if err != nil {
		return zero, false, err
	}
	if v.IsTombstone() {
		return zero, false, nil
	}
	return v, true, nil
}

// Put appends value under key. The value lands in the write buffer and
// is promoted to the value file by whole-buffer flushes; a flush that
// fills the current chunk grows the store files by one chunk.
//
// A flush or growth failure leaves the in-memory state inconsistent
// with disk; the handle must be discarded and the store reopened.
func (s *Store) Put(key Key, value Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	full, err := s.vm.write(value[:])
	if err != nil {
		return err
	}
	flushed := false
	if full {
		if _, err := s.vm.flush(); err != nil {
			return err
		}
		flushed = true
	}
	s.km.put(key)
	s.filter.Add(key[:])

	if flushed && s.vm.filePos%ValueFileSize == 0 {
		if err := s.grow(); err != nil {
			return err
		}
	}
	return nil
}

// Delete writes the tombstone sentinel under key.
func (s *Store) Delete(key Key) error {
	return s.Put(key, Tombstone())
}

// Scan yields the live key-value pairs whose ordinal positions in the
// sorted index fall in [start, end). Bounds are index positions, not
// keys. A run of duplicate keys yields only its entry with the largest
// value position; tombstoned keys are skipped.
//
// The iterator reads under the store's shared lock: it is single-pass
// and must not be held across a mutating operation.
func (s *Store) Scan(start, end uint32) iter.Seq2[Key, Value] {
	return func(yield func(Key, Value) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		if s.closed {
			return
		}
		index := s.km.index
		stop := min(int(end), len(index))
		for i := int(start); i < stop; {
			best := index[i]
			next := i + 1
			for next < len(index) && index[next].key == best.key {
				if index[next].ventry > best.ventry {
					best = index[next]
				}
				next++
			}
			v, err := s.vm.read(best.ventry)
			if err != nil {
				slog.Debug("store: scan read failed",
					"ventry", best.ventry,
					"error", err)
				return
			}
			if !v.IsTombstone() {
				if !yield(best.key, v) {
					return
				}
			}
			i = next
		}
	}
}

// Size returns the number of index entries, superseded ones included.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.km.size()
}

// grow extends the value file by one chunk and rotates the key mapping
// onto a fresh key file chunk.
func (s *Store) grow() error {
	if err := s.vm.file.Truncate(s.vm.filePos + ValueFileSize); err != nil {
		return fmt.Errorf("failed to grow value file: %w", err)
	}

	if err := syncShared(s.keysMap); err != nil {
		return err
	}
	if err := unmapShared(s.keysMap); err != nil {
		return err
	}
	s.chunk++
	if err := s.keyFile.Truncate((s.chunk + 1) * KeyFileSize); err != nil {
		return fmt.Errorf("failed to grow key file: %w", err)
	}
	keysMap, err := mapShared(int(s.keyFile.Fd()), s.chunk*KeyFileSize, KeyFileSize)
	if err != nil {
		return fmt.Errorf("failed to map key chunk %d: %w", s.chunk, err)
	}
	s.keysMap = keysMap
	s.km.remap(keysMap)

	slog.Debug("store: grew files",
		"chunk", s.chunk,
		"value_bytes", s.vm.filePos)
	return nil
}

// Close flushes the mappings back to their files and releases every
// descriptor. Buffered values stay in the buffer file and are recovered
// at the next open.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(syncShared(s.bufMap))
	keep(unmapShared(s.bufMap))
	keep(syncShared(s.keysMap))
	keep(unmapShared(s.keysMap))
	keep(s.vm.file.Close())
	keep(s.keyFile.Close())
	keep(s.bufFile.Close())

	slog.Info("store: closed",
		"dir", s.dir,
		"keys", s.km.size())
	return firstErr
}
