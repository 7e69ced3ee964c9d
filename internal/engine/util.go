package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"unsafe"
)

func keyLess(a, b Key) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// bsearch looks key up in a sorted index and returns the rightmost
// position of its run of equal keys.
func bsearch(index []keyEntry, key Key) (int, bool) {
	n := len(index)
	if n == 0 {
		return -1, false
	}
	left, right := 0, n-1
	for left <= right {
		mid := left + (right-left)/2
		switch {
		case keyLess(index[mid].key, key):
			left = mid + 1
		case keyLess(key, index[mid].key):
			right = mid - 1
		default:
			for mid+1 < n && index[mid+1].key == key {
				mid++
			}
			return mid, true
		}
	}
	return -1, false
}

// findInsertPoint locates where key belongs in a sorted index. For an
// absent key it returns (false, pos) with pos keeping the index sorted
// after insertion. For a present key it returns (true, pos): one past
// the run when the run reaches the end of the index, otherwise the
// probe position inside the run.
func findInsertPoint(index []keyEntry, key Key) (bool, int) {
	n := len(index)
	if n == 0 {
		return false, 0
	}
	if keyLess(key, index[0].key) {
		return false, 0
	}
	if keyLess(index[n-1].key, key) {
		return false, n
	}
	left, right := 0, n-1
	for left <= right {
		mid := left + (right-left)/2
		switch {
		case keyLess(index[mid].key, key):
			left = mid + 1
		case keyLess(key, index[mid].key):
			right = mid - 1
		default:
			p := mid
			for p < n && index[p].key == key {
				p++
			}
			if p == n {
				return true, n
			}
			return true, mid
		}
	}
	return false, left
}

// scanRecords decodes 12-byte key-metadata records from data, stopping
// at the first all-zero record. Returns ErrWrongAlignment when data is
// not record aligned.
func scanRecords(data []byte) ([]keyEntry, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%d byte span: %w", len(data), ErrWrongAlignment)
	}
	var entries []keyEntry
	for off := 0; off < len(data); off += RecordSize {
		record := data[off : off+RecordSize]
		if isZero(record) {
			break
		}
		var e keyEntry
		copy(e.key[:], record[:KeySize])
		e.ventry = binary.BigEndian.Uint32(record[KeySize:])
		entries = append(entries, e)
	}
	return entries, nil
}

// sortIndex orders entries by key ascending, then value entry ascending.
func sortIndex(entries []keyEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return keyLess(entries[i].key, entries[j].key)
		}
		return entries[i].ventry < entries[j].ventry
	})
}

// buildIndex decodes one key region and returns its entries in index
// order.
func buildIndex(data []byte) ([]keyEntry, error) {
	entries, err := scanRecords(data)
	if err != nil {
		return nil, err
	}
	sortIndex(entries)
	return entries, nil
}

// putRecord serialises a key-metadata record into dst.
func putRecord(dst []byte, key Key, ventry uint32) {
	copy(dst[:KeySize], key[:])
	binary.BigEndian.PutUint32(dst[KeySize:RecordSize], ventry)
}

// ensureSize guarantees the file at path exists with a chunk-aligned
// size and room to append, and returns the absolute offset of its first
// free item slot. A file whose last item is occupied is considered full
// and extended by one chunk.
func ensureSize(path string, chunkSize, itemSize int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	size := st.Size()

	if size == 0 {
		if err := f.Truncate(chunkSize); err != nil {
			return 0, fmt.Errorf("failed to extend %s: %w", path, err)
		}
		return 0, nil
	}
	if size%chunkSize != 0 {
		return 0, fmt.Errorf("%s is %d bytes: %w", path, size, ErrWrongAlignment)
	}

	last := make([]byte, itemSize)
	if _, err := f.ReadAt(last, size-itemSize); err != nil {
		return 0, fmt.Errorf("failed to read tail of %s: %w", path, err)
	}
	if !isZero(last) {
		// Full file: extend by a whole chunk, append from the old end.
		if err := f.Truncate(size + chunkSize); err != nil {
			return 0, fmt.Errorf("failed to extend %s: %w", path, err)
		}
		return size, nil
	}

	chunk := make([]byte, chunkSize)
	if _, err := f.ReadAt(chunk, size-chunkSize); err != nil {
		return 0, fmt.Errorf("failed to read last chunk of %s: %w", path, err)
	}
	for off := int64(0); off < chunkSize; off += itemSize {
		if isZero(chunk[off : off+itemSize]) {
			return size - chunkSize + off, nil
		}
	}
	return size, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// alignedBlock allocates a size-byte slice whose backing address is
// aligned for direct I/O.
func alignedBlock(size, align int) []byte {
	buf := make([]byte, size+align)
	rem := int(uintptr(unsafe.Pointer(&buf[0])) % uintptr(align))
	off := 0
	if rem != 0 {
		off = align - rem
	}
	return buf[off : off+size : off+size]
}
