package engine

// keyManager owns the key side of the store: the mapped current chunk
// of the key file and the in-memory index ordering every key written so
// far. The next value entry to assign always equals the index length.
type keyManager struct {
	keys   []byte // mapped view of the current key file chunk
	index  []keyEntry
	ventry uint32
}

func newKeyManager(keys []byte, index []keyEntry, ventry uint32) *keyManager {
	return &keyManager{keys: keys, index: index, ventry: ventry}
}

// find binary-searches the index for key. Among duplicates it returns
// the occurrence with the largest value entry, which carries the
// current logical value of the key.
func (m *keyManager) find(key Key) (keyEntry, bool) {
	pos, found := bsearch(m.index, key)
	if !found {
		return keyEntry{}, false
	}
	best := m.index[pos]
	for i := pos - 1; i >= 0 && m.index[i].key == key; i-- {
		if m.index[i].ventry > best.ventry {
			best = m.index[i]
		}
	}
	return best, true
}

// put assigns the next value entry to key, appends the 12-byte record
// into the mapped chunk and inserts the pair into the ordered index.
// Returns the assigned entry.
func (m *keyManager) put(key Key) uint32 {
	ventry := m.ventry
	slot := int(ventry%ChunkKeys) * RecordSize
	putRecord(m.keys[slot:slot+RecordSize], key, ventry)

	entry := keyEntry{key: key, ventry: ventry}
	_, pos := findInsertPoint(m.index, key)
	if pos == len(m.index) {
		m.index = append(m.index, entry)
	} else {
		m.index = append(m.index, keyEntry{})
		copy(m.index[pos+1:], m.index[pos:])
		m.index[pos] = entry
	}
	m.ventry = uint32(len(m.index))
	return ventry
}

// remap points the manager at a freshly mapped key file chunk.
func (m *keyManager) remap(keys []byte) {
	m.keys = keys
}

// size returns the number of entries in the index.
func (m *keyManager) size() int {
	return len(m.index)
}
