package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, s *Store, key, value string) {
	t.Helper()
	k, err := KeyFromString(key)
	require.NoError(t, err)
	v, err := ValueFromString(value)
	require.NoError(t, err)
	require.NoError(t, s.Put(k, v))
}

func get(t *testing.T, s *Store, key string) (string, bool) {
	t.Helper()
	k, err := KeyFromString(key)
	require.NoError(t, err)
	v, found, err := s.Get(k)
	require.NoError(t, err)
	return v.String(), found
}

func del(t *testing.T, s *Store, key string) {
	t.Helper()
	k, err := KeyFromString(key)
	require.NoError(t, err)
	require.NoError(t, s.Delete(k))
}

func putAll(t *testing.T, s *Store) {
	t.Helper()
	for _, kv := range [][2]string{
		{"key00", "value00"},
		{"key02", "value02"},
		{"key01", "value01"},
		{"key03", "value03"},
		{"key05", "value05"},
		{"key04", "value04"},
	} {
		put(t, s, kv[0], kv[1])
	}
}

func TestStorePutGet(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	putAll(t, s)
	for i := 0; i <= 5; i++ {
		v, found := get(t, s, fmt.Sprintf("key0%d", i))
		require.True(t, found, "key0%d missing", i)
		assert.Equal(t, fmt.Sprintf("value0%d", i), v)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, found := get(t, s, "nothing")
	assert.False(t, found)
}

func TestStoreDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	putAll(t, s)
	del(t, s, "key05")

	for i := 0; i <= 4; i++ {
		v, found := get(t, s, fmt.Sprintf("key0%d", i))
		require.True(t, found)
		assert.Equal(t, fmt.Sprintf("value0%d", i), v)
	}
	_, found := get(t, s, "key05")
	assert.False(t, found)
}

func TestStoreOverwrite(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	put(t, s, "key", "first")
	put(t, s, "key", "second")
	v, found := get(t, s, "key")
	require.True(t, found)
	assert.Equal(t, "second", v)

	// Superseding a key whose index run sits between other keys.
	putAll(t, s)
	put(t, s, "key03", "updated")
	v, found = get(t, s, "key03")
	require.True(t, found)
	assert.Equal(t, "updated", v)

	// A delete and re-put resurrects the key.
	del(t, s, "key03")
	_, found = get(t, s, "key03")
	require.False(t, found)
	put(t, s, "key03", "again")
	v, found = get(t, s, "key03")
	require.True(t, found)
	assert.Equal(t, "again", v)
}

func TestStoreScan(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	putAll(t, s)

	var keys, values []string
	for k, v := range s.Scan(0, 6) {
		keys = append(keys, k.String())
		values = append(values, v.String())
	}
	assert.Equal(t, []string{"key00", "key01", "key02", "key03", "key04", "key05"}, keys)
	assert.Equal(t, []string{"value00", "value01", "value02", "value03", "value04", "value05"}, values)
}

func TestStoreScanSkipsTombstones(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	putAll(t, s)
	del(t, s, "key02")

	var keys []string
	for k := range s.Scan(0, uint32(s.Size())) {
		keys = append(keys, k.String())
	}
	assert.Equal(t, []string{"key00", "key01", "key03", "key04", "key05"}, keys)
}

func TestStoreScanDeduplicates(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	putAll(t, s)
	put(t, s, "key01", "updated")

	var pairs []string
	for k, v := range s.Scan(0, uint32(s.Size())) {
		pairs = append(pairs, k.String()+"="+v.String())
	}
	assert.Equal(t, []string{
		"key00=value00",
		"key01=updated",
		"key02=value02",
		"key03=value03",
		"key04=value04",
		"key05=value05",
	}, pairs)
}

func TestStoreScanBounds(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	putAll(t, s)

	var keys []string
	for k := range s.Scan(2, 4) {
		keys = append(keys, k.String())
	}
	assert.Equal(t, []string{"key02", "key03"}, keys)

	count := 0
	for range s.Scan(100, 200) {
		count++
	}
	assert.Zero(t, count)

	count = 0
	for range s.Scan(4, 2) {
		count++
	}
	assert.Zero(t, count)
}

func TestStoreEmptyScan(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	count := 0
	for range s.Scan(0, 10) {
		count++
	}
	assert.Zero(t, count)
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	putAll(t, s)
	del(t, s, "key05")
	require.NoError(t, s.Close())

	// Everything still sits in the buffer file; reopen recovers it.
	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i <= 4; i++ {
		v, found := get(t, s, fmt.Sprintf("key0%d", i))
		require.True(t, found, "key0%d missing after reopen", i)
		assert.Equal(t, fmt.Sprintf("value0%d", i), v)
	}
	_, found := get(t, s, "key05")
	assert.False(t, found)
}

func TestStoreFileInvariants(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	putAll(t, s)
	require.NoError(t, s.Close())

	st, err := os.Stat(filepath.Join(dir, bufferFileName))
	require.NoError(t, err)
	assert.EqualValues(t, BufferSize, st.Size(), "buffer file size")

	st, err = os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Zero(t, st.Size()%KeyFileSize, "key file chunk alignment")

	st, err = os.Stat(filepath.Join(dir, valueFileName))
	require.NoError(t, err)
	assert.Zero(t, st.Size()%ValueFileSize, "value file chunk alignment")
}

func TestStoreClosed(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close")

	k, _ := KeyFromString("key")
	_, _, err = s.Get(k)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Put(k, Tombstone()), ErrStoreClosed)
}

func TestStoreBufferBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chunk boundary test in short mode")
	}
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	// Exactly one chunk of writes fills the buffer, causes one flush
	// and rotates onto a fresh chunk; the next write keeps going.
	for i := 0; i < ChunkKeys; i++ {
		put(t, s, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}

	st, err := os.Stat(filepath.Join(dir, valueFileName))
	require.NoError(t, err)
	assert.EqualValues(t, 2*ValueFileSize, st.Size(), "value file after boundary flush")

	put(t, s, "extra", "extra-value")

	v, found := get(t, s, "k0")
	require.True(t, found)
	assert.Equal(t, "v0", v)
	v, found = get(t, s, fmt.Sprintf("k%d", ChunkKeys-1))
	require.True(t, found)
	assert.Equal(t, fmt.Sprintf("v%d", ChunkKeys-1), v)
	v, found = get(t, s, "extra")
	require.True(t, found)
	assert.Equal(t, "extra-value", v)
}

func TestStoreGrowAndReopen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping grow test in short mode")
	}
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	const n = 100000
	for i := 0; i < n; i++ {
		put(t, s, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	for _, i := range []int{0, 1, 65535, 65536, 99999} {
		v, found := get(t, s, fmt.Sprintf("k%d", i))
		require.True(t, found, "k%d missing after grow and reopen", i)
		assert.Equal(t, fmt.Sprintf("v%d", i), v)
	}
}
