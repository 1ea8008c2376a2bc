package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(dir, WithMergeInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPutGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Put([]byte("foo"), []byte("bar")))

	v, err := e.Get([]byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bar"), v)
	assert.EqualValues(t, 1, e.Len())
}

func TestGetMissing(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Get([]byte("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverwriteDoesNotChangeLen(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Put([]byte("k"), []byte("v1")))
	require.NoError(t, e.Put([]byte("k"), []byte("v2")))
	assert.EqualValues(t, 1, e.Len())

	v, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
}

func TestDeleteIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Delete([]byte("k")))
	require.NoError(t, e.Delete([]byte("k")))
	assert.EqualValues(t, 0, e.Len())
	_, err := e.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmptyValueRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Put([]byte("empty"), nil))
	v, err := e.Get([]byte("empty"))
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestValueWithNulBytesRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	payload := []byte{0x00, 0x01, 0x00, 0x02}
	require.NoError(t, e.Put([]byte("bin"), payload))
	v, err := e.Get([]byte("bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, v)
}

func TestKeyTooLargeRejected(t *testing.T) {
	e := newTestEngine(t)
	big := make([]byte, MaxKeySize+1)
	err := e.Put(big, []byte("v"))
	assert.ErrorIs(t, err, ErrKeyTooLarge)
}

func TestClosedEngineRejectsOps(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())
	_, err := e.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.Put([]byte("k"), []byte("v")), ErrClosed)
}

func TestReopenRebuildsIndexFromSegments(t *testing.T) {
	dir := t.TempDir()
	e1, err := Open(dir, WithMergeInterval(0))
	require.NoError(t, err)
	require.NoError(t, e1.Put([]byte("a"), []byte("1")))
	require.NoError(t, e1.Put([]byte("b"), []byte("2")))
	require.NoError(t, e1.Delete([]byte("a")))
	require.NoError(t, e1.Close())

	e2, err := Open(dir, WithMergeInterval(0))
	require.NoError(t, err)
	defer e2.Close()

	assert.EqualValues(t, 1, e2.Len())
	_, err = e2.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
	v, err := e2.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestVerifyChecksumsDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, WithMergeInterval(0), WithVerifyChecksums(true))
	require.NoError(t, err)

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Close())

	path := filepath.Join(dir, segmentFileName(0))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF // flip a byte inside the trailing checksum
	require.NoError(t, os.WriteFile(path, data, 0o644))

	e2, err := Open(dir, WithMergeInterval(0), WithVerifyChecksums(true))
	require.NoError(t, err)
	defer e2.Close()

	_, err = e2.Get([]byte("k"))
	assert.Error(t, err)
}
