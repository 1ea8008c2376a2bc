package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCompactionReclaimsOverwrittenKeys drives runOnce directly rather than
// waiting on the ticker, exercising the same merge path a live interval
// would.
func TestCompactionReclaimsOverwrittenKeys(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, WithMergeInterval(0))
	require.NoError(t, err)
	defer e.Close()

	// force several segment rotations so there is more than one segment
	// for the compactor to fold together.
	e.opts.TargetFileSizeBytes = 32

	for i := 0; i < 20; i++ {
		require.NoError(t, e.Put([]byte("k"), []byte("value-that-forces-rotation")))
	}

	c := newCompactor(e, 0, 0.999) // ratio always triggers a merge
	c.runOnce()

	v, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value-that-forces-rotation"), v)
	assert.EqualValues(t, 1, e.Len())
}
