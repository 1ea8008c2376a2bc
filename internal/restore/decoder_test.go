package restore

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spillmod/spilltier/internal/codec"
	"github.com/spillmod/spilltier/internal/host"
	"github.com/spillmod/spilltier/internal/host/hosttest"
	"github.com/spillmod/spilltier/internal/stats"
	"github.com/spillmod/spilltier/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	e, err := store.Open(t.TempDir(), store.WithMergeInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func fixedClock(ms int64) func() int64 { return func() int64 { return ms } }

func TestRestoreCommandFiniteTTL(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put([]byte("foo"), codec.Frame(1_700_000_060_000, []byte("\x01\x02\x03"))))

	fake := hosttest.New()
	s := stats.New()
	d := New(st, fake, s, slog.Default(), fixedClock(1_700_000_005_000))

	reply := d.Restore(context.Background(), []byte("foo"))
	assert.Equal(t, host.ReplyOK, reply.Kind)

	require.Len(t, fake.Materialized, 1)
	call := fake.Materialized[0]
	assert.Equal(t, []byte("\x01\x02\x03"), call.Payload)
	assert.InDelta(t, 55_000, call.TTLMillis, 1)

	_, err := st.Get([]byte("foo"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRestoreCommandNoTTL(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put([]byte("bar"), codec.Frame(host.TTLNone, []byte("abc"))))

	fake := hosttest.New()
	s := stats.New()
	d := New(st, fake, s, slog.Default(), fixedClock(1000))

	reply := d.Restore(context.Background(), []byte("bar"))
	assert.Equal(t, host.ReplyOK, reply.Kind)
	require.Len(t, fake.Materialized, 1)
	assert.EqualValues(t, 0, fake.Materialized[0].TTLMillis)
}

func TestRestoreCommandNotFound(t *testing.T) {
	st := newTestStore(t)
	fake := hosttest.New()
	d := New(st, fake, stats.New(), slog.Default(), fixedClock(1000))

	reply := d.Restore(context.Background(), []byte("missing"))
	assert.Equal(t, host.ReplyNull, reply.Kind)
}

func TestRestoreCommandExpired(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put([]byte("gone"), codec.Frame(1000, []byte("x"))))

	fake := hosttest.New()
	s := stats.New()
	d := New(st, fake, s, slog.Default(), fixedClock(5000))

	reply := d.Restore(context.Background(), []byte("gone"))
	require.Equal(t, host.ReplyError, reply.Kind)
	assert.ErrorIs(t, reply.Err, ErrExpired)

	_, err := st.Get([]byte("gone"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualValues(t, -1, s.Snapshot().NumKeysStored)
}

func TestRestoreCommandCorrupted(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put([]byte("bad"), []byte("xx")))

	fake := hosttest.New()
	d := New(st, fake, stats.New(), slog.Default(), fixedClock(1000))

	reply := d.Restore(context.Background(), []byte("bad"))
	require.Equal(t, host.ReplyError, reply.Kind)
	assert.ErrorIs(t, reply.Err, ErrCorrupted)

	// entry remains in place; a second restore replies corrupted-data again.
	reply2 := d.Restore(context.Background(), []byte("bad"))
	assert.ErrorIs(t, reply2.Err, ErrCorrupted)
}

func TestRestoreCommandHostFailureLeavesEntryIntact(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put([]byte("k"), codec.Frame(host.TTLNone, []byte("v"))))

	fake := hosttest.New()
	fake.FailMaterialize = assertErr
	s := stats.New()
	d := New(st, fake, s, slog.Default(), fixedClock(1000))

	reply := d.Restore(context.Background(), []byte("k"))
	assert.Equal(t, host.ReplyError, reply.Kind)

	_, err := st.Get([]byte("k"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.Snapshot().MaterializeFailures)
}

func TestOnPreMissRestoresSilently(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put([]byte("k"), codec.Frame(host.TTLNone, []byte("v"))))

	fake := hosttest.New()
	d := New(st, fake, stats.New(), slog.Default(), fixedClock(1000))

	d.OnPreMiss(context.Background(), []byte("k"))

	require.Len(t, fake.Materialized, 1)
	_, err := st.Get([]byte("k"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

var assertErr = &testError{"materialize boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
