package spill

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

func fixedClock(ms int64) func() int64 {
	return func() int64 { return ms }
}

func TestOnPreEvictionFiniteTTL(t *testing.T) {
	st := newTestStore(t)
	fake := hosttest.New()
	fake.PutLive("foo", []byte("\x01\x02\x03"), 60_000)
	s := stats.New()
	enc := New(st, fake, s, slog.Default(), fixedClock(1_700_000_000_000))

	enc.OnPreEviction(context.Background(), []byte("foo"))

	v, err := st.Get([]byte("foo"))
	require.NoError(t, err)
	expiry, ok := codec.DecodeExpiry(v)
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_060_000), expiry)
	assert.Equal(t, []byte("\x01\x02\x03"), codec.Payload(v))

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.NumKeysStored)
	assert.EqualValues(t, 1, snap.TotalKeysWritten)
}

func TestOnPreEvictionNoTTLStoredVerbatim(t *testing.T) {
	st := newTestStore(t)
	fake := hosttest.New()
	fake.PutLive("bar", []byte("abc"), host.TTLNone)
	s := stats.New()
	enc := New(st, fake, s, slog.Default(), fixedClock(1000))

	enc.OnPreEviction(context.Background(), []byte("bar"))

	v, err := st.Get([]byte("bar"))
	require.NoError(t, err)
	expiry, _ := codec.DecodeExpiry(v)
	assert.Equal(t, host.TTLNone, expiry)
}

func TestOnPreEvictionSerializeFailureSkipsWrite(t *testing.T) {
	st := newTestStore(t)
	fake := hosttest.New()
	fake.SerializeErr = assertErr
	s := stats.New()
	enc := New(st, fake, s, slog.Default(), fixedClock(1000))

	enc.OnPreEviction(context.Background(), []byte("foo"))

	_, err := st.Get([]byte("foo"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualValues(t, 0, s.Snapshot().TotalKeysWritten)
}

func TestOnPreEvictionOverwriteDoesNotDoubleCountStored(t *testing.T) {
	st := newTestStore(t)
	fake := hosttest.New()
	fake.PutLive("k", []byte("v1"), host.TTLNone)
	s := stats.New()
	enc := New(st, fake, s, slog.Default(), fixedClock(1000))

	enc.OnPreEviction(context.Background(), []byte("k"))
	fake.PutLive("k", []byte("v2"), host.TTLNone)
	enc.OnPreEviction(context.Background(), []byte("k"))

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.NumKeysStored)
	assert.EqualValues(t, 2, snap.TotalKeysWritten)

	v, err := st.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), codec.Payload(v))
}

var assertErr = &testError{"serialize boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
