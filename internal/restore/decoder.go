// Package restore implements the pre-miss and explicit-restore paths:
// reading a previously spilled key back out of the store and asking the
// host to materialize it in RAM.
package restore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spillmod/spilltier/internal/codec"
	"github.com/spillmod/spilltier/internal/host"
	"github.com/spillmod/spilltier/internal/stats"
	"github.com/spillmod/spilltier/internal/store"
)

// Sentinel outcomes shared by both entry points, mapped to command replies
// by Restore. OnPreMiss never replies: it drops ErrExpired silently and
// logs ErrCorrupted.
var (
	ErrCorrupted = errors.New("restore: corrupted data")
	ErrExpired   = errors.New("restore: key has expired")
)

// Decoder handles both the pre-miss host callback and the explicit restore
// command, sharing one algorithm the way
// internal/lifetimer/lifetimer.go's OnTTL is invoked from both a worker
// loop and a direct call.
type Decoder struct {
	store  store.Store
	caller host.Caller
	stats  *stats.Stats
	logger *slog.Logger
	nowMs  func() int64
}

func New(st store.Store, caller host.Caller, sts *stats.Stats, logger *slog.Logger, nowMs func() int64) *Decoder {
	return &Decoder{store: st, caller: caller, stats: sts, logger: logger, nowMs: nowMs}
}

// OnPreMiss is the host.EventHandler subscribed to host.PreMiss. It never
// surfaces an error: failures are logged and the miss proceeds as a normal
// miss in the host.
func (d *Decoder) OnPreMiss(ctx context.Context, key []byte) {
	_, err := d.restore(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, ErrExpired) {
		d.logger.Warn("restore: pre-miss restore failed", "key", string(key), "err", err)
	}
}

// Restore runs the same algorithm and reports the outcome as a host.Reply,
// for the explicit restore command.
func (d *Decoder) Restore(ctx context.Context, key []byte) host.Reply {
	materialized, err := d.restore(ctx, key)
	switch {
	case err == nil:
		if materialized {
			return host.OK()
		}
		return host.Null()
	case errors.Is(err, store.ErrNotFound):
		return host.Null()
	case errors.Is(err, ErrExpired):
		return host.Errorf(ErrExpired)
	case errors.Is(err, ErrCorrupted):
		return host.Errorf(ErrCorrupted)
	default:
		return host.Errorf(err)
	}
}

// restore looks a key up, checks its expiry, and asks the host to
// materialize it. materialized is true only when the host accepted the
// materialize call and the entry was deleted.
func (d *Decoder) restore(ctx context.Context, key []byte) (materialized bool, err error) {
	v, err := d.store.Get(key)
	if err != nil {
		return false, err
	}

	expiryMs, ok := codec.DecodeExpiry(v)
	if !ok {
		return false, ErrCorrupted
	}

	if codec.Expired(expiryMs, d.nowMs()) {
		if delErr := d.store.Delete(key); delErr != nil {
			d.logger.Warn("restore: delete of expired entry failed", "key", string(key), "err", delErr)
		} else {
			d.stats.RecordExpiredDelete()
		}
		return false, ErrExpired
	}

	var ttlMillis int64
	if expiryMs > 0 {
		ttlMillis = expiryMs - d.nowMs()
		if ttlMillis < 1 {
			ttlMillis = 1
		}
	}

	payload := codec.Payload(v)
	if err := d.caller.Materialize(ctx, key, payload, ttlMillis); err != nil {
		d.stats.RecordMaterializeFailure()
		return false, err
	}

	if err := d.store.Delete(key); err != nil {
		// materialize already succeeded in the host; a failed delete here
		// leaves a harmless stale entry the sweeper will never surface
		// again once it re-expires, but is otherwise logged only.
		d.logger.Warn("restore: delete after materialize failed", "key", string(key), "err", err)
	}
	d.stats.RecordRestore(int64(len(v)))

	return true, nil
}
