// Package spill implements the pre-eviction path: capturing a key's live
// state just before the host removes it from RAM and writing it durably to
// the store with an absolute-expiry header.
package spill

import (
	"context"
	"log/slog"

	"github.com/spillmod/spilltier/internal/codec"
	"github.com/spillmod/spilltier/internal/host"
	"github.com/spillmod/spilltier/internal/stats"
	"github.com/spillmod/spilltier/internal/store"
)

// Encoder handles the host's pre-eviction notification. Grounded on
// internal/cache/cache.go's set (a private mutation entry point reached
// through a public callback) and internal/evictor/evictor.go's consumer
// shape: guard, do the one thing, update counters.
type Encoder struct {
	store  store.Store
	caller host.Caller
	stats  *stats.Stats
	logger *slog.Logger
	nowMs  func() int64
}

func New(st store.Store, caller host.Caller, sts *stats.Stats, logger *slog.Logger, nowMs func() int64) *Encoder {
	return &Encoder{store: st, caller: caller, stats: sts, logger: logger, nowMs: nowMs}
}

// OnPreEviction is the host.EventHandler subscribed to host.PreEviction.
// It never returns an error to the host: a failed capture is logged and
// the eviction proceeds regardless, since blocking eviction on the spill
// tier would defeat the point of freeing memory.
func (e *Encoder) OnPreEviction(ctx context.Context, key []byte) {
	payload, ok, err := e.caller.Serialize(ctx, key)
	if err != nil || !ok {
		e.logger.Warn("spill: serialize failed, skipping capture", "key", string(key), "err", err)
		return
	}

	pttl, ok, err := e.caller.TTLMillis(ctx, key)
	if err != nil {
		e.logger.Warn("spill: ttl probe failed, skipping capture", "key", string(key), "err", err)
		return
	}
	if !ok {
		// non-integer TTL reply: treat as unknown, i.e. no expiry known.
		pttl = host.TTLNone
	}

	var expiryMs int64
	if pttl > 0 {
		expiryMs = e.nowMs() + pttl
	} else {
		// -1 (no expiry) and -2 (key absent at capture, see Open Question
		// 1) are both stored verbatim; a restore later treats any
		// non-positive expiry as "no expiry".
		expiryMs = pttl
	}

	framed := codec.Frame(expiryMs, payload)

	// Best-effort read to classify this write as new-vs-overwrite for the
	// stored-key counter; any error but ErrNotFound is ignored rather than
	// aborting the capture.
	_, getErr := e.store.Get(key)
	isNewKey := getErr == store.ErrNotFound

	if err := e.store.Put(key, framed); err != nil {
		e.logger.Warn("spill: store put failed", "key", string(key), "err", err)
		return
	}

	e.stats.RecordWrite(int64(len(framed)), isNewKey)
}
