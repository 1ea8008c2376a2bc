// Package sweeper implements the background and on-demand reclamation
// pass: a forward scan over the store deleting entries whose absolute
// expiry has passed.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spillmod/spilltier/internal/codec"
	"github.com/spillmod/spilltier/internal/shared/rate"
	"github.com/spillmod/spilltier/internal/stats"
	"github.com/spillmod/spilltier/internal/store"
)

// Sweeper runs the reclamation pass, either on its own periodic thread or
// synchronously on demand.
type Sweeper interface {
	// Sweep runs one full forward scan now and returns how many entries
	// were visited and how many were deleted.
	Sweep(ctx context.Context) (scanned, cleaned int64)
	Close() error
}

// Worker is the production Sweeper: grounded on
// internal/evictor/evictor.go's EvictionWorker (ctx/cancel lifecycle,
// ticker-driven background loop, cooperative shutdown) generalized from
// "invoke an eviction pass via a channel" to "run the same sweep algorithm
// either from the ticker or directly from a command handler" — a sweep
// pass needs to return its (scanned, cleaned) counts to the caller, which
// the evictor's fire-and-forget invokeCh channel doesn't support, so the
// command path calls Sweep directly instead of signalling a worker
// goroutine.
type Worker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	store   store.Store
	stats   *stats.Stats
	logger  *slog.Logger
	nowMs   func() int64
	limiter *rate.Jitter

	sweepMu sync.Mutex
}

// deletesPerSecond caps how fast a single sweep pass issues store deletes,
// pacing bulk reclamation the way internal/shared/rate/jitter.go paces
// background refresh dispatch, so a large expired backlog doesn't starve
// the host thread's own store I/O.
const deletesPerSecond = 50_000

// sweepDue reports whether the sweep pass should reclaim an entry with the
// given absolute expiry. This is deliberately a strict less-than, distinct
// from codec.Expired's <= used by the restore path: an entry whose expiry
// lands exactly on now survives this particular sweep pass and is reclaimed
// on the next one instead.
func sweepDue(expiryMs, nowMs int64) bool {
	return expiryMs > 0 && expiryMs < nowMs
}

func New(ctx context.Context, cfgIntervalSeconds int64, st store.Store, sts *stats.Stats, logger *slog.Logger, nowMs func() int64) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		ctx:     ctx,
		cancel:  cancel,
		store:   st,
		stats:   sts,
		logger:  logger,
		nowMs:   nowMs,
		limiter: rate.NewJitter(ctx, deletesPerSecond),
	}
	if cfgIntervalSeconds > 0 {
		w.wg.Add(1)
		go w.periodicLoop(cfgIntervalSeconds)
	}
	return w
}

func (w *Worker) Close() error {
	w.cancel()
	w.wg.Wait()
	return nil
}

// periodicLoop sleeps in 1-second slices so shutdown is responsive, then
// runs a full sweep once the configured interval has elapsed.
func (w *Worker) periodicLoop(intervalSeconds int64) {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var elapsed int64
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			elapsed++
			if elapsed < intervalSeconds {
				continue
			}
			elapsed = 0
			w.Sweep(w.ctx)
		}
	}
}

// Sweep runs one forward scan over the store, deleting every entry whose
// absolute expiry has passed. It is safe to call concurrently with the
// periodic loop and with the spill/restore store operations; sweepMu only
// prevents two overlapping full scans from racing each other's rate
// limiter draw.
func (w *Worker) Sweep(ctx context.Context) (scanned, cleaned int64) {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()

	now := w.nowMs()
	it := w.store.NewIterator()
	defer it.Close()

	for it.SeekToFirst(); it.Valid(); it.Next() {
		select {
		case <-ctx.Done():
			goto done
		default:
		}

		scanned++
		v := it.Value()
		expiryMs, ok := codec.DecodeExpiry(v)
		if !ok {
			continue
		}
		if sweepDue(expiryMs, now) {
			w.limiter.Take()
			if err := w.store.Delete(it.Key()); err != nil {
				w.logger.Warn("sweeper: delete failed", "key", string(it.Key()), "err", err)
				continue
			}
			cleaned++
		}
	}
done:

	if err := it.Err(); err != nil {
		w.logger.Warn("sweeper: iterator error", "err", err)
	}

	w.stats.RecordSweep(cleaned, now/1000)
	return scanned, cleaned
}
