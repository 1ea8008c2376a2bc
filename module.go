// Package spilltier implements a host-plugin spill tier for an in-memory
// key/value server: it intercepts pre-eviction and pre-miss host callbacks,
// persists opaque payloads with an absolute-expiry header to an embedded
// on-disk store, and rehydrates them transparently on demand.
package spilltier

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/spillmod/spilltier/config"
	"github.com/spillmod/spilltier/internal/codec"
	"github.com/spillmod/spilltier/internal/host"
	"github.com/spillmod/spilltier/internal/info"
	"github.com/spillmod/spilltier/internal/restore"
	"github.com/spillmod/spilltier/internal/shared/cachedtime"
	"github.com/spillmod/spilltier/internal/spill"
	"github.com/spillmod/spilltier/internal/stats"
	"github.com/spillmod/spilltier/internal/store"
	"github.com/spillmod/spilltier/internal/sweeper"
)

// Module aggregates the spill encoder, restore decoder, sweeper and info
// provider behind one lifecycle, the way cache.go's Cache aggregates its own
// subsystems: one New that wires every collaborator together and
// subscribes/registers with the host, one Close that tears everything down.
type Module struct {
	cls   context.CancelFunc
	store store.Store
	stats *stats.Stats

	encoder *spill.Encoder
	decoder *restore.Decoder
	sweep   *sweeper.Worker
	info    *info.Provider

	closed atomic.Bool
}

// New validates cfg, opens the store, reconciles the stored-key counter
// against what is actually on disk, starts the sweeper and
// subscribes/registers with h. On any failure after the store has been
// opened, New tears down everything it already started before returning
// the error.
func New(ctx context.Context, cfg *config.Config, h host.Host, logger *slog.Logger) (*Module, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.EnsurePath(); err != nil {
		return nil, err
	}

	budget := cfg.Budget()
	st, err := store.Open(cfg.Path,
		store.WithBlockCacheBytes(budget.BlockCacheBytes),
		store.WithWriteBufferBytes(budget.WriteBufferBytes),
		store.WithVerifyChecksums(cfg.VerifyChecksums),
	)
	if err != nil {
		return nil, fmt.Errorf("spilltier: open store: %w", err)
	}

	// nowMs reads the shared cached clock (absolute-expiry math never needs
	// sub-10ms resolution) rather than calling time.Now() on every
	// spill/restore/sweep, the way cache.go wires it into its own hot
	// read/write path.
	nowMs := func() int64 { return cachedtime.UnixNano() / int64(1e6) }
	sts := stats.New()
	if err := reconcile(st, sts, nowMs()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("spilltier: startup reconciliation: %w", err)
	}

	moduleCtx, cancel := context.WithCancel(ctx)
	cachedtime.CloseByCtx(moduleCtx)
	m := &Module{
		cls:   cancel,
		store: st,
		stats: sts,

		encoder: spill.New(st, h, sts, logger, nowMs),
		decoder: restore.New(st, h, sts, logger, nowMs),
		sweep:   sweeper.New(moduleCtx, cfg.CleanupIntervalSeconds, st, sts, logger, nowMs),
		info:    info.New(sts, cfg),
	}

	if err := m.wire(h); err != nil {
		_ = m.Close()
		return nil, err
	}

	return m, nil
}

func (m *Module) wire(h host.Host) error {
	if err := h.Subscribe(host.PreEviction, m.encoder.OnPreEviction); err != nil {
		return fmt.Errorf("spilltier: subscribe pre-eviction: %w", err)
	}
	if err := h.Subscribe(host.PreMiss, m.decoder.OnPreMiss); err != nil {
		return fmt.Errorf("spilltier: subscribe pre-miss: %w", err)
	}
	if err := h.RegisterCommand("restore", host.CommandFlags{Write: true, FirstKey: 1, LastKey: 1, KeyStep: 1}, m.restoreCommand); err != nil {
		return fmt.Errorf("spilltier: register restore command: %w", err)
	}
	if err := h.RegisterCommand("cleanup", host.CommandFlags{Write: true}, m.cleanupCommand); err != nil {
		return fmt.Errorf("spilltier: register cleanup command: %w", err)
	}
	if err := h.RegisterCommand("spill.info", host.CommandFlags{}, m.info.Command); err != nil {
		return fmt.Errorf("spilltier: register spill.info command: %w", err)
	}
	if err := h.RegisterCommand("spill.purge", host.CommandFlags{Write: true}, m.purgeCommand); err != nil {
		return fmt.Errorf("spilltier: register spill.purge command: %w", err)
	}
	if err := h.RegisterInfoHook(m.info.Hook); err != nil {
		return fmt.Errorf("spilltier: register info hook: %w", err)
	}
	return nil
}

// restoreCommand implements the restore command: args[0] is the key. A
// zero-length key is rejected outright rather than passed through to the
// store, where it would silently look like "never spilled" instead of
// invalid input.
func (m *Module) restoreCommand(ctx context.Context, args [][]byte) host.Reply {
	if len(args) != 1 {
		return host.Errorf(fmt.Errorf("spilltier: restore expects exactly one key argument"))
	}
	if len(args[0]) == 0 {
		return host.Errorf(fmt.Errorf("spilltier: invalid key data"))
	}
	return m.decoder.Restore(ctx, args[0])
}

// cleanupCommand implements the on-demand cleanup command: one synchronous
// sweep pass, replied as ["num_keys_scanned", scanned, "num_keys_cleaned",
// cleaned].
func (m *Module) cleanupCommand(ctx context.Context, args [][]byte) host.Reply {
	scanned, cleaned := m.sweep.Sweep(ctx)
	return host.Array(
		host.Bulk("num_keys_scanned"), host.IntReply(scanned),
		host.Bulk("num_keys_cleaned"), host.IntReply(cleaned),
	)
}

// purgeCommand implements the spill.purge maintenance command: drops every
// entry unconditionally, for operators resetting the tier's on-disk state.
// Replies with the count removed.
func (m *Module) purgeCommand(ctx context.Context, args [][]byte) host.Reply {
	it := m.store.NewIterator()
	defer it.Close()

	var removed int64
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := m.store.Delete(it.Key()); err != nil {
			continue
		}
		removed++
	}
	m.stats.SeedNumKeysStored(0)
	return host.IntReply(removed)
}

// Close tears the module down idempotently: stops the sweeper, then closes
// the store. Safe to call even if New failed partway through wiring.
func (m *Module) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cls()
	if m.sweep != nil {
		_ = m.sweep.Close()
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// reconcile seeds the stored-key counter from what is actually on disk at
// startup: every entry that is either non-expiring or not yet past its
// absolute expiry counts as stored. Corrupted entries (a short header) are
// left for a later restore/sweep pass to discover and are not counted.
func reconcile(st store.Store, sts *stats.Stats, nowMs int64) error {
	it := st.NewIterator()
	defer it.Close()

	var n int64
	for it.SeekToFirst(); it.Valid(); it.Next() {
		expiryMs, ok := codec.DecodeExpiry(it.Value())
		if !ok {
			continue
		}
		if expiryMs <= 0 || expiryMs > nowMs {
			n++
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	sts.SeedNumKeysStored(n)
	return nil
}
