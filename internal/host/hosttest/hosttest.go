// Package hosttest provides an in-memory fake implementing host.Host, used
// by the module's own tests to exercise the pre-eviction/pre-miss round
// trip without a real embedding server.
package hosttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/spillmod/spilltier/internal/host"
)

// liveKey is a key still resident in the fake host's RAM, along with the
// serialized form it would hand back on Serialize and the TTL it reports.
type liveKey struct {
	payload []byte
	pttl    int64
}

// Fake is a minimal, single-threaded stand-in for a real host: it tracks a
// small set of "live" keys, records materialize calls, and lets tests fire
// pre-eviction/pre-miss notifications directly.
type Fake struct {
	mu sync.Mutex

	live map[string]liveKey

	preEviction host.EventHandler
	preMiss     host.EventHandler
	commands    map[string]registeredCommand
	infoHook    host.InfoHook

	// Materialized records every successful Materialize call, most recent
	// last, for assertions.
	Materialized []MaterializeCall

	// FailMaterialize, when non-nil, is returned by the next Materialize
	// call instead of succeeding (consumed once).
	FailMaterialize error

	// SerializeErr and TTLErr force the corresponding call to fail, for
	// exercising HostCallError paths.
	SerializeErr error
	TTLErr       error
}

type registeredCommand struct {
	flags   host.CommandFlags
	handler host.CommandHandler
}

// MaterializeCall captures one accepted Materialize invocation.
type MaterializeCall struct {
	Key       []byte
	Payload   []byte
	TTLMillis int64
}

func New() *Fake {
	return &Fake{
		live:     make(map[string]liveKey),
		commands: make(map[string]registeredCommand),
	}
}

// PutLive registers a key as currently resident in RAM with the given
// serialized payload and reported PTTL (host.TTLNone / host.TTLKeyAbsent or
// a positive millisecond count).
func (f *Fake) PutLive(key string, payload []byte, pttl int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[key] = liveKey{payload: payload, pttl: pttl}
}

// FirePreEviction invokes the subscribed pre-eviction handler, if any.
func (f *Fake) FirePreEviction(ctx context.Context, key string) {
	f.mu.Lock()
	h := f.preEviction
	f.mu.Unlock()
	if h != nil {
		h(ctx, []byte(key))
	}
}

// FirePreMiss invokes the subscribed pre-miss handler, if any.
func (f *Fake) FirePreMiss(ctx context.Context, key string) {
	f.mu.Lock()
	h := f.preMiss
	f.mu.Unlock()
	if h != nil {
		h(ctx, []byte(key))
	}
}

// Command invokes a registered command by name, mirroring what a real host
// dispatcher would do.
func (f *Fake) Command(ctx context.Context, name string, args ...[]byte) (host.Reply, error) {
	f.mu.Lock()
	cmd, ok := f.commands[name]
	f.mu.Unlock()
	if !ok {
		return host.Reply{}, fmt.Errorf("hosttest: unknown command %q", name)
	}
	return cmd.handler(ctx, args), nil
}

// Info invokes the registered info hook.
func (f *Fake) Info(ctx context.Context) (stats, config []host.InfoField, ok bool) {
	f.mu.Lock()
	hook := f.infoHook
	f.mu.Unlock()
	if hook == nil {
		return nil, nil, false
	}
	s, c := hook(ctx)
	return s, c, true
}

// Subscribe implements host.EventBus.
func (f *Fake) Subscribe(kind host.EventKind, handler host.EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch kind {
	case host.PreEviction:
		f.preEviction = handler
	case host.PreMiss:
		f.preMiss = handler
	default:
		return fmt.Errorf("hosttest: unknown event kind %q", kind)
	}
	return nil
}

// Serialize implements host.Caller.
func (f *Fake) Serialize(ctx context.Context, key []byte) ([]byte, bool, error) {
	if f.SerializeErr != nil {
		return nil, false, f.SerializeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lk, ok := f.live[string(key)]
	if !ok {
		return nil, false, nil
	}
	return lk.payload, true, nil
}

// TTLMillis implements host.Caller.
func (f *Fake) TTLMillis(ctx context.Context, key []byte) (int64, bool, error) {
	if f.TTLErr != nil {
		return 0, false, f.TTLErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lk, ok := f.live[string(key)]
	if !ok {
		return host.TTLKeyAbsent, true, nil
	}
	return lk.pttl, true, nil
}

// Materialize implements host.Caller.
func (f *Fake) Materialize(ctx context.Context, key, payload []byte, ttlMillis int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailMaterialize != nil {
		err := f.FailMaterialize
		f.FailMaterialize = nil
		return err
	}
	f.live[string(key)] = liveKey{payload: payload, pttl: ttlMillis}
	f.Materialized = append(f.Materialized, MaterializeCall{
		Key:       append([]byte(nil), key...),
		Payload:   append([]byte(nil), payload...),
		TTLMillis: ttlMillis,
	})
	return nil
}

// RegisterCommand implements host.CommandRegistry.
func (f *Fake) RegisterCommand(name string, flags host.CommandFlags, handler host.CommandHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[name] = registeredCommand{flags: flags, handler: handler}
	return nil
}

// RegisterInfoHook implements host.InfoRegistry.
func (f *Fake) RegisterInfoHook(hook host.InfoHook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoHook = hook
	return nil
}
