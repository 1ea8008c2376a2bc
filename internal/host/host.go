// Package host defines the module's abstract view of its embedding server:
// the event source that fires pre-eviction/pre-miss notifications, the
// call-and-reply surface used to serialize/materialize/probe-TTL a key, and
// the registries used to expose commands and an info hook. Everything here
// is an interface — the concrete host lives outside this module, and
// internal/host/hosttest provides an in-memory fake for tests.
package host

import "context"

// EventKind identifies one of the two host lifecycle notifications the
// module subscribes to.
type EventKind string

const (
	// PreEviction fires just before the host removes a key from RAM under
	// memory pressure or an explicit eviction command.
	PreEviction EventKind = "pre-eviction"
	// PreMiss fires when a read targets a key absent from RAM, before the
	// host finalizes its miss reply.
	PreMiss EventKind = "pre-miss"
)

// EventHandler observes a keyspace event. It must not block for long: it
// runs on the host's single command-processing thread.
type EventHandler func(ctx context.Context, key []byte)

// EventBus lets the module subscribe to host-fired lifecycle notifications.
type EventBus interface {
	Subscribe(kind EventKind, handler EventHandler) error
}

// TTL sentinel values returned by Caller.TTLMillis, carried verbatim from
// the host's own TTL probe.
const (
	// TTLNone means the key has no expiry.
	TTLNone int64 = -1
	// TTLKeyAbsent means the host reports the key as not present, a race
	// between eviction notice and the probe (see Open Question 1).
	TTLKeyAbsent int64 = -2
)

// Caller is the synchronous call-and-reply surface the module uses to ask
// the host to serialize, probe TTL, and materialize a key. All three calls
// must be safe to invoke from within an event handler on the host thread.
type Caller interface {
	// Serialize returns the opaque byte-string representation of key's
	// current live value. ok is false if the host reply was not a byte
	// string (treated as a HostCallError by the caller).
	Serialize(ctx context.Context, key []byte) (payload []byte, ok bool, err error)

	// TTLMillis returns the key's remaining TTL in milliseconds, or one of
	// the sentinels above. ok is false if the reply was not an integer.
	TTLMillis(ctx context.Context, key []byte) (pttl int64, ok bool, err error)

	// Materialize asks the host to reconstruct key from payload with the
	// given relative TTL in milliseconds (0 meaning no expiry), replacing
	// any existing in-memory key.
	Materialize(ctx context.Context, key, payload []byte, ttlMillis int64) error
}

// CommandFlags mirrors the host's command declaration surface: whether the
// command mutates state and which argument positions name keys.
type CommandFlags struct {
	Write    bool
	FirstKey int
	LastKey  int
	KeyStep  int
}

// ReplyKind tags the shape of a Reply.
type ReplyKind int

const (
	ReplyOK ReplyKind = iota
	ReplyNull
	ReplyError
	ReplyInt
	ReplyArray
	ReplyBulk
)

// Reply is the module's command-handler result, translated by the real
// host binding into whatever wire reply type it uses.
type Reply struct {
	Kind  ReplyKind
	Int   int64
	Str   string
	Items []Reply
	Err   error
}

func OK() Reply                  { return Reply{Kind: ReplyOK} }
func Null() Reply                { return Reply{Kind: ReplyNull} }
func Errorf(err error) Reply     { return Reply{Kind: ReplyError, Err: err} }
func IntReply(n int64) Reply     { return Reply{Kind: ReplyInt, Int: n} }
func Array(items ...Reply) Reply { return Reply{Kind: ReplyArray, Items: items} }
func Bulk(s string) Reply        { return Reply{Kind: ReplyBulk, Str: s} }

// CommandHandler implements one host command. args excludes the command
// name itself.
type CommandHandler func(ctx context.Context, args [][]byte) Reply

// CommandRegistry lets the module register commands with the host.
type CommandRegistry interface {
	RegisterCommand(name string, flags CommandFlags, handler CommandHandler) error
}

// InfoField is one name/value line of an info section, order preserved.
type InfoField struct {
	Name  string
	Value string
}

// InfoHook produces the module's current info sections on demand.
type InfoHook func(ctx context.Context) (stats []InfoField, config []InfoField)

// InfoRegistry lets the module register its info hook with the host.
type InfoRegistry interface {
	RegisterInfoHook(hook InfoHook) error
}

// Host aggregates every capability the module depends on. A concrete
// binding implements all four; hosttest.Fake implements them in memory.
type Host interface {
	EventBus
	Caller
	CommandRegistry
	InfoRegistry
}
