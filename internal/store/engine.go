package store

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

const shardCount = 16

// indexEntry locates one key's current value inside a segment file. The
// keydir lives entirely in RAM, in the tradition of a bitcask-style engine
// (raciott-FinKV's storage/index.MemIndexShard): every point lookup is one
// map read plus one seek, never a multi-level search.
type indexEntry struct {
	segmentID   uint32
	valueOffset int64
	valueLen    int64
}

// shard is one partition of the in-memory keydir, guarded by its own lock
// so concurrent Put/Get/Delete on unrelated keys never contend. Grounded on
// internal/cache/db/shard.go's Shard, generalized from an in-RAM value
// cache to an on-disk value locator.
type shard struct {
	mu    sync.RWMutex
	items map[string]indexEntry
}

// Engine is the production Store implementation: an append-only segment
// log plus a sharded in-memory index, a doorkeeper fast-negative filter,
// and a bounded read-through block cache. See the package doc for the
// grounding of each piece.
type Engine struct {
	opts Options

	shards []*shard

	segMu    sync.RWMutex
	segments map[uint32]*segment
	activeID uint32
	nextID   atomic.Uint32

	door  *doorkeeper
	cache *blockCache

	length atomic.Int64
	closed atomic.Bool

	compactor *compactor
}

func openEngine(o Options) (*Engine, error) {
	if err := os.MkdirAll(o.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	ids, err := listSegmentIDs(o.Path)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = []uint32{0}
	}

	e := &Engine{
		opts:     o,
		shards:   make([]*shard, shardCount),
		segments: make(map[uint32]*segment, len(ids)),
		door:     newDoorkeeper(1<<16, o.BloomBitsPerKey),
		cache:    newBlockCache(o.BlockCacheBytes),
	}
	for i := range e.shards {
		e.shards[i] = &shard{items: make(map[string]indexEntry)}
	}

	var maxID uint32
	for _, id := range ids {
		seg, err := openSegment(o.Path, id)
		if err != nil {
			e.closeSegmentsLocked()
			return nil, err
		}
		e.segments[id] = seg
		if id > maxID {
			maxID = id
		}
	}
	e.activeID = maxID
	e.nextID.Store(maxID + 1)

	if err := e.rebuildIndex(); err != nil {
		e.closeSegmentsLocked()
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	e.compactor = newCompactor(e, o.MergeInterval, o.MinMergeRatio)
	e.compactor.start()

	return e, nil
}

// rebuildIndex replays every segment in ascending id order so later writes
// (including tombstone-shaped overwrites) supersede earlier ones, the same
// ordering guarantee vi88i-kvstash's buildIndex relies on.
func (e *Engine) rebuildIndex() error {
	var ids []uint32
	for id := range e.segments {
		ids = append(ids, id)
	}
	// ascending
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	var count int64
	for _, id := range ids {
		seg := e.segments[id]
		err := seg.replay(func(rec segmentRecord) error {
			sh := e.shardFor(hashKey(rec.key))
			sh.mu.Lock()
			sh.items[string(rec.key)] = indexEntry{
				segmentID:   id,
				valueOffset: rec.valueOffset,
				valueLen:    rec.valueLen,
			}
			sh.mu.Unlock()
			e.door.add(hashKey(rec.key))
			count++
			return nil
		})
		if err != nil {
			return err
		}
	}

	var live int64
	for _, sh := range e.shards {
		sh.mu.RLock()
		live += int64(len(sh.items))
		sh.mu.RUnlock()
	}
	e.length.Store(live)
	return nil
}

func (e *Engine) shardFor(hash uint64) *shard {
	return e.shards[hash&(shardCount-1)]
}

func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	hash := hashKey(key)
	if !e.door.probablyPresent(hash) {
		return nil, ErrNotFound
	}
	if v, ok := e.cache.get(hash, key); ok {
		return v, nil
	}

	sh := e.shardFor(hash)
	sh.mu.RLock()
	entry, ok := sh.items[string(key)]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.segMu.RLock()
	seg, ok := e.segments[entry.segmentID]
	e.segMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: segment %d missing for live key", entry.segmentID)
	}

	value, err := seg.readValue(entry.valueOffset, entry.valueLen, e.opts.VerifyChecksums)
	if err != nil {
		return nil, err
	}
	e.cache.put(hash, key, value)
	return value, nil
}

func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) > MaxKeySize {
		return ErrKeyTooLarge
	}

	seg, segID, err := e.activeSegmentFor(recordHeaderSize + len(key) + len(value) + 4)
	if err != nil {
		return err
	}

	valueOffset, _, err := seg.append(key, value)
	if err != nil {
		return err
	}

	hash := hashKey(key)
	sh := e.shardFor(hash)
	sh.mu.Lock()
	_, existed := sh.items[string(key)]
	sh.items[string(key)] = indexEntry{segmentID: segID, valueOffset: valueOffset, valueLen: int64(len(value))}
	sh.mu.Unlock()

	e.door.add(hash)
	e.cache.remove(hash)
	if !existed {
		e.length.Add(1)
	}
	return nil
}

func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	hash := hashKey(key)
	sh := e.shardFor(hash)
	sh.mu.Lock()
	_, existed := sh.items[string(key)]
	delete(sh.items, string(key))
	sh.mu.Unlock()

	if existed {
		e.length.Add(-1)
		e.cache.remove(hash)
	}
	return nil
}

func (e *Engine) Len() int64 {
	return e.length.Load()
}

func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.compactor != nil {
		e.compactor.stop()
	}
	e.segMu.Lock()
	defer e.segMu.Unlock()
	return e.closeSegmentsLocked()
}

func (e *Engine) closeSegmentsLocked() error {
	var firstErr error
	for _, seg := range e.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// activeSegmentFor returns the segment to append nextLen bytes to, rotating
// to a fresh segment first if the active one would exceed the configured
// target file size.
func (e *Engine) activeSegmentFor(nextLen int) (*segment, uint32, error) {
	e.segMu.Lock()
	defer e.segMu.Unlock()

	active := e.segments[e.activeID]
	activeSize := active.size()
	if e.opts.TargetFileSizeBytes > 0 && activeSize+int64(nextLen) > e.opts.TargetFileSizeBytes && activeSize > 0 {
		newID := e.nextID.Add(1) - 1
		seg, err := openSegment(e.opts.Path, newID)
		if err != nil {
			return nil, 0, err
		}
		e.segments[newID] = seg
		e.activeID = newID
		active = seg
	}
	return active, e.activeID, nil
}
