package store

import "sort"

// snapshotIterator walks a point-in-time, ascending-key snapshot of the
// index. Snapshotting up front (rather than holding shard locks across the
// whole walk) keeps a forward scan lock-free against concurrent Put/Delete
// from the host thread: a key deleted after the snapshot was taken is
// skipped by the iterator itself, so the caller never sees it.
type snapshotIterator struct {
	engine *Engine
	keys   []string
	pos    int

	curValue []byte
	err      error
}

func (e *Engine) NewIterator() Iterator {
	var keys []string
	for _, sh := range e.shards {
		sh.mu.RLock()
		for k := range sh.items {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(keys)
	return &snapshotIterator{engine: e, keys: keys, pos: -1}
}

func (it *snapshotIterator) SeekToFirst() {
	it.pos = 0
	it.loadCurrent()
}

func (it *snapshotIterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys) && it.curValue != nil
}

func (it *snapshotIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.pos])
}

func (it *snapshotIterator) Value() []byte {
	return it.curValue
}

func (it *snapshotIterator) Next() {
	it.pos++
	it.loadCurrent()
}

func (it *snapshotIterator) Err() error {
	return it.err
}

func (it *snapshotIterator) Close() error {
	it.keys = nil
	return nil
}

// loadCurrent fetches the value for the key at pos, skipping forward over
// any key that vanished (deleted, or compacted away) between the snapshot
// and the read.
func (it *snapshotIterator) loadCurrent() {
	for it.pos < len(it.keys) {
		key := []byte(it.keys[it.pos])
		v, err := it.engine.Get(key)
		if err == nil {
			it.curValue = v
			return
		}
		if err != ErrNotFound {
			it.err = err
			it.curValue = nil
			return
		}
		it.pos++
	}
	it.curValue = nil
}
