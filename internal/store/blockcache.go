package store

import (
	"bytes"
	"container/list"
	"sync"
)

// blockCache is a byte-budgeted read cache for values fetched off disk,
// indexed by the key's hash. It shortcuts repeat Get calls for hot keys
// without re-reading their segment file. Every entry also carries a copy
// of the actual key so a hash collision between two different keys is
// detected on lookup rather than silently returning the wrong payload.
//
// Adapted from internal/cache/db/lru.go's tail-eviction list operations,
// which run one such list per shard to pick eviction victims out of a
// bounded in-RAM cache; here there is a single shared list sized by bytes,
// since the store's "cache" is a read-through accelerator in front of disk
// rather than the RAM tier itself.
type blockCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	ll       *list.List
	idx      map[uint64]*list.Element
}

type blockCacheEntry struct {
	hash  uint64
	key   []byte
	value []byte
}

func newBlockCache(capacityBytes int64) *blockCache {
	return &blockCache{
		capacity: capacityBytes,
		ll:       list.New(),
		idx:      make(map[uint64]*list.Element),
	}
}

// get returns the cached value for key only if the stored entry's key
// matches exactly; a hash collision with a different key is reported as a
// miss rather than handed back as a false hit.
func (c *blockCache) get(hash uint64, key []byte) ([]byte, bool) {
	if c.capacity <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.idx[hash]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*blockCacheEntry)
	if !bytes.Equal(entry.key, key) {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

func (c *blockCache) put(hash uint64, key, value []byte) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.idx[hash]; ok {
		old := el.Value.(*blockCacheEntry)
		c.size += int64(len(value)) - int64(len(old.value))
		old.key = append(old.key[:0], key...)
		old.value = value
		c.ll.MoveToFront(el)
	} else {
		stored := append([]byte(nil), key...)
		el := c.ll.PushFront(&blockCacheEntry{hash: hash, key: stored, value: value})
		c.idx[hash] = el
		c.size += int64(len(value))
	}

	for c.size > c.capacity {
		back := c.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*blockCacheEntry)
		c.size -= int64(len(entry.value))
		c.ll.Remove(back)
		delete(c.idx, entry.hash)
	}
}

func (c *blockCache) remove(hash uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.idx[hash]
	if !ok {
		return
	}
	entry := el.Value.(*blockCacheEntry)
	c.size -= int64(len(entry.value))
	c.ll.Remove(el)
	delete(c.idx, hash)
}
