package store

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// hasherPool reuses xxh3 hashers across Put/Get/Delete calls the way
// internal/cache/db/model/key.go pools hashers for its own key type.
var hasherPool = sync.Pool{New: func() any { return xxh3.New() }}

// hashKey returns a 64-bit hash of key, used for shard routing and as the
// doorkeeper's probe seed. Collisions are tolerated by the shard's own
// string-keyed map; the hash never substitutes for the key itself.
func hashKey(key []byte) uint64 {
	h := hasherPool.Get().(*xxh3.Hasher)
	h.Reset()
	_, _ = h.Write(key)
	sum := h.Sum64()
	hasherPool.Put(h)
	return sum
}
