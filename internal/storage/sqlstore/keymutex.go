package sqlstore

import (
	"hash/fnv"
	"io"
	"sync"
)

// keyMutex serializes read-modify-write sequences per unique_id so two
// concurrent updates to the same key cannot both read the same prior state
// and silently overwrite each other's fields. A fixed stripe count bounds
// memory; unrelated keys sharing a stripe just contend briefly.
type keyMutex struct {
	stripes [64]sync.Mutex
}

func (k *keyMutex) lock(key string) (unlock func()) {
	h := fnv.New32a()
	io.WriteString(h, key)
	mu := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	mu.Lock()
	return mu.Unlock
}
