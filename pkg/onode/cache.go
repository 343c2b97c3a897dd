package onode

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/ostore"
)

// slot coalesces concurrent lookups for the same kv key into a single
// load, and tracks how many callers currently hold a reference.
type slot struct {
	once   sync.Once
	onode  *Onode
	err    error
	refs   int32
}

// Cache is a collection-scoped, weak-value-style onode cache. The zero
// value is not usable; construct with NewCache.
type Cache struct {
	kvEngine kv.Engine
	slots    sync.Map // string(kvKey) -> *slot
	size     int32    // approximate resident slot count, for metrics
}

// NewCache creates an onode cache backed by kvEngine, scoped to one
// collection's object-prefix key space.
func NewCache(kvEngine kv.Engine) *Cache {
	return &Cache{kvEngine: kvEngine}
}

// Get returns the onode for kvKey, pinning it so it cannot be evicted
// until the caller calls Release. On a cache miss it loads from kv; if
// the key is absent and create is true, it materializes a fresh onode
// (dirty=true, exists=true); if absent and create is false, it returns
// ostore.CodeNotFound. Concurrent Gets for the same missing key
// coalesce onto one load.
func (c *Cache) Get(oid ostore.Oid, kvKey []byte, create bool) (*Onode, error) {
	key := string(kvKey)

	for {
		actual, loaded := c.slots.LoadOrStore(key, &slot{})
		s := actual.(*slot)

		s.once.Do(func() {
			o, err := c.load(oid, kvKey, create)
			if err != nil {
				s.err = err
				return
			}
			s.onode = o
			atomic.AddInt32(&c.size, 1)
		})

		if s.err != nil {
			// A failed load must not poison the slot for the next
			// caller: remove it so the next Get retries the load.
			c.slots.CompareAndDelete(key, s)
			return nil, s.err
		}

		if atomic.AddInt32(&s.refs, 1) == 1 {
			// refs just went 0->1: the slot may have been marked for
			// eviction between our increment racing a concurrent
			// Release. Verify it is still the map's current entry.
			if cur, ok := c.slots.Load(key); !ok || cur.(*slot) != s {
				atomic.AddInt32(&s.refs, -1)
				_ = loaded
				continue
			}
		}
		return s.onode, nil
	}
}

func (c *Cache) load(oid ostore.Oid, kvKey []byte, create bool) (*Onode, error) {
	data, err := c.kvEngine.Get(kv.PrefixObj, kvKey)
	if err == nil {
		return Decode(oid, kvKey, data)
	}
	if ostore.CodeOf(err) != ostore.CodeNotFound {
		return nil, err
	}
	if !create {
		return nil, ostore.New(ostore.CodeNotFound, "onode.load", "object not found")
	}
	return New(oid, kvKey), nil
}

// Release unpins an onode previously returned by Get. Once its pin
// count reaches zero the slot is evicted immediately — there is no
// time-based retention, matching the original's "evict when unpinned"
// policy.
func (c *Cache) Release(kvKey []byte) {
	key := string(kvKey)
	v, ok := c.slots.Load(key)
	if !ok {
		return
	}
	s := v.(*slot)
	if atomic.AddInt32(&s.refs, -1) == 0 {
		c.slots.CompareAndDelete(key, s)
		atomic.AddInt32(&c.size, -1)
	}
}

// Peek returns a resident onode without pinning it or touching kv, for
// read-only diagnostics (e.g. Stat()). It returns false if the key is
// not currently cached.
func (c *Cache) Peek(kvKey []byte) (*Onode, bool) {
	v, ok := c.slots.Load(string(kvKey))
	if !ok {
		return nil, false
	}
	s := v.(*slot)
	if s.onode == nil {
		return nil, false
	}
	return s.onode, true
}

// Len reports the approximate number of resident onodes.
func (c *Cache) Len() int {
	return int(atomic.LoadInt32(&c.size))
}
