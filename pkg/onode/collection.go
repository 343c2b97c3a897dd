package onode

import (
	"bytes"
	"sync"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/ostore"
)

// ObjectKey composes the full kv row key for oid o within collection
// cid: the collection id, a NUL separator, then o's canonical
// encoding. The NUL keeps the composite key prefix-free with respect
// to any other cid, since cid values never contain a NUL byte.
func ObjectKey(cid string, o ostore.Oid) []byte {
	enc := oid.Encode(o)
	key := make([]byte, 0, len(cid)+1+len(enc))
	key = append(key, []byte(cid)...)
	key = append(key, 0x00)
	key = append(key, enc...)
	return key
}

// ParseObjectKey splits a composite ObjectKey back into its collection
// id and encoded-oid portions, the inverse composition ObjectKey
// performs. Used by the WAL replayer, which only has the raw kv key to
// work from.
func ParseObjectKey(key []byte) (cid string, encodedOid []byte, err error) {
	idx := bytes.IndexByte(key, 0x00)
	if idx < 0 {
		return "", nil, ostore.New(ostore.CodeCorrupt, "onode.ParseObjectKey", "missing NUL separator")
	}
	return string(key[:idx]), key[idx+1:], nil
}

// Collection is a namespace of oids with its own lock, its own onode
// cache, and a cid key in the kv store. Presence of the cid key
// defines existence.
type Collection struct {
	mu sync.RWMutex

	CID      string
	kvEngine kv.Engine
	cache    *Cache
}

// Open loads an existing collection, failing with ostore.CodeNotFound
// if no cid key is present in kv.
func Open(kvEngine kv.Engine, cid string) (*Collection, error) {
	if _, err := kvEngine.Get(kv.PrefixColl, []byte(cid)); err != nil {
		return nil, err
	}
	return &Collection{CID: cid, kvEngine: kvEngine, cache: NewCache(kvEngine)}, nil
}

// Create stages a new cid key into batch (OP_MKCOLL). The caller is
// responsible for committing batch as part of its transaction.
func Create(kvEngine kv.Engine, cid string, batch *kv.Batch) (*Collection, error) {
	if _, err := kvEngine.Get(kv.PrefixColl, []byte(cid)); err == nil {
		return nil, ostore.New(ostore.CodeAlreadyExists, "onode.Create", "collection already exists")
	} else if ostore.CodeOf(err) != ostore.CodeNotFound {
		return nil, err
	}
	batch.Set(kv.PrefixColl, []byte(cid), []byte{})
	return &Collection{CID: cid, kvEngine: kvEngine, cache: NewCache(kvEngine)}, nil
}

// Lookup fetches an onode by oid under a read lock.
func (c *Collection) Lookup(o ostore.Oid) (*Onode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Get(o, ObjectKey(c.CID, o), false)
}

// GetOrCreate fetches or materializes an onode under a write lock.
func (c *Collection) GetOrCreate(o ostore.Oid) (*Onode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(o, ObjectKey(c.CID, o), true)
}

// Release unpins an onode previously returned by Lookup or
// GetOrCreate.
func (c *Collection) Release(kvKey []byte) {
	c.cache.Release(kvKey)
}

// FinishWALEntry removes seq from o's unapplied-txn list and stages its
// re-encoded row into batch, under the same lock and through the same
// cache every live Submit mutates onodes with. Routing a WAL replay
// pass's mutation through here, rather than a standalone kv
// Get/Decode/Set on a throwaway Onode, means it touches the actual
// resident *Onode a concurrent transaction might be mutating at the
// same time, instead of a stale snapshot that could silently overwrite
// that transaction's commit.
func (c *Collection) FinishWALEntry(o ostore.Oid, seq uint64, batch *kv.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ObjectKey(c.CID, o)
	ob, err := c.cache.Get(o, key, false)
	if err != nil {
		if ostore.CodeOf(err) == ostore.CodeNotFound {
			return nil
		}
		return err
	}
	defer c.cache.Release(key)
	ob.PopUnappliedTxn(seq)
	encoded, err := ob.Encode()
	if err != nil {
		return err
	}
	batch.Set(kv.PrefixObj, key, encoded)
	return nil
}

// IsEmpty reports whether the collection's object-prefix key space is
// empty, the precondition OP_RMCOLL enforces.
func (c *Collection) IsEmpty() (bool, error) {
	empty := true
	prefix := []byte(c.CID + "\x00")
	err := c.kvEngine.Scan(kv.PrefixObj, prefix, nil, func(k, v []byte) error {
		if len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix) {
			empty = false
		}
		return errStopScan
	})
	if err != nil && err != errStopScan {
		return false, err
	}
	return empty, nil
}

// Remove stages removal of the cid key into batch (OP_RMCOLL), failing
// with ostore.CodeNotEmpty unless the collection's onode space is
// empty.
func (c *Collection) Remove(batch *kv.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	empty, err := c.IsEmpty()
	if err != nil {
		return err
	}
	if !empty {
		return ostore.New(ostore.CodeNotEmpty, "onode.Remove", "collection is not empty")
	}
	batch.Remove(kv.PrefixColl, []byte(c.CID))
	return nil
}

// CacheLen reports the collection's resident onode count, for
// metrics.StatsSource.
func (c *Collection) CacheLen() int {
	return c.cache.Len()
}

var errStopScan = stopScan{}

type stopScan struct{}

func (stopScan) Error() string { return "stop scan" }
