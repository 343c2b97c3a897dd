package kv

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/objstore/pkg/ostore"
)

// BoltEngine implements Engine using go.etcd.io/bbolt, mapping each
// Prefix onto its own top-level bucket.
type BoltEngine struct {
	db *bolt.DB
}

var allBuckets = []Prefix{PrefixColl, PrefixObj, PrefixWAL}

// OpenBolt opens (creating if necessary) a bbolt database at path and
// ensures the three prefix buckets exist.
func OpenBolt(path string) (*BoltEngine, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "kv.OpenBolt", "open database", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, p := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(p)); err != nil {
				return fmt.Errorf("create bucket %s: %w", p, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, ostore.Wrap(ostore.CodeIo, "kv.OpenBolt", "create buckets", err)
	}

	return &BoltEngine{db: db}, nil
}

// Get implements Engine.
func (e *BoltEngine) Get(prefix Prefix, key []byte) ([]byte, error) {
	var value []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(prefix))
		v := b.Get(key)
		if v == nil {
			return nil
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeIo, "kv.Get", "view transaction", err)
	}
	if value == nil {
		return nil, ostore.New(ostore.CodeNotFound, "kv.Get", fmt.Sprintf("key not found under %s", prefix))
	}
	return value, nil
}

// Scan implements Engine.
func (e *BoltEngine) Scan(prefix Prefix, start, end []byte, fn func(key, value []byte) error) error {
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(prefix))
		c := b.Cursor()
		var k, v []byte
		if start == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(start)
		}
		for ; k != nil; k, v = c.Next() {
			if end != nil && bytes.Compare(k, end) >= 0 {
				break
			}
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// NewBatch implements Engine.
func (e *BoltEngine) NewBatch() *Batch {
	return &Batch{}
}

// Commit implements Engine. Every staged mutation is applied inside a
// single bbolt read-write transaction, which bbolt fsyncs before
// returning — giving the atomic, durable commit the commit pipeline
// depends on.
func (e *BoltEngine) Commit(b *Batch) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		for _, op := range b.ops {
			bucket := tx.Bucket([]byte(op.prefix))
			switch op.kind {
			case opSet:
				if err := bucket.Put(op.key, op.value); err != nil {
					return err
				}
			case opRemove:
				if err := bucket.Delete(op.key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return ostore.Wrap(ostore.CodeIo, "kv.Commit", "update transaction", err)
	}
	return nil
}

// Close implements Engine.
func (e *BoltEngine) Close() error {
	if err := e.db.Close(); err != nil {
		return ostore.Wrap(ostore.CodeIo, "kv.Close", "close database", err)
	}
	return nil
}
