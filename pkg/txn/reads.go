package txn

import (
	"os"

	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
)

// Read serves a non-transactional read of [offset, offset+length) from
// an object. It never stages anything and is safe to call concurrently
// with Submit.
func (e *Engine) Read(cid string, o ostore.Oid, offset, length uint64) ([]byte, error) {
	coll, err := e.getCollection(cid)
	if err != nil {
		return nil, err
	}
	key := onode.ObjectKey(cid, o)
	ob, err := coll.Lookup(o)
	if err != nil {
		return nil, err
	}
	defer coll.Release(key)

	if !ob.Exists() {
		return nil, ostore.New(ostore.CodeNotFound, "txn.Read", "object does not exist")
	}

	size := ob.Size()
	if offset >= size {
		return []byte{}, nil
	}
	if offset+length > size {
		length = size - offset
	}

	out := make([]byte, length)
	for _, p := range splitRange(ob.DataMap(), offset, length) {
		f, err := e.frags.Open(p.Fid, os.O_RDONLY)
		if err != nil {
			return nil, err
		}
		_, err = f.ReadAt(out[p.GlobalOffset-offset:p.GlobalOffset-offset+p.Length], int64(p.FileOffset))
		closeErr := f.Close()
		if err != nil {
			return nil, ostore.Wrap(ostore.CodeIo, "txn.Read", "read fragment", err)
		}
		if closeErr != nil {
			return nil, ostore.Wrap(ostore.CodeIo, "txn.Read", "close fragment", closeErr)
		}
	}
	return out, nil
}

// Stat returns an object's current size and attributes without staging
// a transaction.
func (e *Engine) Stat(cid string, o ostore.Oid) (size uint64, attrs map[string][]byte, err error) {
	coll, err := e.getCollection(cid)
	if err != nil {
		return 0, nil, err
	}
	key := onode.ObjectKey(cid, o)
	ob, err := coll.Lookup(o)
	if err != nil {
		return 0, nil, err
	}
	defer coll.Release(key)

	if !ob.Exists() {
		return 0, nil, ostore.New(ostore.CodeNotFound, "txn.Stat", "object does not exist")
	}
	return ob.Size(), ob.Attrs(), nil
}
