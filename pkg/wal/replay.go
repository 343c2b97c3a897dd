package wal

import (
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
)

// CollectionSource resolves a collection id to the onode.Collection
// that owns it. *txn.Engine satisfies this; Replay takes the narrower
// interface instead of importing pkg/txn directly, since pkg/txn
// already imports pkg/wal.
type CollectionSource interface {
	Collection(cid string) (*onode.Collection, error)
}

// Replay scans the L prefix in key order and, for each entry, applies
// it to its fragment file and then — in the same atomic kv batch —
// deletes the WAL row and removes the entry's sequence number from the
// owning onode's unapplied_txns list. That pairing is what satisfies
// invariant 6 across a crash mid-replay: either both happen, or
// neither does, and re-running Replay from scratch is always safe
// because Apply is idempotent.
func Replay(kvEngine kv.Engine, l *Log, collections CollectionSource) (applied int, err error) {
	var entries []Entry
	scanErr := kvEngine.Scan(kv.PrefixWAL, nil, nil, func(k, v []byte) error {
		e, err := decodeRecord(k, v)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if scanErr != nil {
		return 0, scanErr
	}

	for _, e := range entries {
		if err := l.Apply(e); err != nil {
			return applied, err
		}
		if err := finishReplay(kvEngine, collections, e); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func finishReplay(kvEngine kv.Engine, collections CollectionSource, e Entry) error {
	batch := kvEngine.NewBatch()
	batch.Remove(kv.PrefixWAL, encodeSeqKey(e.Seq))

	if len(e.ObjectKey) > 0 {
		cid, encodedOid, err := onode.ParseObjectKey(e.ObjectKey)
		if err != nil {
			return err
		}
		objOid, err := oid.Decode(encodedOid)
		if err != nil {
			return err
		}

		coll, err := collections.Collection(cid)
		if err != nil {
			if ostore.CodeOf(err) != ostore.CodeNotFound {
				return err
			}
			// Collection was removed since the entry was staged; there is
			// nothing left to fix up, only the WAL row to drop.
		} else if err := coll.FinishWALEntry(objOid, e.Seq, batch); err != nil {
			return err
		}
	}

	return kvEngine.Commit(batch)
}
