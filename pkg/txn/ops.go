package txn

import (
	"os"
	"strings"

	"github.com/cuemby/objstore/pkg/events"
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/oid"
	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
	"github.com/cuemby/objstore/pkg/wal"
)

// lookupOrCreate fetches an onode, optionally materializing it, and
// registers the pin on ctx so it survives until the commit pipeline
// calls ReleaseAll.
func (e *Engine) lookupOrCreate(ctx *Context, coll *onode.Collection, o ostore.Oid, create bool) (*onode.Onode, error) {
	var (
		ob  *onode.Onode
		err error
	)
	if create {
		ob, err = coll.GetOrCreate(o)
	} else {
		ob, err = coll.Lookup(o)
	}
	if err != nil {
		return nil, err
	}
	ctx.touch(coll)
	ctx.registerPinned(coll, onode.ObjectKey(coll.CID, o))
	return ob, nil
}

func (e *Engine) opTouch(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}
	ob.SetExists(true)
	ctx.stageOnode(ob)
	return nil
}

// opWrite implements the write policy: a fresh object or an append
// gets a brand new fragment file; an in-place overwrite of existing
// bytes is staged as one WAL entry per overlapping fragment and
// replayed asynchronously.
func (e *Engine) opWrite(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}
	return e.applyWrite(ctx, coll, ob, op.Oid, op.Offset, op.Data)
}

// applyWrite implements the write policy against an already pinned
// onode: a fresh object or an append gets a brand new fragment
// file; an in-place overwrite of existing bytes is staged as one WAL
// entry per overlapping fragment, replayed asynchronously per
// invariant 6. Shared by WRITE and CLONERANGE2, whose destination
// write is identical once the source bytes are in hand.
func (e *Engine) applyWrite(ctx *Context, coll *onode.Collection, ob *onode.Onode, o ostore.Oid, offset uint64, data []byte) error {
	size := ob.Size()
	switch {
	case size == 0 || offset == size:
		fid, f, err := e.frags.Allocate()
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(data, 0); err != nil {
			f.Close()
			return ostore.Wrap(ostore.CodeIo, "txn.applyWrite", "write fragment", err)
		}
		ctx.FDsToSync = append(ctx.FDsToSync, f)
		ob.AppendFragment(ostore.Fragment{Offset: offset, Length: uint64(len(data)), Fid: fid})
		ob.SetSize(offset + uint64(len(data)))
	default:
		parts := splitRange(ob.DataMap(), offset, uint64(len(data)))
		objKey := onode.ObjectKey(coll.CID, o)
		for _, p := range parts {
			payload := data[p.GlobalOffset-offset : p.GlobalOffset-offset+p.Length]
			seq, err := e.walLog.Stage(ctx.Batch, wal.Entry{
				ObjectKey: objKey,
				Op:        wal.OpOverwrite,
				Fid:       p.Fid,
				Offset:    p.FileOffset,
				Payload:   payload,
			})
			if err != nil {
				return err
			}
			ob.PushUnappliedTxn(seq)
			ctx.WALEntriesProduced = true
		}
		// splitRange only sees bytes covered by the existing data_map,
		// which ends at the old size. Bytes past that are a genuine
		// append, not an overwrite, and need their own fragment rather
		// than a WAL entry -- otherwise SetSize below would extend the
		// logical size over bytes never written anywhere.
		if end := offset + uint64(len(data)); end > size {
			tailStart := size
			if offset > size {
				tailStart = offset
			}
			tail := data[tailStart-offset:]
			fid, f, err := e.frags.Allocate()
			if err != nil {
				return err
			}
			if _, err := f.WriteAt(tail, 0); err != nil {
				f.Close()
				return ostore.Wrap(ostore.CodeIo, "txn.applyWrite", "write fragment", err)
			}
			ctx.FDsToSync = append(ctx.FDsToSync, f)
			ob.AppendFragment(ostore.Fragment{Offset: tailStart, Length: uint64(len(tail)), Fid: fid})
			ob.SetSize(end)
		}
	}
	ctx.stageOnode(ob)
	return nil
}

// opZero implements ZERO identically to WRITE's in-place branch, but
// staging a WAL zero-fill instead of a payload overwrite; a zero range
// beyond the current size only grows the logical size (no fragment is
// allocated for the implicit hole).
func (e *Engine) opZero(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}

	size := ob.Size()
	parts := splitRange(ob.DataMap(), op.Offset, op.Length)
	objKey := onode.ObjectKey(coll.CID, op.Oid)
	for _, p := range parts {
		seq, err := e.walLog.Stage(ctx.Batch, wal.Entry{
			ObjectKey: objKey,
			Op:        wal.OpZero,
			Fid:       p.Fid,
			Offset:    p.FileOffset,
			Length:    p.Length,
		})
		if err != nil {
			return err
		}
		ob.PushUnappliedTxn(seq)
		ctx.WALEntriesProduced = true
	}
	if end := op.Offset + op.Length; end > size {
		ob.SetSize(end)
	}
	ctx.stageOnode(ob)
	return nil
}

// opTruncate implements the truncate policy: shrinking drops
// fragments wholly beyond newLen, shortens the one straddling it, and
// queues the dropped fids for post-commit removal; growing only bumps
// the logical size, deferring zero-fill to the read path.
func (e *Engine) opTruncate(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, false)
	if err != nil {
		return err
	}

	newLen := op.Offset
	size := ob.Size()
	if newLen >= size {
		ob.SetSize(newLen)
		ctx.stageOnode(ob)
		return nil
	}

	dataMap := ob.DataMap()
	kept := make([]ostore.Fragment, 0, len(dataMap))
	for _, f := range dataMap {
		switch {
		case f.End() <= newLen:
			kept = append(kept, f)
		case f.Offset >= newLen:
			ctx.FidsToRemove = append(ctx.FidsToRemove, FidRemoval{Fid: f.Fid})
		default:
			f.Length = newLen - f.Offset
			kept = append(kept, f)
		}
	}
	ob.SetDataMap(kept)
	ob.SetSize(newLen)
	ctx.stageOnode(ob)
	return nil
}

// opRemove tombstones the onode, clears its fragment list, and queues
// every referenced fid for post-commit removal.
func (e *Engine) opRemove(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, false)
	if err != nil {
		return err
	}

	for _, f := range ob.DataMap() {
		ctx.FidsToRemove = append(ctx.FidsToRemove, FidRemoval{Fid: f.Fid})
	}
	ob.ClearDataMap()
	ob.SetSize(0)
	ob.SetExists(false)
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opSetAttr(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}
	ob.SetAttr(op.AttrName, op.AttrValue)
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opSetAttrs(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}
	for name, value := range op.Attrs {
		ob.SetAttr(name, value)
	}
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opRmAttr(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, false)
	if err != nil {
		return err
	}
	if _, ok := ob.Attr(op.AttrName); !ok {
		return ostore.New(ostore.CodeNoData, "txn.opRmAttr", "attribute not present")
	}
	ob.RemoveAttr(op.AttrName)
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opRmAttrs(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, false)
	if err != nil {
		return err
	}
	for _, name := range op.AttrNames {
		ob.RemoveAttr(name)
	}
	ctx.stageOnode(ob)
	return nil
}

// opClone implements CLONE as a shallow, metadata-only copy: dst's
// data map, attrs, and size are copied from src, with fids shared
// rather than physically duplicated, per invariant 3's allowance for a
// fragment file to be referenced by more than one onode.
func (e *Engine) opClone(ctx *Context, op Op) error {
	srcColl, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	src, err := e.lookupOrCreate(ctx, srcColl, op.Oid, false)
	if err != nil {
		return err
	}

	dstColl, err := e.getCollection(op.DstCID)
	if err != nil {
		return err
	}
	dst, err := e.lookupOrCreate(ctx, dstColl, op.DstOid, true)
	if err != nil {
		return err
	}

	dst.SetDataMap(src.DataMap())
	dst.SetSize(src.Size())
	dst.SetExists(true)
	for name, value := range src.Attrs() {
		dst.SetAttr(name, value)
	}
	ctx.stageOnode(dst)
	return nil
}

// opCloneRange2 copies a byte range from src into dst at doff, reusing
// splitRange to locate the source bytes (which may straddle several
// fragment files) and opWrite's write policy to land them in dst.
func (e *Engine) opCloneRange2(ctx *Context, op Op) error {
	srcColl, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	src, err := e.lookupOrCreate(ctx, srcColl, op.Oid, false)
	if err != nil {
		return err
	}

	dstColl, err := e.getCollection(op.DstCID)
	if err != nil {
		return err
	}
	dst, err := e.lookupOrCreate(ctx, dstColl, op.DstOid, true)
	if err != nil {
		return err
	}

	parts := splitRange(src.DataMap(), op.Offset, op.Length)
	data := make([]byte, op.Length)
	for _, p := range parts {
		f, err := e.frags.Open(p.Fid, os.O_RDONLY)
		if err != nil {
			return err
		}
		buf := make([]byte, p.Length)
		_, err = f.ReadAt(buf, int64(p.FileOffset))
		f.Close()
		if err != nil {
			return ostore.Wrap(ostore.CodeIo, "txn.opCloneRange2", "read source fragment", err)
		}
		copy(data[p.GlobalOffset-op.Offset:], buf)
	}

	return e.applyWrite(ctx, dstColl, dst, op.DstOid, op.DstOffset, data)
}

func (e *Engine) opMkColl(ctx *Context, op Op) error {
	if strings.IndexByte(op.CID, 0x00) >= 0 {
		return ostore.New(ostore.CodeInvalidArgument, "txn.opMkColl", "collection id contains a NUL byte")
	}
	_, err := e.createCollection(op.CID, ctx.Batch)
	if err != nil {
		return err
	}
	ctx.CommitCallbacks = append(ctx.CommitCallbacks, func() { e.publishEvent(events.EventCollectionCreated, op.CID) })
	return nil
}

func (e *Engine) opRmColl(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	if err := coll.Remove(ctx.Batch); err != nil {
		return err
	}
	ctx.CommitCallbacks = append(ctx.CommitCallbacks, func() {
		e.dropCollection(op.CID)
		e.publishEvent(events.EventCollectionRemoved, op.CID)
	})
	return nil
}

// opCollMoveRename moves an object between collections (or renames it
// within one): dst inherits src's data map, attrs, size (fids shared,
// no physical copy), and src is tombstoned without queuing its fids
// for removal, since dst now references them.
func (e *Engine) opCollMoveRename(ctx *Context, op Op) error {
	srcColl, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	src, err := e.lookupOrCreate(ctx, srcColl, op.Oid, false)
	if err != nil {
		return err
	}

	dstColl, err := e.getCollection(op.DstCID)
	if err != nil {
		return err
	}
	dst, err := e.lookupOrCreate(ctx, dstColl, op.DstOid, true)
	if err != nil {
		return err
	}

	dst.SetDataMap(src.DataMap())
	dst.SetSize(src.Size())
	dst.SetExists(true)
	for name, value := range src.Attrs() {
		dst.SetAttr(name, value)
	}

	src.ClearDataMap()
	src.SetSize(0)
	src.SetExists(false)

	ctx.stageOnode(dst)
	ctx.stageOnode(src)
	return nil
}

func (e *Engine) opOmapClear(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, false)
	if err != nil {
		return err
	}
	ob.OmapClear()
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opOmapSetKeys(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}
	ob.OmapSetKeys(op.OmapKeys)
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opOmapRmKeys(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, false)
	if err != nil {
		return err
	}
	ob.OmapRemoveKeys(op.OmapKeyNames)
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opOmapRmKeyRange(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, false)
	if err != nil {
		return err
	}
	ob.OmapRemoveRange(op.OmapRangeStart, op.OmapRangeEnd)
	ctx.stageOnode(ob)
	return nil
}

func (e *Engine) opOmapSetHeader(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}
	ob.SetOmapHeader(op.OmapHeader)
	ctx.stageOnode(ob)
	return nil
}

// opSplitCollection2 partitions op.CID's objects by pgid hash bits,
// moving every object whose hash matches (SplitBits, SplitRem) into
// DstCID, using the same fid-sharing move as COLL_MOVE_RENAME.
func (e *Engine) opSplitCollection2(ctx *Context, op Op) error {
	if _, err := e.getCollection(op.CID); err != nil {
		return err
	}
	if _, err := e.getCollection(op.DstCID); err != nil {
		return err
	}

	var toMove []ostore.Oid
	prefix := []byte(op.CID + "\x00")
	scanErr := e.kvEngine.Scan(kv.PrefixObj, prefix, nil, func(k, v []byte) error {
		if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
			return nil
		}
		_, encoded, err := onode.ParseObjectKey(k)
		if err != nil {
			return nil
		}
		o, err := oid.Decode(encoded)
		if err != nil {
			return nil
		}
		if matchesSplit(o.Hash, op.SplitBits, op.SplitRem) {
			toMove = append(toMove, o)
		}
		return nil
	})
	if scanErr != nil {
		return scanErr
	}

	for _, o := range toMove {
		moveOp := Op{Code: OpCollMoveRename, CID: op.CID, Oid: o, DstCID: op.DstCID, DstOid: o}
		if err := e.opCollMoveRename(ctx, moveOp); err != nil {
			return err
		}
	}
	return nil
}

func matchesSplit(hash, bits, rem uint32) bool {
	if bits == 0 {
		return rem == 0
	}
	mask := uint32(1)<<bits - 1
	return hash&mask == rem
}

func (e *Engine) opSetAllocHint(ctx *Context, op Op) error {
	coll, err := e.getCollection(op.CID)
	if err != nil {
		return err
	}
	ob, err := e.lookupOrCreate(ctx, coll, op.Oid, true)
	if err != nil {
		return err
	}
	ob.SetAllocHint(op.AllocHintExpectedSize, op.AllocHintExpectedWriteSize)
	ctx.stageOnode(ob)
	return nil
}
