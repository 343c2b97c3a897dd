package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/objstore/pkg/frag"
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
	"github.com/cuemby/objstore/pkg/wal"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	kvEngine, err := kv.OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvEngine.Close() })

	frags, err := frag.NewAllocator(filepath.Join(t.TempDir(), "fragments"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = frags.Close() })

	walLog, err := wal.Open(kvEngine, frags)
	require.NoError(t, err)

	return NewEngine(kvEngine, frags, walLog)
}

// stageDirty encodes every onode dispatch staged as dirty into ctx's
// batch, the step pkg/commit's pipeline performs for real; tests
// reproduce it here rather than importing pkg/commit, which imports
// txn and would create an import cycle for an internal test file.
func stageDirty(t *testing.T, ctx *Context) {
	t.Helper()
	for _, o := range ctx.DirtyOnodes {
		data, err := o.Encode()
		require.NoError(t, err)
		ctx.Batch.Set(kv.PrefixObj, o.KVKey, data)
		o.ClearDirty()
	}
}

func mkColl(t *testing.T, e *Engine, cid string) {
	t.Helper()
	enc := NewEncoder()
	enc.Put(Op{Code: OpMkColl, CID: cid})
	ctx, err := e.Submit("h", enc.Bytes())
	require.NoError(t, err)
	stageDirty(t, ctx)
	require.NoError(t, e.kvEngine.Commit(ctx.Batch))
	ctx.Ticket.Complete()
	ctx.ReleaseAll()
}

func submitAndCommit(t *testing.T, e *Engine, handle string, stream []byte) *Context {
	t.Helper()
	ctx, err := e.Submit(handle, stream)
	require.NoError(t, err)
	stageDirty(t, ctx)
	require.NoError(t, e.kvEngine.Commit(ctx.Batch))
	ctx.Ticket.Complete()
	return ctx
}

func testOid(name string) ostore.Oid {
	return ostore.Oid{Pool: 1, Namespace: "", Key: "", Name: name, Snap: ostore.SnapHead, Generation: ostore.NoGeneration}
}

func TestMkCollAndTouch(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")

	enc := NewEncoder()
	enc.Put(Op{Code: OpTouch, CID: "c0", Oid: testOid("obj1")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	coll, err := e.getCollection("c0")
	require.NoError(t, err)
	ob, err := coll.Lookup(testOid("obj1"))
	require.NoError(t, err)
	require.True(t, ob.Exists())
	coll.Release(onode.ObjectKey("c0", testOid("obj1")))
}

func TestWriteFreshThenAppend(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 5, Data: []byte("hello")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 5, Length: 6, Data: []byte(" world")})
	ctx2 := submitAndCommit(t, e, "h", enc2.Bytes())
	ctx2.ReleaseAll()

	coll, err := e.getCollection("c0")
	require.NoError(t, err)
	ob, err := coll.Lookup(o)
	require.NoError(t, err)
	require.Equal(t, uint64(11), ob.Size())
	require.Len(t, ob.DataMap(), 2)
	coll.Release(onode.ObjectKey("c0", o))
}

func TestWriteOverwriteStagesWAL(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 5, Data: []byte("hello")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 1, Length: 3, Data: []byte("ELL")})
	ctx2, err := e.Submit("h", enc2.Bytes())
	require.NoError(t, err)
	require.True(t, ctx2.WALEntriesProduced)
	stageDirty(t, ctx2)
	require.NoError(t, e.kvEngine.Commit(ctx2.Batch))
	ctx2.Ticket.Complete()

	n, err := e.walLog.Pending(e.kvEngine)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	applied, err := wal.Replay(e.kvEngine, e.walLog, e)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	coll, err := e.getCollection("c0")
	require.NoError(t, err)
	ob, err := coll.Lookup(o)
	require.NoError(t, err)
	require.Empty(t, ob.UnappliedTxns())
	ctx2.ReleaseAll()
	coll.Release(onode.ObjectKey("c0", o))
}

func TestWriteStraddlingExistingSizeFillsTail(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 5, Data: []byte("hello")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	// offset 3, length 6 overlaps bytes [3,5) of the existing object and
	// extends the object to size 9; splitRange only sees the overlapping
	// prefix, so the bytes past the old size must land in a fresh
	// fragment rather than being silently dropped.
	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 3, Length: 6, Data: []byte("LOWORL")})
	ctx2 := submitAndCommit(t, e, "h", enc2.Bytes())
	ctx2.ReleaseAll()

	// The overlapping prefix ("LO") only lands in the fragment file once
	// its WAL entry is replayed; the tail ("WORL") was written straight
	// to its own fresh fragment and is already readable.
	_, err := wal.Replay(e.kvEngine, e.walLog, e)
	require.NoError(t, err)

	out, err := e.Read("c0", o, 0, 9)
	require.NoError(t, err)
	require.Equal(t, []byte("helLOWORL"), out)
}

func TestTruncateShrinkShortensStraddlingFragment(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 5, Data: []byte("hello")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpTruncate, CID: "c0", Oid: o, Offset: 2})
	ctx2, err := e.Submit("h", enc2.Bytes())
	require.NoError(t, err)
	require.Len(t, ctx2.FidsToRemove, 0) // shrinking within the only fragment just shortens it
	stageDirty(t, ctx2)
	require.NoError(t, e.kvEngine.Commit(ctx2.Batch))
	ctx2.Ticket.Complete()
	ctx2.ReleaseAll()

	coll, err := e.getCollection("c0")
	require.NoError(t, err)
	ob, err := coll.Lookup(o)
	require.NoError(t, err)
	require.Equal(t, uint64(2), ob.Size())
	require.Equal(t, uint64(2), ob.DataMap()[0].Length)
	coll.Release(onode.ObjectKey("c0", o))
}

func TestRemoveQueuesAllFids(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 5, Data: []byte("hello")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpRemove, CID: "c0", Oid: o})
	ctx2, err := e.Submit("h", enc2.Bytes())
	require.NoError(t, err)
	require.Len(t, ctx2.FidsToRemove, 1)
	stageDirty(t, ctx2)
	require.NoError(t, e.kvEngine.Commit(ctx2.Batch))
	ctx2.Ticket.Complete()
	ctx2.ReleaseAll()

	coll, err := e.getCollection("c0")
	require.NoError(t, err)
	ob, err := coll.Lookup(o)
	require.NoError(t, err)
	require.False(t, ob.Exists())
	require.Equal(t, uint64(0), ob.Size())
	coll.Release(onode.ObjectKey("c0", o))
}

func TestSetAttrAndRmAttr(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpSetAttr, CID: "c0", Oid: o, AttrName: "k", AttrValue: []byte("v")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpRmAttr, CID: "c0", Oid: o, AttrName: "k"})
	ctx2 := submitAndCommit(t, e, "h", enc2.Bytes())
	ctx2.ReleaseAll()

	coll, err := e.getCollection("c0")
	require.NoError(t, err)
	ob, err := coll.Lookup(o)
	require.NoError(t, err)
	_, ok := ob.Attr("k")
	require.False(t, ok)
	coll.Release(onode.ObjectKey("c0", o))
}

func TestRmAttrMissingIsTolerated(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpTouch, CID: "c0", Oid: o})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpRmAttr, CID: "c0", Oid: o, AttrName: "missing"})
	_, err := e.Submit("h", enc2.Bytes())
	require.NoError(t, err)
}

func TestCloneSharesFids(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	src := testOid("src")
	dst := testOid("dst")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: src, Offset: 0, Length: 5, Data: []byte("hello")})
	enc.Put(Op{Code: OpClone, CID: "c0", Oid: src, DstCID: "c0", DstOid: dst})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	coll, err := e.getCollection("c0")
	require.NoError(t, err)
	srcOb, err := coll.Lookup(src)
	require.NoError(t, err)
	dstOb, err := coll.Lookup(dst)
	require.NoError(t, err)

	require.Equal(t, srcOb.Size(), dstOb.Size())
	require.Equal(t, srcOb.DataMap()[0].Fid, dstOb.DataMap()[0].Fid)
	coll.Release(onode.ObjectKey("c0", src))
	coll.Release(onode.ObjectKey("c0", dst))
}

func TestCollMoveRenameClearsSource(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	mkColl(t, e, "c1")
	src := testOid("obj1")
	dst := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: src, Offset: 0, Length: 5, Data: []byte("hello")})
	enc.Put(Op{Code: OpCollMoveRename, CID: "c0", Oid: src, DstCID: "c1", DstOid: dst})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	c0, err := e.getCollection("c0")
	require.NoError(t, err)
	c1, err := e.getCollection("c1")
	require.NoError(t, err)

	srcOb, err := c0.Lookup(src)
	require.NoError(t, err)
	require.False(t, srcOb.Exists())

	dstOb, err := c1.Lookup(dst)
	require.NoError(t, err)
	require.True(t, dstOb.Exists())
	require.Equal(t, uint64(5), dstOb.Size())

	c0.Release(onode.ObjectKey("c0", src))
	c1.Release(onode.ObjectKey("c1", dst))
}

func TestRmCollFailsWhenNotEmpty(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpTouch, CID: "c0", Oid: o})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpRmColl, CID: "c0"})
	_, err := e.Submit("h", enc2.Bytes())
	require.Error(t, err)
	require.Equal(t, ostore.CodeNotEmpty, ostore.CodeOf(err))
}

func TestConcurrentSubmitsOnOneHandleAllComplete(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	var order []int
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			enc := NewEncoder()
			enc.Put(Op{Code: OpSetAttr, CID: "c0", Oid: o, AttrName: "k", AttrValue: []byte{byte(i)}})
			ctx, err := e.Submit("same-handle", enc.Bytes())
			require.NoError(t, err)
			stageDirty(t, ctx)
			require.NoError(t, e.kvEngine.Commit(ctx.Batch))
			order = append(order, i)
			ctx.Ticket.Complete()
			ctx.ReleaseAll()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	require.Len(t, order, 3)
}
