package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/objstore/pkg/frag"
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
)

func newTestEnv(t *testing.T) (kv.Engine, *frag.Allocator) {
	t.Helper()
	e, err := kv.OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	a, err := frag.NewAllocator(filepath.Join(t.TempDir(), "fragments"), 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return e, a
}

func testOid(name string) ostore.Oid {
	return ostore.Oid{Pool: 1, Name: name, Snap: ostore.SnapHead, Generation: ostore.NoGeneration}
}

// singleCollection serves one collection to Replay as its
// CollectionSource.
type singleCollection struct{ coll *onode.Collection }

func (s singleCollection) Collection(cid string) (*onode.Collection, error) {
	if cid != s.coll.CID {
		return nil, ostore.New(ostore.CodeNotFound, "wal_test", "unknown collection")
	}
	return s.coll, nil
}

func TestStageAssignsMonotonicSeq(t *testing.T) {
	e, a := newTestEnv(t)
	l, err := Open(e, a)
	require.NoError(t, err)

	b := e.NewBatch()
	seq1, err := l.Stage(b, Entry{Op: OpOverwrite, Offset: 0, Payload: []byte("x")})
	require.NoError(t, err)
	seq2, err := l.Stage(b, Entry{Op: OpOverwrite, Offset: 1, Payload: []byte("y")})
	require.NoError(t, err)
	require.Less(t, seq1, seq2)
}

func TestApplyOverwriteIsIdempotent(t *testing.T) {
	e, a := newTestEnv(t)
	fid, f, err := a.Allocate()
	require.NoError(t, err)
	_, err = f.WriteString("0000000000")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l, err := Open(e, a)
	require.NoError(t, err)

	entry := Entry{Fid: fid, Op: OpOverwrite, Offset: 2, Payload: []byte("XX")}
	require.NoError(t, l.Apply(entry))
	require.NoError(t, l.Apply(entry))

	rf, err := a.Open(fid, os.O_RDONLY)
	require.NoError(t, err)
	defer rf.Close()
	buf := make([]byte, 10)
	_, err = rf.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "00XX000000", string(buf))
}

func TestReplayAppliesAndClearsOnodePending(t *testing.T) {
	e, a := newTestEnv(t)

	cb := e.NewBatch()
	coll, err := onode.Create(e, "c0", cb)
	require.NoError(t, err)
	require.NoError(t, e.Commit(cb))

	o := testOid("a")
	onodeObj, err := coll.GetOrCreate(o)
	require.NoError(t, err)

	fid, f, err := a.Allocate()
	require.NoError(t, err)
	_, err = f.WriteString("0000000000")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	onodeObj.AppendFragment(ostore.Fragment{Offset: 0, Length: 10, Fid: fid})
	onodeObj.SetSize(10)

	l, err := Open(e, a)
	require.NoError(t, err)

	key := onode.ObjectKey("c0", o)
	batch := e.NewBatch()
	seq, err := l.Stage(batch, Entry{
		ObjectKey: key,
		Fid:       fid,
		Op:        OpOverwrite,
		Offset:    3,
		Payload:   []byte("YYY"),
	})
	require.NoError(t, err)
	onodeObj.PushUnappliedTxn(seq)
	encoded, err := onodeObj.Encode()
	require.NoError(t, err)
	batch.Set(kv.PrefixObj, key, encoded)
	require.NoError(t, e.Commit(batch))
	coll.Release(key)

	n, err := Replay(e, l, singleCollection{coll})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rf, err := a.Open(fid, os.O_RDONLY)
	require.NoError(t, err)
	defer rf.Close()
	buf := make([]byte, 10)
	_, err = rf.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "000YYY0000", string(buf))

	data, err := e.Get(kv.PrefixObj, key)
	require.NoError(t, err)
	reloaded, err := onode.Decode(o, key, data)
	require.NoError(t, err)
	require.Empty(t, reloaded.UnappliedTxns())

	pending, err := l.Pending(e)
	require.NoError(t, err)
	require.Equal(t, 0, pending)
}
