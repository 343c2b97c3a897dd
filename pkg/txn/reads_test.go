package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/objstore/pkg/ostore"
)

func TestReadReturnsWrittenBytes(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 4, Data: []byte("ping")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	data, err := e.Read("c0", o, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), data)
}

func TestReadAcrossTwoFragments(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 4, Data: []byte("ping")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 4, Length: 4, Data: []byte("pong")})
	ctx2 := submitAndCommit(t, e, "h", enc2.Bytes())
	ctx2.ReleaseAll()

	data, err := e.Read("c0", o, 0, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("pingpong"), data)

	partial, err := e.Read("c0", o, 2, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("ngpo"), partial)
}

func TestReadPastSizeIsTruncated(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 4, Data: []byte("ping")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	data, err := e.Read("c0", o, 2, 100)
	require.NoError(t, err)
	require.Equal(t, []byte("ng"), data)

	empty, err := e.Read("c0", o, 10, 5)
	require.NoError(t, err)
	require.Len(t, empty, 0)
}

func TestReadMissingObjectIsNotFound(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")

	_, err := e.Read("c0", testOid("ghost"), 0, 4)
	require.Error(t, err)
	require.Equal(t, ostore.CodeNotFound, ostore.CodeOf(err))
}

func TestStatReportsSizeAndAttrs(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 4, Data: []byte("ping")})
	enc.Put(Op{Code: OpSetAttr, CID: "c0", Oid: o, AttrName: "k", AttrValue: []byte("v")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	size, attrs, err := e.Stat("c0", o)
	require.NoError(t, err)
	require.Equal(t, uint64(4), size)
	require.Equal(t, []byte("v"), attrs["k"])
}

func TestStatTombstonedObjectIsNotFound(t *testing.T) {
	e := newTestEngine(t)
	mkColl(t, e, "c0")
	o := testOid("obj1")

	enc := NewEncoder()
	enc.Put(Op{Code: OpWrite, CID: "c0", Oid: o, Offset: 0, Length: 4, Data: []byte("ping")})
	ctx := submitAndCommit(t, e, "h", enc.Bytes())
	ctx.ReleaseAll()

	enc2 := NewEncoder()
	enc2.Put(Op{Code: OpRemove, CID: "c0", Oid: o})
	ctx2 := submitAndCommit(t, e, "h", enc2.Bytes())
	ctx2.ReleaseAll()

	_, _, err := e.Stat("c0", o)
	require.Error(t, err)
	require.Equal(t, ostore.CodeNotFound, ostore.CodeOf(err))
}
