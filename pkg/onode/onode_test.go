package onode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/objstore/pkg/ostore"
)

func testOid(name string) ostore.Oid {
	return ostore.Oid{Pool: 1, Name: name, Snap: ostore.SnapHead, Generation: ostore.NoGeneration}
}

func TestNewOnodeIsDirtyAndExists(t *testing.T) {
	o := New(testOid("a"), []byte("key-a"))
	require.True(t, o.Dirty())
	require.True(t, o.Exists())
	require.Equal(t, uint64(0), o.Size())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	o := New(testOid("a"), []byte("key-a"))
	o.SetSize(42)
	o.SetAttr("content-type", []byte("text/plain"))
	o.AppendFragment(ostore.Fragment{Offset: 0, Length: 42, Fid: ostore.Fid{Fset: 0, Fno: 1}})

	data, err := o.Encode()
	require.NoError(t, err)

	decoded, err := Decode(o.Oid, o.KVKey, data)
	require.NoError(t, err)
	require.Equal(t, uint64(42), decoded.Size())
	require.True(t, decoded.Exists())
	v, ok := decoded.Attr("content-type")
	require.True(t, ok)
	require.Equal(t, []byte("text/plain"), v)
	require.Len(t, decoded.DataMap(), 1)
}

func TestUnappliedTxnLifecycle(t *testing.T) {
	o := New(testOid("a"), []byte("key-a"))
	o.PushUnappliedTxn(7)
	o.PushUnappliedTxn(8)
	require.Equal(t, []uint64{7, 8}, o.UnappliedTxns())

	o.PopUnappliedTxn(7)
	require.Equal(t, []uint64{8}, o.UnappliedTxns())
}

func TestRemoveAttr(t *testing.T) {
	o := New(testOid("a"), []byte("key-a"))
	o.SetAttr("x", []byte("1"))
	o.RemoveAttr("x")
	_, ok := o.Attr("x")
	require.False(t, ok)
}

func TestTruncateDataMap(t *testing.T) {
	o := New(testOid("a"), []byte("key-a"))
	o.AppendFragment(ostore.Fragment{Offset: 0, Length: 10, Fid: ostore.Fid{Fset: 0, Fno: 1}})
	o.AppendFragment(ostore.Fragment{Offset: 10, Length: 10, Fid: ostore.Fid{Fset: 0, Fno: 2}})
	o.TruncateDataMap(1)
	require.Len(t, o.DataMap(), 1)
}
