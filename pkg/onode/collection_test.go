package onode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/ostore"
)

func TestCreateAndOpenCollection(t *testing.T) {
	e := newTestKV(t)
	b := e.NewBatch()
	_, err := Create(e, "c0", b)
	require.NoError(t, err)
	require.NoError(t, e.Commit(b))

	coll, err := Open(e, "c0")
	require.NoError(t, err)
	require.Equal(t, "c0", coll.CID)
}

func TestCreateDuplicateFails(t *testing.T) {
	e := newTestKV(t)
	b := e.NewBatch()
	_, err := Create(e, "c0", b)
	require.NoError(t, err)
	require.NoError(t, e.Commit(b))

	b2 := e.NewBatch()
	_, err = Create(e, "c0", b2)
	require.Error(t, err)
	require.Equal(t, ostore.CodeAlreadyExists, ostore.CodeOf(err))
}

func TestOpenMissingCollectionFails(t *testing.T) {
	e := newTestKV(t)
	_, err := Open(e, "missing")
	require.Error(t, err)
	require.Equal(t, ostore.CodeNotFound, ostore.CodeOf(err))
}

func TestCollectionIsEmptyAndRemove(t *testing.T) {
	e := newTestKV(t)
	b := e.NewBatch()
	coll, err := Create(e, "c0", b)
	require.NoError(t, err)
	require.NoError(t, e.Commit(b))

	empty, err := coll.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	rb := e.NewBatch()
	require.NoError(t, coll.Remove(rb))
	require.NoError(t, e.Commit(rb))

	_, err = Open(e, "c0")
	require.Error(t, err)
}

func TestCollectionRemoveFailsWhenNotEmpty(t *testing.T) {
	e := newTestKV(t)
	b := e.NewBatch()
	coll, err := Create(e, "c0", b)
	require.NoError(t, err)
	require.NoError(t, e.Commit(b))

	o := testOid("a")
	key := ObjectKey(coll.CID, o)
	ob := e.NewBatch()
	ob.Set(kv.PrefixObj, key, []byte(`{"exists":true}`))
	require.NoError(t, e.Commit(ob))

	rb := e.NewBatch()
	err = coll.Remove(rb)
	require.Error(t, err)
	require.Equal(t, ostore.CodeNotEmpty, ostore.CodeOf(err))
}

func TestGetOrCreateThenLookup(t *testing.T) {
	e := newTestKV(t)
	b := e.NewBatch()
	coll, err := Create(e, "c0", b)
	require.NoError(t, err)
	require.NoError(t, e.Commit(b))

	o := testOid("a")
	created, err := coll.GetOrCreate(o)
	require.NoError(t, err)
	require.True(t, created.Dirty())
	coll.Release(ObjectKey(coll.CID, o))
}
