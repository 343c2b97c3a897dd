package onode

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/ostore"
)

func newTestKV(t *testing.T) kv.Engine {
	t.Helper()
	e, err := kv.OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCacheMissWithCreateMaterializes(t *testing.T) {
	c := NewCache(newTestKV(t))
	o := testOid("a")
	got, err := c.Get(o, []byte("key-a"), true)
	require.NoError(t, err)
	require.True(t, got.Dirty())
	require.Equal(t, 1, c.Len())
}

func TestCacheMissWithoutCreateFails(t *testing.T) {
	c := NewCache(newTestKV(t))
	_, err := c.Get(testOid("a"), []byte("key-a"), false)
	require.Error(t, err)
	require.Equal(t, ostore.CodeNotFound, ostore.CodeOf(err))
}

func TestCacheReleaseEvicts(t *testing.T) {
	c := NewCache(newTestKV(t))
	key := []byte("key-a")
	got, err := c.Get(testOid("a"), key, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 1, c.Len())

	c.Release(key)
	require.Equal(t, 0, c.Len())
	_, ok := c.Peek(key)
	require.False(t, ok)
}

func TestCacheConcurrentGetsCoalesce(t *testing.T) {
	c := NewCache(newTestKV(t))
	key := []byte("key-a")
	o := testOid("a")

	const n = 32
	results := make([]*Onode, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			got, err := c.Get(o, key, true)
			require.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.Same(t, results[0], results[i])
	}
	for i := 0; i < n; i++ {
		c.Release(key)
	}
	require.Equal(t, 0, c.Len())
}
