/*
Package onode implements the per-collection object metadata cache: a
weak-value map from an encoded oid to its in-memory Onode, loading
lazily from the kv store and coalescing concurrent misses on the same
key into a single load.

Go has no general weak-reference map, so the cache uses explicit
reference counting instead: Get pins the returned Onode, Release
unpins it, and a slot is evicted from the underlying sync.Map the
moment its pin count reaches zero. Coalescing uses a sync.Once per slot
rather than golang.org/x/sync/singleflight.
The per-collection RWMutex is taken shared by Lookup and exclusively by
GetOrCreate, FinishWALEntry and Remove, so concurrent lookups never
block one another.
*/
package onode
