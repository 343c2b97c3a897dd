package kv

import "github.com/cuemby/objstore/pkg/ostore"

// Prefix names one of the three kv key spaces.
type Prefix string

const (
	PrefixColl Prefix = "C"
	PrefixObj  Prefix = "O"
	PrefixWAL  Prefix = "L"
)

// Engine is the kv adapter's interface onto an embedded key/value
// store. Implementations must provide atomic, durable batch commit:
// either every mutation in a Batch is visible after Commit returns, or
// none are.
type Engine interface {
	// Get returns the value stored at (prefix, key), or an
	// ostore.CodeNotFound error if no such key exists.
	Get(prefix Prefix, key []byte) ([]byte, error)

	// Scan calls fn for every key in [start, end) under prefix, in
	// ascending key order, stopping early if fn returns an error. A
	// nil end scans to the end of the prefix.
	Scan(prefix Prefix, start, end []byte, fn func(key, value []byte) error) error

	// NewBatch returns a new, empty Batch.
	NewBatch() *Batch

	// Commit atomically and durably applies every mutation staged in
	// b, preserving the order mutations were staged in.
	Commit(b *Batch) error

	// Close releases the engine's resources.
	Close() error
}

type opKind int

const (
	opSet opKind = iota
	opRemove
)

type batchOp struct {
	kind   opKind
	prefix Prefix
	key    []byte
	value  []byte
}

// Batch accumulates a sequence of Set/Remove mutations to be applied
// atomically by Engine.Commit. Mutations are never reordered relative
// to the order they were staged.
type Batch struct {
	ops []batchOp
}

// Set stages a (prefix, key) -> value mutation.
func (b *Batch) Set(prefix Prefix, key, value []byte) {
	b.ops = append(b.ops, batchOp{kind: opSet, prefix: prefix, key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Remove stages a (prefix, key) deletion.
func (b *Batch) Remove(prefix Prefix, key []byte) {
	b.ops = append(b.ops, batchOp{kind: opRemove, prefix: prefix, key: append([]byte(nil), key...)})
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Open dispatches to a concrete Engine implementation by backend name,
// the kv_backend configuration option.
func Open(backend, path string) (Engine, error) {
	switch backend {
	case "", "bbolt":
		return OpenBolt(path)
	default:
		return nil, ostore.New(ostore.CodeUnsupported, "kv.Open", "unknown kv backend "+backend)
	}
}
