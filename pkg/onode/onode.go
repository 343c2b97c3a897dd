package onode

import (
	"encoding/json"
	"sync"

	"github.com/cuemby/objstore/pkg/ostore"
)

// Onode is the in-memory and (via record) persisted per-object record.
// All mutable fields are guarded by mu so the transaction engine and
// the cache's eviction path can touch the same Onode from different
// goroutines.
type Onode struct {
	mu sync.Mutex

	Oid   ostore.Oid
	KVKey []byte // cached encoding of Oid, the kv row key

	size    uint64
	attrs   map[string][]byte
	dataMap []ostore.Fragment
	exists  bool
	dirty   bool

	// unappliedTxns holds the WAL sequence numbers of entries committed
	// against this onode but not yet replayed into its fragment files.
	// It references pkg/wal sequence numbers rather than a *wal.Entry to
	// avoid an import cycle between onode and wal.
	unappliedTxns []uint64

	// omap and omapHeader back the OMAP_* ops. Rich omap semantics
	// beyond basic set/get/delete are out of scope, so this is a flat
	// map, not its own sorted kv subspace.
	omap       map[string][]byte
	omapHeader []byte

	allocHintSize      uint64
	allocHintWriteSize uint64
}

// record is the JSON-on-disk shape of an Onode: one JSON value per kv
// row, matching the convention used for every other record type in
// this store.
type record struct {
	Size          uint64            `json:"size"`
	Attrs         map[string][]byte `json:"attrs,omitempty"`
	DataMap       []ostore.Fragment `json:"data_map,omitempty"`
	Exists        bool              `json:"exists"`
	UnappliedTxns []uint64          `json:"unapplied_txns,omitempty"`
	Omap          map[string][]byte `json:"omap,omitempty"`
	OmapHeader    []byte            `json:"omap_header,omitempty"`
}

// New constructs a fresh in-memory Onode for a cache miss with
// create=true: exists and dirty both start true.
func New(oid ostore.Oid, kvKey []byte) *Onode {
	return &Onode{
		Oid:    oid,
		KVKey:  append([]byte(nil), kvKey...),
		attrs:  make(map[string][]byte),
		omap:   make(map[string][]byte),
		exists: true,
		dirty:  true,
	}
}

// Decode reconstructs an Onode from its persisted kv value.
func Decode(oid ostore.Oid, kvKey, data []byte) (*Onode, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, ostore.Wrap(ostore.CodeCorrupt, "onode.Decode", "unmarshal record", err)
	}
	o := &Onode{
		Oid:           oid,
		KVKey:         append([]byte(nil), kvKey...),
		size:          r.Size,
		attrs:         r.Attrs,
		dataMap:       r.DataMap,
		exists:        r.Exists,
		unappliedTxns: r.UnappliedTxns,
		omap:          r.Omap,
		omapHeader:    r.OmapHeader,
	}
	if o.attrs == nil {
		o.attrs = make(map[string][]byte)
	}
	if o.omap == nil {
		o.omap = make(map[string][]byte)
	}
	return o, nil
}

// Encode serializes the onode's persisted fields for a kv write.
func (o *Onode) Encode() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := record{
		Size:          o.size,
		Attrs:         o.attrs,
		DataMap:       o.dataMap,
		Exists:        o.exists,
		UnappliedTxns: o.unappliedTxns,
		Omap:          o.omap,
		OmapHeader:    o.omapHeader,
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, ostore.Wrap(ostore.CodeCorrupt, "onode.Encode", "marshal record", err)
	}
	return data, nil
}

// Size returns the onode's logical length.
func (o *Onode) Size() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

// SetSize sets the onode's logical length and marks it dirty.
func (o *Onode) SetSize(n uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.size = n
	o.dirty = true
}

// Exists reports whether the onode is tombstoned.
func (o *Onode) Exists() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exists
}

// SetExists sets the tombstone flag and marks the onode dirty.
func (o *Onode) SetExists(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exists = v
	o.dirty = true
}

// Dirty reports whether the onode has an in-memory mutation not yet
// written to kv.
func (o *Onode) Dirty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dirty
}

// ClearDirty marks the onode as flushed to kv.
func (o *Onode) ClearDirty() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dirty = false
}

// DataMap returns a copy of the onode's ordered fragment list.
func (o *Onode) DataMap() []ostore.Fragment {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ostore.Fragment, len(o.dataMap))
	copy(out, o.dataMap)
	return out
}

// SetDataMap replaces the onode's fragment list wholesale, for
// operations (CLONE, COLL_MOVE_RENAME, SPLIT_COLLECTION2, TRUNCATE)
// that build a new list rather than appending to the existing one.
func (o *Onode) SetDataMap(fragments []ostore.Fragment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dataMap = append([]ostore.Fragment(nil), fragments...)
	o.dirty = true
}

// AppendFragment appends a fragment entry, marks the onode dirty, and
// requires the caller (the transaction engine) to maintain the
// ascending-offset, non-overlapping invariant; the cache itself never
// persists mutations on its own.
func (o *Onode) AppendFragment(f ostore.Fragment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dataMap = append(o.dataMap, f)
	o.dirty = true
}

// TruncateDataMap drops every fragment entry beyond newLen fragments
// and marks the onode dirty.
func (o *Onode) TruncateDataMap(newLen int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if newLen < len(o.dataMap) {
		o.dataMap = o.dataMap[:newLen]
	}
	o.dirty = true
}

// ClearDataMap empties the fragment list, e.g. on REMOVE.
func (o *Onode) ClearDataMap() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dataMap = nil
	o.dirty = true
}

// Attr returns an attribute value and whether it was present.
func (o *Onode) Attr(name string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.attrs[name]
	return v, ok
}

// SetAttr stores an attribute value and marks the onode dirty.
func (o *Onode) SetAttr(name string, value []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attrs == nil {
		o.attrs = make(map[string][]byte)
	}
	o.attrs[name] = value
	o.dirty = true
}

// RemoveAttr deletes an attribute, if present, and marks the onode
// dirty.
func (o *Onode) RemoveAttr(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.attrs, name)
	o.dirty = true
}

// Attrs returns a copy of the onode's attribute map.
func (o *Onode) Attrs() map[string][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]byte, len(o.attrs))
	for k, v := range o.attrs {
		out[k] = v
	}
	return out
}

// PushUnappliedTxn records that WAL sequence seq has been committed
// against this onode but not yet replayed.
func (o *Onode) PushUnappliedTxn(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unappliedTxns = append(o.unappliedTxns, seq)
	o.dirty = true
}

// PopUnappliedTxn removes seq from the pending list once its replay
// has been applied and its WAL kv row deleted in the same batch.
func (o *Onode) PopUnappliedTxn(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.unappliedTxns {
		if s == seq {
			o.unappliedTxns = append(o.unappliedTxns[:i], o.unappliedTxns[i+1:]...)
			o.dirty = true
			return
		}
	}
}

// UnappliedTxns returns a copy of the pending WAL sequence numbers.
func (o *Onode) UnappliedTxns() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]uint64, len(o.unappliedTxns))
	copy(out, o.unappliedTxns)
	return out
}

// OmapGet returns an object-map value and whether it was present.
func (o *Onode) OmapGet(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.omap[key]
	return v, ok
}

// OmapSetKeys stores one or more object-map entries and marks the
// onode dirty (OMAP_SETKEYS).
func (o *Onode) OmapSetKeys(kvs map[string][]byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.omap == nil {
		o.omap = make(map[string][]byte)
	}
	for k, v := range kvs {
		o.omap[k] = v
	}
	o.dirty = true
}

// OmapRemoveKeys deletes one or more object-map entries (OMAP_RMKEYS).
func (o *Onode) OmapRemoveKeys(keys []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range keys {
		delete(o.omap, k)
	}
	o.dirty = true
}

// OmapRemoveRange deletes every object-map key in [start, end)
// (OMAP_RMKEYRANGE). Since the object map has no sorted subspace, this
// is a linear scan over the flat map.
func (o *Onode) OmapRemoveRange(start, end string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k := range o.omap {
		if k >= start && k < end {
			delete(o.omap, k)
		}
	}
	o.dirty = true
}

// OmapClear empties the object map and its header (OMAP_CLEAR).
func (o *Onode) OmapClear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.omap = make(map[string][]byte)
	o.omapHeader = nil
	o.dirty = true
}

// SetOmapHeader sets the object map's header blob (OMAP_SETHEADER).
func (o *Onode) SetOmapHeader(header []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.omapHeader = append([]byte(nil), header...)
	o.dirty = true
}

// OmapHeader returns the object map's header blob.
func (o *Onode) OmapHeader() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]byte(nil), o.omapHeader...)
}

// Omap returns a copy of the object map.
func (o *Onode) Omap() map[string][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]byte, len(o.omap))
	for k, v := range o.omap {
		out[k] = v
	}
	return out
}

// SetAllocHint records an advisory size/IO hint (SETALLOCHINT). This
// store has no allocator to hint, so the value is recorded on the
// onode purely for read-back fidelity.
func (o *Onode) SetAllocHint(expectedSize, expectedWriteSize uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allocHintSize = expectedSize
	o.allocHintWriteSize = expectedWriteSize
}

// AllocHint returns the last recorded alloc hint.
func (o *Onode) AllocHint() (expectedSize, expectedWriteSize uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.allocHintSize, o.allocHintWriteSize
}
