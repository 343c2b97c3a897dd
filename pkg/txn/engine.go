package txn

import (
	"io"
	"sync"

	"github.com/cuemby/objstore/pkg/events"
	"github.com/cuemby/objstore/pkg/frag"
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
	"github.com/cuemby/objstore/pkg/sequencer"
	"github.com/cuemby/objstore/pkg/wal"
)

// Engine decodes and dispatches transaction streams, staging every
// mutation into a Context for the commit pipeline. It owns the
// collection-map rwlock, the coarsest lock in the hierarchy, acquired
// read-only for lookups and write-locked only for create/destroy.
type Engine struct {
	mu          sync.RWMutex
	collections map[string]*onode.Collection

	kvEngine   kv.Engine
	frags      *frag.Allocator
	walLog     *wal.Log
	sequencers *sequencer.Registry
	events     *events.Broker
}

// NewEngine constructs an Engine over already-opened storage.
func NewEngine(kvEngine kv.Engine, frags *frag.Allocator, walLog *wal.Log) *Engine {
	return &Engine{
		collections: make(map[string]*onode.Collection),
		kvEngine:    kvEngine,
		frags:       frags,
		walLog:      walLog,
		sequencers:  sequencer.NewRegistry(),
	}
}

// Sequencers exposes the engine's sequencer registry, e.g. for a
// lifecycle Umount to flush every installed sequencer.
func (e *Engine) Sequencers() *sequencer.Registry {
	return e.sequencers
}

// SetBroker attaches an events.Broker that opMkColl/opRmColl publish
// collection-churn notifications to once a transaction durably commits.
// A nil engine.events (the default) makes publishEvent a no-op, so
// attaching a broker is optional.
func (e *Engine) SetBroker(b *events.Broker) {
	e.events = b
}

func (e *Engine) publishEvent(typ events.EventType, cid string) {
	if e.events == nil {
		return
	}
	e.events.Publish(&events.Event{Type: typ, Message: cid, Metadata: map[string]string{"collection": cid}})
}

// CollectionCount returns the number of collections currently held open
// in the engine's collection map, for metrics.StatsSource.
func (e *Engine) CollectionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.collections)
}

// OnodeCacheSizes returns, per open collection id, the number of onodes
// currently resident in that collection's cache, for
// metrics.StatsSource.
func (e *Engine) OnodeCacheSizes() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sizes := make(map[string]int, len(e.collections))
	for cid, c := range e.collections {
		sizes[cid] = c.CacheLen()
	}
	return sizes
}

// Collection exposes the named collection by id, implementing
// wal.CollectionSource so the WAL applier can route a replayed onode
// mutation through the same cache and lock every live Submit mutates
// onodes under, instead of bypassing them with a raw kv round-trip.
func (e *Engine) Collection(cid string) (*onode.Collection, error) {
	return e.getCollection(cid)
}

func (e *Engine) getCollection(cid string) (*onode.Collection, error) {
	e.mu.RLock()
	c, ok := e.collections[cid]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.collections[cid]; ok {
		return c, nil
	}
	c, err := onode.Open(e.kvEngine, cid)
	if err != nil {
		return nil, err
	}
	e.collections[cid] = c
	return c, nil
}

func (e *Engine) createCollection(cid string, batch *kv.Batch) (*onode.Collection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[cid]; ok {
		return nil, ostore.New(ostore.CodeAlreadyExists, "txn.createCollection", "collection already exists")
	}
	c, err := onode.Create(e.kvEngine, cid, batch)
	if err != nil {
		return nil, err
	}
	e.collections[cid] = c
	return c, nil
}

func (e *Engine) dropCollection(cid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.collections, cid)
}

// Submit decodes stream and dispatches every op in order on behalf of
// the sequencer named by handle, blocking on that sequencer's FIFO
// until it is this submission's turn.
// It returns the staged Context for the commit pipeline to finish. A
// fatal dispatch error aborts the whole transaction: nothing in it is
// staged for commit, and the sequencer ticket completes immediately so
// later queued submissions are not blocked behind it.
func (e *Engine) Submit(handle string, stream []byte) (*Context, error) {
	ticket := e.sequencers.Get(handle).Queue()
	ticket.WaitTurn()

	ctx := newContext(e.kvEngine)
	ctx.Ticket = ticket

	dec := NewDecoder(stream)
	for {
		op, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			ctx.abort(err)
			break
		}
		if err := e.dispatch(ctx, op); err != nil {
			ctx.abort(err)
			break
		}
	}

	if aborted, abortErr := ctx.Aborted(); aborted {
		ctx.ReleaseAll()
		ticket.Complete()
		return ctx, abortErr
	}
	return ctx, nil
}

func (e *Engine) dispatch(ctx *Context, op Op) error {
	if len(op.Oid.Name) > ostore.MaxObjectNameLength || len(op.DstOid.Name) > ostore.MaxObjectNameLength {
		return ostore.New(ostore.CodeInvalidArgument, "txn.dispatch", "object name exceeds MaxObjectNameLength")
	}
	if op.Code == OpSetAttr && len(op.AttrName) > ostore.MaxAttrNameLength {
		return ostore.New(ostore.CodeInvalidArgument, "txn.dispatch", "attribute name exceeds MaxAttrNameLength")
	}
	for name := range op.Attrs {
		if len(name) > ostore.MaxAttrNameLength {
			return ostore.New(ostore.CodeInvalidArgument, "txn.dispatch", "attribute name exceeds MaxAttrNameLength")
		}
	}
	return tolerate(e.dispatchOp(ctx, op), op.Code)
}

// tolerate classifies an op handler's error: NotFound is a no-op for
// every code except CLONE/CLONERANGE2; NoData is a no-op; everything
// else (including NoSpace and a stale NotEmpty on RMCOLL) is fatal.
func tolerate(err error, code OpCode) error {
	if err == nil {
		return nil
	}
	switch ostore.CodeOf(err) {
	case ostore.CodeNotFound:
		if code == OpClone || code == OpCloneRange2 {
			return err
		}
		return nil
	case ostore.CodeNoData:
		return nil
	default:
		return err
	}
}

func (e *Engine) dispatchOp(ctx *Context, op Op) error {
	switch op.Code {
	case OpNop, OpCollHint:
		return nil
	case OpTouch:
		return e.opTouch(ctx, op)
	case OpWrite:
		return e.opWrite(ctx, op)
	case OpZero:
		return e.opZero(ctx, op)
	case OpTruncate:
		return e.opTruncate(ctx, op)
	case OpRemove:
		return e.opRemove(ctx, op)
	case OpSetAttr:
		return e.opSetAttr(ctx, op)
	case OpSetAttrs:
		return e.opSetAttrs(ctx, op)
	case OpRmAttr:
		return e.opRmAttr(ctx, op)
	case OpRmAttrs:
		return e.opRmAttrs(ctx, op)
	case OpClone:
		return e.opClone(ctx, op)
	case OpCloneRange2:
		return e.opCloneRange2(ctx, op)
	case OpMkColl:
		return e.opMkColl(ctx, op)
	case OpRmColl:
		return e.opRmColl(ctx, op)
	case OpCollMoveRename:
		return e.opCollMoveRename(ctx, op)
	case OpOmapClear:
		return e.opOmapClear(ctx, op)
	case OpOmapSetKeys:
		return e.opOmapSetKeys(ctx, op)
	case OpOmapRmKeys:
		return e.opOmapRmKeys(ctx, op)
	case OpOmapRmKeyRange:
		return e.opOmapRmKeyRange(ctx, op)
	case OpOmapSetHeader:
		return e.opOmapSetHeader(ctx, op)
	case OpSplitCollection2:
		return e.opSplitCollection2(ctx, op)
	case OpSetAllocHint:
		return e.opSetAllocHint(ctx, op)
	default:
		return ostore.New(ostore.CodeInvalidArgument, "txn.dispatchOp", "unknown opcode")
	}
}
