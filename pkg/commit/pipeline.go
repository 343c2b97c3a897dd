package commit

import (
	"sync"

	"github.com/cuemby/objstore/pkg/events"
	"github.com/cuemby/objstore/pkg/frag"
	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/log"
	"github.com/cuemby/objstore/pkg/metrics"
	"github.com/cuemby/objstore/pkg/ostore"
	"github.com/cuemby/objstore/pkg/txn"
	"github.com/cuemby/objstore/pkg/wal"
)

// Pipeline drains submitted transaction contexts and makes them
// durable, and drives WAL-apply passes, from one goroutine — kv sync is
// effectively single-threaded here, so a commit and a WAL replay pass
// can never interleave their kv writes against the same onode.
// Parallelism comes from sequencers queuing independent transactions,
// not from racing the kv commit itself.
type Pipeline struct {
	kvEngine kv.Engine
	frags    *frag.Allocator
	walLog   *wal.Log
	engine   wal.CollectionSource

	jobs    chan *txn.Context
	walJobs chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	events *events.Broker
}

// SetBroker attaches an events.Broker that the pipeline publishes WAL
// replay and transaction-abort notifications to. Optional; a nil broker
// (the default) makes publishing a no-op.
func (p *Pipeline) SetBroker(b *events.Broker) {
	p.events = b
}

// SetEngine attaches the collection resolver a WAL-apply pass routes a
// replayed onode mutation through. Required before Start whenever a
// committed transaction can produce WAL entries; a nil engine only
// works if Start's pipeline never actually sees one.
func (p *Pipeline) SetEngine(e wal.CollectionSource) {
	p.engine = e
}

func (p *Pipeline) publish(typ events.EventType, msg string) {
	if p.events == nil {
		return
	}
	p.events.Publish(&events.Event{Type: typ, Message: msg})
}

// NewPipeline creates a Pipeline over already-opened storage. Call
// Start to begin draining submissions.
func NewPipeline(kvEngine kv.Engine, frags *frag.Allocator, walLog *wal.Log) *Pipeline {
	return &Pipeline{
		kvEngine: kvEngine,
		frags:    frags,
		walLog:   walLog,
		jobs:     make(chan *txn.Context, 256),
		walJobs:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the pipeline's single finisher goroutine.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop signals the finisher to exit and waits for it to actually
// return, so a caller closing the underlying kv engine and fragment
// allocator right after Stop never races a still-running WAL replay or
// commit against a closed handle. It does not drain p.jobs first;
// callers that need every queued submission to land durably should
// Flush their sequencers before calling Stop.
func (p *Pipeline) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Submit enqueues ctx for asynchronous commit, returning once it is
// queued rather than once it is durable. The transaction's
// CommitCallbacks and sequencer ticket completion are how a caller
// learns the outcome.
func (p *Pipeline) Submit(ctx *txn.Context) {
	p.jobs <- ctx
}

// run is the pipeline's sole goroutine: it drains staged transactions
// and WAL-apply triggers from the same select loop, so the two kinds of
// kv-writing work never run concurrently with each other.
func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		select {
		case ctx := <-p.jobs:
			if err := p.Commit(ctx); err != nil {
				log.WithComponent("commit").Error().Err(err).Msg("transaction commit failed")
			}
		case <-p.walJobs:
			p.applyWAL()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pipeline) applyWAL() {
	p.publish(events.EventWALReplayStarted, "")
	timer := metrics.NewTimer()
	applied, err := wal.Replay(p.kvEngine, p.walLog, p.engine)
	timer.ObserveDuration(metrics.WALApplyDuration)
	if err != nil {
		log.WithComponent("commit").Error().Err(err).Msg("wal replay failed")
		return
	}
	if applied > 0 {
		log.WithComponent("commit").Debug().Int("applied", applied).Msg("wal entries applied")
	}
	p.publish(events.EventWALReplayFinished, "")
}

// Commit performs the durability steps synchronously: fsync,
// onode encode, atomic kv batch commit, deferred fid removal, callback
// fan-out, and sequencer ticket completion. Submit uses this
// internally; callers that want to block until durable (rather than
// fire-and-forget through Submit) may call it directly.
func (p *Pipeline) Commit(ctx *txn.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitLatency)

	if aborted, abortErr := ctx.Aborted(); aborted {
		return p.abort(ctx, abortErr)
	}

	if err := p.syncFragments(ctx); err != nil {
		return p.abort(ctx, err)
	}

	for _, o := range ctx.DirtyOnodes {
		data, err := o.Encode()
		if err != nil {
			return p.abort(ctx, err)
		}
		ctx.Batch.Set(kv.PrefixObj, o.KVKey, data)
	}

	if err := p.kvEngine.Commit(ctx.Batch); err != nil {
		return p.abort(ctx, ostore.Wrap(ostore.CodeIo, "commit.Commit", "kv batch commit", err))
	}

	for _, o := range ctx.DirtyOnodes {
		o.ClearDirty()
	}

	for _, fr := range ctx.FidsToRemove {
		if err := p.frags.Remove(fr.Fid); err != nil {
			log.WithComponent("commit").Warn().Err(err).Str("fid", fr.Fid.String()).Msg("failed to remove fragment")
		}
	}

	for _, cb := range ctx.ReadableCallbacks {
		cb()
	}

	ctx.Ticket.Complete()

	for _, cb := range ctx.CommitCallbacks {
		cb()
	}

	ctx.ReleaseAll()
	metrics.TransactionsTotal.WithLabelValues("committed").Inc()

	if ctx.WALEntriesProduced {
		select {
		case p.walJobs <- struct{}{}:
		default:
			// an apply pass is already queued or running; it will pick
			// up this transaction's entries too since Replay scans
			// every unreplayed entry, not just the triggering one.
		}
	}

	return nil
}

// abort releases ctx, records err for an async caller blocked on the
// ticket's OnCommit, completes the ticket, and counts the failure on
// both the transaction counter and the event broker. It returns err
// unchanged so callers can write `return p.abort(ctx, err)`.
func (p *Pipeline) abort(ctx *txn.Context, err error) error {
	ctx.ReleaseAll()
	ctx.CommitErr = err
	ctx.Ticket.Complete()
	metrics.TransactionsTotal.WithLabelValues("aborted").Inc()
	p.publish(events.EventTransactionAborted, err.Error())
	return err
}

func (p *Pipeline) syncFragments(ctx *txn.Context) error {
	for _, f := range ctx.FDsToSync {
		timer := metrics.NewTimer()
		err := f.Sync()
		timer.ObserveDuration(metrics.FsyncLatency)
		closeErr := f.Close()
		if err != nil {
			return ostore.Wrap(ostore.CodeIo, "commit.syncFragments", "fsync fragment", err)
		}
		if closeErr != nil {
			return ostore.Wrap(ostore.CodeIo, "commit.syncFragments", "close fragment", closeErr)
		}
	}
	return nil
}
