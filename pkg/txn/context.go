package txn

import (
	"os"

	"github.com/cuemby/objstore/pkg/kv"
	"github.com/cuemby/objstore/pkg/onode"
	"github.com/cuemby/objstore/pkg/ostore"
	"github.com/cuemby/objstore/pkg/sequencer"
)

// Context is the transient, per-submission staging area: everything a
// commit needs, accumulated by dispatch and nothing more — no mutation
// here has reached disk yet.
type Context struct {
	Batch *kv.Batch // kv_batch

	DirtyOnodes []*onode.Onode // onodes_to_write
	FDsToSync   []*os.File     // fds_to_sync
	FidsToRemove []FidRemoval  // fids_to_remove

	CommitCallbacks   []func() // fire after durable commit
	ReadableCallbacks []func() // fire immediately, synchronous readability

	// Ticket is this submission's place in its sequencer's FIFO. The
	// commit pipeline calls Ticket.Complete() once the batch commits
	// (or immediately, on an abort that produces no commit at all),
	// which is what makes same-sequencer transactions visible in
	// submission order.
	Ticket *sequencer.Ticket

	// WALEntriesProduced is true if dispatch staged at least one WAL
	// entry, telling the commit pipeline to enqueue this context on
	// the WAL-apply worker after commit.
	WALEntriesProduced bool

	// CommitErr is the commit pipeline's outcome, set right before
	// Ticket.Complete() so a caller blocked on the ticket's OnCommit can
	// read it once woken.
	CommitErr error

	touchedCollections map[*onode.Collection]struct{}
	pinnedRefs         []pinnedRef
	aborted            bool
	abortErr           error
}

// pinnedRef records an onode cache pin taken by an op handler (via
// Collection.Lookup/GetOrCreate) so it can be released once the commit
// pipeline is done with the context, rather than immediately after the
// op that pinned it — the onode must stay resident until its staged
// mutation is encoded and committed.
type pinnedRef struct {
	coll *onode.Collection
	key  []byte
}

// FidRemoval names a fragment id slated for post-commit deletion.
type FidRemoval struct {
	Fid ostore.Fid
}

func newContext(kvEngine kv.Engine) *Context {
	return &Context{
		Batch:               kvEngine.NewBatch(),
		touchedCollections: make(map[*onode.Collection]struct{}),
	}
}

func (c *Context) touch(coll *onode.Collection) {
	c.touchedCollections[coll] = struct{}{}
}

// registerPinned records that coll pinned the onode at key, so
// ReleaseAll can unpin it later.
func (c *Context) registerPinned(coll *onode.Collection, key []byte) {
	c.pinnedRefs = append(c.pinnedRefs, pinnedRef{coll: coll, key: key})
}

// ReleaseAll unpins every onode this context's op handlers pinned. The
// commit pipeline calls this once after a commit (successful or
// aborted) has finished touching DirtyOnodes.
func (c *Context) ReleaseAll() {
	for _, p := range c.pinnedRefs {
		p.coll.Release(p.key)
	}
	c.pinnedRefs = nil
}

// stageOnode marks o dirty-for-commit, adding it at most once per
// context. It takes no pin of its own: the pin lookupOrCreate
// registered is what keeps the cache from evicting o mid-transaction.
func (c *Context) stageOnode(o *onode.Onode) {
	for _, existing := range c.DirtyOnodes {
		if existing == o {
			return
		}
	}
	c.DirtyOnodes = append(c.DirtyOnodes, o)
}

func (c *Context) abort(err error) {
	if !c.aborted {
		c.aborted = true
		c.abortErr = err
	}
}

// Aborted reports whether dispatch hit a fatal error.
func (c *Context) Aborted() (bool, error) {
	return c.aborted, c.abortErr
}
