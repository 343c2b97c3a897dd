package sequencer

import "sync"

// Registry binds each externally supplied opaque sequencer handle to
// one internal OpSequencer, installed on first use.
type Registry struct {
	seqs sync.Map // handle -> *OpSequencer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Get returns the OpSequencer bound to handle, creating one if this is
// the handle's first use.
func (r *Registry) Get(handle string) *OpSequencer {
	actual, _ := r.seqs.LoadOrStore(handle, New())
	return actual.(*OpSequencer)
}

// FlushAll blocks until every sequencer the registry has installed has
// fully drained its FIFO, for lifecycle Umount.
func (r *Registry) FlushAll() {
	r.seqs.Range(func(_, v any) bool {
		v.(*OpSequencer).Flush()
		return true
	})
}

// Depths returns the current queue depth of every sequencer the
// registry has installed, keyed by handle.
func (r *Registry) Depths() map[string]int {
	out := make(map[string]int)
	r.seqs.Range(func(k, v any) bool {
		out[k.(string)] = v.(*OpSequencer).Depth()
		return true
	})
	return out
}
