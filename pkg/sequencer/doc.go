/*
Package sequencer implements a per-sequencer FIFO ordering registry: a
mutex/condvar-guarded ticket queue per opaque handle, tracking one
OpSequencer per handle in a sync.Map.

A Registry binds each externally supplied opaque handle to one
OpSequencer, installed on first use. An OpSequencer hands out Tickets
in submission order; a Ticket's WaitTurn blocks until every ticket
queued ahead of it has Complete'd, giving transactions submitted on the
same sequencer the guarantee that they commit and become visible in
submission order. Across distinct sequencers the registry offers no
ordering — each handle's stream is independent.
*/
package sequencer
