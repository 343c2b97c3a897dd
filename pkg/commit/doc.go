/*
Package commit implements the durability pipeline: it takes a staged
*txn.Context and makes its mutations durable, in order — fsync newly
written fragment file descriptors, encode dirty onodes into the
transaction's kv batch, commit that batch atomically, remove fids
queued for post-commit deletion, then run the transaction's readable and
commit callbacks and complete its sequencer ticket so later same-handle
submissions become visible.

The finisher is one goroutine that selects over a buffered channel of
staged transactions, a channel of WAL-apply triggers, and a stop
signal. A trigger makes it replay newly committed WAL entries into
their fragment files after the commit that produced them, so an
overwrite's durability does not block on its WAL entry being applied
to the fragment file.
*/
package commit
