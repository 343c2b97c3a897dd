/*
Package wal implements a write-ahead log: a replayable record of
byte-level data mutations (overwrites and sparse writes) that cannot be
expressed as a whole-fragment write.

Entries are JSON-encoded {op, fid, offset, payload-or-length} records
(the same JSON-per-bucket-value convention used for every other kv
record in this store), keyed under the L kv prefix by a fixed-width
8-byte big-endian sequence number so key order equals submission order.
The sequence counter is an atomic.Uint64 guarded implicitly by being
the only mutable field accessed across goroutines.

Replay walks the L prefix with Engine.Scan, applies each entry to its
fragment file, and then deletes the WAL row in the same kv.Batch that
updates the owning onode's persisted unapplied_txns list, so an entry
is never silently dropped. A crash between the apply and that batch
makes the next Replay apply the entry again, which leaves the same
bytes because Apply is idempotent.
*/
package wal
