/*
Package ostore defines the shared value types and error taxonomy used
across the object store engine: the object identifier, fragment id,
fragment entry, the classified error codes from the error handling
design, and the handful of size constants the engine enforces.

Every other objstore package (kv, fsid, frag, onode, sequencer, wal,
txn, commit, store) imports ostore rather than each other for these
shared definitions, keeping the dependency graph a star rather than a
tangle.
*/
package ostore
