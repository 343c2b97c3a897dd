/*
Package frag allocates fragment identifiers and the files behind them.
A fragment id (ostore.Fid) is a (fset, fno) pair: fset names a bucket
directory under root/fragments, fno names a regular file inside it.
cur_fid is held under one mutex guarding bucket creation (os.Mkdir) and
file creation (golang.org/x/sys/unix.Openat relative to the open bucket
directory); no fragment-file-management library fits this directly
(documented in DESIGN.md).

Allocation is strictly monotonic: fno increments within the current
bucket until it reaches MaxBucketSize, at which point fset increments,
fno resets to 1, and a new bucket directory is created. Remove unlinks
a file immediately; the commit pipeline defers calling it until the
enclosing transaction has committed.
*/
package frag
